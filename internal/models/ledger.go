package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RootType is the top-level classification of an account. It determines the
// account's normal balance: Assets and Expense accounts grow on debit,
// everything else grows on credit.
type RootType string

const (
	RootAssets       RootType = "Assets"
	RootContraAssets RootType = "Contra_Assets"
	RootLiabilities  RootType = "Liabilities"
	RootEquity       RootType = "Equity"
	RootRevenue      RootType = "Revenue"
	RootExpense      RootType = "Expense"
)

// DebitNormal reports whether a debit increases the account balance.
func (rt RootType) DebitNormal() bool {
	return rt == RootAssets || rt == RootExpense
}

// Valid reports whether rt is one of the known root types.
func (rt RootType) Valid() bool {
	switch rt {
	case RootAssets, RootContraAssets, RootLiabilities, RootEquity, RootRevenue, RootExpense:
		return true
	}
	return false
}

type Account struct {
	AccountID      string          `json:"accountId" db:"account_id"`
	AccountName    string          `json:"accountName" db:"account_name"`
	RootType       RootType        `json:"rootType" db:"root_type"`
	RunningBalance decimal.Decimal `json:"runningBalance" db:"running_balance"`
}

// Journal types carried over from the book of original entry each posting
// belongs to.
const (
	JournalCashReceipts     = "cashReceipts"
	JournalCashDisbursement = "cashDisbursement"
	JournalGeneral          = "generalJournal"
)

// JournalEntry is an atomic, balanced set of debit/credit postings. Immutable
// once posted; corrections go through the reversal engine.
type JournalEntry struct {
	EntryID       string        `json:"entryId" db:"entry_id"`
	EntryDate     time.Time     `json:"entryDate" db:"entry_date"`
	ReferenceName string        `json:"referenceName" db:"reference_name"`
	JournalType   string        `json:"journalType" db:"journal_type"`
	MemberID      *string       `json:"memberId,omitempty" db:"member_id"`
	Items         []JournalItem `json:"items"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
}

type JournalItem struct {
	ItemID    string          `json:"itemId" db:"item_id"`
	EntryID   string          `json:"entryId" db:"entry_id"`
	AccountID string          `json:"accountId" db:"account_id"`
	Debit     decimal.Decimal `json:"debit" db:"debit"`
	Credit    decimal.Decimal `json:"credit" db:"credit"`
}

// TransactionKind is the closed set of sub-ledger events a journal entry can
// represent. Every kind maps to one posting effect (see services).
type TransactionKind string

const (
	KindSavingsDeposit     TransactionKind = "SavingsDeposit"
	KindSavingsWithdrawal  TransactionKind = "SavingsWithdrawal"
	KindShareCapDeposit    TransactionKind = "ShareCapDeposit"
	KindShareCapWithdrawal TransactionKind = "ShareCapWithdrawal"
	KindLoanDisbursement   TransactionKind = "LoanDisbursement"
	KindLoanRepayment      TransactionKind = "LoanRepayment"
	KindInvoicePayment     TransactionKind = "InvoicePayment"
	KindManualJournal      TransactionKind = "ManualJournal"
)
