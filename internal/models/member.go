package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Member struct {
	MemberID   string `json:"memberId" db:"member_id"`
	LastName   string `json:"lastName" db:"last_name"`
	FirstName  string `json:"firstName" db:"first_name"`
	MiddleName string `json:"middleName" db:"middle_name"`
}

// FullName renders "lastName, firstName middleName", the sort key used by the
// aging reports.
func (m Member) FullName() string {
	name := m.LastName + ", " + m.FirstName
	if m.MiddleName != "" {
		name += " " + m.MiddleName
	}
	return name
}

// MemberFund is the per-member materialized savings and share-capital
// balances. Moved only by fund transactions posted through the ledger.
type MemberFund struct {
	FundID      string          `json:"fundId" db:"fund_id"`
	MemberID    string          `json:"memberId" db:"member_id"`
	SavingsBal  decimal.Decimal `json:"savingsBal" db:"savings_bal"`
	ShareCapBal decimal.Decimal `json:"shareCapBal" db:"share_cap_bal"`
}

// FundTransaction links a fund balance movement 1:1 to the journal entry that
// caused it. PostedBalance is the delta applied, NewBalance the result.
type FundTransaction struct {
	FundTransactID string          `json:"fundTransactId" db:"fund_transact_id"`
	FundID         string          `json:"fundId" db:"fund_id"`
	Type           TransactionKind `json:"transactionType" db:"transaction_type"`
	PostedBalance  decimal.Decimal `json:"postedBalance" db:"posted_balance"`
	NewBalance     decimal.Decimal `json:"newBalance" db:"new_balance"`
	JournalEntryID string          `json:"journalEntryId" db:"journal_entry_id"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}
