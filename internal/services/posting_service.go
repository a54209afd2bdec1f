package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coopledger/backoffice/internal/models"
)

// PostingService validates and writes journal entries and keeps account
// running balances and member sub-ledgers consistent with them. All writes
// for one entry happen inside a single SQL transaction.
type PostingService struct {
	db    *sql.DB
	cache *ReportCache
}

func NewPostingService(db *sql.DB, cache *ReportCache) *PostingService {
	return &PostingService{db: db, cache: cache}
}

type NewJournalItemInput struct {
	AccountID string          `json:"accountId" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// NewLoanInput carries the loan created by a LoanDisbursement posting.
type NewLoanInput struct {
	LoanID        string          `json:"loanId"`
	MemberID      string          `json:"memberId" validate:"required"`
	AmountLoaned  decimal.Decimal `json:"amountLoaned"`
	AmountPayable decimal.Decimal `json:"amountPayable"`
	IssueDate     time.Time       `json:"issueDate"`
	DueDate       time.Time       `json:"dueDate"`
}

// NewJournalEntryInput is the posting request. Kind selects the sub-ledger
// effect; ManualJournal (or empty) touches accounts only.
type NewJournalEntryInput struct {
	EntryDate     time.Time              `json:"entryDate" validate:"required"`
	ReferenceName string                 `json:"referenceName" validate:"required"`
	JournalType   string                 `json:"journalType" validate:"required"`
	MemberID      *string                `json:"memberId,omitempty"`
	Kind          models.TransactionKind `json:"transactionKind,omitempty"`
	Items         []NewJournalItemInput  `json:"items" validate:"required,min=1,dive"`

	// Sub-ledger fields, interpreted per Kind.
	FundID        string          `json:"fundId,omitempty"`
	LoanID        string          `json:"loanId,omitempty"`
	InvoiceItemID string          `json:"invoiceItemId,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Principal     decimal.Decimal `json:"principal,omitempty"`
	Interest      decimal.Decimal `json:"interest,omitempty"`
	PrincipalPaid decimal.Decimal `json:"principalPaid,omitempty"`
	TradingPaid   decimal.Decimal `json:"tradingPaid,omitempty"`
	InterestPaid  decimal.Decimal `json:"interestPaid,omitempty"`
	Loan          *NewLoanInput   `json:"loan,omitempty"`
}

type subLedger int

const (
	ledgerNone subLedger = iota
	ledgerFund
	ledgerLoan
	ledgerInvoice
)

type postingEffect struct {
	target    subLedger
	direction int64 // +1 the sub-ledger balance grows, -1 it shrinks
}

// postingEffects is the single table mapping each transaction kind to its
// sub-ledger effect. The reversal engine applies the same table with the
// direction flipped.
var postingEffects = map[models.TransactionKind]postingEffect{
	models.KindManualJournal:      {ledgerNone, 0},
	models.KindSavingsDeposit:     {ledgerFund, +1},
	models.KindSavingsWithdrawal:  {ledgerFund, -1},
	models.KindShareCapDeposit:    {ledgerFund, +1},
	models.KindShareCapWithdrawal: {ledgerFund, -1},
	models.KindLoanDisbursement:   {ledgerLoan, +1},
	models.KindLoanRepayment:      {ledgerLoan, -1},
	models.KindInvoicePayment:     {ledgerInvoice, -1},
}

// validateBalance enforces the double-entry constraint: non-empty items,
// non-negative sides, and exact decimal equality of the totals.
func validateBalance(items []NewJournalItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: entry has no items", ErrImbalancedEntry)
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, item := range items {
		if item.Debit.IsNegative() || item.Credit.IsNegative() {
			return fmt.Errorf("%w: negative amount on account %s", ErrImbalancedEntry, item.AccountID)
		}
		totalDebit = totalDebit.Add(item.Debit)
		totalCredit = totalCredit.Add(item.Credit)
	}

	if !totalDebit.Equal(totalCredit) {
		return fmt.Errorf("%w: debit %s vs credit %s",
			ErrImbalancedEntry, totalDebit.String(), totalCredit.String())
	}
	return nil
}

// validateSubLedgerInput checks the fields the kind's sub-ledger effect needs
// before any transaction is opened.
func validateSubLedgerInput(in NewJournalEntryInput, kind models.TransactionKind, effect postingEffect) error {
	switch effect.target {
	case ledgerFund:
		if in.FundID == "" {
			return fmt.Errorf("%w: fundId is required for %s", ErrInvalidSubLedgerInput, kind)
		}
		if !in.Amount.IsPositive() {
			return fmt.Errorf("%w: amount must be positive for %s", ErrInvalidSubLedgerInput, kind)
		}
	case ledgerLoan:
		if kind == models.KindLoanDisbursement {
			if in.Loan == nil {
				return fmt.Errorf("%w: loan details are required for %s", ErrInvalidSubLedgerInput, kind)
			}
			return nil
		}
		if in.LoanID == "" {
			return fmt.Errorf("%w: loanId is required for %s", ErrInvalidSubLedgerInput, kind)
		}
		if in.Principal.IsNegative() || in.Interest.IsNegative() {
			return fmt.Errorf("%w: repayment split must not be negative", ErrInvalidSubLedgerInput)
		}
	case ledgerInvoice:
		if in.InvoiceItemID == "" {
			return fmt.Errorf("%w: invoiceItemId is required for %s", ErrInvalidSubLedgerInput, kind)
		}
		if in.PrincipalPaid.IsNegative() || in.TradingPaid.IsNegative() || in.InterestPaid.IsNegative() {
			return fmt.Errorf("%w: payment split must not be negative", ErrInvalidSubLedgerInput)
		}
	}
	return nil
}

// Post writes the entry, its items, the account balance movements, and any
// sub-ledger effect atomically. On any failure nothing is applied.
func (ps *PostingService) Post(ctx context.Context, in NewJournalEntryInput) (*models.JournalEntry, error) {
	if err := validateBalance(in.Items); err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = models.KindManualJournal
	}
	effect, ok := postingEffects[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidSubLedgerInput, kind)
	}
	if err := validateSubLedgerInput(in, kind, effect); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &models.JournalEntry{
		EntryID:       uuid.NewString(),
		EntryDate:     dateOnly(in.EntryDate),
		ReferenceName: in.ReferenceName,
		JournalType:   in.JournalType,
		MemberID:      in.MemberID,
		CreatedAt:     now,
	}
	for _, item := range in.Items {
		entry.Items = append(entry.Items, models.JournalItem{
			ItemID:    uuid.NewString(),
			EntryID:   entry.EntryID,
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
		})
	}

	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	defer tx.Rollback()

	if err := insertEntry(tx, entry); err != nil {
		return nil, storeErr("insert entry", err)
	}
	if err := applyAccountDeltas(tx, entry.Items, +1); err != nil {
		return nil, storeErr("account balances", err)
	}

	switch effect.target {
	case ledgerFund:
		if err := ps.applyFundEffect(tx, in, kind, effect.direction, entry); err != nil {
			return nil, storeErr("fund sub-ledger", err)
		}
	case ledgerLoan:
		if err := ps.applyLoanEffect(tx, in, kind, entry); err != nil {
			return nil, storeErr("loan sub-ledger", err)
		}
	case ledgerInvoice:
		if err := ps.applyInvoiceEffect(tx, in, entry); err != nil {
			return nil, storeErr("invoice sub-ledger", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}

	ps.cache.InvalidateYear(ctx, entry.EntryDate.Year())
	log.Printf("[POSTING] Entry %s posted: ref=%s type=%s kind=%s items=%d",
		entry.EntryID, entry.ReferenceName, entry.JournalType, kind, len(entry.Items))
	return entry, nil
}

func insertEntry(tx *sql.Tx, entry *models.JournalEntry) error {
	_, err := tx.Exec(`
		INSERT INTO journal_entries
		(entry_id, entry_date, reference_name, journal_type, member_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.EntryID, entry.EntryDate, entry.ReferenceName, entry.JournalType,
		entry.MemberID, entry.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range entry.Items {
		_, err := tx.Exec(`
			INSERT INTO journal_items
			(item_id, entry_id, account_id, debit, credit)
			VALUES ($1, $2, $3, $4, $5)`,
			item.ItemID, item.EntryID, item.AccountID, item.Debit, item.Credit)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ps *PostingService) applyFundEffect(tx *sql.Tx, in NewJournalEntryInput, kind models.TransactionKind, direction int64, entry *models.JournalEntry) error {
	column, _ := fundColumn(kind)
	balance, err := lockFundBalance(tx, in.FundID, column)
	if err != nil {
		return err
	}

	newBalance := balance.Add(in.Amount.Mul(decimal.NewFromInt(direction)))
	if newBalance.IsNegative() {
		return fmt.Errorf("%w: fund %s has %s, withdrawal of %s",
			ErrInsufficientFunds, in.FundID, balance.String(), in.Amount.String())
	}

	if err := setFundBalance(tx, in.FundID, column, newBalance); err != nil {
		return err
	}
	return insertFundTransaction(tx, models.FundTransaction{
		FundTransactID: uuid.NewString(),
		FundID:         in.FundID,
		Type:           kind,
		PostedBalance:  in.Amount,
		NewBalance:     newBalance,
		JournalEntryID: entry.EntryID,
		CreatedAt:      entry.CreatedAt,
	})
}

func (ps *PostingService) applyLoanEffect(tx *sql.Tx, in NewJournalEntryInput, kind models.TransactionKind, entry *models.JournalEntry) error {
	if kind == models.KindLoanDisbursement {
		loanID := in.Loan.LoanID
		if loanID == "" {
			loanID = uuid.NewString()
		}
		_, err := tx.Exec(`
			INSERT INTO member_loans
			(loan_id, member_id, amount_loaned, amount_payable, issue_date, due_date, loan_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			loanID, in.Loan.MemberID, in.Loan.AmountLoaned, in.Loan.AmountPayable,
			dateOnly(in.Loan.IssueDate), dateOnly(in.Loan.DueDate), models.LoanStatusActive)
		return err
	}

	// Repayment: record the split, then re-derive the loan status.
	_, err := tx.Exec(`
		INSERT INTO loan_repayments
		(repayment_id, loan_id, payment_date, principal, interest, journal_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), in.LoanID, entry.EntryDate, in.Principal, in.Interest, entry.EntryID)
	if err != nil {
		return err
	}
	return syncLoanStatus(tx, in.LoanID)
}

func (ps *PostingService) applyInvoiceEffect(tx *sql.Tx, in NewJournalEntryInput, entry *models.JournalEntry) error {
	_, err := tx.Exec(`
		INSERT INTO item_payments
		(payment_id, invoice_item_id, payment_date, principal_paid, trading_paid, interest_paid, journal_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), in.InvoiceItemID, entry.EntryDate,
		in.PrincipalPaid, in.TradingPaid, in.InterestPaid, entry.EntryID)
	if err != nil {
		return err
	}
	return syncItemPaidFlag(tx, in.InvoiceItemID)
}
