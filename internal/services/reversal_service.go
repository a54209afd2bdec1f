package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/backoffice/internal/models"
)

// ReversalService deletes posted journal entries and sub-ledger transactions
// and exactly inverts every balance effect the posting engine applied. Each
// reversal runs in a single SQL transaction.
type ReversalService struct {
	db    *sql.DB
	cache *ReportCache
}

func NewReversalService(db *sql.DB, cache *ReportCache) *ReversalService {
	return &ReversalService{db: db, cache: cache}
}

// ReverseEntry removes a journal entry together with any dependent
// sub-ledger transaction derived from it.
func (rs *ReversalService) ReverseEntry(ctx context.Context, entryID string) error {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()

	var entryDate time.Time
	err = tx.QueryRow(`
		SELECT entry_date FROM journal_entries
		WHERE entry_id = $1`, entryID).Scan(&entryDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: journal entry %s", ErrEntityNotFound, entryID)
		}
		return storeErr("lookup entry", err)
	}

	if err := rs.unwindDependents(tx, entryID); err != nil {
		return storeErr("sub-ledger reversal", err)
	}
	if err := rs.unwindEntry(tx, entryID); err != nil {
		return storeErr("entry reversal", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}

	rs.cache.InvalidateYear(ctx, entryDate.Year())
	log.Printf("[REVERSAL] Entry %s reversed", entryID)
	return nil
}

// ReverseFundTransaction undoes a fund deposit or withdrawal: the fund
// balance moves by postedBalance in the opposite direction of the
// transaction type, then the linking row and the underlying entry go away.
func (rs *ReversalService) ReverseFundTransaction(ctx context.Context, fundTransactID string) error {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()

	var ft models.FundTransaction
	var entryDate time.Time
	err = tx.QueryRow(`
		SELECT ft.fund_transact_id, ft.fund_id, ft.transaction_type, ft.posted_balance, ft.new_balance, ft.journal_entry_id, e.entry_date
		FROM fund_transactions ft
		JOIN journal_entries e ON e.entry_id = ft.journal_entry_id
		WHERE ft.fund_transact_id = $1`, fundTransactID).
		Scan(&ft.FundTransactID, &ft.FundID, &ft.Type, &ft.PostedBalance, &ft.NewBalance, &ft.JournalEntryID, &entryDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: fund transaction %s", ErrEntityNotFound, fundTransactID)
		}
		return storeErr("lookup fund transaction", err)
	}

	if err := rs.unwindFundTransaction(tx, ft); err != nil {
		return storeErr("fund reversal", err)
	}
	if err := rs.unwindEntry(tx, ft.JournalEntryID); err != nil {
		return storeErr("entry reversal", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}

	rs.cache.InvalidateYear(ctx, entryDate.Year())
	log.Printf("[REVERSAL] Fund transaction %s reversed: fund=%s type=%s amount=%s",
		ft.FundTransactID, ft.FundID, ft.Type, ft.PostedBalance.String())
	return nil
}

// ReverseLoanRepayment deletes a repayment, re-derives the loan status, and
// removes the journal entry that recorded it.
func (rs *ReversalService) ReverseLoanRepayment(ctx context.Context, repaymentID string) error {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()

	var loanID, entryID string
	var entryDate time.Time
	err = tx.QueryRow(`
		SELECT r.loan_id, r.journal_entry_id, e.entry_date
		FROM loan_repayments r
		JOIN journal_entries e ON e.entry_id = r.journal_entry_id
		WHERE r.repayment_id = $1`, repaymentID).Scan(&loanID, &entryID, &entryDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: loan repayment %s", ErrEntityNotFound, repaymentID)
		}
		return storeErr("lookup repayment", err)
	}

	if _, err := tx.Exec(`DELETE FROM loan_repayments WHERE repayment_id = $1`, repaymentID); err != nil {
		return storeErr("delete repayment", err)
	}
	if err := syncLoanStatus(tx, loanID); err != nil {
		return storeErr("loan status", err)
	}
	if err := rs.unwindEntry(tx, entryID); err != nil {
		return storeErr("entry reversal", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}

	rs.cache.InvalidateYear(ctx, entryDate.Year())
	log.Printf("[REVERSAL] Loan repayment %s reversed: loan=%s", repaymentID, loanID)
	return nil
}

// ReverseItemPayment deletes an invoice item payment and clears the item's
// fully-paid flag when the remaining payments no longer cover it.
func (rs *ReversalService) ReverseItemPayment(ctx context.Context, paymentID string) error {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()

	var invoiceItemID, entryID string
	var entryDate time.Time
	err = tx.QueryRow(`
		SELECT p.invoice_item_id, p.journal_entry_id, e.entry_date
		FROM item_payments p
		JOIN journal_entries e ON e.entry_id = p.journal_entry_id
		WHERE p.payment_id = $1`, paymentID).Scan(&invoiceItemID, &entryID, &entryDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: item payment %s", ErrEntityNotFound, paymentID)
		}
		return storeErr("lookup payment", err)
	}

	if _, err := tx.Exec(`DELETE FROM item_payments WHERE payment_id = $1`, paymentID); err != nil {
		return storeErr("delete payment", err)
	}
	if err := syncItemPaidFlag(tx, invoiceItemID); err != nil {
		return storeErr("paid flag", err)
	}
	if err := rs.unwindEntry(tx, entryID); err != nil {
		return storeErr("entry reversal", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}

	rs.cache.InvalidateYear(ctx, entryDate.Year())
	log.Printf("[REVERSAL] Item payment %s reversed: item=%s", paymentID, invoiceItemID)
	return nil
}

// unwindEntry subtracts the entry's signed movements from every touched
// account and deletes the entry with its items.
func (rs *ReversalService) unwindEntry(tx *sql.Tx, entryID string) error {
	items, err := loadEntryItems(tx, entryID)
	if err != nil {
		return err
	}
	if err := applyAccountDeltas(tx, items, -1); err != nil {
		return err
	}
	return deleteEntryRows(tx, entryID)
}

// unwindFundTransaction applies postedBalance opposite to the transaction
// type and deletes the linking row. Fails with ErrReversalConflict when the
// fund balance cannot absorb the reversal.
func (rs *ReversalService) unwindFundTransaction(tx *sql.Tx, ft models.FundTransaction) error {
	effect, ok := postingEffects[ft.Type]
	if !ok || effect.target != ledgerFund {
		return fmt.Errorf("fund transaction %s has non-fund type %q", ft.FundTransactID, ft.Type)
	}
	column, _ := fundColumn(ft.Type)

	balance, err := lockFundBalance(tx, ft.FundID, column)
	if err != nil {
		return err
	}

	// Deposit types decrement on reversal, withdrawal types increment.
	newBalance := balance.Sub(ft.PostedBalance.Mul(decimal.NewFromInt(effect.direction)))
	if newBalance.IsNegative() {
		return fmt.Errorf("%w: fund %s has %s, reversal of %s %s",
			ErrReversalConflict, ft.FundID, balance.String(), ft.Type, ft.PostedBalance.String())
	}
	if err := setFundBalance(tx, ft.FundID, column, newBalance); err != nil {
		return err
	}

	_, err = tx.Exec(`DELETE FROM fund_transactions WHERE fund_transact_id = $1`, ft.FundTransactID)
	return err
}

// unwindDependents reverses whatever sub-ledger rows hang off the entry
// before the entry itself is removed.
func (rs *ReversalService) unwindDependents(tx *sql.Tx, entryID string) error {
	var ft models.FundTransaction
	err := tx.QueryRow(`
		SELECT fund_transact_id, fund_id, transaction_type, posted_balance, new_balance, journal_entry_id
		FROM fund_transactions
		WHERE journal_entry_id = $1`, entryID).
		Scan(&ft.FundTransactID, &ft.FundID, &ft.Type, &ft.PostedBalance, &ft.NewBalance, &ft.JournalEntryID)
	if err == nil {
		if err := rs.unwindFundTransaction(tx, ft); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return err
	}

	var loanID string
	err = tx.QueryRow(`
		SELECT loan_id FROM loan_repayments
		WHERE journal_entry_id = $1`, entryID).Scan(&loanID)
	if err == nil {
		if _, err := tx.Exec(`DELETE FROM loan_repayments WHERE journal_entry_id = $1`, entryID); err != nil {
			return err
		}
		if err := syncLoanStatus(tx, loanID); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return err
	}

	var invoiceItemID string
	err = tx.QueryRow(`
		SELECT invoice_item_id FROM item_payments
		WHERE journal_entry_id = $1`, entryID).Scan(&invoiceItemID)
	if err == nil {
		if _, err := tx.Exec(`DELETE FROM item_payments WHERE journal_entry_id = $1`, entryID); err != nil {
			return err
		}
		if err := syncItemPaidFlag(tx, invoiceItemID); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return err
	}

	return nil
}
