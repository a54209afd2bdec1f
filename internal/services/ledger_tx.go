package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/backoffice/internal/models"
)

// In-transaction helpers shared by the posting and reversal engines. Every
// function here expects to run inside an open *sql.Tx; the caller owns
// commit/rollback.

// signedAmount applies the normal-balance convention: debits increase
// Assets/Expense accounts, credits increase everything else.
func signedAmount(rootType models.RootType, debit, credit decimal.Decimal) decimal.Decimal {
	if rootType.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

type accountDelta struct {
	debit  decimal.Decimal
	credit decimal.Decimal
}

// applyAccountDeltas folds the items into one net movement per account and
// applies direction*signedAmount to each running balance. Accounts are locked
// in ascending id order so concurrent postings cannot deadlock.
func applyAccountDeltas(tx *sql.Tx, items []models.JournalItem, direction int64) error {
	deltas := make(map[string]accountDelta)
	for _, item := range items {
		d := deltas[item.AccountID]
		d.debit = d.debit.Add(item.Debit)
		d.credit = d.credit.Add(item.Credit)
		deltas[item.AccountID] = d
	}

	accountIDs := make([]string, 0, len(deltas))
	for id := range deltas {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	dir := decimal.NewFromInt(direction)
	for _, accountID := range accountIDs {
		var rootType models.RootType
		err := tx.QueryRow(`
			SELECT root_type FROM accounts
			WHERE account_id = $1
			FOR UPDATE`, accountID).Scan(&rootType)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: account %s", ErrEntityNotFound, accountID)
			}
			return err
		}

		d := deltas[accountID]
		movement := signedAmount(rootType, d.debit, d.credit).Mul(dir)
		_, err = tx.Exec(`
			UPDATE accounts
			SET running_balance = running_balance + $1
			WHERE account_id = $2`, movement, accountID)
		if err != nil {
			return err
		}
	}

	return nil
}

// fundColumn maps a fund-moving transaction kind to the balance column it
// touches. Second return is false for non-fund kinds.
func fundColumn(kind models.TransactionKind) (string, bool) {
	switch kind {
	case models.KindSavingsDeposit, models.KindSavingsWithdrawal:
		return "savings_bal", true
	case models.KindShareCapDeposit, models.KindShareCapWithdrawal:
		return "share_cap_bal", true
	}
	return "", false
}

// lockFundBalance locks the fund row and returns the current balance of the
// given column.
func lockFundBalance(tx *sql.Tx, fundID, column string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	// column comes from fundColumn, never from input
	query := fmt.Sprintf(`
		SELECT %s FROM member_funds
		WHERE fund_id = $1
		FOR UPDATE`, column)
	err := tx.QueryRow(query, fundID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, fmt.Errorf("%w: member fund %s", ErrEntityNotFound, fundID)
		}
		return decimal.Zero, err
	}
	return balance, nil
}

func setFundBalance(tx *sql.Tx, fundID, column string, balance decimal.Decimal) error {
	query := fmt.Sprintf(`
		UPDATE member_funds
		SET %s = $1
		WHERE fund_id = $2`, column)
	_, err := tx.Exec(query, balance, fundID)
	return err
}

func insertFundTransaction(tx *sql.Tx, ft models.FundTransaction) error {
	_, err := tx.Exec(`
		INSERT INTO fund_transactions
		(fund_transact_id, fund_id, transaction_type, posted_balance, new_balance, journal_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ft.FundTransactID, ft.FundID, ft.Type, ft.PostedBalance, ft.NewBalance, ft.JournalEntryID, ft.CreatedAt)
	return err
}

// syncLoanStatus recomputes whether the loan is settled from its remaining
// repayments and writes the status. Reopens a closed loan when a repayment
// reversal drops the paid total below the payable amount.
func syncLoanStatus(tx *sql.Tx, loanID string) error {
	var amountPayable decimal.Decimal
	err := tx.QueryRow(`
		SELECT amount_payable FROM member_loans
		WHERE loan_id = $1
		FOR UPDATE`, loanID).Scan(&amountPayable)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: loan %s", ErrEntityNotFound, loanID)
		}
		return err
	}

	var paid decimal.Decimal
	err = tx.QueryRow(`
		SELECT COALESCE(SUM(principal + interest), 0) FROM loan_repayments
		WHERE loan_id = $1`, loanID).Scan(&paid)
	if err != nil {
		return err
	}

	status := models.LoanStatusActive
	if paid.GreaterThanOrEqual(amountPayable) {
		status = models.LoanStatusClosed
	}
	_, err = tx.Exec(`
		UPDATE member_loans
		SET loan_status = $1
		WHERE loan_id = $2`, status, loanID)
	return err
}

// syncItemPaidFlag recomputes is_totally_paid from the remaining payments.
// A payment reversal can therefore never leave an item wrongly marked paid.
func syncItemPaidFlag(tx *sql.Tx, invoiceItemID string) error {
	var principalPrice, trade, quantity decimal.Decimal
	err := tx.QueryRow(`
		SELECT principal_price, trade, quantity FROM invoice_items
		WHERE item_id = $1
		FOR UPDATE`, invoiceItemID).Scan(&principalPrice, &trade, &quantity)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: invoice item %s", ErrEntityNotFound, invoiceItemID)
		}
		return err
	}

	var paid decimal.Decimal
	err = tx.QueryRow(`
		SELECT COALESCE(SUM(principal_paid + trading_paid), 0) FROM item_payments
		WHERE invoice_item_id = $1`, invoiceItemID).Scan(&paid)
	if err != nil {
		return err
	}

	total := quantity.Mul(principalPrice.Add(trade))
	isPaid := paid.GreaterThanOrEqual(total) && total.GreaterThan(decimal.Zero)
	_, err = tx.Exec(`
		UPDATE invoice_items
		SET is_totally_paid = $1
		WHERE item_id = $2`, isPaid, invoiceItemID)
	return err
}

// loadEntryItems reads the journal items of an entry ordered by account id.
func loadEntryItems(tx *sql.Tx, entryID string) ([]models.JournalItem, error) {
	rows, err := tx.Query(`
		SELECT item_id, entry_id, account_id, debit, credit FROM journal_items
		WHERE entry_id = $1
		ORDER BY account_id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.JournalItem{}
	for rows.Next() {
		var item models.JournalItem
		if err := rows.Scan(&item.ItemID, &item.EntryID, &item.AccountID, &item.Debit, &item.Credit); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// deleteEntryRows removes the items and the entry itself. The balance
// reversal must already have been applied.
func deleteEntryRows(tx *sql.Tx, entryID string) error {
	if _, err := tx.Exec(`DELETE FROM journal_items WHERE entry_id = $1`, entryID); err != nil {
		return err
	}
	result, err := tx.Exec(`DELETE FROM journal_entries WHERE entry_id = $1`, entryID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: journal entry %s", ErrEntityNotFound, entryID)
	}
	return nil
}

// dateOnly truncates to midnight UTC; entry dates compare at day precision.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
