package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/coopledger/backoffice/internal/models"
)

// fundTransactionRows builds the joined lookup row the fund reversal reads.
func fundTransactionRows(id, fundID, kind, posted, newBal, entryID string, entryDate time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"fund_transact_id", "fund_id", "transaction_type", "posted_balance", "new_balance", "journal_entry_id", "entry_date"}).
		AddRow(id, fundID, kind, posted, newBal, entryID, entryDate)
}

// expectEntryUnwind registers the expectations for removing an entry with two
// items (1010 Assets debit, 4010 Revenue credit, both 1000) and restoring the
// account balances.
func expectEntryUnwind(mock sqlmock.Sqlmock, entryID string) {
	mock.ExpectQuery("FROM journal_items").
		WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "entry_id", "account_id", "debit", "credit"}).
			AddRow("i-1", entryID, "1010", "1000", "0").
			AddRow("i-2", entryID, "4010", "0", "1000"))

	mock.ExpectQuery("SELECT root_type FROM accounts").
		WithArgs("1010").
		WillReturnRows(sqlmock.NewRows([]string{"root_type"}).AddRow("Assets"))
	mock.ExpectExec("UPDATE accounts").
		WithArgs(dec("-1000"), "1010").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT root_type FROM accounts").
		WithArgs("4010").
		WillReturnRows(sqlmock.NewRows([]string{"root_type"}).AddRow("Revenue"))
	mock.ExpectExec("UPDATE accounts").
		WithArgs(dec("-1000"), "4010").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec("DELETE FROM journal_items").
		WithArgs(entryID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM journal_entries").
		WithArgs(entryID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestReversalService_ReverseEntry(t *testing.T) {
	t.Run("entry reversal restores account balances and deletes rows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT entry_date FROM journal_entries").
			WithArgs("e-1").
			WillReturnRows(sqlmock.NewRows([]string{"entry_date"}).
				AddRow(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))

		mock.ExpectQuery("FROM fund_transactions").
			WithArgs("e-1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT loan_id FROM loan_repayments").
			WithArgs("e-1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT invoice_item_id FROM item_payments").
			WithArgs("e-1").
			WillReturnError(sql.ErrNoRows)

		expectEntryUnwind(mock, "e-1")
		mock.ExpectCommit()

		assert.NoError(t, service.ReverseEntry(context.Background(), "e-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing entry reports not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT entry_date FROM journal_entries").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err = service.ReverseEntry(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrEntityNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("entry with a fund transaction unwinds the fund first", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT entry_date FROM journal_entries").
			WithArgs("e-2").
			WillReturnRows(sqlmock.NewRows([]string{"entry_date"}).
				AddRow(time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)))

		mock.ExpectQuery("FROM fund_transactions").
			WithArgs("e-2").
			WillReturnRows(sqlmock.NewRows([]string{"fund_transact_id", "fund_id", "transaction_type", "posted_balance", "new_balance", "journal_entry_id"}).
				AddRow("ft-1", "f-1", string(models.KindSavingsDeposit), "200", "700", "e-2"))
		mock.ExpectQuery("SELECT savings_bal FROM member_funds").
			WithArgs("f-1").
			WillReturnRows(sqlmock.NewRows([]string{"savings_bal"}).AddRow("700"))
		mock.ExpectExec("UPDATE member_funds").
			WithArgs(dec("500"), "f-1").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM fund_transactions").
			WithArgs("ft-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("SELECT loan_id FROM loan_repayments").
			WithArgs("e-2").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT invoice_item_id FROM item_payments").
			WithArgs("e-2").
			WillReturnError(sql.ErrNoRows)

		expectEntryUnwind(mock, "e-2")
		mock.ExpectCommit()

		assert.NoError(t, service.ReverseEntry(context.Background(), "e-2"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReversalService_ReverseFundTransaction(t *testing.T) {
	t.Run("deposit reversal decrements the fund and removes both rows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM fund_transactions").
			WithArgs("ft-9").
			WillReturnRows(fundTransactionRows("ft-9", "f-1", string(models.KindSavingsDeposit), "200", "700", "e-9", day(2025, 4, 2)))
		mock.ExpectQuery("SELECT savings_bal FROM member_funds").
			WithArgs("f-1").
			WillReturnRows(sqlmock.NewRows([]string{"savings_bal"}).AddRow("700"))
		mock.ExpectExec("UPDATE member_funds").
			WithArgs(dec("500"), "f-1").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM fund_transactions").
			WithArgs("ft-9").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectEntryUnwind(mock, "e-9")
		mock.ExpectCommit()

		assert.NoError(t, service.ReverseFundTransaction(context.Background(), "ft-9"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reversal invalidates the cached reports for the entry's year", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, cacheMock := redismock.NewClientMock()
		service := NewReversalService(db, NewReportCache(rdb))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM fund_transactions").
			WithArgs("ft-9").
			WillReturnRows(fundTransactionRows("ft-9", "f-1", string(models.KindSavingsDeposit), "200", "700", "e-9", day(2024, 11, 5)))
		mock.ExpectQuery("SELECT savings_bal FROM member_funds").
			WithArgs("f-1").
			WillReturnRows(sqlmock.NewRows([]string{"savings_bal"}).AddRow("700"))
		mock.ExpectExec("UPDATE member_funds").
			WithArgs(dec("500"), "f-1").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM fund_transactions").
			WithArgs("ft-9").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectEntryUnwind(mock, "e-9")
		mock.ExpectCommit()

		// The entry is dated 2024, so the 2024 reports must be dropped.
		cacheMock.ExpectDel(monthlyCacheKey(2024), netSurplusCacheKey(2024)).SetVal(2)

		assert.NoError(t, service.ReverseFundTransaction(context.Background(), "ft-9"))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, cacheMock.ExpectationsWereMet())
	})

	t.Run("deposit reversal that would drive the fund negative conflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM fund_transactions").
			WithArgs("ft-9").
			WillReturnRows(fundTransactionRows("ft-9", "f-1", string(models.KindSavingsDeposit), "200", "700", "e-9", day(2025, 4, 2)))
		mock.ExpectQuery("SELECT savings_bal FROM member_funds").
			WithArgs("f-1").
			WillReturnRows(sqlmock.NewRows([]string{"savings_bal"}).AddRow("100"))
		mock.ExpectRollback()

		err = service.ReverseFundTransaction(context.Background(), "ft-9")
		assert.ErrorIs(t, err, ErrReversalConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("withdrawal reversal restores the withdrawn amount", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM fund_transactions").
			WithArgs("ft-3").
			WillReturnRows(fundTransactionRows("ft-3", "f-2", string(models.KindShareCapWithdrawal), "150", "50", "e-3", day(2025, 5, 8)))
		mock.ExpectQuery("SELECT share_cap_bal FROM member_funds").
			WithArgs("f-2").
			WillReturnRows(sqlmock.NewRows([]string{"share_cap_bal"}).AddRow("50"))
		mock.ExpectExec("UPDATE member_funds").
			WithArgs(dec("200"), "f-2").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM fund_transactions").
			WithArgs("ft-3").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectEntryUnwind(mock, "e-3")
		mock.ExpectCommit()

		assert.NoError(t, service.ReverseFundTransaction(context.Background(), "ft-3"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReversalService_ReverseLoanRepayment(t *testing.T) {
	t.Run("reversal reopens a loan no longer fully paid", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT r.loan_id, r.journal_entry_id, e.entry_date").
			WithArgs("r-1").
			WillReturnRows(sqlmock.NewRows([]string{"loan_id", "journal_entry_id", "entry_date"}).
				AddRow("loan-2", "e-5", day(2025, 2, 14)))
		mock.ExpectExec("DELETE FROM loan_repayments").
			WithArgs("r-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT amount_payable FROM member_loans").
			WithArgs("loan-2").
			WillReturnRows(sqlmock.NewRows([]string{"amount_payable"}).AddRow("1000"))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("loan-2").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("400"))
		mock.ExpectExec("UPDATE member_loans").
			WithArgs(models.LoanStatusActive, "loan-2").
			WillReturnResult(sqlmock.NewResult(1, 1))
		expectEntryUnwind(mock, "e-5")
		mock.ExpectCommit()

		assert.NoError(t, service.ReverseLoanRepayment(context.Background(), "r-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing repayment reports not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT r.loan_id, r.journal_entry_id, e.entry_date").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err = service.ReverseLoanRepayment(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrEntityNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReversalService_ReverseItemPayment(t *testing.T) {
	t.Run("reversal clears the fully-paid flag", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewReversalService(db, NewReportCache(nil))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT p.invoice_item_id, p.journal_entry_id, e.entry_date").
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"invoice_item_id", "journal_entry_id", "entry_date"}).
				AddRow("item-3", "e-7", day(2025, 6, 9)))
		mock.ExpectExec("DELETE FROM item_payments").
			WithArgs("p-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT principal_price, trade, quantity FROM invoice_items").
			WithArgs("item-3").
			WillReturnRows(sqlmock.NewRows([]string{"principal_price", "trade", "quantity"}).
				AddRow("100", "10", "2"))
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs("item-3").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("0"))
		mock.ExpectExec("UPDATE invoice_items").
			WithArgs(false, "item-3").
			WillReturnResult(sqlmock.NewResult(1, 1))
		expectEntryUnwind(mock, "e-7")
		mock.ExpectCommit()

		assert.NoError(t, service.ReverseItemPayment(context.Background(), "p-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
