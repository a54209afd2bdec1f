package services

import (
	"context"
	"database/sql"
	"log"

	"github.com/shopspring/decimal"

	"github.com/coopledger/backoffice/internal/models"
)

// ReconciliationService audits the running_balance cache: it recomputes each
// account's balance from the full journal and reports any drift. The cache
// is a materialized view of the journal; drift means a bug or manual edit.
type ReconciliationService struct {
	db *sql.DB
}

func NewReconciliationService(db *sql.DB) *ReconciliationService {
	return &ReconciliationService{db: db}
}

type BalanceDrift struct {
	AccountID       string          `json:"accountId"`
	AccountName     string          `json:"accountName"`
	RootType        models.RootType `json:"rootType"`
	CachedBalance   decimal.Decimal `json:"cachedBalance"`
	ComputedBalance decimal.Decimal `json:"computedBalance"`
	Drift           decimal.Decimal `json:"drift"`
}

// Reconcile returns one row per account whose cached running balance does
// not equal the signed sum of its journal items. Empty result means the
// balance invariant holds everywhere.
func (rs *ReconciliationService) Reconcile(ctx context.Context) ([]BalanceDrift, error) {
	rows, err := rs.db.QueryContext(ctx, `
		SELECT a.account_id, a.account_name, a.root_type, a.running_balance,
		       COALESCE(SUM(i.debit), 0), COALESCE(SUM(i.credit), 0)
		FROM accounts a
		LEFT JOIN journal_items i ON i.account_id = a.account_id
		GROUP BY a.account_id, a.account_name, a.root_type, a.running_balance
		ORDER BY a.account_id`)
	if err != nil {
		return nil, storeErr("reconciliation query", err)
	}
	defer rows.Close()

	drifts := []BalanceDrift{}
	checked := 0
	for rows.Next() {
		var d BalanceDrift
		var debit, credit decimal.Decimal
		if err := rows.Scan(&d.AccountID, &d.AccountName, &d.RootType, &d.CachedBalance, &debit, &credit); err != nil {
			return nil, storeErr("reconciliation scan", err)
		}
		checked++

		d.ComputedBalance = signedAmount(d.RootType, debit, credit)
		if d.ComputedBalance.Equal(d.CachedBalance) {
			continue
		}
		d.Drift = d.CachedBalance.Sub(d.ComputedBalance)
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("reconciliation rows", err)
	}

	if len(drifts) > 0 {
		log.Printf("[RECONCILE] %d of %d accounts drifted from the journal", len(drifts), checked)
	}
	return drifts, nil
}
