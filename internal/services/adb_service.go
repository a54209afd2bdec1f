package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ADBService computes time-weighted average daily balances over a fund's
// savings or share-capital transaction history.
type ADBService struct {
	db *sql.DB
}

func NewADBService(db *sql.DB) *ADBService {
	return &ADBService{db: db}
}

// BalanceType selects which fund balance the ADB runs over.
type BalanceType string

const (
	BalanceSavings      BalanceType = "savings"
	BalanceShareCapital BalanceType = "shareCapital"
)

// balanceEvent is a point where the fund balance changed; Balance is the
// balance immediately after the event.
type balanceEvent struct {
	At      time.Time
	Balance decimal.Decimal
}

func daysBetween(a, b time.Time) int64 {
	return int64(dateOnly(b).Sub(dateOnly(a)).Hours() / 24)
}

// computeADB folds the chronologically sorted events into a time-weighted
// average over [start, end]. Events at or before start only establish the
// opening balance; events after end are ignored, so intervals never extend
// past the window. With no events at all the current balance stands in.
func computeADB(events []balanceEvent, current decimal.Decimal, start, end time.Time) decimal.Decimal {
	if len(events) == 0 {
		return current
	}

	cursor := start
	balance := decimal.Zero
	weighted := decimal.Zero
	for _, ev := range events {
		if !ev.At.After(start) {
			balance = ev.Balance
			continue
		}
		if ev.At.After(end) {
			break
		}
		days := daysBetween(cursor, ev.At)
		weighted = weighted.Add(balance.Mul(decimal.NewFromInt(days)))
		cursor = ev.At
		balance = ev.Balance
	}

	tail := daysBetween(cursor, end)
	weighted = weighted.Add(balance.Mul(decimal.NewFromInt(tail)))

	totalDays := daysBetween(start, end)
	if totalDays <= 0 {
		return balance
	}
	return weighted.Div(decimal.NewFromInt(totalDays))
}

// ComputeADB returns the average daily balance of a fund's savings or share
// capital over [start, end].
func (as *ADBService) ComputeADB(ctx context.Context, fundID string, balanceType BalanceType, start, end time.Time) (decimal.Decimal, error) {
	var column, kindA, kindB string
	switch balanceType {
	case BalanceSavings:
		column, kindA, kindB = "savings_bal", "SavingsDeposit", "SavingsWithdrawal"
	case BalanceShareCapital:
		column, kindA, kindB = "share_cap_bal", "ShareCapDeposit", "ShareCapWithdrawal"
	default:
		return decimal.Zero, fmt.Errorf("unknown balance type %q", balanceType)
	}

	var current decimal.Decimal
	query := fmt.Sprintf(`SELECT %s FROM member_funds WHERE fund_id = $1`, column)
	err := as.db.QueryRowContext(ctx, query, fundID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, fmt.Errorf("%w: member fund %s", ErrEntityNotFound, fundID)
		}
		return decimal.Zero, storeErr("fund lookup", err)
	}

	// Pre-window transactions are included so the opening balance is known.
	rows, err := as.db.QueryContext(ctx, `
		SELECT created_at, new_balance FROM fund_transactions
		WHERE fund_id = $1
		  AND transaction_type IN ($2, $3)
		  AND created_at <= $4
		ORDER BY created_at ASC`, fundID, kindA, kindB, end)
	if err != nil {
		return decimal.Zero, storeErr("fund transactions query", err)
	}
	defer rows.Close()

	events := []balanceEvent{}
	for rows.Next() {
		var ev balanceEvent
		if err := rows.Scan(&ev.At, &ev.Balance); err != nil {
			return decimal.Zero, storeErr("fund transactions scan", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, storeErr("fund transactions rows", err)
	}

	return computeADB(events, current, start, end), nil
}
