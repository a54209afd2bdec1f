package services

import (
	"context"
	"database/sql"
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/coopledger/backoffice/internal/models"
)

// ReportingService holds the read-only aggregations over the journal:
// monthly revenue/expense, accumulated net surplus, and patronage ledgers.
// All sums run in exact decimal arithmetic in a single pass.
type ReportingService struct {
	db    *sql.DB
	cache *ReportCache
}

func NewReportingService(db *sql.DB, cache *ReportCache) *ReportingService {
	return &ReportingService{db: db, cache: cache}
}

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

type MonthlyRevenueExpense struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Expense decimal.Decimal `json:"expense"`
}

type MonthlyNetSurplus struct {
	Month       string          `json:"month"`
	NetSurplus  decimal.Decimal `json:"netSurplus"`
	Accumulated decimal.Decimal `json:"accumulated"`
}

// revExpRow is one journal item against a Revenue or Expense account.
type revExpRow struct {
	rootType models.RootType
	month    int // 1..12
	debit    decimal.Decimal
	credit   decimal.Decimal
}

// foldMonthly buckets the rows by calendar month. Revenue counts
// credit-debit, Expense counts debit-credit. Every month is emitted, in
// calendar order, zero when empty.
func foldMonthly(rows []revExpRow) []MonthlyRevenueExpense {
	result := make([]MonthlyRevenueExpense, 12)
	for i := range result {
		result[i] = MonthlyRevenueExpense{Month: monthNames[i], Revenue: decimal.Zero, Expense: decimal.Zero}
	}
	for _, row := range rows {
		if row.month < 1 || row.month > 12 {
			continue
		}
		bucket := &result[row.month-1]
		switch row.rootType {
		case models.RootRevenue:
			bucket.Revenue = bucket.Revenue.Add(row.credit.Sub(row.debit))
		case models.RootExpense:
			bucket.Expense = bucket.Expense.Add(row.debit.Sub(row.credit))
		}
	}
	return result
}

// accumulateNetSurplus turns the monthly partition into per-month net plus a
// running prefix sum in calendar order.
func accumulateNetSurplus(monthly []MonthlyRevenueExpense) []MonthlyNetSurplus {
	result := make([]MonthlyNetSurplus, 0, len(monthly))
	accumulated := decimal.Zero
	for _, m := range monthly {
		net := m.Revenue.Sub(m.Expense)
		accumulated = accumulated.Add(net)
		result = append(result, MonthlyNetSurplus{
			Month:       m.Month,
			NetSurplus:  net,
			Accumulated: accumulated,
		})
	}
	return result
}

func (rs *ReportingService) fetchRevenueExpenseRows(ctx context.Context, year int) ([]revExpRow, error) {
	rows, err := rs.db.QueryContext(ctx, `
		SELECT a.root_type, EXTRACT(MONTH FROM e.entry_date)::int, i.debit, i.credit
		FROM journal_items i
		JOIN journal_entries e ON e.entry_id = i.entry_id
		JOIN accounts a ON a.account_id = i.account_id
		WHERE a.root_type IN ('Revenue', 'Expense')
		  AND EXTRACT(YEAR FROM e.entry_date)::int = $1`, year)
	if err != nil {
		return nil, storeErr("revenue/expense query", err)
	}
	defer rows.Close()

	result := []revExpRow{}
	for rows.Next() {
		var row revExpRow
		if err := rows.Scan(&row.rootType, &row.month, &row.debit, &row.credit); err != nil {
			return nil, storeErr("revenue/expense scan", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// MonthlyRevenueExpense returns exactly 12 buckets Jan..Dec for the year.
func (rs *ReportingService) MonthlyRevenueExpense(ctx context.Context, year int) ([]MonthlyRevenueExpense, error) {
	cacheKey := monthlyCacheKey(year)
	var cached []MonthlyRevenueExpense
	if rs.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	raw, err := rs.fetchRevenueExpenseRows(ctx, year)
	if err != nil {
		return nil, err
	}
	monthly := foldMonthly(raw)

	rs.cache.SetJSON(ctx, cacheKey, monthly)
	log.Printf("[REPORTS] Monthly revenue/expense computed for %d from %d items", year, len(raw))
	return monthly, nil
}

// NetSurplusTrend returns the 12-month net surplus with running accumulation.
func (rs *ReportingService) NetSurplusTrend(ctx context.Context, year int) ([]MonthlyNetSurplus, error) {
	cacheKey := netSurplusCacheKey(year)
	var cached []MonthlyNetSurplus
	if rs.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached, nil
	}

	raw, err := rs.fetchRevenueExpenseRows(ctx, year)
	if err != nil {
		return nil, err
	}
	trend := accumulateNetSurplus(foldMonthly(raw))

	rs.cache.SetJSON(ctx, cacheKey, trend)
	return trend, nil
}

// PatronageRow is a per-account debit/credit total for one member's activity
// in a month and journal type.
type PatronageRow struct {
	AccountID   string          `json:"accountId"`
	AccountName string          `json:"accountName"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// PatronageLedger sums the member's journal items for the month and journal
// type across Assets and Revenue accounts, ordered by account name.
func (rs *ReportingService) PatronageLedger(ctx context.Context, memberID string, year, month int, journalType string) ([]PatronageRow, error) {
	rows, err := rs.db.QueryContext(ctx, `
		SELECT a.account_id, a.account_name, i.debit, i.credit
		FROM journal_items i
		JOIN journal_entries e ON e.entry_id = i.entry_id
		JOIN accounts a ON a.account_id = i.account_id
		WHERE e.member_id = $1
		  AND EXTRACT(YEAR FROM e.entry_date)::int = $2
		  AND EXTRACT(MONTH FROM e.entry_date)::int = $3
		  AND e.journal_type = $4
		  AND a.root_type IN ('Assets', 'Revenue')`,
		memberID, year, month, journalType)
	if err != nil {
		return nil, storeErr("patronage query", err)
	}
	defer rows.Close()

	byAccount := make(map[string]*PatronageRow)
	for rows.Next() {
		var accountID, accountName string
		var debit, credit decimal.Decimal
		if err := rows.Scan(&accountID, &accountName, &debit, &credit); err != nil {
			return nil, storeErr("patronage scan", err)
		}
		row, ok := byAccount[accountID]
		if !ok {
			row = &PatronageRow{AccountID: accountID, AccountName: accountName, Debit: decimal.Zero, Credit: decimal.Zero}
			byAccount[accountID] = row
		}
		row.Debit = row.Debit.Add(debit)
		row.Credit = row.Credit.Add(credit)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("patronage rows", err)
	}

	result := make([]PatronageRow, 0, len(byAccount))
	for _, row := range byAccount {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AccountName < result[j].AccountName
	})
	return result, nil
}
