package services

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/backoffice/internal/models"
)

// AgingService classifies outstanding loans and unpaid invoice items by how
// many whole months overdue they are, grouped per member.
type AgingService struct {
	db *sql.DB
}

func NewAgingService(db *sql.DB) *AgingService {
	return &AgingService{db: db}
}

// monthlyInterestRate accrues on the unpaid principal+trade of overdue
// invoice items, simple interest per whole month overdue.
var monthlyInterestRate = decimal.NewFromFloat(0.02)

// monthsBetween counts whole calendar months from 'from' to 'to', floored.
// One month plus 29 days is still one month. Never negative.
func monthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

type AgingLoan struct {
	LoanID                       string          `json:"loanId"`
	AmountLoaned                 decimal.Decimal `json:"amountLoaned"`
	AmountPayable                decimal.Decimal `json:"amountPayable"`
	IssueDate                    time.Time       `json:"issueDate"`
	DueDate                      time.Time       `json:"dueDate"`
	LastPaymentDate              *time.Time      `json:"lastPaymentDate,omitempty"`
	LapseFromLastPaymentToDueDate int            `json:"lapseFromLastPaymentToDueDate"`
	LapseFromDueDateToToday      int             `json:"lapseFromDueDateToToday"`
}

type MemberAgingLoans struct {
	MemberID   string      `json:"memberId"`
	FullName   string      `json:"fullName"`
	AgingLoans []AgingLoan `json:"agingLoans"`
}

// AgingLoans reports active loans due on or before today, grouped by member
// and sorted by full name. Loans without a repayment age from the issue date.
func (as *AgingService) AgingLoans(ctx context.Context, today time.Time) ([]MemberAgingLoans, error) {
	today = dateOnly(today)
	rows, err := as.db.QueryContext(ctx, `
		SELECT l.loan_id, l.member_id, m.last_name, m.first_name, m.middle_name,
		       l.amount_loaned, l.amount_payable, l.issue_date, l.due_date,
		       (SELECT MAX(r.payment_date) FROM loan_repayments r WHERE r.loan_id = l.loan_id)
		FROM member_loans l
		JOIN members m ON m.member_id = l.member_id
		WHERE l.loan_status = 'Active' AND l.due_date <= $1`, today)
	if err != nil {
		return nil, storeErr("aging loans query", err)
	}
	defer rows.Close()

	groups := make(map[string]*MemberAgingLoans)
	for rows.Next() {
		var loan AgingLoan
		var member models.Member
		var lastPayment sql.NullTime
		err := rows.Scan(&loan.LoanID, &member.MemberID, &member.LastName, &member.FirstName, &member.MiddleName,
			&loan.AmountLoaned, &loan.AmountPayable, &loan.IssueDate, &loan.DueDate, &lastPayment)
		if err != nil {
			return nil, storeErr("aging loans scan", err)
		}

		anchor := loan.IssueDate
		if lastPayment.Valid {
			t := lastPayment.Time
			loan.LastPaymentDate = &t
			anchor = t
		}
		loan.LapseFromLastPaymentToDueDate = monthsBetween(anchor, loan.DueDate)
		loan.LapseFromDueDateToToday = monthsBetween(loan.DueDate, today)

		group, ok := groups[member.MemberID]
		if !ok {
			group = &MemberAgingLoans{MemberID: member.MemberID, FullName: member.FullName()}
			groups[member.MemberID] = group
		}
		group.AgingLoans = append(group.AgingLoans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("aging loans rows", err)
	}

	result := make([]MemberAgingLoans, 0, len(groups))
	for _, group := range groups {
		result = append(result, *group)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullName < result[j].FullName
	})
	return result, nil
}

type AgingInvoiceItem struct {
	ItemID                string          `json:"itemId"`
	InvoiceID             string          `json:"invoiceId"`
	ItemName              string          `json:"itemName"`
	InvoiceDate           time.Time       `json:"invoiceDate"`
	MonthsOverdue         int             `json:"monthsOverdue"`
	TotalPrincipalAndTrade decimal.Decimal `json:"totalPrincipalAndTrade"`
	AccruedInterest       decimal.Decimal `json:"accruedInterest"`
	AmountPaid            decimal.Decimal `json:"amountPaid"`
}

type MemberAgingInvoices struct {
	MemberID   string             `json:"memberId"`
	FullName   string             `json:"fullName"`
	AgingItems []AgingInvoiceItem `json:"agingItems"`
}

// AgingInvoices reports unpaid invoice items on invoices dated more than one
// month before today. Interest accrues simple per month on the unpaid
// principal+trade portion.
func (as *AgingService) AgingInvoices(ctx context.Context, today time.Time) ([]MemberAgingInvoices, error) {
	today = dateOnly(today)
	cutoff := today.AddDate(0, -1, 0)
	rows, err := as.db.QueryContext(ctx, `
		SELECT it.item_id, inv.invoice_id, it.item_name, inv.invoice_date,
		       inv.member_id, m.last_name, m.first_name, m.middle_name,
		       it.principal_price, it.trade, it.quantity,
		       COALESCE((SELECT SUM(p.principal_paid + p.trading_paid) FROM item_payments p WHERE p.invoice_item_id = it.item_id), 0),
		       COALESCE((SELECT SUM(p.principal_paid + p.trading_paid + p.interest_paid) FROM item_payments p WHERE p.invoice_item_id = it.item_id), 0)
		FROM invoice_items it
		JOIN invoices inv ON inv.invoice_id = it.invoice_id
		JOIN members m ON m.member_id = inv.member_id
		WHERE it.is_totally_paid = false AND inv.invoice_date < $1`, cutoff)
	if err != nil {
		return nil, storeErr("aging invoices query", err)
	}
	defer rows.Close()

	groups := make(map[string]*MemberAgingInvoices)
	for rows.Next() {
		var item AgingInvoiceItem
		var member models.Member
		var principalPrice, trade, quantity, principalTradePaid, totalPaid decimal.Decimal
		err := rows.Scan(&item.ItemID, &item.InvoiceID, &item.ItemName, &item.InvoiceDate,
			&member.MemberID, &member.LastName, &member.FirstName, &member.MiddleName,
			&principalPrice, &trade, &quantity, &principalTradePaid, &totalPaid)
		if err != nil {
			return nil, storeErr("aging invoices scan", err)
		}

		item.MonthsOverdue = monthsBetween(item.InvoiceDate, today)
		item.TotalPrincipalAndTrade = quantity.Mul(principalPrice.Add(trade))
		unpaid := item.TotalPrincipalAndTrade.Sub(principalTradePaid)
		if unpaid.IsNegative() {
			unpaid = decimal.Zero
		}
		item.AccruedInterest = unpaid.Mul(monthlyInterestRate).Mul(decimal.NewFromInt(int64(item.MonthsOverdue)))
		item.AmountPaid = totalPaid

		group, ok := groups[member.MemberID]
		if !ok {
			group = &MemberAgingInvoices{MemberID: member.MemberID, FullName: member.FullName()}
			groups[member.MemberID] = group
		}
		group.AgingItems = append(group.AgingItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("aging invoices rows", err)
	}

	result := make([]MemberAgingInvoices, 0, len(groups))
	for _, group := range groups {
		result = append(result, *group)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullName < result[j].FullName
	})
	return result, nil
}
