package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Invoice struct {
	InvoiceID   string        `json:"invoiceId" db:"invoice_id"`
	MemberID    string        `json:"memberId" db:"member_id"`
	InvoiceDate time.Time     `json:"invoiceDate" db:"invoice_date"`
	Items       []InvoiceItem `json:"items,omitempty"`
}

// InvoiceItem is a line sold on credit. IsTotallyPaid flips true once
// payments cover quantity * (principal + trade) and flips back to false if
// the covering payment is reversed.
type InvoiceItem struct {
	ItemID         string          `json:"itemId" db:"item_id"`
	InvoiceID      string          `json:"invoiceId" db:"invoice_id"`
	ItemName       string          `json:"itemName" db:"item_name"`
	PrincipalPrice decimal.Decimal `json:"principalPrice" db:"principal_price"`
	Trade          decimal.Decimal `json:"trade" db:"trade"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	IsTotallyPaid  bool            `json:"isTotallyPaid" db:"is_totally_paid"`
	Payments       []ItemPayment   `json:"payments,omitempty"`
}

// TotalPrincipalAndTrade is quantity * (principalPrice + trade), the amount a
// fully paid item must have collected in principal plus trading.
func (it InvoiceItem) TotalPrincipalAndTrade() decimal.Decimal {
	return it.Quantity.Mul(it.PrincipalPrice.Add(it.Trade))
}

type ItemPayment struct {
	PaymentID      string          `json:"paymentId" db:"payment_id"`
	InvoiceItemID  string          `json:"invoiceItemId" db:"invoice_item_id"`
	PaymentDate    time.Time       `json:"paymentDate" db:"payment_date"`
	PrincipalPaid  decimal.Decimal `json:"principalPaid" db:"principal_paid"`
	TradingPaid    decimal.Decimal `json:"tradingPaid" db:"trading_paid"`
	InterestPaid   decimal.Decimal `json:"interestPaid" db:"interest_paid"`
	JournalEntryID string          `json:"journalEntryId" db:"journal_entry_id"`
}
