package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanStatusActive = "Active"
	LoanStatusClosed = "Closed"
)

type MemberLoan struct {
	LoanID        string          `json:"loanId" db:"loan_id"`
	MemberID      string          `json:"memberId" db:"member_id"`
	AmountLoaned  decimal.Decimal `json:"amountLoaned" db:"amount_loaned"`
	AmountPayable decimal.Decimal `json:"amountPayable" db:"amount_payable"`
	IssueDate     time.Time       `json:"issueDate" db:"issue_date"`
	DueDate       time.Time       `json:"dueDate" db:"due_date"`
	LoanStatus    string          `json:"loanStatus" db:"loan_status"`
	Repayments    []LoanRepayment `json:"repayments,omitempty"`
}

// LoanRepayment is one principal/interest payment against a loan. The latest
// payment date anchors the loan aging report.
type LoanRepayment struct {
	RepaymentID    string          `json:"repaymentId" db:"repayment_id"`
	LoanID         string          `json:"loanId" db:"loan_id"`
	PaymentDate    time.Time       `json:"paymentDate" db:"payment_date"`
	Principal      decimal.Decimal `json:"principal" db:"principal"`
	Interest       decimal.Decimal `json:"interest" db:"interest"`
	JournalEntryID string          `json:"journalEntryId" db:"journal_entry_id"`
}
