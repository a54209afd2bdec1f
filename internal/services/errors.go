package services

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the calling layer. Handlers map these to HTTP
// statuses; they are never retried automatically.
var (
	// ErrImbalancedEntry means the debit and credit totals of a journal
	// entry do not match exactly. Local validation, never reaches the store.
	ErrImbalancedEntry = errors.New("journal entry debits and credits do not balance")

	// ErrEntityNotFound means the target of a reversal or lookup is missing.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrReversalConflict means undoing a posting would drive a sub-ledger
	// balance negative. The dependent transactions must be reversed first.
	ErrReversalConflict = errors.New("reversal would drive a balance negative")

	// ErrInsufficientFunds means a withdrawal posting exceeds the fund
	// balance it draws from.
	ErrInsufficientFunds = errors.New("insufficient fund balance")

	// ErrInvalidSubLedgerInput means a posting named a sub-ledger effect but
	// is missing or malforms the fields that effect needs. Local validation,
	// never reaches the store.
	ErrInvalidSubLedgerInput = errors.New("invalid sub-ledger input")
)

// StoreTransactionError wraps any failure inside an atomic unit of work. The
// surrounding SQL transaction has been rolled back in full by the time the
// caller sees this.
type StoreTransactionError struct {
	Op  string
	Err error
}

func (e *StoreTransactionError) Error() string {
	return fmt.Sprintf("ledger transaction failed during %s: %v", e.Op, e.Err)
}

func (e *StoreTransactionError) Unwrap() error { return e.Err }

// storeErr wraps a raw store failure. Domain sentinels pass through untouched
// so errors.Is keeps working across the transaction boundary.
func storeErr(op string, err error) error {
	if errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrReversalConflict) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrImbalancedEntry) {
		return err
	}
	return &StoreTransactionError{Op: op, Err: err}
}
