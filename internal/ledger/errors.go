package ledger

import (
	"errors"
	"fmt"
)

// Validation errors: rejected at call time, no state change.
var (
	// ErrInvalidAddress is returned when a party address is malformed
	// or the zero address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrEmptyDescription is returned when an invoice is created with
	// no description.
	ErrEmptyDescription = errors.New("description must not be empty")

	// ErrDueDateInPast is returned when the due date is earlier than
	// the creation time.
	ErrDueDateInPast = errors.New("due date must not be in the past")

	// ErrSelfInvoice is returned when sender and recipient are the
	// same address. Self-invoicing is rejected.
	ErrSelfInvoice = errors.New("cannot invoice yourself")

	// ErrNegativeAmount is returned when the plaintext amount or the
	// attached payment value is negative.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrMissingProof is returned when an encrypted amount handle is
	// supplied without an input proof.
	ErrMissingProof = errors.New("encrypted amount requires an input proof")

	// ErrAmbiguousAmount is returned when an invoice carries both a
	// positive plaintext amount and an encrypted handle. An invoice
	// records its amount one way or the other, never both.
	ErrAmbiguousAmount = errors.New("invoice cannot carry both a plaintext and an encrypted amount")
)

// Authorization errors: the caller is not the party the operation is
// reserved for.
var (
	// ErrNotRecipient is returned when someone other than the
	// recorded recipient attempts payment.
	ErrNotRecipient = errors.New("only the recipient can pay this invoice")

	// ErrNotSender is returned when someone other than the recorded
	// sender attempts cancellation.
	ErrNotSender = errors.New("only the sender can cancel this invoice")
)

// State errors: the invoice does not exist or is not in a state that
// permits the operation.
var (
	// ErrNotFound is returned for operations on a nonexistent
	// invoice ID.
	ErrNotFound = errors.New("invoice not found")

	// ErrNotPending is returned when paying or cancelling an invoice
	// that has already been resolved.
	ErrNotPending = errors.New("invoice is not pending")

	// ErrNotConfidential is returned by the encrypted-amount accessor
	// for invoices that carry only a plaintext amount.
	ErrNotConfidential = errors.New("invoice has no encrypted amount")
)

// ErrValueMismatch is returned when the attached payment value does
// not equal the stored amount exactly. No overpayment or underpayment
// is tolerated.
var ErrValueMismatch = errors.New("attached value does not match invoice amount")

// LedgerError wraps ledger failures with the operation and invoice
// involved.
type LedgerError struct {
	// Op is the operation that failed (e.g. "CreateInvoice").
	Op string

	// InvoiceID is the invoice involved, zero for creation failures.
	InvoiceID uint64

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	if e.InvoiceID != 0 {
		return fmt.Sprintf("ledger: %s invoice %d: %v", e.Op, e.InvoiceID, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *LedgerError) Unwrap() error { return e.Err }

func opErr(op string, id uint64, err error) error {
	if err == nil {
		return nil
	}
	return &LedgerError{Op: op, InvoiceID: id, Err: err}
}
