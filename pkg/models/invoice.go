// Package models holds the invoice domain types shared by the ledger,
// the HTTP layer, and the CLI client.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Address is a 20-byte account address in 0x-prefixed hex form.
// Addresses are normalized to lower case on parse so map lookups and
// equality checks are case-insensitive.
type Address string

// ZeroAddress is the all-zero address. It is never a valid invoice
// party.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates and normalizes an address string. It accepts
// mixed-case hex input and returns the lower-cased form.
func ParseAddress(s string) (Address, error) {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("address %q: must be 0x followed by 40 hex characters", s)
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return "", fmt.Errorf("address %q: invalid hex character %q", s, c)
		}
	}
	addr := Address(strings.ToLower(s))
	return addr, nil
}

// Valid reports whether the address is well-formed and non-zero.
func (a Address) Valid() bool {
	parsed, err := ParseAddress(string(a))
	return err == nil && parsed == a && a != ZeroAddress
}

// String returns the normalized hex form.
func (a Address) String() string { return string(a) }

// Status is the lifecycle state of an invoice. The numeric values are
// wire-compatible with the original contract's uint8 status field and
// must not be reordered.
type Status uint8

const (
	// StatusPending is the initial state of every invoice.
	StatusPending Status = 0

	// StatusPaid is terminal: the recipient settled the invoice.
	StatusPaid Status = 1

	// StatusCancelled is terminal: the sender withdrew the invoice
	// before payment.
	StatusCancelled Status = 2
)

// transitions is the complete state machine. A status not present as a
// key is terminal. Keeping the table in one place means "terminal
// states have no outgoing transition" is enforced here and nowhere
// else.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is a permitted
// lifecycle step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// String returns the human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPaid:
		return "paid"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseStatus converts a status name back to its enum value.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "pending":
		return StatusPending, nil
	case "paid":
		return StatusPaid, nil
	case "cancelled":
		return StatusCancelled, nil
	}
	return 0, fmt.Errorf("unknown invoice status %q", s)
}

// Invoice is a record of an obligation from Recipient to Sender.
// Everything except Status and PaidAt is immutable after creation.
type Invoice struct {
	// ID is the sequential 1-based identifier assigned at creation.
	// IDs are never reused.
	ID uint64 `json:"id"`

	// Sender created the invoice and is owed payment.
	Sender Address `json:"sender"`

	// Recipient is obligated to pay.
	Recipient Address `json:"recipient"`

	// Description is free text, set once at creation.
	Description string `json:"description"`

	// AmountWei is the plaintext amount in wei. Zero when the invoice
	// carries only an encrypted amount.
	AmountWei decimal.Decimal `json:"amount_wei"`

	// EncryptedAmount is the co-processor ciphertext handle for the
	// confidential-amount variant. Empty for plaintext invoices. The
	// ledger custodies the handle but never decrypts it.
	EncryptedAmount string `json:"encrypted_amount,omitempty"`

	// DueDate is the payment deadline as a unix timestamp. Validated
	// to be no earlier than the creation time.
	DueDate int64 `json:"due_date"`

	// Status is the lifecycle state. Transitions only through
	// Status.CanTransitionTo.
	Status Status `json:"status"`

	// CreatedAt is the unix timestamp of creation.
	CreatedAt int64 `json:"created_at"`

	// PaidAt is zero until the invoice is paid, then set exactly once
	// to the payment time. Nonzero if and only if Status is Paid.
	PaidAt int64 `json:"paid_at"`
}

// Confidential reports whether the invoice carries an encrypted amount
// handle.
func (inv *Invoice) Confidential() bool {
	return inv.EncryptedAmount != ""
}

// Overdue reports whether the invoice is unpaid past its due date.
func (inv *Invoice) Overdue(now time.Time) bool {
	return inv.Status == StatusPending && now.Unix() > inv.DueDate
}
