package fhe

import (
	"errors"
	"fmt"
)

// Common co-processor errors.
var (
	// ErrInvalidProof is returned when an input proof does not match
	// the (handle, contract, user) tuple it claims to attest.
	ErrInvalidProof = errors.New("input proof verification failed")

	// ErrUnknownHandle is returned when a handle does not reference
	// any ciphertext held by the co-processor.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")

	// ErrNotAuthorized is returned when the requester is not on the
	// handle's decryption access list. Distinct from ErrUnavailable:
	// the service answered and refused.
	ErrNotAuthorized = errors.New("requester not authorized to decrypt")

	// ErrUnavailable is returned when the co-processor cannot be
	// reached or fails internally. Callers should surface this as
	// "encryption/decryption unavailable" rather than a refusal.
	ErrUnavailable = errors.New("co-processor unavailable")
)

// CoprocessorError wraps co-processor failures with the operation and
// handle involved.
type CoprocessorError struct {
	// Op is the operation that failed (e.g. "Encrypt", "Decrypt").
	Op string

	// Handle is the ciphertext handle involved, if any.
	Handle string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CoprocessorError) Error() string {
	if e.Handle != "" {
		return fmt.Sprintf("fhe: %s %s: %v", e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("fhe: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CoprocessorError) Unwrap() error { return e.Err }

func wrapErr(op, handle string, err error) error {
	if err == nil {
		return nil
	}
	return &CoprocessorError{Op: op, Handle: handle, Err: err}
}
