// Package fhe defines the confidential-amount co-processor capability
// and its implementations.
//
// The ledger treats encryption as an external black box: it stores
// opaque ciphertext handles, verifies input proofs, and grants
// decryption rights, but never sees plaintext amounts on the
// confidential path. Decryption authorization lives entirely in the
// co-processor's own access list; the ledger is not consulted when a
// party requests decryption.
//
// Two implementations are provided:
//   - Local: in-process encryption with an X25519 age identity, for
//     development and tests.
//   - RelayerClient: HTTP client for an external hosted relayer.
package fhe

import (
	"context"

	"invoiceledger/pkg/models"
)

// Coprocessor is the narrow capability interface the ledger depends
// on. Every method is fallible and context-aware; implementations may
// be remote services.
type Coprocessor interface {
	// Encrypt encrypts an amount for the given contract identity on
	// behalf of user. It returns an opaque ciphertext handle and an
	// input proof binding the ciphertext to (contract, user).
	Encrypt(ctx context.Context, contract string, user models.Address, amount uint64) (handle, proof string, err error)

	// VerifyInput checks that proof attests handle was correctly
	// formed for this contract and this submitter. Returns
	// ErrInvalidProof on mismatch.
	VerifyInput(ctx context.Context, contract string, user models.Address, handle, proof string) error

	// Grant adds parties to the handle's decryption access list.
	Grant(ctx context.Context, handle string, parties ...models.Address) error

	// Decrypt returns the plaintext amount behind handle. Returns
	// ErrNotAuthorized if requester is not on the handle's access
	// list, a distinct condition from the service being unreachable
	// (ErrUnavailable).
	Decrypt(ctx context.Context, contract string, requester models.Address, handle string) (uint64, error)
}
