package fhe

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"filippo.io/age"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"invoiceledger/internal/logger"
	"invoiceledger/pkg/models"
)

// Local is an in-process Coprocessor. Amounts are encrypted to an
// X25519 age identity held by the co-processor; handles are BLAKE3
// digests of the ciphertext, and input proofs are keyed BLAKE3 MACs
// binding a handle to the contract and submitting user.
//
// Local keeps ciphertexts and access lists in memory. It exists for
// development and tests; a deployment that needs durable confidential
// amounts points the daemon at a relayer instead.
type Local struct {
	identity *age.X25519Identity
	proofKey []byte

	mu      sync.Mutex
	entries map[string]*localEntry

	log zerolog.Logger
}

type localEntry struct {
	ciphertext []byte
	acl        map[models.Address]struct{}
}

// NewLocal returns a Local co-processor using the given age identity.
// If identityKey is empty a fresh identity is generated, which makes
// previously issued handles undecryptable across restarts.
func NewLocal(identityKey string) (*Local, error) {
	var identity *age.X25519Identity
	var err error
	if identityKey == "" {
		identity, err = age.GenerateX25519Identity()
	} else {
		identity, err = age.ParseX25519Identity(identityKey)
	}
	if err != nil {
		return nil, fmt.Errorf("fhe: loading co-processor identity: %w", err)
	}

	// The proof key is derived from the identity so proofs remain
	// verifiable across restarts with the same key file.
	proofKey := blake3.Sum256([]byte(identity.String()))

	return &Local{
		identity: identity,
		proofKey: proofKey[:],
		entries:  make(map[string]*localEntry),
		log:      logger.WithComponent("fhe-local"),
	}, nil
}

// Encrypt encrypts amount to the co-processor identity and registers
// the resulting handle with an empty access list.
func (l *Local) Encrypt(ctx context.Context, contract string, user models.Address, amount uint64) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", wrapErr("Encrypt", "", err)
	}

	var plaintext [8]byte
	binary.BigEndian.PutUint64(plaintext[:], amount)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, l.identity.Recipient())
	if err != nil {
		return "", "", wrapErr("Encrypt", "", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	if _, err := w.Write(plaintext[:]); err != nil {
		return "", "", wrapErr("Encrypt", "", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	if err := w.Close(); err != nil {
		return "", "", wrapErr("Encrypt", "", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	handle := deriveHandle(buf.Bytes(), contract, user)

	l.mu.Lock()
	l.entries[handle] = &localEntry{
		ciphertext: buf.Bytes(),
		acl:        make(map[models.Address]struct{}),
	}
	l.mu.Unlock()

	proof := l.proveInput(handle, contract, user)

	l.log.Debug().
		Str("handle", handle).
		Str("user", user.String()).
		Msg("Amount encrypted")

	return handle, proof, nil
}

// VerifyInput recomputes the input proof and compares it in constant
// time.
func (l *Local) VerifyInput(ctx context.Context, contract string, user models.Address, handle, proof string) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("VerifyInput", handle, err)
	}
	want := l.proveInput(handle, contract, user)
	if subtle.ConstantTimeCompare([]byte(want), []byte(proof)) != 1 {
		return wrapErr("VerifyInput", handle, ErrInvalidProof)
	}
	return nil
}

// Grant adds parties to the handle's decryption access list.
func (l *Local) Grant(ctx context.Context, handle string, parties ...models.Address) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("Grant", handle, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, exists := l.entries[handle]
	if !exists {
		return wrapErr("Grant", handle, ErrUnknownHandle)
	}
	for _, party := range parties {
		entry.acl[party] = struct{}{}
	}
	return nil
}

// Decrypt returns the plaintext amount if the requester is on the
// handle's access list.
func (l *Local) Decrypt(ctx context.Context, contract string, requester models.Address, handle string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapErr("Decrypt", handle, err)
	}

	l.mu.Lock()
	entry, exists := l.entries[handle]
	l.mu.Unlock()
	if !exists {
		return 0, wrapErr("Decrypt", handle, ErrUnknownHandle)
	}
	if _, authorized := entry.acl[requester]; !authorized {
		l.log.Warn().
			Str("handle", handle).
			Str("requester", requester.String()).
			Msg("Unauthorized decryption request refused")
		return 0, wrapErr("Decrypt", handle, ErrNotAuthorized)
	}

	r, err := age.Decrypt(bytes.NewReader(entry.ciphertext), l.identity)
	if err != nil {
		return 0, wrapErr("Decrypt", handle, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return 0, wrapErr("Decrypt", handle, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	if len(plaintext) != 8 {
		return 0, wrapErr("Decrypt", handle, fmt.Errorf("%w: ciphertext held %d plaintext bytes, want 8", ErrUnavailable, len(plaintext)))
	}
	return binary.BigEndian.Uint64(plaintext), nil
}

// IdentityKey returns the age secret key backing this co-processor, so
// the daemon can persist it across restarts.
func (l *Local) IdentityKey() string { return l.identity.String() }

// deriveHandle computes the opaque handle for a ciphertext bound to a
// contract and submitter.
func deriveHandle(ciphertext []byte, contract string, user models.Address) string {
	h := blake3.New()
	h.Write(ciphertext)
	h.Write([]byte(contract))
	h.Write([]byte(user))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// proveInput computes the keyed MAC attesting a handle was formed for
// (contract, user).
func (l *Local) proveInput(handle, contract string, user models.Address) string {
	h, err := blake3.NewKeyed(l.proofKey)
	if err != nil {
		// proofKey is always 32 bytes; NewKeyed cannot fail.
		panic("fhe: keyed hasher: " + err.Error())
	}
	h.Write([]byte(handle))
	h.Write([]byte(contract))
	h.Write([]byte(user))
	return hex.EncodeToString(h.Sum(nil))
}
