// Package ledger maintains the authoritative invoice store: the
// mapping from invoice ID to record, the lifecycle state machine, the
// per-address sent/received indices, and the notification stream.
//
// The ledger is a single-writer state machine. Every entry point
// serializes on one mutex; a mutating call either fully commits its
// effects (record, indices, counter, persistence, notification) or
// fully rejects with no state change.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invoiceledger/internal/clock"
	"invoiceledger/internal/fhe"
	"invoiceledger/internal/logger"
	"invoiceledger/pkg/models"
)

// Store persists committed invoices. The ledger writes through before
// updating its in-memory state, so a persistence failure rejects the
// mutation cleanly.
type Store interface {
	// SaveInvoice inserts or replaces an invoice record.
	SaveInvoice(ctx context.Context, inv *models.Invoice) error

	// LoadInvoices returns every stored invoice, ordered by ID.
	LoadInvoices(ctx context.Context) ([]models.Invoice, error)
}

// Config holds the ledger's collaborators.
type Config struct {
	// Contract is the ledger's identity string passed to the
	// co-processor when verifying input proofs and requesting
	// decryption. Plays the role the contract address plays on chain.
	Contract string

	// Store persists invoices. Required.
	Store Store

	// Coprocessor handles the confidential-amount variant. Required
	// when encrypted amounts are accepted; may be nil otherwise.
	Coprocessor fhe.Coprocessor

	// Clock supplies timestamps. Defaults to the real clock.
	Clock clock.Clock
}

// Ledger is the invoice ledger. Construct with New; the zero value is
// not usable.
type Ledger struct {
	mu       sync.Mutex
	invoices map[uint64]*models.Invoice
	sent     map[models.Address][]uint64
	received map[models.Address][]uint64
	total    uint64

	contract string
	store    Store
	coproc   fhe.Coprocessor
	clock    clock.Clock
	notifier *Notifier
	log      zerolog.Logger
}

// New builds a ledger and rehydrates it from the store: records,
// indices, and the total counter are rebuilt from persisted rows.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	ledgerClock := cfg.Clock
	if ledgerClock == nil {
		ledgerClock = clock.Real()
	}

	l := &Ledger{
		invoices: make(map[uint64]*models.Invoice),
		sent:     make(map[models.Address][]uint64),
		received: make(map[models.Address][]uint64),
		contract: cfg.Contract,
		store:    cfg.Store,
		coproc:   cfg.Coprocessor,
		clock:    ledgerClock,
		notifier: NewNotifier(),
		log:      logger.WithComponent("ledger"),
	}

	stored, err := cfg.Store.LoadInvoices(ctx)
	if err != nil {
		return nil, opErr("New", 0, err)
	}
	for i := range stored {
		inv := stored[i]
		l.invoices[inv.ID] = &inv
		l.sent[inv.Sender] = append(l.sent[inv.Sender], inv.ID)
		l.received[inv.Recipient] = append(l.received[inv.Recipient], inv.ID)
		if inv.ID > l.total {
			l.total = inv.ID
		}
	}

	l.log.Info().
		Uint64("total_invoices", l.total).
		Msg("Ledger loaded")

	return l, nil
}

// Notifier returns the ledger's event notifier for subscriptions.
func (l *Ledger) Notifier() *Notifier { return l.notifier }

// CreateParams carries the caller-supplied fields of a new invoice.
type CreateParams struct {
	// Recipient is the address obligated to pay.
	Recipient models.Address

	// Description is the free-text invoice description. Must be
	// non-empty.
	Description string

	// AmountWei is the plaintext amount. Must be zero when an
	// encrypted amount is supplied instead; an invoice records its
	// amount one way or the other.
	AmountWei decimal.Decimal

	// EncryptedAmount is the co-processor ciphertext handle for the
	// confidential variant, with InputProof attesting it was formed
	// for this ledger and this caller.
	EncryptedAmount string
	InputProof      string

	// DueDate is the payment deadline as a unix timestamp.
	DueDate int64
}

// CreateInvoice validates and records a new invoice from caller,
// assigns the next sequential ID, appends it to the caller's sent
// index and the recipient's received index, and publishes an
// InvoiceCreated event. Returns the new invoice ID.
func (l *Ledger) CreateInvoice(ctx context.Context, caller models.Address, p CreateParams) (uint64, error) {
	const op = "CreateInvoice"

	if !caller.Valid() || !p.Recipient.Valid() {
		return 0, opErr(op, 0, ErrInvalidAddress)
	}
	if strings.TrimSpace(p.Description) == "" {
		return 0, opErr(op, 0, ErrEmptyDescription)
	}
	if p.Recipient == caller {
		return 0, opErr(op, 0, ErrSelfInvoice)
	}
	if p.AmountWei.IsNegative() {
		return 0, opErr(op, 0, ErrNegativeAmount)
	}

	now := l.clock.Now()
	if p.DueDate < now.Unix() {
		return 0, opErr(op, 0, ErrDueDateInPast)
	}

	// Confidential variant: the ciphertext handle is only accepted
	// with a valid input proof, and the parties are granted decryption
	// rights before the record commits. Both happen outside the mutex:
	// the co-processor may be a remote service.
	if p.EncryptedAmount != "" {
		if p.AmountWei.IsPositive() {
			return 0, opErr(op, 0, ErrAmbiguousAmount)
		}
		if p.InputProof == "" {
			return 0, opErr(op, 0, ErrMissingProof)
		}
		if l.coproc == nil {
			return 0, opErr(op, 0, fmt.Errorf("%w: no co-processor configured", fhe.ErrUnavailable))
		}
		if err := l.coproc.VerifyInput(ctx, l.contract, caller, p.EncryptedAmount, p.InputProof); err != nil {
			return 0, opErr(op, 0, err)
		}
		if err := l.coproc.Grant(ctx, p.EncryptedAmount, caller, p.Recipient); err != nil {
			return 0, opErr(op, 0, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inv := &models.Invoice{
		ID:              l.total + 1,
		Sender:          caller,
		Recipient:       p.Recipient,
		Description:     p.Description,
		AmountWei:       p.AmountWei,
		EncryptedAmount: p.EncryptedAmount,
		DueDate:         p.DueDate,
		Status:          models.StatusPending,
		CreatedAt:       now.Unix(),
		PaidAt:          0,
	}

	if err := l.store.SaveInvoice(ctx, inv); err != nil {
		return 0, opErr(op, 0, err)
	}

	l.invoices[inv.ID] = inv
	l.sent[caller] = append(l.sent[caller], inv.ID)
	l.received[p.Recipient] = append(l.received[p.Recipient], inv.ID)
	l.total = inv.ID

	l.notifier.Publish(Event{
		Type:        EventInvoiceCreated,
		InvoiceID:   inv.ID,
		Sender:      inv.Sender,
		Recipient:   inv.Recipient,
		Description: inv.Description,
		DueDate:     inv.DueDate,
		CreatedAt:   inv.CreatedAt,
	})

	l.log.Info().
		Uint64("invoice_id", inv.ID).
		Str("sender", caller.String()).
		Str("recipient", p.Recipient.String()).
		Bool("confidential", inv.Confidential()).
		Int64("due_date", inv.DueDate).
		Msg("Invoice created")

	return inv.ID, nil
}

// PayInvoice marks a pending invoice as paid. Only the recorded
// recipient may pay. When a value transfer accompanies the call
// (attachedValue > 0) it must equal the stored plaintext amount
// exactly; the value is forwarded directly to the sender's benefit
// with no escrow step.
func (l *Ledger) PayInvoice(ctx context.Context, caller models.Address, id uint64, attachedValue decimal.Decimal) error {
	const op = "PayInvoice"

	if !caller.Valid() {
		return opErr(op, id, ErrInvalidAddress)
	}
	if attachedValue.IsNegative() {
		return opErr(op, id, ErrNegativeAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inv, exists := l.invoices[id]
	if !exists {
		return opErr(op, id, ErrNotFound)
	}
	if !inv.Status.CanTransitionTo(models.StatusPaid) {
		return opErr(op, id, ErrNotPending)
	}
	if caller != inv.Recipient {
		return opErr(op, id, ErrNotRecipient)
	}
	if attachedValue.IsPositive() && !attachedValue.Equal(inv.AmountWei) {
		return opErr(op, id, ErrValueMismatch)
	}

	now := l.clock.Now()
	updated := *inv
	updated.Status = models.StatusPaid
	updated.PaidAt = now.Unix()

	if err := l.store.SaveInvoice(ctx, &updated); err != nil {
		return opErr(op, id, err)
	}
	*inv = updated

	l.notifier.Publish(Event{
		Type:      EventInvoicePaid,
		InvoiceID: id,
		Payer:     caller,
		PaidAt:    inv.PaidAt,
	})

	l.log.Info().
		Uint64("invoice_id", id).
		Str("payer", caller.String()).
		Str("forwarded_to", inv.Sender.String()).
		Str("value_wei", attachedValue.String()).
		Msg("Invoice paid")

	return nil
}

// CancelInvoice marks a pending invoice as cancelled. Only the
// recorded sender may cancel. No funds move: nothing is held in
// escrow before payment.
func (l *Ledger) CancelInvoice(ctx context.Context, caller models.Address, id uint64) error {
	const op = "CancelInvoice"

	if !caller.Valid() {
		return opErr(op, id, ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inv, exists := l.invoices[id]
	if !exists {
		return opErr(op, id, ErrNotFound)
	}
	if !inv.Status.CanTransitionTo(models.StatusCancelled) {
		return opErr(op, id, ErrNotPending)
	}
	if caller != inv.Sender {
		return opErr(op, id, ErrNotSender)
	}

	now := l.clock.Now()
	updated := *inv
	updated.Status = models.StatusCancelled

	if err := l.store.SaveInvoice(ctx, &updated); err != nil {
		return opErr(op, id, err)
	}
	*inv = updated

	l.notifier.Publish(Event{
		Type:        EventInvoiceCancelled,
		InvoiceID:   id,
		Canceller:   caller,
		CancelledAt: now.Unix(),
	})

	l.log.Info().
		Uint64("invoice_id", id).
		Str("canceller", caller.String()).
		Msg("Invoice cancelled")

	return nil
}

// GetInvoiceDetails returns a copy of the full invoice record.
func (l *Ledger) GetInvoiceDetails(id uint64) (models.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, exists := l.invoices[id]
	if !exists {
		return models.Invoice{}, opErr("GetInvoiceDetails", id, ErrNotFound)
	}
	return *inv, nil
}

// GetEncryptedAmount returns the ciphertext handle stored for a
// confidential invoice.
func (l *Ledger) GetEncryptedAmount(id uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, exists := l.invoices[id]
	if !exists {
		return "", opErr("GetEncryptedAmount", id, ErrNotFound)
	}
	if !inv.Confidential() {
		return "", opErr("GetEncryptedAmount", id, ErrNotConfidential)
	}
	return inv.EncryptedAmount, nil
}

// GetSentInvoices returns the IDs of invoices created by addr, in
// creation order.
func (l *Ledger) GetSentInvoices(addr models.Address) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint64(nil), l.sent[addr]...)
}

// GetReceivedInvoices returns the IDs of invoices addressed to addr,
// in creation order.
func (l *Ledger) GetReceivedInvoices(addr models.Address) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint64(nil), l.received[addr]...)
}

// GetTotalInvoices returns the number of invoices ever created. The
// counter doubles as the next-ID source and never decreases.
func (l *Ledger) GetTotalInvoices() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// DecryptAmount asks the co-processor for the plaintext amount of a
// confidential invoice on behalf of requester. The ledger only
// resolves the handle; authorization is the co-processor's decision.
func (l *Ledger) DecryptAmount(ctx context.Context, requester models.Address, id uint64) (uint64, error) {
	handle, err := l.GetEncryptedAmount(id)
	if err != nil {
		return 0, err
	}
	if l.coproc == nil {
		return 0, opErr("DecryptAmount", id, fmt.Errorf("%w: no co-processor configured", fhe.ErrUnavailable))
	}
	amount, err := l.coproc.Decrypt(ctx, l.contract, requester, handle)
	if err != nil {
		return 0, opErr("DecryptAmount", id, err)
	}
	return amount, nil
}
