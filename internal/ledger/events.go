package ledger

import (
	"sync"

	"github.com/rs/zerolog"

	"invoiceledger/internal/logger"
	"invoiceledger/pkg/models"
)

// EventType identifies a ledger notification.
type EventType string

const (
	// EventInvoiceCreated fires after a new invoice commits.
	EventInvoiceCreated EventType = "invoice_created"

	// EventInvoicePaid fires after a payment commits.
	EventInvoicePaid EventType = "invoice_paid"

	// EventInvoiceCancelled fires after a cancellation commits.
	EventInvoiceCancelled EventType = "invoice_cancelled"
)

// Event is a ledger notification. Field sets per type match the
// original notification surface: created carries (id, sender,
// recipient, description, dueDate, createdAt), paid carries (id,
// payer, paidAt), cancelled carries (id, canceller, cancelledAt).
type Event struct {
	Type      EventType `json:"type"`
	InvoiceID uint64    `json:"invoice_id"`

	Sender      models.Address `json:"sender,omitempty"`
	Recipient   models.Address `json:"recipient,omitempty"`
	Description string         `json:"description,omitempty"`
	DueDate     int64          `json:"due_date,omitempty"`
	CreatedAt   int64          `json:"created_at,omitempty"`

	Payer  models.Address `json:"payer,omitempty"`
	PaidAt int64          `json:"paid_at,omitempty"`

	Canceller   models.Address `json:"canceller,omitempty"`
	CancelledAt int64          `json:"cancelled_at,omitempty"`
}

// Subscription is a live event feed. Read events from C and call
// Unsubscribe on teardown; leaked subscriptions accumulate in the
// notifier forever.
//
// Delivery is best-effort: if the buffer is full the event is dropped
// rather than blocking the ledger. Consumers reconcile by re-querying
// the ledger, so a dropped event costs a refresh, not correctness.
type Subscription struct {
	// C delivers events in commit order.
	C <-chan Event

	ch       chan Event
	notifier *Notifier
}

// Unsubscribe detaches the subscription and closes C.
func (s *Subscription) Unsubscribe() {
	s.notifier.remove(s)
}

// Notifier fans ledger events out to subscribers. Safe for concurrent
// use.
type Notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	log  zerolog.Logger
}

// NewNotifier returns an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[*Subscription]struct{}),
		log:  logger.WithComponent("notifier"),
	}
}

// Subscribe registers a new subscription with the given channel
// buffer. A buffer of zero gets a default of 16.
func (n *Notifier) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, notifier: n}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

// Publish delivers an event to every subscriber without blocking.
func (n *Notifier) Publish(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		select {
		case sub.ch <- event:
		default:
			n.log.Warn().
				Str("type", string(event.Type)).
				Uint64("invoice_id", event.InvoiceID).
				Msg("Subscriber buffer full, event dropped")
		}
	}
}

func (n *Notifier) remove(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.subs[sub]; exists {
		delete(n.subs, sub)
		close(sub.ch)
	}
}
