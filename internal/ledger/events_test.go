package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

// --- Notifier ---

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier()
	sub1 := n.Subscribe(4)
	sub2 := n.Subscribe(4)
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	n.Publish(Event{Type: EventInvoiceCreated, InvoiceID: 7})

	for _, sub := range []*Subscription{sub1, sub2} {
		event := recvEvent(t, sub)
		if event.Type != EventInvoiceCreated || event.InvoiceID != 7 {
			t.Fatalf("got event %+v, want created/7", event)
		}
	}
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe(1)
	sub.Unsubscribe()

	if _, ok := <-sub.C; ok {
		t.Fatal("channel still open after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	n.Publish(Event{Type: EventInvoicePaid, InvoiceID: 1})
}

func TestNotifierUnsubscribeIdempotent(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
}

func TestNotifierDropsWhenBufferFull(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe(1)
	defer sub.Unsubscribe()

	n.Publish(Event{Type: EventInvoiceCreated, InvoiceID: 1})
	n.Publish(Event{Type: EventInvoiceCreated, InvoiceID: 2}) // dropped
	n.Publish(Event{Type: EventInvoiceCreated, InvoiceID: 3}) // dropped

	if event := recvEvent(t, sub); event.InvoiceID != 1 {
		t.Fatalf("InvoiceID = %d, want 1", event.InvoiceID)
	}
	select {
	case event := <-sub.C:
		t.Fatalf("unexpected buffered event %+v", event)
	default:
	}
}

// --- Ledger event emission ---

func TestLedgerEmitsLifecycleEvents(t *testing.T) {
	l, _, _, fakeClock := newTestLedger(t)
	sub := l.Notifier().Subscribe(8)
	defer sub.Unsubscribe()

	id := mustCreate(t, l, addrA, validParams(addrB))

	created := recvEvent(t, sub)
	if created.Type != EventInvoiceCreated {
		t.Fatalf("event type = %s, want %s", created.Type, EventInvoiceCreated)
	}
	if created.InvoiceID != id || created.Sender != addrA || created.Recipient != addrB {
		t.Fatalf("created event = %+v", created)
	}
	if created.Description != "Consulting" || created.CreatedAt != testEpoch.Unix() {
		t.Fatalf("created event = %+v", created)
	}

	fakeClock.Advance(time.Minute)
	if err := l.PayInvoice(context.Background(), addrB, id, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("PayInvoice() error: %v", err)
	}

	paid := recvEvent(t, sub)
	if paid.Type != EventInvoicePaid || paid.InvoiceID != id || paid.Payer != addrB {
		t.Fatalf("paid event = %+v", paid)
	}
	if want := testEpoch.Add(time.Minute).Unix(); paid.PaidAt != want {
		t.Fatalf("PaidAt = %d, want %d", paid.PaidAt, want)
	}
}

func TestLedgerEmitsCancelledEvent(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	sub := l.Notifier().Subscribe(8)
	defer sub.Unsubscribe()

	id := mustCreate(t, l, addrA, validParams(addrB))
	recvEvent(t, sub) // created

	if err := l.CancelInvoice(context.Background(), addrA, id); err != nil {
		t.Fatalf("CancelInvoice() error: %v", err)
	}

	cancelled := recvEvent(t, sub)
	if cancelled.Type != EventInvoiceCancelled || cancelled.Canceller != addrA {
		t.Fatalf("cancelled event = %+v", cancelled)
	}
	if cancelled.CancelledAt != testEpoch.Unix() {
		t.Fatalf("CancelledAt = %d, want %d", cancelled.CancelledAt, testEpoch.Unix())
	}
}

func TestRejectedMutationEmitsNothing(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	mustCreate(t, l, addrA, validParams(addrB))

	sub := l.Notifier().Subscribe(8)
	defer sub.Unsubscribe()

	if err := l.PayInvoice(context.Background(), addrC, 1, decimal.NewFromInt(100)); err == nil {
		t.Fatal("PayInvoice() by non-recipient succeeded")
	}

	select {
	case event := <-sub.C:
		t.Fatalf("unexpected event %+v after rejected mutation", event)
	case <-time.After(50 * time.Millisecond):
	}
}
