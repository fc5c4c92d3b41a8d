package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"invoiceledger/pkg/models"
)

func openTestStore(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open(%q) error: %v", path, err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return s
}

func sampleInvoice(id uint64) models.Invoice {
	return models.Invoice{
		ID:          id,
		Sender:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Recipient:   "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Description: "Consulting",
		AmountWei:   decimal.NewFromInt(100),
		DueDate:     1756900000,
		Status:      models.StatusPending,
		CreatedAt:   1756300000,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("Open() with empty path succeeded, want error")
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := openTestStore(t, ":memory:")
	ctx := context.Background()

	inv1 := sampleInvoice(1)
	inv2 := sampleInvoice(2)
	inv2.Recipient = "0xcccccccccccccccccccccccccccccccccccccccc"
	inv2.EncryptedAmount = "0xdeadbeef"
	inv2.AmountWei = decimal.Zero

	for _, inv := range []models.Invoice{inv2, inv1} {
		if err := s.SaveInvoice(ctx, &inv); err != nil {
			t.Fatalf("SaveInvoice(%d) error: %v", inv.ID, err)
		}
	}

	loaded, err := s.LoadInvoices(ctx)
	if err != nil {
		t.Fatalf("LoadInvoices() error: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("LoadInvoices() returned %d invoices, want 2", len(loaded))
	}
	// Ordered by ID regardless of insert order.
	if loaded[0].ID != 1 || loaded[1].ID != 2 {
		t.Fatalf("load order = [%d, %d], want [1, 2]", loaded[0].ID, loaded[1].ID)
	}

	got := loaded[0]
	if got.Sender != inv1.Sender || got.Recipient != inv1.Recipient {
		t.Errorf("parties = (%s, %s), want (%s, %s)", got.Sender, got.Recipient, inv1.Sender, inv1.Recipient)
	}
	if got.Description != inv1.Description {
		t.Errorf("Description = %q, want %q", got.Description, inv1.Description)
	}
	if !got.AmountWei.Equal(inv1.AmountWei) {
		t.Errorf("AmountWei = %s, want %s", got.AmountWei, inv1.AmountWei)
	}
	if got.DueDate != inv1.DueDate || got.CreatedAt != inv1.CreatedAt || got.PaidAt != 0 {
		t.Errorf("timestamps = (%d, %d, %d), want (%d, %d, 0)",
			got.DueDate, got.CreatedAt, got.PaidAt, inv1.DueDate, inv1.CreatedAt)
	}

	if loaded[1].EncryptedAmount != "0xdeadbeef" {
		t.Errorf("EncryptedAmount = %q, want %q", loaded[1].EncryptedAmount, "0xdeadbeef")
	}
}

func TestSaveReplacesExistingRow(t *testing.T) {
	s := openTestStore(t, ":memory:")
	ctx := context.Background()

	inv := sampleInvoice(1)
	if err := s.SaveInvoice(ctx, &inv); err != nil {
		t.Fatalf("SaveInvoice() error: %v", err)
	}

	inv.Status = models.StatusPaid
	inv.PaidAt = 1756350000
	if err := s.SaveInvoice(ctx, &inv); err != nil {
		t.Fatalf("SaveInvoice() update error: %v", err)
	}

	loaded, err := s.LoadInvoices(ctx)
	if err != nil {
		t.Fatalf("LoadInvoices() error: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("LoadInvoices() returned %d invoices, want 1", len(loaded))
	}
	if loaded[0].Status != models.StatusPaid || loaded[0].PaidAt != 1756350000 {
		t.Errorf("after update: status = %v, paidAt = %d", loaded[0].Status, loaded[0].PaidAt)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.db")
	ctx := context.Background()

	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	inv := sampleInvoice(1)
	if err := s.SaveInvoice(ctx, &inv); err != nil {
		t.Fatalf("SaveInvoice() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened := openTestStore(t, path)
	loaded, err := reopened.LoadInvoices(ctx)
	if err != nil {
		t.Fatalf("LoadInvoices() after reopen error: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != 1 {
		t.Fatalf("LoadInvoices() after reopen = %+v, want the saved invoice", loaded)
	}
}

func TestLargeAmountSurvivesRoundTrip(t *testing.T) {
	s := openTestStore(t, ":memory:")
	ctx := context.Background()

	// Wei amounts exceed uint64; the TEXT column must hold them exactly.
	amount, err := decimal.NewFromString("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("NewFromString() error: %v", err)
	}
	inv := sampleInvoice(1)
	inv.AmountWei = amount
	if err := s.SaveInvoice(ctx, &inv); err != nil {
		t.Fatalf("SaveInvoice() error: %v", err)
	}

	loaded, err := s.LoadInvoices(ctx)
	if err != nil {
		t.Fatalf("LoadInvoices() error: %v", err)
	}
	if !loaded[0].AmountWei.Equal(amount) {
		t.Errorf("AmountWei = %s, want %s", loaded[0].AmountWei, amount)
	}
}
