package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoiceledger/internal/clock"
	"invoiceledger/internal/fhe"
	"invoiceledger/internal/ledger"
	"invoiceledger/internal/store"
	"invoiceledger/pkg/models"
)

// --- Test fixtures ---

const (
	testChainID  = uint64(11155111)
	testContract = "invoice-ledger-test"
)

var (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

var testEpoch = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := store.Open(store.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	coproc, err := fhe.NewLocal("")
	if err != nil {
		t.Fatalf("fhe.NewLocal() error: %v", err)
	}

	l, err := ledger.New(context.Background(), ledger.Config{
		Contract:    testContract,
		Store:       db,
		Coprocessor: coproc,
		Clock:       clock.NewFake(testEpoch),
	})
	if err != nil {
		t.Fatalf("ledger.New() error: %v", err)
	}

	ts := httptest.NewServer(NewServer(l, testChainID, coproc, testContract).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s error: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s error: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createRequest(recipient string) CreateInvoiceRequest {
	return CreateInvoiceRequest{
		Caller:      addrA,
		ChainID:     testChainID,
		Recipient:   recipient,
		Description: "Consulting",
		AmountWei:   decimal.NewFromInt(100),
		DueDate:     testEpoch.Add(7 * 24 * time.Hour).Unix(),
	}
}

func createInvoice(t *testing.T, ts *httptest.Server, req CreateInvoiceRequest) uint64 {
	t.Helper()
	resp := postJSON(t, ts, "/v1/invoices", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var body CreateInvoiceResponse
	decode(t, resp, &body)
	return body.InvoiceID
}

// --- Lifecycle over HTTP ---

func TestCreatePayFlow(t *testing.T) {
	ts := newTestServer(t)

	id := createInvoice(t, ts, createRequest(addrB))
	if id != 1 {
		t.Fatalf("invoice ID = %d, want 1", id)
	}

	resp := postJSON(t, ts, fmt.Sprintf("/v1/invoices/%d/pay", id), PayInvoiceRequest{
		Caller:   addrB,
		ChainID:  testChainID,
		ValueWei: decimal.NewFromInt(100),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay returned %d, want 200", resp.StatusCode)
	}

	var inv models.Invoice
	decode(t, getJSON(t, ts, "/v1/invoices/1"), &inv)
	if inv.Status != models.StatusPaid {
		t.Errorf("Status = %v, want Paid", inv.Status)
	}
	if inv.PaidAt != testEpoch.Unix() {
		t.Errorf("PaidAt = %d, want %d", inv.PaidAt, testEpoch.Unix())
	}
}

func TestCancelFlow(t *testing.T) {
	ts := newTestServer(t)
	id := createInvoice(t, ts, createRequest(addrB))

	resp := postJSON(t, ts, fmt.Sprintf("/v1/invoices/%d/cancel", id), CancelInvoiceRequest{
		Caller:  addrA,
		ChainID: testChainID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel returned %d, want 200", resp.StatusCode)
	}

	var inv models.Invoice
	decode(t, getJSON(t, ts, "/v1/invoices/1"), &inv)
	if inv.Status != models.StatusCancelled {
		t.Errorf("Status = %v, want Cancelled", inv.Status)
	}
}

func TestIndicesAndTotal(t *testing.T) {
	ts := newTestServer(t)
	createInvoice(t, ts, createRequest(addrB))
	createInvoice(t, ts, createRequest(addrC))

	var sent InvoiceIDsResponse
	decode(t, getJSON(t, ts, "/v1/addresses/"+addrA+"/sent"), &sent)
	if len(sent.InvoiceIDs) != 2 || sent.InvoiceIDs[0] != 1 || sent.InvoiceIDs[1] != 2 {
		t.Errorf("sent = %v, want [1 2]", sent.InvoiceIDs)
	}

	var received InvoiceIDsResponse
	decode(t, getJSON(t, ts, "/v1/addresses/"+addrB+"/received"), &received)
	if len(received.InvoiceIDs) != 1 || received.InvoiceIDs[0] != 1 {
		t.Errorf("received = %v, want [1]", received.InvoiceIDs)
	}

	var total TotalResponse
	decode(t, getJSON(t, ts, "/v1/total"), &total)
	if total.Total != 2 {
		t.Errorf("total = %d, want 2", total.Total)
	}
}

// --- Error mapping ---

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		request    func(t *testing.T, ts *httptest.Server) *http.Response
		wantStatus int
		wantCode   string
	}{
		{
			name: "validation error is 400",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				req := createRequest(addrB)
				req.Description = ""
				return postJSON(t, ts, "/v1/invoices", req)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "self invoice is 400",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				req := createRequest(addrA)
				return postJSON(t, ts, "/v1/invoices", req)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "value mismatch is 402",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				createInvoice(t, ts, createRequest(addrB))
				return postJSON(t, ts, "/v1/invoices/1/pay", PayInvoiceRequest{
					Caller: addrB, ChainID: testChainID, ValueWei: decimal.NewFromInt(99),
				})
			},
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "value_mismatch",
		},
		{
			name: "non-recipient pay is 403",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				createInvoice(t, ts, createRequest(addrB))
				return postJSON(t, ts, "/v1/invoices/1/pay", PayInvoiceRequest{
					Caller: addrC, ChainID: testChainID, ValueWei: decimal.NewFromInt(100),
				})
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "not_authorized",
		},
		{
			name: "unknown invoice is 404",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				return getJSON(t, ts, "/v1/invoices/42")
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name: "double pay is 409",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				createInvoice(t, ts, createRequest(addrB))
				pay := PayInvoiceRequest{Caller: addrB, ChainID: testChainID, ValueWei: decimal.NewFromInt(100)}
				postJSON(t, ts, "/v1/invoices/1/pay", pay)
				return postJSON(t, ts, "/v1/invoices/1/pay", pay)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "not_pending",
		},
		{
			name: "malformed invoice ID is 400",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				return getJSON(t, ts, "/v1/invoices/abc")
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "malformed address is 400",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				return getJSON(t, ts, "/v1/addresses/0x123/sent")
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "encrypted amount of plaintext invoice is 400",
			request: func(t *testing.T, ts *httptest.Server) *http.Response {
				createInvoice(t, ts, createRequest(addrB))
				return getJSON(t, ts, "/v1/invoices/1/encrypted-amount")
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			resp := tt.request(t, ts)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantCode != "" {
				var body errorResponse
				decode(t, resp, &body)
				if body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestWrongChainIDRejected(t *testing.T) {
	ts := newTestServer(t)

	req := createRequest(addrB)
	req.ChainID = 1
	resp := postJSON(t, ts, "/v1/invoices", req)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	var body errorResponse
	decode(t, resp, &body)
	if body.Code != "wrong_network" {
		t.Errorf("code = %q, want %q", body.Code, "wrong_network")
	}

	// The ledger was never touched.
	var total TotalResponse
	decode(t, getJSON(t, ts, "/v1/total"), &total)
	if total.Total != 0 {
		t.Errorf("total = %d after rejected create, want 0", total.Total)
	}
}

func TestMixedCaseAddressesNormalized(t *testing.T) {
	ts := newTestServer(t)

	// Checksummed mixed-case addresses, as wallet front ends send them.
	callerChecksummed := "0xAaAaAAaaaAAAaaAAaaaaAAaAAAaaaaAaaAaAaaAa"
	recipientChecksummed := "0xBbBBbbBBbbbbBbbBBbbBbBbBBbBbbbbBbBBBbBBb"

	req := createRequest(addrB)
	req.Caller = callerChecksummed
	req.Recipient = recipientChecksummed
	id := createInvoice(t, ts, req)

	// The stored record carries the normalized lowercase form.
	var inv models.Invoice
	decode(t, getJSON(t, ts, fmt.Sprintf("/v1/invoices/%d", id)), &inv)
	if inv.Sender != models.Address(addrA) || inv.Recipient != models.Address(addrB) {
		t.Fatalf("parties = (%s, %s), want normalized (%s, %s)", inv.Sender, inv.Recipient, addrA, addrB)
	}

	// The index is reachable through either casing of the address.
	var sent InvoiceIDsResponse
	decode(t, getJSON(t, ts, "/v1/addresses/"+callerChecksummed+"/sent"), &sent)
	if len(sent.InvoiceIDs) != 1 || sent.InvoiceIDs[0] != id {
		t.Errorf("sent = %v, want [%d]", sent.InvoiceIDs, id)
	}

	// Paying with a checksummed caller matches the lowercase recipient.
	resp := postJSON(t, ts, fmt.Sprintf("/v1/invoices/%d/pay", id), PayInvoiceRequest{
		Caller:   recipientChecksummed,
		ChainID:  testChainID,
		ValueWei: decimal.NewFromInt(100),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay with checksummed caller returned %d, want 200", resp.StatusCode)
	}
}

func TestMixedCaseRequesterDecrypts(t *testing.T) {
	ts := newTestServer(t)

	var enc EncryptResponse
	decode(t, postJSON(t, ts, "/v1/encrypt", EncryptRequest{Caller: addrA, Amount: 2500}), &enc)

	req := createRequest(addrB)
	req.AmountWei = decimal.Zero
	req.EncryptedAmount = enc.Handle
	req.InputProof = enc.Proof
	id := createInvoice(t, ts, req)

	// The access list holds lowercase parties; a checksummed requester
	// must still match its own entry.
	resp := postJSON(t, ts, fmt.Sprintf("/v1/invoices/%d/decrypt", id), DecryptRequest{
		Requester: "0xBbBBbbBBbbbbBbbBBbbBbBbBBbBbbbbBbBBBbBBb",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("decrypt with checksummed requester returned %d, want 200", resp.StatusCode)
	}
	var dec DecryptResponse
	decode(t, resp, &dec)
	if dec.Amount != 2500 {
		t.Errorf("decrypt = %d, want 2500", dec.Amount)
	}
}

// --- Confidential amounts over HTTP ---

func TestConfidentialFlow(t *testing.T) {
	ts := newTestServer(t)

	var enc EncryptResponse
	resp := postJSON(t, ts, "/v1/encrypt", EncryptRequest{Caller: addrA, Amount: 2500})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("encrypt returned %d, want 200", resp.StatusCode)
	}
	decode(t, resp, &enc)
	if enc.Handle == "" || enc.Proof == "" {
		t.Fatalf("encrypt returned empty handle or proof: %+v", enc)
	}

	req := createRequest(addrB)
	req.AmountWei = decimal.Zero
	req.EncryptedAmount = enc.Handle
	req.InputProof = enc.Proof
	id := createInvoice(t, ts, req)

	var handle EncryptedAmountResponse
	decode(t, getJSON(t, ts, fmt.Sprintf("/v1/invoices/%d/encrypted-amount", id)), &handle)
	if handle.Handle != enc.Handle {
		t.Errorf("stored handle = %q, want %q", handle.Handle, enc.Handle)
	}

	// Both parties decrypt; a stranger gets 403 with the refusal code.
	for _, party := range []string{addrA, addrB} {
		resp := postJSON(t, ts, fmt.Sprintf("/v1/invoices/%d/decrypt", id), DecryptRequest{Requester: party})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("decrypt as %s returned %d, want 200", party, resp.StatusCode)
		}
		var dec DecryptResponse
		decode(t, resp, &dec)
		if dec.Amount != 2500 {
			t.Errorf("decrypt as %s = %d, want 2500", party, dec.Amount)
		}
	}

	resp = postJSON(t, ts, fmt.Sprintf("/v1/invoices/%d/decrypt", id), DecryptRequest{Requester: addrC})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("decrypt as stranger returned %d, want 403", resp.StatusCode)
	}
	var body errorResponse
	decode(t, resp, &body)
	if body.Code != "decrypt_refused" {
		t.Errorf("code = %q, want %q", body.Code, "decrypt_refused")
	}
}

func TestConfidentialCreateForgedProofRejected(t *testing.T) {
	ts := newTestServer(t)

	var enc EncryptResponse
	decode(t, postJSON(t, ts, "/v1/encrypt", EncryptRequest{Caller: addrA, Amount: 2500}), &enc)

	req := createRequest(addrB)
	req.AmountWei = decimal.Zero
	req.EncryptedAmount = enc.Handle
	req.InputProof = "forged"
	resp := postJSON(t, ts, "/v1/invoices", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

// --- Middleware / health ---

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t)

	resp := getJSON(t, ts, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestRequestIDPreserved(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	req.Header.Set("X-Request-ID", "caller-supplied")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("X-Request-ID = %q, want %q", got, "caller-supplied")
	}
}
