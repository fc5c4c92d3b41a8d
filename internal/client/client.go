// Package client is the typed HTTP client for a running invoice
// ledger daemon. The CLI subcommands are its only in-repo consumer,
// but it is written as a reusable surface for any front end.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoiceledger/internal/api"
	"invoiceledger/internal/ledger"
	"invoiceledger/pkg/models"
)

// Client talks to the ledger daemon's HTTP API.
type Client struct {
	baseURL string
	chainID uint64
	http    *http.Client
}

// Config holds client parameters.
type Config struct {
	// BaseURL is the daemon address, e.g. "http://localhost:8546".
	BaseURL string

	// ChainID is sent with every write; the daemon rejects writes for
	// the wrong network.
	ChainID uint64

	// Timeout bounds each request. Default: 30 seconds. The event
	// stream ignores it.
	Timeout time.Duration
}

// New returns a Client for the daemon at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		chainID: cfg.ChainID,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger daemon: %s (%s, HTTP %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("ledger daemon: %s (HTTP %d)", e.Message, e.Status)
}

// CreateInvoice submits a new invoice and returns its assigned ID.
func (c *Client) CreateInvoice(ctx context.Context, caller models.Address, recipient models.Address, description string, amountWei decimal.Decimal, encryptedAmount, inputProof string, dueDate int64) (uint64, error) {
	var resp api.CreateInvoiceResponse
	err := c.do(ctx, http.MethodPost, "/v1/invoices", api.CreateInvoiceRequest{
		Caller:          caller.String(),
		ChainID:         c.chainID,
		Recipient:       recipient.String(),
		Description:     description,
		AmountWei:       amountWei,
		EncryptedAmount: encryptedAmount,
		InputProof:      inputProof,
		DueDate:         dueDate,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.InvoiceID, nil
}

// EncryptAmount asks the daemon's co-processor to encrypt an amount
// on behalf of caller, returning a handle and input proof for use in
// CreateInvoice.
func (c *Client) EncryptAmount(ctx context.Context, caller models.Address, amount uint64) (handle, proof string, err error) {
	var resp api.EncryptResponse
	err = c.do(ctx, http.MethodPost, "/v1/encrypt", api.EncryptRequest{
		Caller: caller.String(),
		Amount: amount,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.Handle, resp.Proof, nil
}

// PayInvoice pays an invoice as caller, attaching valueWei (zero for
// no value transfer).
func (c *Client) PayInvoice(ctx context.Context, caller models.Address, id uint64, valueWei decimal.Decimal) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/invoices/%d/pay", id), api.PayInvoiceRequest{
		Caller:   caller.String(),
		ChainID:  c.chainID,
		ValueWei: valueWei,
	}, nil)
}

// CancelInvoice cancels an invoice as caller.
func (c *Client) CancelInvoice(ctx context.Context, caller models.Address, id uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/invoices/%d/cancel", id), api.CancelInvoiceRequest{
		Caller:  caller.String(),
		ChainID: c.chainID,
	}, nil)
}

// GetInvoiceDetails fetches the full invoice record.
func (c *Client) GetInvoiceDetails(ctx context.Context, id uint64) (models.Invoice, error) {
	var inv models.Invoice
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/invoices/%d", id), nil, &inv)
	return inv, err
}

// GetEncryptedAmount fetches the ciphertext handle of a confidential
// invoice.
func (c *Client) GetEncryptedAmount(ctx context.Context, id uint64) (string, error) {
	var resp api.EncryptedAmountResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/invoices/%d/encrypted-amount", id), nil, &resp)
	return resp.Handle, err
}

// DecryptAmount requests decryption of a confidential amount on
// behalf of requester. The co-processor refuses unauthorized parties.
func (c *Client) DecryptAmount(ctx context.Context, requester models.Address, id uint64) (uint64, error) {
	var resp api.DecryptResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/invoices/%d/decrypt", id), api.DecryptRequest{
		Requester: requester.String(),
	}, &resp)
	return resp.Amount, err
}

// GetSentInvoices fetches the IDs of invoices created by addr.
func (c *Client) GetSentInvoices(ctx context.Context, addr models.Address) ([]uint64, error) {
	var resp api.InvoiceIDsResponse
	err := c.do(ctx, http.MethodGet, "/v1/addresses/"+addr.String()+"/sent", nil, &resp)
	return resp.InvoiceIDs, err
}

// GetReceivedInvoices fetches the IDs of invoices addressed to addr.
func (c *Client) GetReceivedInvoices(ctx context.Context, addr models.Address) ([]uint64, error) {
	var resp api.InvoiceIDsResponse
	err := c.do(ctx, http.MethodGet, "/v1/addresses/"+addr.String()+"/received", nil, &resp)
	return resp.InvoiceIDs, err
}

// GetTotalInvoices fetches the invoice counter.
func (c *Client) GetTotalInvoices(ctx context.Context) (uint64, error) {
	var resp api.TotalResponse
	err := c.do(ctx, http.MethodGet, "/v1/total", nil, &resp)
	return resp.Total, err
}

// Watch subscribes to the daemon's event stream and invokes handle
// for every ledger event until ctx is cancelled or the stream ends.
// Delivery is best-effort; on reconnect the caller should re-query
// the lists it cares about rather than assuming nothing was missed.
func (c *Client) Watch(ctx context.Context, handle func(ledger.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return fmt.Errorf("client: building event request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// A dedicated client without the per-request timeout: the stream
	// is long-lived by design.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("client: opening event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: event stream returned HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event ledger.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return fmt.Errorf("client: decoding event: %w", err)
		}
		handle(event)
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("client: reading event stream: %w", err)
	}
	return nil
}

// do sends one JSON request and decodes the response into out (nil to
// discard). Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var decoded struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			apiErr.Message = decoded.Error
			apiErr.Code = decoded.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}
	return nil
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
