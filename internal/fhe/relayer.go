package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoiceledger/internal/logger"
	"invoiceledger/pkg/models"
)

// RelayerClient is a Coprocessor backed by an external hosted relayer
// service over HTTP. The relayer performs the actual encryption and
// decryption; this client only shuttles handles, proofs, and access
// grants.
type RelayerClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// RelayerConfig holds configuration for the relayer client.
type RelayerConfig struct {
	// BaseURL is the relayer endpoint, e.g. "https://relayer.example.net".
	BaseURL string

	// Timeout bounds each relayer call. Default: 30 seconds.
	Timeout time.Duration
}

// NewRelayerClient returns a client for the relayer at cfg.BaseURL.
func NewRelayerClient(cfg RelayerConfig) (*RelayerClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("fhe: relayer base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelayerClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger.WithComponent("fhe-relayer"),
	}, nil
}

type relayerEncryptRequest struct {
	Contract string `json:"contract"`
	User     string `json:"user"`
	Amount   uint64 `json:"amount"`
}

type relayerEncryptResponse struct {
	Handle string `json:"handle"`
	Proof  string `json:"proof"`
}

type relayerVerifyRequest struct {
	Contract string `json:"contract"`
	User     string `json:"user"`
	Handle   string `json:"handle"`
	Proof    string `json:"proof"`
}

type relayerGrantRequest struct {
	Handle  string   `json:"handle"`
	Parties []string `json:"parties"`
}

type relayerDecryptRequest struct {
	Contract  string `json:"contract"`
	Requester string `json:"requester"`
	Handle    string `json:"handle"`
}

type relayerDecryptResponse struct {
	Amount uint64 `json:"amount"`
}

type relayerErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encrypt asks the relayer to encrypt amount for (contract, user).
func (c *RelayerClient) Encrypt(ctx context.Context, contract string, user models.Address, amount uint64) (string, string, error) {
	var resp relayerEncryptResponse
	err := c.post(ctx, "/v1/encrypt", relayerEncryptRequest{
		Contract: contract,
		User:     user.String(),
		Amount:   amount,
	}, &resp)
	if err != nil {
		return "", "", wrapErr("Encrypt", "", err)
	}
	return resp.Handle, resp.Proof, nil
}

// VerifyInput asks the relayer to check an input proof.
func (c *RelayerClient) VerifyInput(ctx context.Context, contract string, user models.Address, handle, proof string) error {
	err := c.post(ctx, "/v1/verify-input", relayerVerifyRequest{
		Contract: contract,
		User:     user.String(),
		Handle:   handle,
		Proof:    proof,
	}, nil)
	return wrapErr("VerifyInput", handle, err)
}

// Grant adds parties to the handle's access list.
func (c *RelayerClient) Grant(ctx context.Context, handle string, parties ...models.Address) error {
	strs := make([]string, len(parties))
	for i, p := range parties {
		strs[i] = p.String()
	}
	err := c.post(ctx, "/v1/grant", relayerGrantRequest{Handle: handle, Parties: strs}, nil)
	return wrapErr("Grant", handle, err)
}

// Decrypt asks the relayer for the plaintext behind handle on behalf of
// requester.
func (c *RelayerClient) Decrypt(ctx context.Context, contract string, requester models.Address, handle string) (uint64, error) {
	var resp relayerDecryptResponse
	err := c.post(ctx, "/v1/decrypt", relayerDecryptRequest{
		Contract:  contract,
		Requester: requester.String(),
		Handle:    handle,
	}, &resp)
	if err != nil {
		return 0, wrapErr("Decrypt", handle, err)
	}
	return resp.Amount, nil
}

// post sends a JSON request and decodes the JSON response into out
// (which may be nil for calls with no response body). Transport
// failures map to ErrUnavailable; structured relayer refusals map to
// the matching sentinel.
func (c *RelayerClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.log.Warn().Err(err).Str("path", path).Msg("Relayer request failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var relayerErr relayerErrorResponse
	if json.Unmarshal(raw, &relayerErr) == nil {
		switch relayerErr.Code {
		case "not_authorized":
			return ErrNotAuthorized
		case "invalid_proof":
			return ErrInvalidProof
		case "unknown_handle":
			return ErrUnknownHandle
		}
		if relayerErr.Message != "" {
			return fmt.Errorf("%w: relayer returned %d: %s", ErrUnavailable, resp.StatusCode, relayerErr.Message)
		}
	}
	return fmt.Errorf("%w: relayer returned %d", ErrUnavailable, resp.StatusCode)
}

var _ Coprocessor = (*RelayerClient)(nil)
var _ Coprocessor = (*Local)(nil)
