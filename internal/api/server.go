// Package api exposes the invoice ledger over HTTP: JSON endpoints
// for the eight ledger operations, a decryption endpoint mediated by
// the co-processor, and a server-sent event stream of ledger
// notifications.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"invoiceledger/internal/fhe"
	"invoiceledger/internal/ledger"
	"invoiceledger/internal/logger"
)

// Server holds the HTTP handlers for the ledger API.
type Server struct {
	ledger   *ledger.Ledger
	chainID  uint64
	coproc   fhe.Coprocessor
	contract string
	log      zerolog.Logger
}

// NewServer returns a Server for the given ledger. chainID is the
// network identity write requests must match; a mismatch is rejected
// before the ledger is touched, mirroring the wallet network gate.
// The co-processor backs the encrypt and decrypt endpoints; the
// contract string is the ledger identity ciphertexts are bound to.
func NewServer(l *ledger.Ledger, chainID uint64, coproc fhe.Coprocessor, contract string) *Server {
	return &Server{
		ledger:   l,
		chainID:  chainID,
		coproc:   coproc,
		contract: contract,
		log:      logger.WithComponent("api"),
	}
}

// Handler assembles the route table behind the request-ID middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/invoices", s.handleCreate)
	mux.HandleFunc("POST /v1/encrypt", s.handleEncrypt)
	mux.HandleFunc("POST /v1/invoices/{id}/pay", s.handlePay)
	mux.HandleFunc("POST /v1/invoices/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /v1/invoices/{id}/decrypt", s.handleDecrypt)
	mux.HandleFunc("GET /v1/invoices/{id}", s.handleGet)
	mux.HandleFunc("GET /v1/invoices/{id}/encrypted-amount", s.handleEncryptedAmount)
	mux.HandleFunc("GET /v1/addresses/{address}/sent", s.handleSent)
	mux.HandleFunc("GET /v1/addresses/{address}/received", s.handleReceived)
	mux.HandleFunc("GET /v1/total", s.handleTotal)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)

	return RequestID(mux)
}

// errorResponse is the JSON body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps ledger and co-processor errors onto HTTP status
// codes: validation 400, value mismatch 402, authorization 403,
// missing 404, state conflict 409, co-processor unavailable 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotRecipient),
		errors.Is(err, ledger.ErrNotSender),
		errors.Is(err, fhe.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrValueMismatch):
		return http.StatusPaymentRequired
	case errors.Is(err, fhe.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, ledger.ErrEmptyDescription),
		errors.Is(err, ledger.ErrDueDateInPast),
		errors.Is(err, ledger.ErrSelfInvoice),
		errors.Is(err, ledger.ErrNegativeAmount),
		errors.Is(err, ledger.ErrMissingProof),
		errors.Is(err, ledger.ErrAmbiguousAmount),
		errors.Is(err, ledger.ErrNotConfidential),
		errors.Is(err, fhe.ErrInvalidProof),
		errors.Is(err, fhe.ErrUnknownHandle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// codeFor returns a stable machine-readable code for known errors.
func codeFor(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrNotRecipient), errors.Is(err, ledger.ErrNotSender):
		return "not_authorized"
	case errors.Is(err, fhe.ErrNotAuthorized):
		return "decrypt_refused"
	case errors.Is(err, ledger.ErrNotPending):
		return "not_pending"
	case errors.Is(err, ledger.ErrValueMismatch):
		return "value_mismatch"
	case errors.Is(err, fhe.ErrUnavailable):
		return "coprocessor_unavailable"
	default:
		return ""
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	} else {
		s.log.Debug().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: codeFor(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
