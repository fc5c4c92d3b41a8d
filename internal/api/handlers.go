package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"invoiceledger/internal/ledger"
	"invoiceledger/pkg/models"
)

// ErrWrongNetwork is returned when a write request carries a chain ID
// that does not match the daemon's configured network. The caller must
// switch networks; the ledger is never touched.
var ErrWrongNetwork = errors.New("request chain ID does not match ledger network")

// CreateInvoiceRequest is the write payload for invoice creation.
// Field order and semantics mirror the original entry point: recipient,
// description, amount representation, due date.
type CreateInvoiceRequest struct {
	Caller          string          `json:"caller"`
	ChainID         uint64          `json:"chain_id"`
	Recipient       string          `json:"recipient"`
	Description     string          `json:"description"`
	AmountWei       decimal.Decimal `json:"amount_wei"`
	EncryptedAmount string          `json:"encrypted_amount,omitempty"`
	InputProof      string          `json:"input_proof,omitempty"`
	DueDate         int64           `json:"due_date"`
}

// CreateInvoiceResponse carries the assigned invoice ID.
type CreateInvoiceResponse struct {
	InvoiceID uint64 `json:"invoice_id"`
}

// PayInvoiceRequest is the write payload for payment. ValueWei is the
// attached transfer; zero means no value accompanies the call.
type PayInvoiceRequest struct {
	Caller   string          `json:"caller"`
	ChainID  uint64          `json:"chain_id"`
	ValueWei decimal.Decimal `json:"value_wei"`
}

// CancelInvoiceRequest is the write payload for cancellation.
type CancelInvoiceRequest struct {
	Caller  string `json:"caller"`
	ChainID uint64 `json:"chain_id"`
}

// EncryptRequest asks the co-processor to encrypt an amount on behalf
// of the caller, returning a ciphertext handle plus input proof ready
// for invoice creation. This stands in for the client-side encryption
// SDK of the hosted relayer.
type EncryptRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

// EncryptResponse carries the ciphertext handle and its input proof.
type EncryptResponse struct {
	Handle string `json:"handle"`
	Proof  string `json:"proof"`
}

// DecryptRequest asks the co-processor for a confidential amount on
// behalf of the requester.
type DecryptRequest struct {
	Requester string `json:"requester"`
}

// DecryptResponse carries the decrypted plaintext amount.
type DecryptResponse struct {
	Amount uint64 `json:"amount"`
}

// InvoiceIDsResponse carries an ordered index listing.
type InvoiceIDsResponse struct {
	InvoiceIDs []uint64 `json:"invoice_ids"`
}

// TotalResponse carries the invoice counter.
type TotalResponse struct {
	Total uint64 `json:"total"`
}

// EncryptedAmountResponse carries a ciphertext handle.
type EncryptedAmountResponse struct {
	Handle string `json:"handle"`
}

func (s *Server) checkChain(chainID uint64) error {
	if chainID != s.chainID {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongNetwork, chainID, s.chainID)
	}
	return nil
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid invoice ID %q", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.checkChain(req.ChainID); err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "wrong_network"})
		return
	}
	caller, err := models.ParseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	recipient, err := models.ParseAddress(req.Recipient)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	id, err := s.ledger.CreateInvoice(r.Context(), caller, ledger.CreateParams{
		Recipient:       recipient,
		Description:     req.Description,
		AmountWei:       req.AmountWei,
		EncryptedAmount: req.EncryptedAmount,
		InputProof:      req.InputProof,
		DueDate:         req.DueDate,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateInvoiceResponse{InvoiceID: id})
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	caller, err := models.ParseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	handle, proof, err := s.coproc.Encrypt(r.Context(), s.contract, caller, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EncryptResponse{Handle: handle, Proof: proof})
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req PayInvoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.checkChain(req.ChainID); err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "wrong_network"})
		return
	}
	caller, err := models.ParseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.ledger.PayInvoice(r.Context(), caller, id, req.ValueWei); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req CancelInvoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.checkChain(req.ChainID); err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "wrong_network"})
		return
	}
	caller, err := models.ParseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.ledger.CancelInvoice(r.Context(), caller, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	inv, err := s.ledger.GetInvoiceDetails(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleEncryptedAmount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	handle, err := s.ledger.GetEncryptedAmount(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EncryptedAmountResponse{Handle: handle})
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req DecryptRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	requester, err := models.ParseAddress(req.Requester)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := s.ledger.DecryptAmount(r.Context(), requester, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DecryptResponse{Amount: amount})
}

func (s *Server) handleSent(w http.ResponseWriter, r *http.Request) {
	addr, err := models.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ids := s.ledger.GetSentInvoices(addr)
	writeJSON(w, http.StatusOK, InvoiceIDsResponse{InvoiceIDs: ids})
}

func (s *Server) handleReceived(w http.ResponseWriter, r *http.Request) {
	addr, err := models.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	ids := s.ledger.GetReceivedInvoices(addr)
	writeJSON(w, http.StatusOK, InvoiceIDsResponse{InvoiceIDs: ids})
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TotalResponse{Total: s.ledger.GetTotalInvoices()})
}
