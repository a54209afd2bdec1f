package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coopledger/backoffice/internal/services"
)

// JournalHandler exposes the posting and reversal engines over HTTP.
type JournalHandler struct {
	posting   *services.PostingService
	reversal  *services.ReversalService
	validator *services.ValidationHelper
}

func NewJournalHandler(posting *services.PostingService, reversal *services.ReversalService) *JournalHandler {
	return &JournalHandler{
		posting:   posting,
		reversal:  reversal,
		validator: services.NewValidationHelper(),
	}
}

// PostEntry creates a balanced journal entry with its sub-ledger effect.
func (h *JournalHandler) PostEntry(w http.ResponseWriter, r *http.Request) {
	var req services.NewJournalEntryInput

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := h.posting.Post(r.Context(), req)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"entry":   entry,
	})
}

// DeleteEntry reverses a journal entry and any sub-ledger transaction
// derived from it.
func (h *JournalHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	if err := h.reversal.ReverseEntry(r.Context(), entryID); err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}
	writeReversed(w, "entry", entryID)
}

// DeleteFundTransaction reverses a fund deposit or withdrawal.
func (h *JournalHandler) DeleteFundTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fundTransactId")
	if err := h.reversal.ReverseFundTransaction(r.Context(), id); err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}
	writeReversed(w, "fundTransaction", id)
}

// DeleteLoanRepayment reverses a loan repayment.
func (h *JournalHandler) DeleteLoanRepayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "repaymentId")
	if err := h.reversal.ReverseLoanRepayment(r.Context(), id); err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}
	writeReversed(w, "loanRepayment", id)
}

// DeleteItemPayment reverses an invoice item payment.
func (h *JournalHandler) DeleteItemPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paymentId")
	if err := h.reversal.ReverseItemPayment(r.Context(), id); err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}
	writeReversed(w, "itemPayment", id)
}

func writeReversed(w http.ResponseWriter, kind, id string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"reversed": map[string]string{kind: id},
	})
}
