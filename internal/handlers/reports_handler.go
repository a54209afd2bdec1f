package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coopledger/backoffice/internal/services"
)

// ReportsHandler exposes the read-only aggregation engines.
type ReportsHandler struct {
	reports        *services.ReportingService
	aging          *services.AgingService
	adb            *services.ADBService
	duplicates     *services.DuplicateService
	reconciliation *services.ReconciliationService
}

func NewReportsHandler(
	reports *services.ReportingService,
	aging *services.AgingService,
	adb *services.ADBService,
	duplicates *services.DuplicateService,
	reconciliation *services.ReconciliationService,
) *ReportsHandler {
	return &ReportsHandler{
		reports:        reports,
		aging:          aging,
		adb:            adb,
		duplicates:     duplicates,
		reconciliation: reconciliation,
	}
}

func yearParam(r *http.Request) int {
	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil && y > 0 {
		return y
	}
	return time.Now().Year()
}

func dateParam(r *http.Request, name string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", r.URL.Query().Get(name))
	return t, err == nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// MonthlyRevenueExpense returns 12 calendar-ordered buckets for the year.
func (h *ReportsHandler) MonthlyRevenueExpense(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.MonthlyRevenueExpense(r.Context(), yearParam(r))
	if err != nil {
		services.SendErrorResponse(w, "Failed to build report", services.StatusForError(err), nil)
		return
	}
	writeJSON(w, report)
}

// NetSurplus returns the accumulated net surplus trend for the year.
func (h *ReportsHandler) NetSurplus(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.NetSurplusTrend(r.Context(), yearParam(r))
	if err != nil {
		services.SendErrorResponse(w, "Failed to build report", services.StatusForError(err), nil)
		return
	}
	writeJSON(w, report)
}

// AgingLoans returns overdue active loans grouped per member.
func (h *ReportsHandler) AgingLoans(w http.ResponseWriter, r *http.Request) {
	report, err := h.aging.AgingLoans(r.Context(), time.Now())
	if err != nil {
		services.SendErrorResponse(w, "Failed to build report", services.StatusForError(err), nil)
		return
	}
	writeJSON(w, report)
}

// AgingInvoices returns unpaid overdue invoice items grouped per member.
func (h *ReportsHandler) AgingInvoices(w http.ResponseWriter, r *http.Request) {
	report, err := h.aging.AgingInvoices(r.Context(), time.Now())
	if err != nil {
		services.SendErrorResponse(w, "Failed to build report", services.StatusForError(err), nil)
		return
	}
	writeJSON(w, report)
}

// AverageDailyBalance computes the time-weighted balance of a fund over a
// date window.
func (h *ReportsHandler) AverageDailyBalance(w http.ResponseWriter, r *http.Request) {
	fundID := r.URL.Query().Get("fundId")
	if fundID == "" {
		services.SendErrorResponse(w, "fundId is required", http.StatusBadRequest, nil)
		return
	}
	balanceType := services.BalanceType(r.URL.Query().Get("balanceType"))
	if balanceType == "" {
		balanceType = services.BalanceSavings
	}
	start, okStart := dateParam(r, "start")
	end, okEnd := dateParam(r, "end")
	if !okStart || !okEnd || end.Before(start) {
		services.SendErrorResponse(w, "start and end must be valid dates with start <= end", http.StatusBadRequest, nil)
		return
	}

	adb, err := h.adb.ComputeADB(r.Context(), fundID, balanceType, start, end)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.StatusForError(err), nil)
		return
	}
	writeJSON(w, map[string]any{
		"fundId":              fundID,
		"balanceType":         balanceType,
		"averageDailyBalance": adb,
	})
}

// Duplicates scans a date window for structurally identical entries.
func (h *ReportsHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	start, okStart := dateParam(r, "start")
	end, okEnd := dateParam(r, "end")
	if !okStart || !okEnd || end.Before(start) {
		services.SendErrorResponse(w, "start and end must be valid dates with start <= end", http.StatusBadRequest, nil)
		return
	}

	pairs, err := h.duplicates.FindDuplicates(r.Context(), start, end)
	if err != nil {
		services.SendErrorResponse(w, "Failed to scan for duplicates", services.StatusForError(err), nil)
		return
	}
	writeJSON(w, map[string]any{
		"duplicates": pairs,
		"count":      len(pairs),
	})
}

// Patronage returns a member's per-account totals for a month and journal
// type.
func (h *ReportsHandler) Patronage(w http.ResponseWriter, r *http.Request) {
	memberID := r.URL.Query().Get("memberId")
	journalType := r.URL.Query().Get("journalType")
	if memberID == "" || journalType == "" {
		services.SendErrorResponse(w, "memberId and journalType are required", http.StatusBadRequest, nil)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		services.SendErrorResponse(w, "month must be 1..12", http.StatusBadRequest, nil)
		return
	}

	report, reportErr := h.reports.PatronageLedger(r.Context(), memberID, yearParam(r), month, journalType)
	if reportErr != nil {
		services.SendErrorResponse(w, "Failed to build report", services.StatusForError(reportErr), nil)
		return
	}
	writeJSON(w, report)
}

// Reconciliation audits the running-balance cache against the journal.
func (h *ReportsHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.reconciliation.Reconcile(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Failed to reconcile", services.StatusForError(err), nil)
		return
	}
	writeJSON(w, map[string]any{
		"consistent": len(drifts) == 0,
		"drifts":     drifts,
	})
}
