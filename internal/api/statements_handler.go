package api

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/store"
)

var billingMonthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// StatementsHandler serves statement summaries and monthly bill reports.
type StatementsHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewStatementsHandler creates a StatementsHandler.
func NewStatementsHandler(st store.Store, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{store: st, log: log}
}

type monthlyReportResponse struct {
	BillingMonth     string             `json:"billing_month"`
	Statements       []domain.Statement `json:"statements"`
	TotalAcrossCards float64            `json:"total_across_cards"`
}

// List returns every statement, newest billing month first.
func (h *StatementsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stmts, err := h.store.Statements(ctx, UID(ctx))
	if err != nil {
		h.log.Error().Err(err).Msg("list statements failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load statements")
		return
	}
	if stmts == nil {
		stmts = []domain.Statement{}
	}
	WriteJSON(w, http.StatusOK, stmts)
}

// MonthlyReport returns the bill for one billing month across all cards.
// Only processed statements count toward the total.
func (h *StatementsHandler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)
	billingMonth := chi.URLParam(r, "billingMonth")

	if !billingMonthRe.MatchString(billingMonth) {
		WriteError(w, http.StatusBadRequest, "billing_month must be in YYYY-MM format")
		return
	}

	stmts, err := h.store.StatementsForMonth(ctx, uid, billingMonth)
	if err != nil {
		h.log.Error().Err(err).Str("billing_month", billingMonth).Msg("load monthly statements failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load statements")
		return
	}
	if len(stmts) == 0 {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("No statements found for %s", billingMonth))
		return
	}

	var total float64
	for _, s := range stmts {
		if s.Status == domain.StatementProcessed {
			total += s.TotalAmountDue
		}
	}

	WriteJSON(w, http.StatusOK, monthlyReportResponse{
		BillingMonth:     billingMonth,
		Statements:       stmts,
		TotalAcrossCards: total,
	})
}
