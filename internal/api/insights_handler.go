package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/insights"
	"github.com/finybot/finybot/internal/store"
)

// maxInsightsMonths bounds how many months one comparison may cover.
const maxInsightsMonths = 6

// InsightsHandler compares spending across months and returns both the raw
// aggregates (for charts) and a model-written narrative.
type InsightsHandler struct {
	store store.Store
	gen   *insights.Generator
	log   zerolog.Logger
}

// NewInsightsHandler creates an InsightsHandler.
func NewInsightsHandler(st store.Store, gen *insights.Generator, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{store: st, gen: gen, log: log}
}

type insightsResponse struct {
	Months    []string                       `json:"months"`
	SpendData map[string]insights.MonthSpend `json:"spend_data"`
	Narrative string                         `json:"narrative"`
}

// Get handles GET /api/insights?months=2026-01,2025-12.
func (h *InsightsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)

	var months []string
	for _, m := range strings.Split(r.URL.Query().Get("months"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			months = append(months, m)
		}
	}
	if len(months) == 0 {
		WriteError(w, http.StatusBadRequest, "At least one month is required")
		return
	}
	if len(months) > maxInsightsMonths {
		WriteError(w, http.StatusBadRequest, "Maximum 6 months can be compared at once")
		return
	}
	for _, m := range months {
		if !billingMonthRe.MatchString(m) {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid month format: %s. Use YYYY-MM.", m))
			return
		}
	}

	txs, err := h.store.TransactionsForMonths(ctx, uid, months)
	if err != nil {
		h.log.Error().Err(err).Msg("load transactions failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	if len(txs) == 0 {
		WriteError(w, http.StatusNotFound, "No transactions found for the requested months")
		return
	}

	spend := insights.Aggregate(txs, months)

	h.log.Info().Str("uid", uid).Strs("months", months).Msg("generating insights")
	narrative := h.gen.Narrative(ctx, months, spend)

	WriteJSON(w, http.StatusOK, insightsResponse{
		Months:    months,
		SpendData: spend,
		Narrative: narrative,
	})
}
