package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/store"
)

// TransactionsHandler serves paginated transaction listings for infinite
// scroll on the frontend.
type TransactionsHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates a TransactionsHandler.
func NewTransactionsHandler(st store.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: st, log: log}
}

type paginatedTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
	HasMore      bool                 `json:"has_more"`
}

// List returns transactions newest first. Pass cursor from the previous
// response to fetch the next page.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			WriteError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = v
	}

	txs, nextCursor, err := h.store.Transactions(ctx, uid, store.TransactionQuery{
		BillingMonth: r.URL.Query().Get("billing_month"),
		CardProvider: r.URL.Query().Get("card_provider"),
		Limit:        limit,
		Cursor:       r.URL.Query().Get("cursor"),
	})
	if err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("list transactions failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	WriteJSON(w, http.StatusOK, paginatedTransactionsResponse{
		Transactions: txs,
		NextCursor:   nextCursor,
		HasMore:      nextCursor != "",
	})
}
