// Package api is the HTTP surface of the service. Every data endpoint sits
// behind bearer-token auth; users only ever see their own documents.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth         *AuthHandler
	Sync         *SyncHandler
	Cards        *CardsHandler
	Transactions *TransactionsHandler
	Statements   *StatementsHandler
	Chat         *ChatHandler
	Insights     *InsightsHandler
}

// NewRouter assembles the full route tree.
func NewRouter(h Handlers, verifier TokenVerifier, corsOrigins []string, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestLogger(log))
	r.Use(Recovery(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Google redirects here without a bearer token; the state parameter
	// carries the user identity instead.
	r.Get("/api/auth/gmail/callback", h.Auth.Callback)

	r.Group(func(r chi.Router) {
		r.Use(Auth(verifier))

		r.Get("/api/auth/gmail/initiate", h.Auth.Initiate)
		r.Get("/api/auth/status", h.Auth.Status)

		r.Post("/api/sync", h.Sync.Trigger)
		r.Get("/api/sync/status/{jobID}", h.Sync.Status)

		r.Route("/api/cards", func(r chi.Router) {
			r.Get("/", h.Cards.List)
			r.Post("/", h.Cards.Add)
			r.Put("/{providerID}/password", h.Cards.UpdatePassword)
			r.Delete("/{providerID}", h.Cards.Delete)
		})

		r.Get("/api/transactions", h.Transactions.List)

		r.Route("/api/statements", func(r chi.Router) {
			r.Get("/", h.Statements.List)
			r.Get("/{billingMonth}", h.Statements.MonthlyReport)
		})

		r.Route("/api/chat", func(r chi.Router) {
			r.Get("/", h.Chat.List)
			r.Post("/send", h.Chat.Send)
			r.Delete("/{chatID}", h.Chat.Delete)
			r.Get("/{chatID}/messages", h.Chat.Messages)
		})

		r.Get("/api/insights", h.Insights.Get)
	})

	return r
}
