package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/secrets"
	"github.com/finybot/finybot/internal/store"
)

// CardsHandler manages card provider registrations. Statement passwords are
// encrypted before they reach the store and never returned by any endpoint.
type CardsHandler struct {
	store  store.Store
	secret *secrets.Codec
	log    zerolog.Logger
}

// NewCardsHandler creates a CardsHandler.
func NewCardsHandler(st store.Store, secret *secrets.Codec, log zerolog.Logger) *CardsHandler {
	return &CardsHandler{store: st, secret: secret, log: log}
}

type cardResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	EmailSenderPattern string `json:"email_sender_pattern"`
	SubjectKeyword     string `json:"subject_keyword"`
}

type addCardRequest struct {
	Name               string `json:"name"`
	EmailSenderPattern string `json:"email_sender_pattern"`
	SubjectKeyword     string `json:"subject_keyword"`
	Password           string `json:"password"`
}

// List returns the user's card providers.
func (h *CardsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providers, err := h.store.CardProviders(ctx, UID(ctx))
	if err != nil {
		h.log.Error().Err(err).Msg("list card providers failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load card providers")
		return
	}

	out := make([]cardResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, cardResponse{
			ID:                 p.ID,
			Name:               p.Name,
			EmailSenderPattern: p.EmailSenderPattern,
			SubjectKeyword:     p.SubjectKeyword,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// Add registers a new card provider.
func (h *CardsHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)

	var body addCardRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	encrypted := ""
	if body.Password != "" {
		var err error
		encrypted, err = h.secret.Encrypt(body.Password)
		if err != nil {
			h.log.Error().Err(err).Msg("password encryption failed")
			WriteError(w, http.StatusInternalServerError, "Failed to store password")
			return
		}
	}

	provider := domain.CardProvider{
		ID:                 uuid.NewString(),
		Name:               body.Name,
		EmailSenderPattern: body.EmailSenderPattern,
		SubjectKeyword:     body.SubjectKeyword,
		EncryptedPassword:  encrypted,
		AddedAt:            time.Now().UTC(),
	}
	providerID, err := h.store.AddCardProvider(ctx, uid, provider)
	if err != nil {
		h.log.Error().Err(err).Msg("add card provider failed")
		WriteError(w, http.StatusInternalServerError, "Failed to add card provider")
		return
	}

	h.log.Info().Str("uid", uid).Str("provider_id", providerID).Str("provider_name", body.Name).Msg("card provider added")
	WriteJSON(w, http.StatusCreated, cardResponse{
		ID:                 providerID,
		Name:               body.Name,
		EmailSenderPattern: body.EmailSenderPattern,
		SubjectKeyword:     body.SubjectKeyword,
	})
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

// UpdatePassword replaces the statement PDF password, typically after a sync
// failed with wrong_password.
func (h *CardsHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)
	providerID := chi.URLParam(r, "providerID")

	provider, err := h.store.CardProvider(ctx, uid, providerID)
	if err != nil {
		h.log.Error().Err(err).Str("provider_id", providerID).Msg("load card provider failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load card provider")
		return
	}
	if provider == nil {
		WriteError(w, http.StatusNotFound, "Card provider not found")
		return
	}

	var body updatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		WriteError(w, http.StatusBadRequest, "password is required")
		return
	}

	encrypted, err := h.secret.Encrypt(body.Password)
	if err != nil {
		h.log.Error().Err(err).Msg("password encryption failed")
		WriteError(w, http.StatusInternalServerError, "Failed to store password")
		return
	}
	if err := h.store.SetCardPassword(ctx, uid, providerID, encrypted); err != nil {
		h.log.Error().Err(err).Str("provider_id", providerID).Msg("update card password failed")
		WriteError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	h.log.Info().Str("uid", uid).Str("provider_id", providerID).Msg("card password updated")
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a card provider. Statements and transactions already
// imported from it are kept.
func (h *CardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)
	providerID := chi.URLParam(r, "providerID")

	provider, err := h.store.CardProvider(ctx, uid, providerID)
	if err != nil {
		h.log.Error().Err(err).Str("provider_id", providerID).Msg("load card provider failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load card provider")
		return
	}
	if provider == nil {
		WriteError(w, http.StatusNotFound, "Card provider not found")
		return
	}

	if err := h.store.DeleteCardProvider(ctx, uid, providerID); err != nil {
		h.log.Error().Err(err).Str("provider_id", providerID).Msg("delete card provider failed")
		WriteError(w, http.StatusInternalServerError, "Failed to delete card provider")
		return
	}

	h.log.Info().Str("uid", uid).Str("provider_id", providerID).Msg("card provider deleted")
	w.WriteHeader(http.StatusNoContent)
}
