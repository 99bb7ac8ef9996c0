package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/finybot/finybot/internal/secrets"
	"github.com/finybot/finybot/internal/store"
)

// oauthStateTTL is how long a consent redirect stays valid.
const oauthStateTTL = 10 * time.Minute

// AuthHandler runs the Gmail OAuth connect flow. The user id rides in the
// state parameter, encrypted, because the callback arrives from Google
// without any bearer token.
type AuthHandler struct {
	store       store.Store
	secret      *secrets.Codec
	oauth       *oauth2.Config
	frontendURL string
	log         zerolog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(st store.Store, secret *secrets.Codec, oauth *oauth2.Config, frontendURL string, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{store: st, secret: secret, oauth: oauth, frontendURL: frontendURL, log: log}
}

// Initiate returns the Google consent URL for the authenticated user.
// Offline access with forced consent guarantees a refresh token comes back.
func (h *AuthHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	uid := UID(r.Context())

	state, err := h.secret.Encrypt(uid)
	if err != nil {
		h.log.Error().Err(err).Msg("oauth state encryption failed")
		WriteError(w, http.StatusInternalServerError, "Failed to start authorization")
		return
	}

	authURL := h.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)

	h.log.Info().Str("uid", uid).Msg("gmail oauth initiated")
	WriteJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// Callback handles Google's redirect after consent. Errors redirect back to
// the frontend with an error code instead of rendering JSON, since the
// browser is mid-navigation here.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	uid, err := h.secret.DecryptTTL(state, oauthStateTTL)
	if err != nil {
		h.log.Warn().Msg("gmail oauth state invalid or expired")
		h.redirectError(w, r, "invalid_state")
		return
	}

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("oauth token exchange failed")
		h.redirectError(w, r, "token_exchange_failed")
		return
	}
	if token.RefreshToken == "" {
		h.log.Error().Str("uid", uid).Msg("oauth response has no refresh token")
		h.redirectError(w, r, "no_refresh_token")
		return
	}

	encrypted, err := h.secret.Encrypt(token.RefreshToken)
	if err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("refresh token encryption failed")
		h.redirectError(w, r, "storage_failed")
		return
	}
	if err := h.store.SetGmailConnected(ctx, uid, encrypted); err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("store refresh token failed")
		h.redirectError(w, r, "storage_failed")
		return
	}

	h.log.Info().Str("uid", uid).Msg("gmail oauth complete")
	http.Redirect(w, r, h.frontendURL+"/dashboard?gmail_connected=1", http.StatusFound)
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.frontendURL+"/connect-gmail?error="+code, http.StatusFound)
}

// Status reports whether the user has completed the Gmail connection.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)

	user, err := h.store.User(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("load user failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	connected := user != nil && user.GmailConnected
	WriteJSON(w, http.StatusOK, map[string]any{"uid": uid, "gmail_connected": connected})
}
