package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/idtoken"
)

type contextKey string

const uidKey contextKey = "uid"

// TokenVerifier checks a bearer token and returns the user id it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// VerifierFunc adapts a function to the TokenVerifier interface.
type VerifierFunc func(ctx context.Context, token string) (string, error)

// Verify implements TokenVerifier.
func (f VerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// GoogleVerifier validates Google-issued ID tokens for a fixed audience.
type GoogleVerifier struct {
	audience string
}

// NewGoogleVerifier returns a verifier bound to the given audience.
func NewGoogleVerifier(audience string) *GoogleVerifier {
	return &GoogleVerifier{audience: audience}
}

// Verify implements TokenVerifier.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (string, error) {
	payload, err := idtoken.Validate(ctx, token, v.audience)
	if err != nil {
		return "", fmt.Errorf("validate id token: %w", err)
	}
	if payload.Subject == "" {
		return "", fmt.Errorf("id token has no subject")
	}
	return payload.Subject, nil
}

// Auth rejects requests without a valid bearer token and stores the user id
// in the request context.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				WriteError(w, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
				return
			}
			uid, err := verifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil || uid == "" {
				WriteError(w, http.StatusUnauthorized, "Invalid or expired ID token")
				return
			}
			ctx := context.WithValue(r.Context(), uidKey, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UID returns the authenticated user id from the request context. It is only
// valid behind the Auth middleware.
func UID(ctx context.Context) string {
	uid, _ := ctx.Value(uidKey).(string)
	return uid
}

// RequestLogger logs one line per request with method, path, status, and
// duration.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// Recovery turns handler panics into 500 responses.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Panic recovered")
					WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers keep working behind the logger wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
