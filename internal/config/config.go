package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all process-wide settings, loaded once at startup.
type Config struct {
	Port string

	GoogleCloudProject string
	VertexAILocation   string

	// GeminiAPIKey routes genai calls through API-key access when set;
	// otherwise Application Default Credentials are used.
	GeminiAPIKey string
	GeminiModel  string

	FernetKey string

	GoogleOAuthClientID     string
	GoogleOAuthClientSecret string
	OAuthRedirectURI        string
	FrontendURL             string

	CORSOrigins []string
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getenv("PORT", "8080"),
		GoogleCloudProject:      os.Getenv("GOOGLE_CLOUD_PROJECT"),
		VertexAILocation:        getenv("VERTEX_AI_LOCATION", "global"),
		GeminiAPIKey:            os.Getenv("GEMINI_API_KEY"),
		GeminiModel:             getenv("GEMINI_MODEL", "gemini-3-flash-preview"),
		FernetKey:               os.Getenv("FERNET_KEY"),
		GoogleOAuthClientID:     os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		GoogleOAuthClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		OAuthRedirectURI:        getenv("OAUTH_REDIRECT_URI", "http://localhost:8080/api/auth/gmail/callback"),
		FrontendURL:             getenv("FRONTEND_URL", "http://localhost:5173"),
		CORSOrigins:             strings.Split(getenv("CORS_ORIGINS", "http://localhost:5173"), ","),
	}

	if cfg.GoogleCloudProject == "" {
		return nil, fmt.Errorf("config: GOOGLE_CLOUD_PROJECT is required")
	}
	if cfg.FernetKey == "" {
		return nil, fmt.Errorf("config: FERNET_KEY is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
