package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/genai"

	"github.com/finybot/finybot/internal/agent"
	"github.com/finybot/finybot/internal/api"
	"github.com/finybot/finybot/internal/config"
	"github.com/finybot/finybot/internal/extract"
	"github.com/finybot/finybot/internal/gmail"
	"github.com/finybot/finybot/internal/insights"
	"github.com/finybot/finybot/internal/jobs"
	"github.com/finybot/finybot/internal/logger"
	"github.com/finybot/finybot/internal/pdf"
	"github.com/finybot/finybot/internal/secrets"
	"github.com/finybot/finybot/internal/store"
	syncsvc "github.com/finybot/finybot/internal/sync"
)

const (
	syncQueueSize   = 100
	syncWorkers     = 4
	shutdownTimeout = 30 * time.Second
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	codec, err := secrets.NewCodec(cfg.FernetKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize secret codec")
	}

	st, err := store.NewFirestoreStore(ctx, cfg.GoogleCloudProject, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Firestore store")
	}
	defer st.Close()

	genaiClient, err := newGenaiClient(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	mail := gmail.NewClient(cfg.GoogleOAuthClientID, cfg.GoogleOAuthClientSecret, log)
	gate := pdf.NewGate(log)
	extractor := extract.New(genaiClient, cfg.GeminiModel, log)
	orchestrator := syncsvc.NewOrchestrator(st, mail, gate, extractor, codec, log)

	// Sync jobs run detached from the HTTP request that triggered them. The
	// worker context only cancels on shutdown.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	queue := jobs.NewQueue(syncQueueSize, log)
	if err := queue.Start(workerCtx, syncWorkers, func(ctx context.Context, req jobs.Request) {
		orchestrator.Run(ctx, req.UserID, req.JobID)
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync workers")
	}

	model := agent.NewGeminiModel(genaiClient, cfg.GeminiModel)
	toolbox := agent.NewToolbox(st, log)
	loop := agent.NewLoop(model, toolbox, log)
	generator := insights.NewGenerator(model, log)

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleOAuthClientID,
		ClientSecret: cfg.GoogleOAuthClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.OAuthRedirectURI,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}

	handlers := api.Handlers{
		Auth:         api.NewAuthHandler(st, codec, oauthCfg, cfg.FrontendURL, log),
		Sync:         api.NewSyncHandler(st, queue, log),
		Cards:        api.NewCardsHandler(st, codec, log),
		Transactions: api.NewTransactionsHandler(st, log),
		Statements:   api.NewStatementsHandler(st, log),
		Chat:         api.NewChatHandler(st, loop, model, log),
		Insights:     api.NewInsightsHandler(st, generator, log),
	}

	verifier := api.NewGoogleVerifier(cfg.GoogleOAuthClientID)
	router := api.NewRouter(handlers, verifier, cfg.CORSOrigins, log)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Long enough for a full agent SSE stream.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-quit.Done()

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping sync queue")
	}
	cancelWorkers()

	log.Info().Msg("Server exited")
}

// newGenaiClient prefers API-key access and falls back to Vertex AI with
// Application Default Credentials.
func newGenaiClient(ctx context.Context, cfg *config.Config) (*genai.Client, error) {
	if cfg.GeminiAPIKey != "" {
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.GoogleCloudProject,
		Location: cfg.VertexAILocation,
		Backend:  genai.BackendVertexAI,
	})
}
