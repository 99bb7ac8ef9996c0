// Command sync runs one statement sync for a single user from the terminal,
// bypassing the HTTP API. Useful for backfills and debugging extraction.
package main

import (
	"context"
	"flag"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/finybot/finybot/internal/config"
	"github.com/finybot/finybot/internal/extract"
	"github.com/finybot/finybot/internal/gmail"
	"github.com/finybot/finybot/internal/logger"
	"github.com/finybot/finybot/internal/pdf"
	"github.com/finybot/finybot/internal/secrets"
	"github.com/finybot/finybot/internal/store"
	syncsvc "github.com/finybot/finybot/internal/sync"
)

func main() {
	uid := flag.String("user", "", "user id to sync")
	flag.Parse()

	log := logger.New()

	if *uid == "" {
		log.Fatal().Msg("-user is required")
	}

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
	orchestrator := syncsvc.NewOrchestrator(st, mail, pdf.NewGate(log), extract.New(genaiClient, cfg.GeminiModel, log), codec, log)

	jobID := uuid.NewString()
	if err := st.CreateJob(ctx, jobID, *uid); err != nil {
		log.Fatal().Err(err).Msg("Failed to create sync job")
	}

	log.Info().Str("uid", *uid).Str("job_id", jobID).Msg("Starting sync")
	orchestrator.Run(ctx, *uid, jobID)

	job, err := st.Job(ctx, jobID)
	if err != nil || job == nil {
		log.Fatal().Err(err).Msg("Failed to load job result")
	}

	ev := log.Info().Str("job_id", jobID).Str("status", string(job.Status))
	if job.Results != nil {
		ev = ev.Int("processed", job.Results.Processed).
			Int("skipped", job.Results.Skipped).
			Int("failed", job.Results.Failed).
			Strs("errors", job.Results.Errors)
	}
	if job.ErrorReason != "" {
		ev = ev.Str("error_reason", job.ErrorReason)
	}
	ev.Msg("Sync finished")
}

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
