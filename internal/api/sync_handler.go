package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finybot/finybot/internal/domain"
	"github.com/finybot/finybot/internal/jobs"
	"github.com/finybot/finybot/internal/store"
)

// SyncHandler triggers sync runs and exposes their status for polling.
type SyncHandler struct {
	store store.Store
	queue *jobs.Queue
	log   zerolog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(st store.Store, queue *jobs.Queue, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{store: st, queue: queue, log: log}
}

type syncResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type jobStatusResponse struct {
	JobID       string              `json:"job_id"`
	Status      domain.JobStatus    `json:"status"`
	Results     *domain.SyncResults `json:"results,omitempty"`
	ErrorReason string              `json:"error_reason,omitempty"`
}

// Trigger starts a background sync and returns the job id to poll.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)

	user, err := h.store.User(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("load user failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	if user == nil || !user.GmailConnected {
		WriteError(w, http.StatusBadRequest, "Gmail not connected. Complete Gmail authorization first.")
		return
	}

	cards, err := h.store.CardProviders(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("load card providers failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load card providers")
		return
	}
	if len(cards) == 0 {
		WriteError(w, http.StatusBadRequest, "No card providers configured. Add at least one card first.")
		return
	}

	jobID := uuid.NewString()
	if err := h.store.CreateJob(ctx, jobID, uid); err != nil {
		h.log.Error().Err(err).Str("uid", uid).Msg("create job failed")
		WriteError(w, http.StatusInternalServerError, "Failed to create sync job")
		return
	}
	if err := h.queue.Publish(ctx, jobs.Request{JobID: jobID, UserID: uid}); err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("enqueue sync failed")
		WriteError(w, http.StatusServiceUnavailable, "Sync queue unavailable")
		return
	}

	h.log.Info().Str("uid", uid).Str("job_id", jobID).Msg("sync triggered")
	WriteJSON(w, http.StatusOK, syncResponse{
		JobID:   jobID,
		Message: "Sync started. Poll /api/sync/status/{job_id} for progress.",
	})
}

// Status reports one job's progress. Users can only see their own jobs.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := UID(ctx)
	jobID := chi.URLParam(r, "jobID")

	job, err := h.store.Job(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("load job failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.UID != uid {
		WriteError(w, http.StatusForbidden, "Forbidden")
		return
	}

	WriteJSON(w, http.StatusOK, jobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Results:     job.Results,
		ErrorReason: job.ErrorReason,
	})
}
