package domain

import "time"

// JobStatus is the current state of a sync job. Transitions are monotonic
// and written only by the orchestrator that owns the job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// SyncResults aggregates the outcome of one sync run. Errors holds short
// human-readable strings, one per failed message.
type SyncResults struct {
	Processed int      `firestore:"processed" json:"processed"`
	Skipped   int      `firestore:"skipped" json:"skipped"`
	Failed    int      `firestore:"failed" json:"failed"`
	Errors    []string `firestore:"errors" json:"errors"`
}

// SyncJob tracks one sync invocation for polling by the frontend.
type SyncJob struct {
	ID          string       `firestore:"-" json:"job_id"`
	UID         string       `firestore:"uid" json:"-"`
	Status      JobStatus    `firestore:"status" json:"status"`
	TriggeredAt time.Time    `firestore:"triggeredAt" json:"triggered_at"`
	CompletedAt *time.Time   `firestore:"completedAt" json:"completed_at,omitempty"`
	Results     *SyncResults `firestore:"results" json:"results,omitempty"`
	ErrorReason string       `firestore:"errorReason" json:"error_reason,omitempty"`
}
