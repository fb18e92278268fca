package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job tracks one async normalization task. The API returns the job id on
// submission; clients poll GET /api/v1/jobs/{job_id} to discover whether
// normalization succeeded, since submission responses are always optimistic.
// A failed job is re-runnable: re-dispatching the same source file moves it
// back to running.
type Job struct {
	ID           uuid.UUID  `db:"id"             json:"id"`
	UserID       *uuid.UUID `db:"user_id"        json:"user_id,omitempty"`
	SourceFileID uuid.UUID  `db:"source_file_id" json:"source_file_id"`
	Status       string     `db:"status"         json:"status"`
	ErrorMessage *string    `db:"error_message"  json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"     json:"updated_at"`
}
