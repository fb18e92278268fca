// Package queue carries normalization jobs from the ingestion gateway to
// the worker pool over a durable broker. The queue is an injected
// dependency on both sides; there is no package-level client.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is the message handed from the gateway to a worker. Content lives in
// blob storage and metadata in the database; the message only correlates
// the two.
type Job struct {
	ID           uuid.UUID `json:"job_id"`
	SourceFileID uuid.UUID `json:"source_file_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Queue is the broker interface. Delivery is at-least-once: a job may be
// handed to more than one worker, and consumers must tolerate duplicates.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (Job, error)
}
