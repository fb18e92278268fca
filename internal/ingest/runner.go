package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anishsharma/insightbase/internal/blob"
	"github.com/anishsharma/insightbase/internal/cache"
	"github.com/anishsharma/insightbase/internal/normalize"
	"github.com/anishsharma/insightbase/internal/queue"
	"github.com/anishsharma/insightbase/internal/store"
	"github.com/anishsharma/insightbase/pkg/models"
)

// Result is the typed outcome of one job execution. A failed normalization
// is data, not a panic: Err is recorded on the job row, the source file
// stays unprocessed, and the job is never re-queued by the runner.
type Result struct {
	JobID        uuid.UUID
	SourceFileID uuid.UUID
	ResultID     *uuid.UUID
	Err          error
}

// Runner executes normalization jobs pulled from the queue. Each job is an
// isolated failure domain; nothing a job does can take down the loop.
type Runner struct {
	store   store.Store
	blobs   blob.Store
	queue   queue.Queue
	cache   cache.Cache
	timeout time.Duration
}

// NewRunner creates a Runner. timeout bounds a single job execution.
func NewRunner(s store.Store, b blob.Store, q queue.Queue, c cache.Cache, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Runner{store: s, blobs: b, queue: q, cache: c, timeout: timeout}
}

// Run consumes jobs until ctx is cancelled. Intended to be launched once
// per worker in the pool.
func (r *Runner) Run(ctx context.Context, workerID int) error {
	slog.Info("worker started", "worker_id", workerID)
	for {
		job, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopped", "worker_id", workerID)
				return ctx.Err()
			}
			slog.Error("dequeue failed", "worker_id", workerID, "error", err)
			time.Sleep(time.Second)
			continue
		}

		// The job gets its own context: a server shutdown should not
		// abandon work mid-write.
		jobCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		res := r.RunJob(jobCtx, job)
		cancel()

		if res.Err != nil {
			slog.Error("job failed", "worker_id", workerID, "job_id", job.ID,
				"source_file_id", job.SourceFileID, "error", res.Err)
		} else {
			slog.Info("job completed", "worker_id", workerID, "job_id", job.ID,
				"source_file_id", job.SourceFileID, "result_id", res.ResultID)
		}
	}
}

// RunJob executes a single normalization job to completion. It never
// returns an error past its own boundary; failures are captured in the
// Result and persisted as job/source-file state.
func (r *Runner) RunJob(ctx context.Context, job queue.Job) Result {
	res := Result{JobID: job.ID, SourceFileID: job.SourceFileID}

	r.markRunning(ctx, job.ID)

	file, err := r.store.GetSourceFile(ctx, job.SourceFileID)
	if errors.Is(err, store.ErrNotFound) {
		// Nothing to flip unprocessed; the job is dropped.
		res.Err = fmt.Errorf("source file %s: %w", job.SourceFileID, err)
		r.markFailed(ctx, job.ID, res.Err)
		return res
	}
	if err != nil {
		res.Err = err
		r.markFailed(ctx, job.ID, err)
		return res
	}

	records, err := r.normalizeContent(ctx, file)
	if err != nil {
		res.Err = err
		r.fail(ctx, job.ID, file.ID, err)
		return res
	}

	result := &models.NormalizedResult{
		ID:           uuid.New(),
		SourceFileID: file.ID,
		Records:      records,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.CreateNormalizedResult(ctx, result); err != nil {
		res.Err = err
		r.fail(ctx, job.ID, file.ID, err)
		return res
	}

	if err := r.store.SetSourceFileProcessed(ctx, file.ID, true); err != nil {
		// The result row exists but the flag is stale; surface as failure
		// so the file stays visibly unprocessed and re-runnable.
		res.Err = err
		r.markFailed(ctx, job.ID, err)
		return res
	}

	r.markCompleted(ctx, job.ID)
	res.ResultID = &result.ID
	return res
}

// normalizeContent reads the stored content and runs the pure transform.
func (r *Runner) normalizeContent(ctx context.Context, file *models.SourceFile) (json.RawMessage, error) {
	rc, err := r.blobs.Open(ctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	records, err := normalize.Normalize(data, file.Format)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return encoded, nil
}

// fail records a normalization failure: the source file is explicitly
// flagged unprocessed and the job row carries the error message.
func (r *Runner) fail(ctx context.Context, jobID, fileID uuid.UUID, cause error) {
	if err := r.store.SetSourceFileProcessed(ctx, fileID, false); err != nil {
		slog.Error("reset processed flag failed", "source_file_id", fileID, "error", err)
	}
	r.markFailed(ctx, jobID, cause)
}

func (r *Runner) markRunning(ctx context.Context, jobID uuid.UUID) {
	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusRunning); err != nil {
		slog.Warn("mark job running failed", "job_id", jobID, "error", err)
	}
	if err := r.cache.SetJobStatus(ctx, jobID, models.JobStatusRunning, jobStatusTTL); err != nil {
		slog.Warn("cache job status failed", "job_id", jobID, "error", err)
	}
}

func (r *Runner) markCompleted(ctx context.Context, jobID uuid.UUID) {
	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted); err != nil {
		slog.Warn("mark job completed failed", "job_id", jobID, "error", err)
	}
	if err := r.cache.SetJobStatus(ctx, jobID, models.JobStatusCompleted, jobStatusTTL); err != nil {
		slog.Warn("cache job status failed", "job_id", jobID, "error", err)
	}
}

func (r *Runner) markFailed(ctx context.Context, jobID uuid.UUID, cause error) {
	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed,
		store.WithErrorMessage(cause.Error())); err != nil {
		slog.Warn("mark job failed failed", "job_id", jobID, "error", err)
	}
	if err := r.cache.SetJobStatus(ctx, jobID, models.JobStatusFailed, jobStatusTTL); err != nil {
		slog.Warn("cache job status failed", "job_id", jobID, "error", err)
	}
}
