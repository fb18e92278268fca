package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/anishsharma/insightbase/internal/api/middleware"
	"github.com/anishsharma/insightbase/internal/api/response"
	"github.com/anishsharma/insightbase/internal/store"
	"github.com/anishsharma/insightbase/pkg/models"
)

// JobStore is the subset of the store the job-poll handler uses.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
}

// JobStatusCache serves hot job status lookups without hitting Postgres.
type JobStatusCache interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

// NewPollJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// The store row is authoritative and enforces ownership; for a job still in
// flight, the cache entry written by the task runner may be a step ahead of
// the row, so it refreshes the reported status.
func NewPollJobHandler(s JobStore, c JobStatusCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		job, err := s.GetJob(r.Context(), id, userID)
		if err != nil {
			writeJobError(w, err)
			return
		}

		if job.Status == models.JobStatusPending || job.Status == models.JobStatusRunning {
			if status, found, err := c.GetJobStatus(r.Context(), id); err == nil && found {
				job.Status = status
			}
		}

		response.JSON(w, job)
	}
}

func writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
}
