// Package ingest implements the file-ingestion pipeline: a synchronous
// gateway that validates and persists incoming data, and an asynchronous
// runner that normalizes it. The two halves share nothing but the store
// and the queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anishsharma/insightbase/internal/blob"
	"github.com/anishsharma/insightbase/internal/cache"
	"github.com/anishsharma/insightbase/internal/queue"
	"github.com/anishsharma/insightbase/internal/sheets"
	"github.com/anishsharma/insightbase/internal/store"
	"github.com/anishsharma/insightbase/pkg/models"
)

// jobStatusTTL bounds how long cached job status outlives the job.
const jobStatusTTL = 30 * time.Minute

// SubmitResult correlates a submission to its async normalization task.
// JobID is a handle for polling only; it carries no completion guarantee.
type SubmitResult struct {
	JobID        uuid.UUID
	SourceFileID uuid.UUID
}

// Gateway is the synchronous request boundary of the ingestion pipeline.
// Every accepted submission follows the same ordering: content is written
// durably first, then the SourceFile row is committed, then the job is
// enqueued — so a worker never observes a record with no backing content.
type Gateway struct {
	store  store.Store
	blobs  blob.Store
	queue  queue.Queue
	cache  cache.Cache
	sheets sheets.Client
}

// NewGateway creates a Gateway. The sheets client may be nil when the
// deployment has no spreadsheet credential; SubmitSheetSync then fails with
// an ExternalServiceError.
func NewGateway(s store.Store, b blob.Store, q queue.Queue, c cache.Cache, sc sheets.Client) *Gateway {
	return &Gateway{store: s, blobs: b, queue: q, cache: c, sheets: sc}
}

// SubmitUpload validates the file name extension, stores the content, and
// dispatches a normalization job. It returns as soon as the job is queued.
func (g *Gateway) SubmitUpload(ctx context.Context, userID uuid.UUID, fileName string, content io.Reader) (*SubmitResult, error) {
	format, ok := models.FormatFromFilename(fileName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	return g.ingest(ctx, userID, format, blob.UploadKey(&userID, uuid.New(), fileName), content)
}

// SubmitPayload accepts an external API payload. Anything other than a JSON
// object or array is rejected; the payload is stored as a json SourceFile.
func (g *Gateway) SubmitPayload(ctx context.Context, userID uuid.UUID, payload json.RawMessage) (*SubmitResult, error) {
	if !isObjectOrArray(payload) {
		return nil, ErrInvalidPayload
	}
	key := blob.UploadKey(&userID, uuid.New(), "api-sync.json")
	return g.ingest(ctx, userID, models.FormatJSON, key, strings.NewReader(string(payload)))
}

// SubmitSheetSync fetches all records from the spreadsheet synchronously —
// the one blocking external call in the gateway — then stores them as a
// json SourceFile and dispatches normalization like any other submission.
func (g *Gateway) SubmitSheetSync(ctx context.Context, userID uuid.UUID, sheetURL string) (*SubmitResult, error) {
	if strings.TrimSpace(sheetURL) == "" {
		return nil, fmt.Errorf("%w: sheet_url", ErrMissingParameter)
	}
	if g.sheets == nil {
		return nil, &ExternalServiceError{Err: fmt.Errorf("spreadsheet service not configured")}
	}

	records, err := g.sheets.FetchRecords(ctx, sheetURL)
	if err != nil {
		return nil, &ExternalServiceError{Err: err}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode sheet records: %w", err)
	}

	key := blob.UploadKey(&userID, uuid.New(), "sheet-sync.json")
	return g.ingest(ctx, userID, models.FormatJSON, key, strings.NewReader(string(data)))
}

// ingest runs the common accept path: blob write, record commit, enqueue.
func (g *Gateway) ingest(ctx context.Context, userID uuid.UUID, format models.Format, key string, content io.Reader) (*SubmitResult, error) {
	path, err := g.blobs.Save(ctx, key, content)
	if err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	now := time.Now().UTC()
	file := &models.SourceFile{
		ID:          uuid.New(),
		UserID:      &userID,
		StoragePath: path,
		Format:      format,
		Processed:   false,
		CreatedAt:   now,
	}
	if err := g.store.CreateSourceFile(ctx, file); err != nil {
		return nil, fmt.Errorf("create source file: %w", err)
	}

	job := &models.Job{
		ID:           uuid.New(),
		UserID:       &userID,
		SourceFileID: file.ID,
		Status:       models.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := g.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := g.queue.Enqueue(ctx, queue.Job{
		ID:           job.ID,
		SourceFileID: file.ID,
		SubmittedAt:  now,
	}); err != nil {
		// The SourceFile and pending job row stay behind for re-dispatch.
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	if err := g.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, jobStatusTTL); err != nil {
		slog.Warn("cache job status failed", "job_id", job.ID, "error", err)
	}

	slog.Info("submission accepted",
		"source_file_id", file.ID,
		"job_id", job.ID,
		"format", format,
	)
	return &SubmitResult{JobID: job.ID, SourceFileID: file.ID}, nil
}

// isObjectOrArray checks the first JSON token without decoding the payload.
func isObjectOrArray(payload json.RawMessage) bool {
	for _, b := range payload {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return json.Valid(payload)
		default:
			return false
		}
	}
	return false
}
