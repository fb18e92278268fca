package ingest_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anishsharma/insightbase/internal/store"
	"github.com/anishsharma/insightbase/pkg/models"
)

// ─── fake store ──────────────────────────────────────────────────────────────

type fakeStore struct {
	mu      sync.Mutex
	files   map[uuid.UUID]*models.SourceFile
	results map[uuid.UUID]*models.NormalizedResult
	jobs    map[uuid.UUID]*models.Job

	createFileErr   error
	createResultErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:   make(map[uuid.UUID]*models.SourceFile),
		results: make(map[uuid.UUID]*models.NormalizedResult),
		jobs:    make(map[uuid.UUID]*models.Job),
	}
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }

func (s *fakeStore) GetDefaultUser(_ context.Context) (*models.User, error) {
	return nil, store.ErrNotFound
}

func (s *fakeStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *fakeStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *fakeStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *fakeStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *fakeStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }

func (s *fakeStore) CreateSourceFile(_ context.Context, f *models.SourceFile) error {
	if s.createFileErr != nil {
		return s.createFileErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.files[f.ID] = &cp
	return nil
}

func (s *fakeStore) GetSourceFile(_ context.Context, id uuid.UUID) (*models.SourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *fakeStore) GetSourceFileForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.SourceFile, error) {
	f, err := s.GetSourceFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.UserID == nil || *f.UserID != userID {
		return nil, store.ErrNotFound
	}
	return f, nil
}

func (s *fakeStore) ListSourceFiles(_ context.Context, filter store.SourceFileFilter) ([]*models.SourceFile, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SourceFile
	for _, f := range s.files {
		if f.UserID != nil && *f.UserID == filter.UserID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (s *fakeStore) SetSourceFileProcessed(_ context.Context, id uuid.UUID, processed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return store.ErrNotFound
	}
	f.Processed = processed
	return nil
}

func (s *fakeStore) DeleteSourceFile(_ context.Context, id uuid.UUID, _ uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

func (s *fakeStore) CreateNormalizedResult(_ context.Context, r *models.NormalizedResult) error {
	if s.createResultErr != nil {
		return s.createResultErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.results[r.ID] = &cp
	return nil
}

func (s *fakeStore) GetNormalizedResultForUser(_ context.Context, id uuid.UUID, _ uuid.UUID) (*models.NormalizedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) ListNormalizedResults(_ context.Context, filter store.ResultFilter) ([]*models.NormalizedResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.NormalizedResult
	for _, r := range s.results {
		if filter.SourceFileID == nil || r.SourceFileID == *filter.SourceFileID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (s *fakeStore) CreateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id uuid.UUID, _ uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJobStatus records the transition; option payloads are only
// observable through the real store, which has its own integration tests.
func (s *fakeStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.Status = status
	if len(opts) > 0 && j.ErrorMessage == nil {
		msg := "recorded"
		j.ErrorMessage = &msg
	}
	return nil
}

// countJobs returns how many jobs the fake holds.
func (s *fakeStore) countJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *fakeStore) countFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *fakeStore) countResults() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// ─── fake blob store ─────────────────────────────────────────────────────────

type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: make(map[string][]byte)}
}

func (b *fakeBlobs) Save(_ context.Context, key string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
	return key, nil
}

func (b *fakeBlobs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlobs) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, path)
	return nil
}

func (b *fakeBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

// ─── fake cache ──────────────────────────────────────────────────────────────

type fakeCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{statuses: make(map[uuid.UUID]string)}
}

func (c *fakeCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *fakeCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *fakeCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *fakeCache) Ping(_ context.Context) error                                     { return nil }

func (c *fakeCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *fakeCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[jobID]
	return status, ok, nil
}

func (c *fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// ─── fake sheets client ──────────────────────────────────────────────────────

type fakeSheets struct {
	fn func(ctx context.Context, sheetURL string) ([]map[string]any, error)
}

func (f *fakeSheets) FetchRecords(ctx context.Context, sheetURL string) ([]map[string]any, error) {
	return f.fn(ctx, sheetURL)
}
