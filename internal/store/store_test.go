package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/anishsharma/insightbase/internal/store"
	"github.com/anishsharma/insightbase/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("insightbase_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// defaultUserID returns the UUID of the seeded default user.
func defaultUserID(t *testing.T, s store.Store) uuid.UUID {
	t.Helper()
	user, err := s.GetDefaultUser(context.Background())
	require.NoError(t, err)
	return user.ID
}

// createUser inserts an extra user directly and returns its id.
func createUser(t *testing.T, pool *pgxpool.Pool, email string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, name) VALUES ($1, $2) RETURNING id`, email, email).Scan(&id)
	require.NoError(t, err)
	return id
}

// newSourceFile persists a source file owned by userID and returns it.
func newSourceFile(t *testing.T, s store.Store, userID uuid.UUID) *models.SourceFile {
	t.Helper()
	f := &models.SourceFile{
		ID:          uuid.New(),
		UserID:      &userID,
		StoragePath: "uploads/" + userID.String() + "/" + uuid.NewString() + "_data.csv",
		Format:      models.FormatCSV,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.CreateSourceFile(context.Background(), f))
	return f
}

// --- Users ---

func TestGetDefaultUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	user, err := s.GetDefaultUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin@insightbase.local", user.Email)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

// --- API Keys ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "ib_abcde",
		Scopes:    []string{"ingest", "read"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "ib_abcde")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, "test-key", keys[0].Name)
}

func TestAPIKey_Revoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	now := time.Now().UTC()
	key := &models.APIKey{
		ID: uuid.New(), UserID: userID, Name: "k", KeyHash: "h", KeyPrefix: "ib_xxxxx",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, userID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "ib_xxxxx")
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, userID), store.ErrNotFound)
}

// --- Source Files ---

func TestSourceFile_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	f := newSourceFile(t, s, userID)

	got, err := s.GetSourceFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, models.FormatCSV, got.Format)
	assert.False(t, got.Processed)

	_, err = s.GetSourceFile(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSourceFile_ProcessedFlag(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	f := newSourceFile(t, s, userID)

	require.NoError(t, s.SetSourceFileProcessed(ctx, f.ID, true))
	got, err := s.GetSourceFile(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	// A failed re-run resets the flag.
	require.NoError(t, s.SetSourceFileProcessed(ctx, f.ID, false))
	got, err = s.GetSourceFile(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
}

func TestSourceFile_OwnershipIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	alice := defaultUserID(t, s)
	bob := createUser(t, pool, "bob@insightbase.local")

	aliceFile := newSourceFile(t, s, alice)
	bobFile := newSourceFile(t, s, bob)

	// Listing is scoped to the owner.
	files, total, err := s.ListSourceFiles(ctx, store.SourceFileFilter{UserID: alice})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, files, 1)
	assert.Equal(t, aliceFile.ID, files[0].ID)

	// Direct lookup across owners misses.
	_, err = s.GetSourceFileForUser(ctx, bobFile.ID, alice)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// So does deletion.
	assert.ErrorIs(t, s.DeleteSourceFile(ctx, bobFile.ID, alice), store.ErrNotFound)
}

func TestSourceFile_ListFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	f1 := newSourceFile(t, s, userID)
	newSourceFile(t, s, userID)
	require.NoError(t, s.SetSourceFileProcessed(ctx, f1.ID, true))

	processed := true
	files, total, err := s.ListSourceFiles(ctx, store.SourceFileFilter{UserID: userID, Processed: &processed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, files, 1)
	assert.Equal(t, f1.ID, files[0].ID)
}

// --- Normalized Results ---

func TestNormalizedResult_CreateListAndCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	f := newSourceFile(t, s, userID)

	result := &models.NormalizedResult{
		ID:           uuid.New(),
		SourceFileID: f.ID,
		Records:      json.RawMessage(`[{"a":1},{"a":2}]`),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.CreateNormalizedResult(ctx, result))

	results, total, err := s.ListNormalizedResults(ctx, store.ResultFilter{UserID: userID, SourceFileID: &f.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.JSONEq(t, `[{"a":1},{"a":2}]`, string(results[0].Records))

	got, err := s.GetNormalizedResultForUser(ctx, result.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, got.ID)

	// Deleting the source file removes its results.
	require.NoError(t, s.DeleteSourceFile(ctx, f.ID, userID))
	_, err = s.GetNormalizedResultForUser(ctx, result.ID, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNormalizedResult_OwnershipIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	alice := defaultUserID(t, s)
	bob := createUser(t, pool, "bob@insightbase.local")

	bobFile := newSourceFile(t, s, bob)
	result := &models.NormalizedResult{
		ID:           uuid.New(),
		SourceFileID: bobFile.ID,
		Records:      json.RawMessage(`[]`),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateNormalizedResult(ctx, result))

	results, total, err := s.ListNormalizedResults(ctx, store.ResultFilter{UserID: alice})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, results)

	_, err = s.GetNormalizedResultForUser(ctx, result.ID, alice)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Jobs ---

func TestJob_StatusTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	f := newSourceFile(t, s, userID)

	now := time.Now().UTC()
	job := &models.Job{
		ID: uuid.New(), UserID: &userID, SourceFileID: f.ID,
		Status: models.JobStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateJob(ctx, job))

	// pending -> completed is not allowed.
	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted)
	require.Error(t, err)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithErrorMessage("parse csv content: bare quote")))

	got, err := s.GetJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "bare quote")
	assert.NotNil(t, got.CompletedAt)

	// A failed job can be re-dispatched.
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning))
}

func TestJob_GetScopedToUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	alice := defaultUserID(t, s)
	bob := createUser(t, pool, "bob@insightbase.local")

	f := newSourceFile(t, s, bob)
	now := time.Now().UTC()
	job := &models.Job{
		ID: uuid.New(), UserID: &bob, SourceFileID: f.ID,
		Status: models.JobStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.GetJob(ctx, job.ID, alice)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
