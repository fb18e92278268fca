package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anishsharma/insightbase/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) GetDefaultUser(ctx context.Context) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE email = 'admin@insightbase.local' LIMIT 1`,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default user: %w", err)
	}
	return &u, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Source Files ---

func (s *PostgresStore) CreateSourceFile(ctx context.Context, file *models.SourceFile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_files (id, user_id, storage_path, format, processed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		file.ID, file.UserID, file.StoragePath, file.Format, file.Processed, file.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create source file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSourceFile(ctx context.Context, id uuid.UUID) (*models.SourceFile, error) {
	var f models.SourceFile
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, storage_path, format, processed, created_at
		 FROM source_files WHERE id = $1`, id,
	).Scan(&f.ID, &f.UserID, &f.StoragePath, &f.Format, &f.Processed, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source file: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) GetSourceFileForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.SourceFile, error) {
	var f models.SourceFile
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, storage_path, format, processed, created_at
		 FROM source_files WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&f.ID, &f.UserID, &f.StoragePath, &f.Format, &f.Processed, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source file for user: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) ListSourceFiles(ctx context.Context, filter SourceFileFilter) ([]*models.SourceFile, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.Format != "" {
		conditions = append(conditions, fmt.Sprintf("format = $%d", argIdx))
		args = append(args, filter.Format)
		argIdx++
	}
	if filter.Processed != nil {
		conditions = append(conditions, fmt.Sprintf("processed = $%d", argIdx))
		args = append(args, *filter.Processed)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM source_files WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count source files: %w", err)
	}

	limit, offset := normalizePage(filter.Limit, filter.Page)

	dataQuery := fmt.Sprintf(
		`SELECT id, user_id, storage_path, format, processed, created_at
		 FROM source_files WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list source files: %w", err)
	}
	defer rows.Close()

	var files []*models.SourceFile
	for rows.Next() {
		var f models.SourceFile
		if err := rows.Scan(&f.ID, &f.UserID, &f.StoragePath, &f.Format, &f.Processed, &f.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan source file: %w", err)
		}
		files = append(files, &f)
	}
	return files, total, rows.Err()
}

func (s *PostgresStore) SetSourceFileProcessed(ctx context.Context, id uuid.UUID, processed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE source_files SET processed = $2 WHERE id = $1`, id, processed)
	if err != nil {
		return fmt.Errorf("set source file processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSourceFile(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM source_files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete source file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Normalized Results ---

func (s *PostgresStore) CreateNormalizedResult(ctx context.Context, result *models.NormalizedResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO normalized_results (id, source_file_id, records, created_at)
		 VALUES ($1, $2, $3, $4)`,
		result.ID, result.SourceFileID, result.Records, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("create normalized result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNormalizedResultForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.NormalizedResult, error) {
	var r models.NormalizedResult
	err := s.pool.QueryRow(ctx,
		`SELECT r.id, r.source_file_id, r.records, r.created_at
		 FROM normalized_results r
		 JOIN source_files f ON f.id = r.source_file_id
		 WHERE r.id = $1 AND f.user_id = $2`, id, userID,
	).Scan(&r.ID, &r.SourceFileID, &r.Records, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get normalized result: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListNormalizedResults(ctx context.Context, filter ResultFilter) ([]*models.NormalizedResult, int, error) {
	conditions := []string{"f.user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.SourceFileID != nil {
		conditions = append(conditions, fmt.Sprintf("r.source_file_id = $%d", argIdx))
		args = append(args, *filter.SourceFileID)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM normalized_results r
		 JOIN source_files f ON f.id = r.source_file_id WHERE ` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count normalized results: %w", err)
	}

	limit, offset := normalizePage(filter.Limit, filter.Page)

	dataQuery := fmt.Sprintf(
		`SELECT r.id, r.source_file_id, r.records, r.created_at
		 FROM normalized_results r
		 JOIN source_files f ON f.id = r.source_file_id
		 WHERE %s ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list normalized results: %w", err)
	}
	defer rows.Close()

	var results []*models.NormalizedResult
	for rows.Next() {
		var r models.NormalizedResult
		if err := rows.Scan(&r.ID, &r.SourceFileID, &r.Records, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan normalized result: %w", err)
		}
		results = append(results, &r)
	}
	return results, total, rows.Err()
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, source_file_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.UserID, job.SourceFileID, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, source_file_id, status, error_message, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&j.ID, &j.UserID, &j.SourceFileID, &j.Status, &j.ErrorMessage,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// A failed job may move back to running when its source file is re-dispatched.
var validTransitions = map[string][]string{
	"pending": {"running"},
	"running": {"completed", "failed"},
	"failed":  {"running"},
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	allowed := validTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid job status transition: %s -> %s", currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == "running" {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == "completed" || status == "failed" {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1"

	_, err = s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// normalizePage clamps pagination inputs to sane bounds.
func normalizePage(limit, page int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
