package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/anishsharma/insightbase/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through
// here. Query methods that take a userID apply the ownership filter in SQL;
// callers must pass an already-authenticated identity.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultUser(ctx context.Context) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateSourceFile(ctx context.Context, file *models.SourceFile) error
	// GetSourceFile loads by id without an ownership filter; it is for the
	// task runner, which receives ids only from the trusted queue.
	GetSourceFile(ctx context.Context, id uuid.UUID) (*models.SourceFile, error)
	GetSourceFileForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.SourceFile, error)
	ListSourceFiles(ctx context.Context, filter SourceFileFilter) ([]*models.SourceFile, int, error)
	SetSourceFileProcessed(ctx context.Context, id uuid.UUID, processed bool) error
	DeleteSourceFile(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateNormalizedResult(ctx context.Context, result *models.NormalizedResult) error
	GetNormalizedResultForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.NormalizedResult, error)
	ListNormalizedResults(ctx context.Context, filter ResultFilter) ([]*models.NormalizedResult, int, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

// SourceFileFilter narrows and paginates ListSourceFiles. UserID is
// mandatory; the zero values of the other fields mean no filter.
type SourceFileFilter struct {
	UserID    uuid.UUID
	Format    models.Format
	Processed *bool
	Page      int
	Limit     int
}

// ResultFilter narrows and paginates ListNormalizedResults. Ownership is
// resolved through the owning SourceFile.
type ResultFilter struct {
	UserID       uuid.UUID
	SourceFileID *uuid.UUID
	Page         int
	Limit        int
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}
