package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/anishsharma/insightbase/internal/api/middleware"
	"github.com/anishsharma/insightbase/internal/api/response"
	"github.com/anishsharma/insightbase/internal/blob"
	"github.com/anishsharma/insightbase/internal/store"
	"github.com/anishsharma/insightbase/pkg/models"
)

// SourceFileStore is the subset of the store the uploaded-data handlers use.
type SourceFileStore interface {
	GetSourceFileForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.SourceFile, error)
	ListSourceFiles(ctx context.Context, filter store.SourceFileFilter) ([]*models.SourceFile, int, error)
	DeleteSourceFile(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

// ResultStore is the subset of the store the processed-data handlers use.
type ResultStore interface {
	GetNormalizedResultForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.NormalizedResult, error)
	ListNormalizedResults(ctx context.Context, filter store.ResultFilter) ([]*models.NormalizedResult, int, error)
}

// BlobDeleter removes stored raw content when its owning row is deleted.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// NewListUploadsHandler returns an http.HandlerFunc for GET /api/v1/uploaded-data.
// Supports ?format=, ?processed=, ?page=, ?limit= query parameters.
func NewListUploadsHandler(s SourceFileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		filter := store.SourceFileFilter{
			UserID: userID,
			Page:   queryInt(r, "page", 1),
			Limit:  queryInt(r, "limit", 0),
		}

		if f := r.URL.Query().Get("format"); f != "" {
			switch format := models.Format(strings.ToLower(f)); format {
			case models.FormatCSV, models.FormatXLSX, models.FormatJSON:
				filter.Format = format
			default:
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"format must be one of csv, xlsx, json", nil)
				return
			}
		}
		if p := r.URL.Query().Get("processed"); p != "" {
			v, err := strconv.ParseBool(p)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"processed must be true or false", nil)
				return
			}
			filter.Processed = &v
		}

		files, total, err := s.ListSourceFiles(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list uploaded data", nil)
			return
		}
		if files == nil {
			files = []*models.SourceFile{}
		}

		response.Collection(w, files, paginationMeta(filter.Page, filter.Limit, total, len(files)))
	}
}

// NewGetUploadHandler returns an http.HandlerFunc for GET /api/v1/uploaded-data/{fileID}.
func NewGetUploadHandler(s SourceFileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "fileID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid file id", nil)
			return
		}

		file, err := s.GetSourceFileForUser(r.Context(), id, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Uploaded data not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load uploaded data", nil)
			return
		}

		response.JSON(w, file)
	}
}

// NewDeleteUploadHandler returns an http.HandlerFunc for DELETE /api/v1/uploaded-data/{fileID}.
// Deleting a source file cascades to its normalized results; the raw blob is
// removed best-effort afterwards.
func NewDeleteUploadHandler(s SourceFileStore, blobs BlobDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "fileID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid file id", nil)
			return
		}

		file, err := s.GetSourceFileForUser(r.Context(), id, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Uploaded data not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load uploaded data", nil)
			return
		}

		if err := s.DeleteSourceFile(r.Context(), id, userID); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete uploaded data", nil)
			return
		}

		if err := blobs.Delete(r.Context(), file.StoragePath); err != nil && !errors.Is(err, blob.ErrNotFound) {
			slog.Warn("failed to delete blob after row removal",
				"source_file_id", id, "key", file.StoragePath, "error", err)
		}

		response.NoContent(w)
	}
}

// NewListResultsHandler returns an http.HandlerFunc for GET /api/v1/processed-data.
// Supports ?source_file_id=, ?page=, ?limit= query parameters.
func NewListResultsHandler(s ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		filter := store.ResultFilter{
			UserID: userID,
			Page:   queryInt(r, "page", 1),
			Limit:  queryInt(r, "limit", 0),
		}

		if sf := r.URL.Query().Get("source_file_id"); sf != "" {
			id, err := uuid.Parse(sf)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"source_file_id must be a valid UUID", nil)
				return
			}
			filter.SourceFileID = &id
		}

		results, total, err := s.ListNormalizedResults(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list processed data", nil)
			return
		}
		if results == nil {
			results = []*models.NormalizedResult{}
		}

		response.Collection(w, results, paginationMeta(filter.Page, filter.Limit, total, len(results)))
	}
}

// NewGetResultHandler returns an http.HandlerFunc for GET /api/v1/processed-data/{resultID}.
func NewGetResultHandler(s ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "resultID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid result id", nil)
			return
		}

		result, err := s.GetNormalizedResultForUser(r.Context(), id, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Processed data not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load processed data", nil)
			return
		}

		response.JSON(w, result)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// paginationMeta mirrors the clamping the store applies so meta reflects the
// page actually served.
func paginationMeta(page, limit, total, served int) response.PaginationMeta {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return response.PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total && served > 0,
	}
}
