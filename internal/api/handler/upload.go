package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/anishsharma/insightbase/internal/api/middleware"
	"github.com/anishsharma/insightbase/internal/api/response"
	"github.com/anishsharma/insightbase/internal/ingest"
)

// Uploader defines the interface the upload handler depends on.
type Uploader interface {
	SubmitUpload(ctx context.Context, userID uuid.UUID, fileName string, content io.Reader) (*ingest.SubmitResult, error)
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/upload.
// It expects a multipart form with a single "file" part.
func NewUploadHandler(svc Uploader, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
					"Uploaded file exceeds the size limit", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request must be multipart/form-data with a 'file' part", nil)
			return
		}
		defer file.Close()

		if header.Filename == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file name is required", nil)
			return
		}

		result, err := svc.SubmitUpload(r.Context(), userID, header.Filename, file)
		if err != nil {
			writeIngestError(w, err)
			return
		}

		response.Accepted(w, map[string]any{
			"message":          "File accepted for processing",
			"task_id":          result.JobID,
			"uploaded_data_id": result.SourceFileID,
		})
	}
}

// writeIngestError maps ingest errors to HTTP error responses. Shared by
// the upload and sync handlers.
func writeIngestError(w http.ResponseWriter, err error) {
	var extErr *ingest.ExternalServiceError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil)
	case errors.Is(err, ingest.ErrInvalidPayload):
		response.Error(w, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error(), nil)
	case errors.Is(err, ingest.ErrMissingParameter):
		response.Error(w, http.StatusBadRequest, "MISSING_PARAMETER", err.Error(), nil)
	case errors.As(err, &extErr):
		response.Error(w, http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR", extErr.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to accept submission", nil)
	}
}
