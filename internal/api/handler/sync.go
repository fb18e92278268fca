package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/anishsharma/insightbase/internal/api/middleware"
	"github.com/anishsharma/insightbase/internal/api/response"
	"github.com/anishsharma/insightbase/internal/ingest"
)

// PayloadSyncer defines the interface the api-sync handler depends on.
type PayloadSyncer interface {
	SubmitPayload(ctx context.Context, userID uuid.UUID, payload json.RawMessage) (*ingest.SubmitResult, error)
}

// SheetSyncer defines the interface the google-sheets-sync handler depends on.
type SheetSyncer interface {
	SubmitSheetSync(ctx context.Context, userID uuid.UUID, sheetURL string) (*ingest.SubmitResult, error)
}

// NewAPISyncHandler returns an http.HandlerFunc for POST /api/v1/api-sync.
// The entire request body is taken as the payload to ingest.
func NewAPISyncHandler(svc PayloadSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.Data) == 0 {
			response.Error(w, http.StatusBadRequest, "MISSING_PARAMETER", "data is required", nil)
			return
		}

		result, err := svc.SubmitPayload(r.Context(), userID, req.Data)
		if err != nil {
			writeIngestError(w, err)
			return
		}

		response.Created(w, map[string]any{
			"message": "Payload accepted for processing",
			"task_id": result.JobID,
			"file_id": result.SourceFileID,
		})
	}
}

// NewSheetsSyncHandler returns an http.HandlerFunc for POST /api/v1/google-sheets-sync.
func NewSheetsSyncHandler(svc SheetSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			SheetURL string `json:"sheet_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		result, err := svc.SubmitSheetSync(r.Context(), userID, req.SheetURL)
		if err != nil {
			writeIngestError(w, err)
			return
		}

		response.Created(w, map[string]any{
			"message": "Spreadsheet accepted for processing",
			"task_id": result.JobID,
			"file_id": result.SourceFileID,
		})
	}
}
