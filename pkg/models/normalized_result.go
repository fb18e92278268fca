package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NormalizedResult is the canonical output of one successful normalization
// pass: a record-oriented JSON array of uniform row objects. Rows are
// immutable once written and are removed with their owning SourceFile.
// Repeated processing of the same file accumulates results; the newest one
// is authoritative.
type NormalizedResult struct {
	ID           uuid.UUID       `db:"id"             json:"id"`
	SourceFileID uuid.UUID       `db:"source_file_id" json:"source_file_id"`
	Records      json.RawMessage `db:"records"        json:"records"`
	CreatedAt    time.Time       `db:"created_at"     json:"created_at"`
}
