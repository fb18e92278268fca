package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Format is the declared layout of a source file's raw content. It is
// resolved once at the ingestion boundary and threaded through as a typed
// value; nothing downstream re-inspects file name suffixes.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// FormatFromFilename derives the format tag from a file name extension.
// Returns false for anything outside the supported set.
func FormatFromFilename(name string) (Format, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch Format(ext) {
	case FormatCSV, FormatXLSX, FormatJSON:
		return Format(ext), true
	}
	return "", false
}

// SourceFile records raw ingested content awaiting or having undergone
// normalization. Processed is true only once a successful NormalizedResult
// exists; a failed normalization attempt leaves it false so the file can be
// re-dispatched.
type SourceFile struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	UserID      *uuid.UUID `db:"user_id"      json:"user_id,omitempty"`
	StoragePath string     `db:"storage_path" json:"storage_path"`
	Format      Format     `db:"format"       json:"format"`
	Processed   bool       `db:"processed"    json:"processed"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
}
