// Package blob provides durable storage for raw ingested content. The
// ingestion gateway writes content here before committing the database row
// that points at it, so a worker never observes a record with no backing
// bytes.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob not found")

// Store persists raw content under opaque keys. Implementations must be
// safe for concurrent use.
type Store interface {
	// Save writes the content durably and returns the storage path to
	// record on the SourceFile row.
	Save(ctx context.Context, key string, content io.Reader) (string, error)
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
	Delete(ctx context.Context, storagePath string) error
}

// UploadKey builds a user-scoped storage key for an uploaded file. A nil
// user yields an anonymous path for system-sourced data.
func UploadKey(userID *uuid.UUID, fileID uuid.UUID, fileName string) string {
	owner := "anonymous"
	if userID != nil {
		owner = userID.String()
	}
	return path.Join("uploads", owner, fileID.String()+"_"+sanitizeName(fileName))
}

// sanitizeName strips directory components and characters that have no
// business in a storage key.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// validateKey rejects keys that could escape the storage root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty storage key")
	}
	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return fmt.Errorf("storage key %q escapes root", key)
	}
	return nil
}
