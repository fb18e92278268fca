package ingest

import (
	"errors"
	"fmt"
)

// Caller input errors, surfaced synchronously by the gateway.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidPayload    = errors.New("payload must be a JSON object or array")
	ErrMissingParameter  = errors.New("missing required parameter")
)

// ExternalServiceError wraps an upstream dependency failure. The upstream
// message is passed through to the caller verbatim.
type ExternalServiceError struct {
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service: %v", e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
