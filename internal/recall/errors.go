package recall

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by adapters, the writer, and the API.
var (
	// ErrSourceUnavailable marks an upstream that failed or returned unusable data.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrValidation marks a candidate missing a required field.
	ErrValidation = errors.New("invalid candidate")
	// ErrStoreWrite marks an insert that failed after the duplicate check passed.
	ErrStoreWrite = errors.New("store write failed")
	// ErrDuplicate marks an insert rejected by the (title, source) uniqueness constraint.
	ErrDuplicate = errors.New("duplicate recall")
	// ErrFatalConfiguration marks missing store configuration.
	ErrFatalConfiguration = errors.New("fatal configuration error")
	// ErrNotFound is returned by lookups with no matching row.
	ErrNotFound = errors.New("not found")
	// ErrExtractorDisabled is returned when no extraction API key is configured.
	ErrExtractorDisabled = errors.New("extraction api disabled")
)

// HTTPStatusError reports a non-success upstream status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Unwrap lets callers match HTTPStatusError against ErrSourceUnavailable.
func (e *HTTPStatusError) Unwrap() error {
	return ErrSourceUnavailable
}

// ParseError describes one upstream item that could not become a Candidate.
type ParseError struct {
	Index int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("item %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("item %d: field %s: %v", e.Index, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
