package common

import (
	"errors"
	"fmt"
)

// Error kinds used across the pipeline. Handlers map these onto HTTP
// statuses; batch callers map DataUnavailable onto documented neutral
// defaults instead of failing sibling work.
var (
	// ErrNotFound marks an absent artifact (no cached analysis, report, etc.)
	ErrNotFound = errors.New("not found")

	// ErrDataUnavailable marks vendor data that is empty or stale beyond lookback
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrCancelled marks work abandoned due to shutdown
	ErrCancelled = errors.New("cancelled")
)

// ValidationError reports bad caller input (HTTP 400)
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// TransientError wraps a retryable failure (HTTP 429/503, timeouts,
// provider overload). Retry loops unwrap it to decide on backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a failure that retries cannot fix (malformed LLM
// output after retries, schema validation). Callers log it and fall back
// to a structured stub where one is defined.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure in %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a caller-input problem
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
