package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the error taxonomy shared across the service.
var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFormat indicates an upload with a file type outside the supported set.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyDocument indicates an upload whose extracted text is too short to index.
	ErrEmptyDocument = errors.New("document is empty or has too little content")

	// ErrNormalization indicates a raw record that cannot be mapped to a canonical document.
	ErrNormalization = errors.New("record normalization failed")

	// ErrStoreWrite indicates a failed write to the persistent store; the batch is retryable.
	ErrStoreWrite = errors.New("store write failed")

	// ErrStoreRead indicates a failed read from the persistent store.
	ErrStoreRead = errors.New("store read failed")

	// ErrEmbedderUnavailable indicates the embedding backend could not be reached or loaded.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")

	// ErrLLMUnavailable indicates the external LLM could not produce a completion.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrInternal indicates an internal invariant violation.
	ErrInternal = errors.New("internal error")
)

// Is, As and Join re-export their stdlib counterparts so callers only need one
// errors import.
func Is(err, target error) bool       { return errors.Is(err, target) }
func As(err error, target any) bool   { return errors.As(err, target) }
func Join(errs ...error) error        { return errors.Join(errs...) }
func New(text string) error           { return errors.New(text) }
func Errorf(f string, a ...any) error { return fmt.Errorf(f, a...) }

// RateLimitError reports an LLM rate limit together with the backend's
// retry-after hint, when one could be parsed from the response.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AsRateLimit unwraps err into a RateLimitError if there is one in the chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
