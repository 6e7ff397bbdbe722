package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates that authentication with the
	// service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrStoreClosed indicates an append was attempted after the result
	// store segment was closed.
	ErrStoreClosed = errors.New("result store closed")
)

// LLMError represents an error from an LLM provider, wrapped at the
// client's port boundary. Classified failures carry one of the
// sentinels above in their chain, so callers decide on retryability
// with errors.Is rather than provider-specific knowledge.
type LLMError struct {
	// Model is the identifier of the LLM model that generated the error.
	Model string

	// Operation is the name of the operation that failed.
	Operation string

	// Err is the underlying error that occurred.
	Err error
}

// Error implements the error interface for LLMError.
func (e *LLMError) Error() string {
	return fmt.Sprintf("LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func (e *LLMError) IsRetryable() bool {
	// Only network/service-level errors are retryable; logic errors are not.
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError creates a new LLMError with the given details.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{
		Model:     model,
		Operation: operation,
		Err:       err,
	}
}

// StoreError represents an error from result store operations.
// It includes the segment and operation that failed.
type StoreError struct {
	// Segment identifies the store segment involved in the failed operation.
	Segment string

	// Operation is the name of the store operation that failed.
	Operation string

	// Err is the underlying error that caused the store operation to fail.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, segment=%s, err=%v", e.Operation, e.Segment, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(segment, operation string, err error) *StoreError {
	return &StoreError{
		Segment:   segment,
		Operation: operation,
		Err:       err,
	}
}
