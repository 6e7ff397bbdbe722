package llm

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the LLM client and providers.
var (
	// ErrEmptyAPIKey indicates that an API key was required but not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates that the provider's API returned an empty response body.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoResponseChoice indicates that the provider's response contained no valid choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType categorizes an error returned by an LLM provider so callers
// can decide on retryability without provider-specific knowledge.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an error of an undetermined category.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication indicates an invalid or missing API key.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit indicates that a rate limit has been exceeded.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest indicates a malformed request or invalid parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates that a requested model could not be found.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a problem on the provider's end.
	ErrorTypeServerError
	// ErrorTypeTimeout indicates that the request timed out.
	ErrorTypeTimeout
)

// ProviderError normalizes provider-specific failures into a common
// shape, with a classified type and the original error preserved.
type ProviderError struct {
	// Type classifies the error into a standard category.
	Type ErrorType
	// Provider names the LLM provider that produced the error.
	Provider string
	// StatusCode holds the HTTP status from the provider, if applicable.
	StatusCode int
	// Message contains the provider's error message.
	Message string
	// WrappedError is the original underlying error.
	WrappedError error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	base := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if s := e.typeString(); s != "" {
		base += fmt.Sprintf(" [%s]", s)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	return base
}

// Unwrap returns the original error for errors.Is/As chains.
func (e *ProviderError) Unwrap() error { return e.WrappedError }

// Retryable reports whether the error class is transient.
func (e *ProviderError) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout:
		return true
	}
	return false
}

func (e *ProviderError) typeString() string {
	switch e.Type {
	case ErrorTypeAuthentication:
		return "auth"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server"
	case ErrorTypeTimeout:
		return "timeout"
	}
	return ""
}

// classifyStatus maps an HTTP status code to an ErrorType.
func classifyStatus(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuthentication
	case status == 404:
		return ErrorTypeNotFound
	case status == 429:
		return ErrorTypeRateLimit
	case status >= 500:
		return ErrorTypeServerError
	case status >= 400:
		return ErrorTypeBadRequest
	}
	return ErrorTypeUnknown
}

// wrapContextError converts context errors into classified provider
// errors, so timeout handling is uniform across providers.
func wrapContextError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Type: ErrorTypeTimeout, Provider: provider, Message: "request timeout", WrappedError: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ProviderError{Type: ErrorTypeUnknown, Provider: provider, Message: "request canceled", WrappedError: err}
	}
	return nil
}
