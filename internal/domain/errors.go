package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during an experiment run.
var (
	// ErrInvalidVerdict indicates that a judge produced a label outside
	// the TP/FP/TN/FN set.
	ErrInvalidVerdict = errors.New("invalid verdict")

	// ErrEmptyCorpus indicates that no test cases were loaded.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrInvalidConfiguration indicates that run configuration is invalid
	// or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ConfigurationError is the only fatal error class: a dependency or
// setting found unusable during preflight, before any trial is
// dispatched. Per-trial failures never take this form.
type ConfigurationError struct {
	// Component names the mechanism, judge, or store that failed
	// preflight validation.
	Component string

	// Err is the underlying error that caused preflight to fail.
	Err error
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: component=%s, err=%v", e.Component, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError for the given component.
func NewConfigurationError(component string, err error) *ConfigurationError {
	return &ConfigurationError{Component: component, Err: err}
}

// ValidationError collects one or more validation failures for an
// entity, such as a run configuration or a corpus file.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
