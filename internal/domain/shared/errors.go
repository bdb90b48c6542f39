// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrInvalidFormat   = errors.New("invalid format")

	// Local data errors
	ErrCorruptedData   = errors.New("corrupted data")
	ErrVersionMismatch = errors.New("version mismatch")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRemoteUnavailable  = errors.New("remote store unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "notes", "sync"
	Op      string // Operation that failed, e.g., "CompleteLesson", "Fetch"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progress domain errors
var (
	ErrEmptyLessonID   = NewDomainError("progress", "Validate", ErrInvalidArgument, "lesson id cannot be empty")
	ErrEmptyQuizID     = NewDomainError("progress", "Validate", ErrInvalidArgument, "quiz id cannot be empty")
	ErrEmptyExerciseID = NewDomainError("progress", "Validate", ErrInvalidArgument, "exercise id cannot be empty")
	ErrInvalidAttempt  = NewDomainError("progress", "RecordQuizAttempt", ErrInvalidArgument, "invalid quiz attempt")
)

// Notes domain errors
var (
	ErrNoteNotFound = NewDomainError("notes", "Find", ErrNotFound, "note not found")
)

// Sync errors
var (
	ErrEmptyUserID       = NewDomainError("sync", "Validate", ErrInvalidArgument, "user id cannot be empty")
	ErrRemoteStoreDown   = NewDomainError("sync", "Fetch", ErrRemoteUnavailable, "remote store is unavailable")
	ErrRemoteStoreFailed = NewDomainError("sync", "Upsert", ErrExternalService, "remote store request failed")
)

// Local snapshot errors
var (
	ErrSnapshotCorrupted = NewDomainError("local", "Load", ErrCorruptedData, "snapshot content is corrupted")
	ErrSnapshotVersion   = NewDomainError("local", "Load", ErrVersionMismatch, "snapshot version does not match")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue)
}

// IsCorrupted checks if the error means a locally stored record cannot be trusted.
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrCorruptedData) ||
		errors.Is(err, ErrVersionMismatch) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrRemoteUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrRemoteUnavailable) ||
		errors.Is(err, ErrTimeout)
}
