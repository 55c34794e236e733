// Package service provides application-level services for managing tasks and
// their caching, duplicate-detection, and mutation rules.
package service

import (
	"fmt"

	"github.com/google/uuid"
)

// Duplicate-match reasons reported in conflict outcomes.
const (
	// ReasonExactMatch fires when an existing task has identical title,
	// description, due date, and status.
	ReasonExactMatch = "Exact task match"

	// ReasonSameTitleTimeframe fires when an existing pending task shares
	// the candidate's title with a due date within 24 hours.
	ReasonSameTitleTimeframe = "Same title and timeframe"
)

// Error handling principles:
// 1. Expected business outcomes (validation, not-found, conflict) are typed
//    errors or sentinel errors checked with errors.Is/errors.As.
// 2. Infrastructure failures at the repository boundary are wrapped in
//    DataAccessError; cache failures are swallowed at the cache boundary.
// 3. The API layer maps each error kind to an HTTP status code via a single
//    exhaustive switch.

// ValidationError indicates malformed caller input: an unparseable due
// date, a field outside the update allow-list, or similar.
// API layer should map this to HTTP 400 Bad Request.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError indicates the duplicate-detection policy blocked a task
// creation. It carries the matched task's identity and which rule fired.
// API layer should map this to HTTP 409 Conflict.
type ConflictError struct {
	TaskID uuid.UUID
	Reason string
}

// Error implements the error interface for ConflictError.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate task detected (%s): matches task %s", e.Reason, e.TaskID)
}

// DataAccessError indicates a repository or cache infrastructure failure,
// distinct from any business-rule rejection.
// API layer should map this to HTTP 500 Internal Server Error with a
// sanitized message.
type DataAccessError struct {
	Operation string
	Err       error
}

// Error implements the error interface for DataAccessError.
func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access failed during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// NewDataAccessError creates a new DataAccessError.
func NewDataAccessError(operation string, err error) *DataAccessError {
	return &DataAccessError{Operation: operation, Err: err}
}
