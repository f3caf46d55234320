// Package errors provides error types and utilities for the job queue engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrNotFound        = errors.New("job not found")
	ErrConflict        = errors.New("transition conflict")
	ErrAlreadyExists   = errors.New("job already exists")
	ErrUnknownJobType  = errors.New("unknown job type")
	ErrEmptyJobType    = errors.New("job type cannot be empty")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrNegativeRetries = errors.New("max retries cannot be negative")
	ErrEmptyCron       = errors.New("cron expression cannot be empty")
	ErrNilHandler      = errors.New("handler cannot be nil")
	ErrNotConnected    = errors.New("not connected")
	ErrShutdown        = errors.New("shutting down")
)

// ValidationError rejects malformed input at submission; records carrying
// one never reach the store.
type ValidationError struct {
	Field string // offending input field
	Err   error  // underlying error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation of %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransitionError reports an illegal state machine edge.
type TransitionError struct {
	JobID string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.JobID, e.From, e.To)
}

// ExecutionError represents a handler failure. It is always recoverable
// via the retry policy and never propagated as a fault of the engine.
type ExecutionError struct {
	JobID   string
	JobType string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %s job %s: %v", e.JobType, e.JobID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PublishError represents a transport failure handing a job downstream.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ConnectionError represents connection-related errors
type ConnectionError struct {
	URI string // connection URI (may be redacted)
	Err error  // underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors

// NewValidationError creates a new validation error
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NewTransitionError creates a new transition error
func NewTransitionError(jobID, from, to string) error {
	return &TransitionError{JobID: jobID, From: from, To: to}
}

// NewExecutionError creates a new execution error
func NewExecutionError(jobID, jobType string, err error) error {
	return &ExecutionError{JobID: jobID, JobType: jobType, Err: err}
}

// NewPublishError creates a new publish error
func NewPublishError(topic string, err error) error {
	return &PublishError{Topic: topic, Err: err}
}

// NewConnectionError creates a new connection error
func NewConnectionError(uri string, err error) error {
	return &ConnectionError{URI: uri, Err: err}
}

// IsConflict reports whether err is a lost transition race. Conflicts are
// recovered locally by skipping the record until the next tick.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err indicates a missing job.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
