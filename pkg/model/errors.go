package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation  ErrorCode = "VALIDATION_ERROR"
	ErrNotFound    ErrorCode = "NOT_FOUND"
	ErrConflict    ErrorCode = "CONFLICT"
	ErrUnavailable ErrorCode = "SCHEDULER_UNAVAILABLE"
	ErrInternal    ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource string, id any) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%v' not found", resource, id),
	}
}

// Sentinel errors of the queue and agent core. Use errors.Is to classify.
var (
	ErrPersistence        = errors.New("persistence error")
	ErrDependencyNotFound = errors.New("dependency not found")
	ErrUnknownAgent       = errors.New("unknown agent")
	ErrDependencyCycle    = errors.New("agent dependency cycle")
	ErrTransport          = errors.New("scheduler transport error")
	ErrProcessingFailure  = errors.New("processing failure")
	ErrAlreadyFinalized   = errors.New("audit record already finalized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRecordNotFound     = errors.New("record not found")
)

// PersistenceError reports a store that is unreachable or rejected a write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// DependencyNotFoundError is returned when a task names a dependency that
// does not exist. Nothing is written when it is returned.
type DependencyNotFoundError struct {
	TaskID int64
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("dependency task %d does not exist", e.TaskID)
}

func (e *DependencyNotFoundError) Is(target error) bool { return target == ErrDependencyNotFound }

// UnknownAgentError is returned when an agent type is not in the registry.
// It also matches ErrDependencyNotFound since it most often surfaces while
// resolving a named dependency.
type UnknownAgentError struct {
	Name string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q", e.Name)
}

func (e *UnknownAgentError) Is(target error) bool {
	return target == ErrUnknownAgent || target == ErrDependencyNotFound
}

// TransportError reports a failed scheduler notification. When returned from
// a scheduling call the task is already persisted; the scheduler may not see
// it before its next poll.
type TransportError struct {
	Addr   string
	Output string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("scheduler %s: %v", e.Addr, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ValidationError describes rejected caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// RecordNotFoundError is returned when a referenced job or upload does not exist.
type RecordNotFoundError struct {
	Resource string
	ID       int64
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *RecordNotFoundError) Is(target error) bool { return target == ErrRecordNotFound }
