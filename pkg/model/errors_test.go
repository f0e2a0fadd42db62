package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "Job '12' not found"}
	want := "NOT_FOUND: Job '12' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Upload", int64(42))
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "Upload '42' not found" {
		t.Errorf("Message = %q, want %q", err.Message, "Upload '42' not found")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Invalid request",
		FieldError{Field: "upload_ids", Message: "required"},
		FieldError{Field: "agents", Message: "required"},
	)
	if err.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidation)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"persistence", &PersistenceError{Op: "insert job", Err: cause}, ErrPersistence},
		{"dependency", &DependencyNotFoundError{TaskID: 9}, ErrDependencyNotFound},
		{"unknown agent", &UnknownAgentError{Name: "nomos"}, ErrUnknownAgent},
		{"unknown agent as dependency", &UnknownAgentError{Name: "nomos"}, ErrDependencyNotFound},
		{"transport", &TransportError{Addr: "localhost:5555", Err: cause}, ErrTransport},
		{"validation", &ValidationError{Field: "filename", Message: "required"}, ErrInvalidInput},
		{"not found", &RecordNotFoundError{Resource: "upload", ID: 42}, ErrRecordNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.target)
			}
		})
	}
}

func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &PersistenceError{Op: "select task", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("PersistenceError should unwrap to its cause")
	}
	want := "persistence: select task: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportError_Error(t *testing.T) {
	err := &TransportError{Addr: "sched:5555", Output: "Invalid command", Err: errors.New("rejected")}
	want := "scheduler sched:5555: rejected: Invalid command"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
