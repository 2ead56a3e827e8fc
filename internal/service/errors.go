package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors used across service implementations.
// The API layer maps them to HTTP status codes.
var (
	// ErrFileNotFound indicates that no upload exists for a file ID.
	// API layer should map this to HTTP 404 Not Found.
	ErrFileNotFound = errors.New("uploaded file not found")

	// ErrTranscriptNotFound indicates that no transcript has been stored for a file.
	// API layer should map this to HTTP 404 Not Found.
	ErrTranscriptNotFound = errors.New("transcript not found")
)

// ServiceError wraps errors from a service with the operation that failed.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "submit_task", "get_transcript")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
