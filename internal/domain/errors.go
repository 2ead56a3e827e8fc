// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateTask is returned when a file already has an active task.
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrTaskNotFound is returned when no task exists for an ID or file.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a state change is not allowed
	// from the task's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrTaskInProgress is returned when removing a task that is processing.
	ErrTaskInProgress = errors.New("task in progress")

	// ErrExecutorFailure wraps any error returned by the transcription executor.
	ErrExecutorFailure = errors.New("executor failure")

	// ErrTimeoutExceeded is returned when a transcription outlives its timeout.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	TaskID uuid.UUID
	From   TaskStatus
	To     TaskStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for task %s: %s -> %s", e.TaskID, e.From, e.To)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsCallerError reports whether err is a request error that must be reported
// to the caller and never retried.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrDuplicateTask) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrTaskInProgress) ||
		errors.Is(err, ErrValidation)
}
