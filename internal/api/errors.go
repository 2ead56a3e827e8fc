package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scribe/internal/api/shared"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/service"
	"github.com/phrazzld/scribe/internal/store"
	"github.com/phrazzld/scribe/internal/transcribe"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrTranscriptNotFound),
		errors.Is(err, transcribe.ErrAudioNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, domain.ErrDuplicateTask),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTaskInProgress),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Upload errors
	case errors.Is(err, transcribe.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transcribe.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var transitionErr *domain.TransitionError
	switch {
	case errors.As(err, &transitionErr):
		return fmt.Sprintf("Task cannot move from %s to %s", transitionErr.From, transitionErr.To)
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Task is not in a state that allows this operation"
	case errors.Is(err, domain.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, domain.ErrDuplicateTask):
		return "File already has an active task"
	case errors.Is(err, domain.ErrTaskInProgress):
		return "Task is processing; cancel it first"
	case errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, transcribe.ErrAudioNotFound):
		return "Uploaded file not found"
	case errors.Is(err, service.ErrTranscriptNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Transcript not found"
	case errors.Is(err, transcribe.ErrTooLarge):
		return "Audio file too large"
	case errors.Is(err, transcribe.ErrUnsupportedMedia):
		return "Unsupported media type; upload an audio file"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status code and safe message for err.
// fallback replaces the message of unexpected (5xx) errors when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// HandleValidationError writes a 400 response with a sanitized description
// of the first failed field.
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
	}
	if errors.Is(err, domain.ErrValidation) {
		return "Invalid request"
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
