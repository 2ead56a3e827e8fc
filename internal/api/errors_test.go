package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/api/shared"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/service"
	"github.com/phrazzld/scribe/internal/store"
	"github.com/phrazzld/scribe/internal/transcribe"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	transitionErr := &domain.TransitionError{
		TaskID: uuid.New(),
		From:   domain.TaskStatusCompleted,
		To:     domain.TaskStatusQueued,
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"task not found", fmt.Errorf("get: %w", domain.ErrTaskNotFound), http.StatusNotFound},
		{"file not found", service.NewServiceError("submit_task", "x", service.ErrFileNotFound), http.StatusNotFound},
		{"transcript not found", store.ErrTranscriptNotFound, http.StatusNotFound},
		{"duplicate task", fmt.Errorf("create: %w", domain.ErrDuplicateTask), http.StatusConflict},
		{"invalid transition", transitionErr, http.StatusConflict},
		{"task in progress", domain.ErrTaskInProgress, http.StatusConflict},
		{"too large", transcribe.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{"unsupported media", transcribe.ErrUnsupportedMedia, http.StatusUnsupportedMediaType},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	transitionErr := &domain.TransitionError{
		TaskID: uuid.New(),
		From:   domain.TaskStatusCompleted,
		To:     domain.TaskStatusQueued,
	}

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Task cannot move from completed to queued", GetSafeErrorMessage(transitionErr))
	assert.Equal(t, "Task not found", GetSafeErrorMessage(domain.ErrTaskNotFound))
	assert.Equal(t, "File already has an active task", GetSafeErrorMessage(domain.ErrDuplicateTask))

	leaky := fmt.Errorf("open /var/lib/scribe/uploads/x.audio: %w", errors.New("permission denied"))
	msg := GetSafeErrorMessage(leaky)
	assert.Equal(t, "An unexpected error occurred", msg)
	assert.NotContains(t, msg, "/var/lib")
}

func TestSanitizeValidationError(t *testing.T) {
	err := shared.ValidateRequest(SubmitTaskRequest{FileID: "not-a-uuid"})
	assert.Equal(t, "Invalid fileid: must be a UUID", SanitizeValidationError(err))

	err = shared.ValidateRequest(SetConcurrencyRequest{})
	assert.Equal(t, "Invalid maxconcurrency: required field", SanitizeValidationError(err))

	assert.Equal(t, "Invalid request", SanitizeValidationError(domain.ErrValidation))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
