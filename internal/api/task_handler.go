package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/api/shared"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/platform/logger"
	"github.com/phrazzld/scribe/internal/service"
	"github.com/phrazzld/scribe/internal/transcribe"
)

// multipartOverhead is added to the upload limit to allow for form framing.
const multipartOverhead = 1 << 20

// TaskScheduler is the part of the scheduler the HTTP layer drives.
type TaskScheduler interface {
	Get(id uuid.UUID) (domain.Task, error)
	GetByFileID(fileID string) (domain.Task, error)
	List() []domain.Task
	State() domain.QueueState
	StartTask(id uuid.UUID) (domain.Task, error)
	Cancel(id uuid.UUID) (domain.Task, error)
	Pause(id uuid.UUID) (domain.Task, error)
	Resume(id uuid.UUID) (domain.Task, error)
	Retry(id uuid.UUID) (domain.Task, error)
	Remove(id uuid.UUID) (domain.Task, error)
	ClearFinished() int
	SetMaxConcurrency(n int) error
	MaxConcurrency() int
	InFlight() int
}

// TaskHandler handles upload, task and queue HTTP requests.
type TaskHandler struct {
	tasks          service.TaskService
	scheduler      TaskScheduler
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(
	tasks service.TaskService,
	scheduler TaskScheduler,
	maxUploadBytes int64,
	logger *slog.Logger,
) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:          tasks,
		scheduler:      scheduler,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "task_handler"),
	}
}

// Upload handles POST /api/uploads. The audio is read from the multipart
// form field "file" and streamed to storage.
func (h *TaskHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Expected a multipart/form-data upload")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.respondUploadReadError(w, r, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		stored, err := h.tasks.Upload(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				err = fmt.Errorf("%w: %v", transcribe.ErrTooLarge, err)
			}
			HandleAPIError(w, r, err, "Failed to store upload")
			return
		}

		logger.FromContextOrDefault(r.Context(), h.logger).Info("upload accepted",
			"file_id", stored.FileID,
			"size", stored.Size,
			"mime_type", stored.MIMEType)
		shared.RespondWithJSON(w, r, http.StatusCreated, stored)
		return
	}

	shared.RespondWithError(w, r, http.StatusBadRequest, "Missing form field \"file\"")
}

func (h *TaskHandler) respondUploadReadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", transcribe.ErrTooLarge, err), "")
		return
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
}

// SubmitTask handles POST /api/tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleValidationError(w, r, err)
		return
	}

	t, err := h.tasks.SubmitTask(r.Context(), service.SubmitInput{
		FileID:      req.FileID,
		Language:    req.Language,
		Priority:    req.Priority,
		AutoStart:   req.AutoStart,
		PostProcess: req.PostProcess,
		Timeout:     req.Timeout(),
		MaxRetries:  req.MaxRetries,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, t)
}

// ListTasks handles GET /api/tasks. An optional ?status= filter accepts a
// comma-separated list of statuses.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := make(map[domain.TaskStatus]bool)
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.TaskStatus(strings.ToLower(strings.TrimSpace(s)))
			if !status.IsValid() {
				HandleAPIError(w, r, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, s), "")
				return
			}
			filter[status] = true
		}
	}

	all := h.scheduler.List()
	tasks := make([]domain.Task, 0, len(all))
	for _, t := range all {
		if len(filter) == 0 || filter[t.Status] {
			tasks = append(tasks, t)
		}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks, Total: len(tasks)})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	t, err := h.scheduler.Get(id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// GetTaskByFile handles GET /api/files/{fileID}/task.
func (h *TaskHandler) GetTaskByFile(w http.ResponseWriter, r *http.Request) {
	t, err := h.scheduler.GetByFileID(chi.URLParam(r, "fileID"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// StartTask handles POST /api/tasks/{id}/start.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "start", h.scheduler.StartTask)
}

// CancelTask handles POST /api/tasks/{id}/cancel.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "cancel", h.scheduler.Cancel)
}

// PauseTask handles POST /api/tasks/{id}/pause.
func (h *TaskHandler) PauseTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "pause", h.scheduler.Pause)
}

// ResumeTask handles POST /api/tasks/{id}/resume.
func (h *TaskHandler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "resume", h.scheduler.Resume)
}

// RetryTask handles POST /api/tasks/{id}/retry.
func (h *TaskHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "retry", h.scheduler.Retry)
}

// RemoveTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "remove", h.scheduler.Remove)
}

// control runs a single-task scheduler operation and writes the resulting task.
func (h *TaskHandler) control(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(uuid.UUID) (domain.Task, error),
) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := fn(id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to "+op+" task")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("task control",
		"operation", op,
		"task_id", id,
		"status", t.Status)
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// ClearFinished handles DELETE /api/tasks.
func (h *TaskHandler) ClearFinished(w http.ResponseWriter, r *http.Request) {
	removed := h.scheduler.ClearFinished()
	shared.RespondWithJSON(w, r, http.StatusOK, ClearFinishedResponse{Removed: removed})
}

// GetQueue handles GET /api/queue.
func (h *TaskHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.scheduler.State())
}

// SetConcurrency handles PUT /api/queue/concurrency.
func (h *TaskHandler) SetConcurrency(w http.ResponseWriter, r *http.Request) {
	var req SetConcurrencyRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleValidationError(w, r, err)
		return
	}

	if err := h.scheduler.SetMaxConcurrency(req.MaxConcurrency); err != nil {
		HandleAPIError(w, r, err, "Failed to set concurrency")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ConcurrencyResponse{
		MaxConcurrency: h.scheduler.MaxConcurrency(),
		InFlight:       h.scheduler.InFlight(),
	})
}
