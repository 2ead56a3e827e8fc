package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/task"
	"github.com/phrazzld/scribe/internal/transcribe"
)

// AudioStore is the upload storage the task service reads and writes.
type AudioStore interface {
	Save(ctx context.Context, fileName string, r io.Reader) (transcribe.StoredFile, error)
	Stat(ctx context.Context, fileID string) (transcribe.StoredFile, error)
}

// Submitter is the part of the scheduler used to create tasks.
type Submitter interface {
	Submit(ctx context.Context, req task.SubmitRequest) (domain.Task, error)
	DefaultOptions() domain.TaskOptions
}

// SubmitInput carries the caller's choices for a new task. Nil and empty
// fields fall back to the scheduler defaults.
type SubmitInput struct {
	FileID      string
	Language    string
	Priority    string
	AutoStart   *bool
	PostProcess bool
	Timeout     time.Duration
	MaxRetries  *int
}

// TaskService creates transcription tasks for uploaded files.
type TaskService interface {
	// Upload stores an audio upload and returns its metadata.
	Upload(ctx context.Context, fileName string, r io.Reader) (transcribe.StoredFile, error)

	// SubmitTask creates a task for a previously uploaded file.
	SubmitTask(ctx context.Context, in SubmitInput) (domain.Task, error)
}

type taskServiceImpl struct {
	audio     AudioStore
	scheduler Submitter
	logger    *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(audio AudioStore, scheduler Submitter, logger *slog.Logger) (TaskService, error) {
	if audio == nil {
		return nil, errors.New("audio store cannot be nil")
	}
	if scheduler == nil {
		return nil, errors.New("scheduler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &taskServiceImpl{
		audio:     audio,
		scheduler: scheduler,
		logger:    logger.With("component", "task_service"),
	}, nil
}

// Upload implements TaskService.
func (s *taskServiceImpl) Upload(ctx context.Context, fileName string, r io.Reader) (transcribe.StoredFile, error) {
	stored, err := s.audio.Save(ctx, fileName, r)
	if err != nil {
		s.logger.WarnContext(ctx, "upload rejected", "file_name", fileName, "error", err)
		return transcribe.StoredFile{}, NewServiceError("upload_audio", "failed to store upload", err)
	}
	return stored, nil
}

// SubmitTask implements TaskService.
func (s *taskServiceImpl) SubmitTask(ctx context.Context, in SubmitInput) (domain.Task, error) {
	fileID := strings.TrimSpace(in.FileID)
	if fileID == "" {
		return domain.Task{}, NewServiceError("submit_task", "file ID is required", domain.ErrValidation)
	}

	stored, err := s.audio.Stat(ctx, fileID)
	if err != nil {
		if errors.Is(err, transcribe.ErrAudioNotFound) {
			return domain.Task{}, NewServiceError("submit_task",
				fmt.Sprintf("no upload with file ID %s", fileID), ErrFileNotFound)
		}
		return domain.Task{}, NewServiceError("submit_task", "failed to read upload metadata", err)
	}

	opts, err := s.buildOptions(in)
	if err != nil {
		return domain.Task{}, NewServiceError("submit_task", "invalid task options", err)
	}

	t, err := s.scheduler.Submit(ctx, task.SubmitRequest{
		FileID:   stored.FileID,
		FileName: stored.FileName,
		FileSize: stored.Size,
		Options:  opts,
	})
	if err != nil {
		return domain.Task{}, NewServiceError("submit_task", "failed to submit task", err)
	}

	s.logger.InfoContext(ctx, "task created for upload",
		"task_id", t.ID,
		"file_id", t.SourceFileID,
		"status", t.Status)
	return t, nil
}

func (s *taskServiceImpl) buildOptions(in SubmitInput) (domain.TaskOptions, error) {
	opts := s.scheduler.DefaultOptions()

	if lang := strings.TrimSpace(in.Language); lang != "" {
		opts.Language = strings.ToLower(lang)
	}
	if in.Priority != "" {
		p, err := domain.ParsePriority(in.Priority)
		if err != nil {
			return domain.TaskOptions{}, err
		}
		opts.Priority = p
	}
	if in.AutoStart != nil {
		opts.AutoStart = *in.AutoStart
	}
	opts.PostProcess = in.PostProcess
	if in.Timeout > 0 {
		opts.Timeout = in.Timeout
	}
	if in.MaxRetries != nil {
		opts.MaxRetries = *in.MaxRetries
	}

	if err := opts.Validate(); err != nil {
		return domain.TaskOptions{}, err
	}
	return opts, nil
}
