package task

import (
	"context"

	"github.com/phrazzld/scribe/internal/domain"
)

// ProgressFunc receives progress reports from an executor. Percent values
// outside [0,100] are clamped by the registry.
type ProgressFunc func(percent float64, message string)

// Executor performs the actual transcription of a source file.
// Implementations should honour ctx cancellation, but the scheduler does not
// rely on it: once a dispatch is cancelled its result is discarded.
type Executor interface {
	Transcribe(
		ctx context.Context,
		fileID string,
		language string,
		onProgress ProgressFunc,
	) (*domain.Transcript, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, fileID, language string, onProgress ProgressFunc) (*domain.Transcript, error)

// Transcribe calls f.
func (f ExecutorFunc) Transcribe(
	ctx context.Context,
	fileID, language string,
	onProgress ProgressFunc,
) (*domain.Transcript, error) {
	return f(ctx, fileID, language, onProgress)
}

// PostProcessor rewrites a transcript before it is recorded on a task whose
// options request post-processing.
type PostProcessor interface {
	Process(ctx context.Context, transcript *domain.Transcript) (*domain.Transcript, error)
}

// SubmitRequest describes a new transcription task.
type SubmitRequest struct {
	FileID   string
	FileName string
	FileSize int64
	Options  domain.TaskOptions
}
