package api

import (
	"time"

	"github.com/phrazzld/scribe/internal/domain"
)

// SubmitTaskRequest defines the payload for creating a transcription task.
type SubmitTaskRequest struct {
	// FileID is the ID returned by the upload endpoint
	FileID string `json:"file_id" validate:"required,uuid"`

	// Language is an ISO 639-1 code, or "auto" to detect it
	Language string `json:"language" validate:"omitempty,max=16"`

	// Priority is one of urgent, high, normal, low; empty means normal
	Priority string `json:"priority" validate:"omitempty,oneof=urgent high normal low"`

	// AutoStart queues the task immediately; defaults to true
	AutoStart *bool `json:"auto_start"`

	// PostProcess normalizes the transcript before it is recorded
	PostProcess bool `json:"post_process"`

	// TimeoutSeconds overrides the per-attempt timeout; zero keeps the default
	TimeoutSeconds int `json:"timeout_seconds" validate:"gte=0,lte=86400"`

	// MaxRetries overrides the automatic retry limit
	MaxRetries *int `json:"max_retries" validate:"omitempty,gte=0,lte=10"`
}

// Timeout returns the requested timeout as a duration.
func (r SubmitTaskRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// SetConcurrencyRequest defines the payload for adjusting the concurrency limit.
type SetConcurrencyRequest struct {
	MaxConcurrency int `json:"max_concurrency" validate:"required,min=1,max=64"`
}

// ConcurrencyResponse reports the current concurrency figures.
type ConcurrencyResponse struct {
	MaxConcurrency int `json:"max_concurrency"`
	InFlight       int `json:"in_flight"`
}

// TaskListResponse wraps a list of tasks.
type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Total int           `json:"total"`
}

// ClearFinishedResponse reports how many terminal tasks were removed.
type ClearFinishedResponse struct {
	Removed int `json:"removed"`
}

// TranscriptResponse is a stored transcript as returned to clients.
type TranscriptResponse struct {
	SourceFileID    string           `json:"source_file_id"`
	TaskID          string           `json:"task_id"`
	FileName        string           `json:"file_name"`
	Text            string           `json:"text"`
	Language        string           `json:"language"`
	DurationSeconds float64          `json:"duration_seconds"`
	Segments        []domain.Segment `json:"segments"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// TranscriptListResponse wraps a page of transcripts.
type TranscriptListResponse struct {
	Transcripts []TranscriptResponse `json:"transcripts"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// transcriptToResponse converts a stored record to its response shape.
func transcriptToResponse(rec *domain.TranscriptRecord) TranscriptResponse {
	segments := rec.Transcript.Segments
	if segments == nil {
		segments = []domain.Segment{}
	}
	return TranscriptResponse{
		SourceFileID:    rec.SourceFileID,
		TaskID:          rec.TaskID,
		FileName:        rec.FileName,
		Text:            rec.Transcript.Text,
		Language:        rec.Transcript.Language,
		DurationSeconds: rec.Transcript.DurationSeconds,
		Segments:        segments,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}
