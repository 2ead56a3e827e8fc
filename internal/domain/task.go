package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents a position in the transcription task lifecycle
type TaskStatus string

// Possible task status values
const (
	TaskStatusIdle       TaskStatus = "idle"
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusPaused     TaskStatus = "paused"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transitions leave this status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusIdle, TaskStatusQueued, TaskStatusProcessing, TaskStatusPaused,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Priority orders queued tasks. Higher tiers are dispatched first.
type Priority string

// Possible priority values
const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the dispatch rank of the priority; lower ranks go first.
// Unknown priorities rank with PriorityNormal.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// ParsePriority converts a case-insensitive name into a Priority.
// An empty string yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
	}
	return p, nil
}

// Default option values applied when a submission leaves them unset
const (
	DefaultMaxRetries  = 2
	DefaultTaskTimeout = 10 * time.Minute
	DefaultLanguage    = "auto"
)

// TaskOptions is the configuration snapshot captured when a task is created.
// It never changes afterwards.
type TaskOptions struct {
	Language    string        `json:"language"`
	AutoStart   bool          `json:"auto_start"`
	Priority    Priority      `json:"priority"`
	PostProcess bool          `json:"post_process"`
	Timeout     time.Duration `json:"timeout"`
	MaxRetries  int           `json:"max_retries"`
}

// DefaultTaskOptions returns options with auto-start enabled and the default
// priority, language, timeout and retry limit.
func DefaultTaskOptions() TaskOptions {
	return TaskOptions{
		Language:   DefaultLanguage,
		AutoStart:  true,
		Priority:   PriorityNormal,
		Timeout:    DefaultTaskTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate checks the options for values the scheduler cannot honour.
func (o TaskOptions) Validate() error {
	if !o.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, o.Priority)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrValidation)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrValidation)
	}
	return nil
}

// ResultSummary describes a successful transcription without carrying its text.
type ResultSummary struct {
	TextLength   int    `json:"text_length"`
	SegmentCount int    `json:"segment_count"`
	Language     string `json:"language"`
}

// TaskProgress tracks how far a task has come and when.
type TaskProgress struct {
	Percent               float64        `json:"percent"`
	Message               string         `json:"message,omitempty"`
	Error                 string         `json:"error,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	StartedAt             *time.Time     `json:"started_at,omitempty"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
	ActualDurationSeconds *float64       `json:"actual_duration_seconds,omitempty"`
	Result                *ResultSummary `json:"result,omitempty"`
}

// Task is one submitted file's transcription request and its tracked state.
// Values handed out by the registry are snapshots; mutating them has no
// effect on the scheduler.
type Task struct {
	ID           uuid.UUID    `json:"id"`
	SourceFileID string       `json:"source_file_id"`
	FileName     string       `json:"file_name"`
	FileSize     int64        `json:"file_size"`
	Status       TaskStatus   `json:"status"`
	Priority     Priority     `json:"priority"`
	Progress     TaskProgress `json:"progress"`
	RetryCount   int          `json:"retry_count"`
	Options      TaskOptions  `json:"options"`

	// Attempts counts dispatches to the executor. A result reported for an
	// older attempt is stale and must not be applied.
	Attempts int `json:"attempts"`

	// NextRetryAt is set while an automatic retry is pending for a failed task.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// Sequence is the submission order; it breaks ties between equal
	// priorities and creation times.
	Sequence uint64 `json:"sequence"`
}

// NewTask builds an idle task for the given source file.
// Returns an error if validation fails.
func NewTask(fileID, fileName string, fileSize int64, opts TaskOptions) (*Task, error) {
	t := &Task{
		ID:           uuid.New(),
		SourceFileID: fileID,
		FileName:     fileName,
		FileSize:     fileSize,
		Status:       TaskStatusIdle,
		Priority:     opts.Priority,
		Options:      opts,
		Progress: TaskProgress{
			CreatedAt: time.Now().UTC(),
		},
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task ID cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(t.SourceFileID) == "" {
		return fmt.Errorf("%w: source file ID cannot be empty", ErrValidation)
	}
	if t.FileSize < 0 {
		return fmt.Errorf("%w: file size cannot be negative", ErrValidation)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}
	return t.Options.Validate()
}

// IsActive reports whether the task still occupies its source file: it is
// not terminal, or it failed and an automatic retry is pending.
func (t *Task) IsActive() bool {
	return !t.Status.IsTerminal() || t.NextRetryAt != nil
}

// Clone returns a deep copy of the task so callers can hold it without
// sharing pointers with the registry.
func (t *Task) Clone() Task {
	c := *t
	c.Progress.StartedAt = cloneTime(t.Progress.StartedAt)
	c.Progress.CompletedAt = cloneTime(t.Progress.CompletedAt)
	c.NextRetryAt = cloneTime(t.NextRetryAt)
	if t.Progress.ActualDurationSeconds != nil {
		d := *t.Progress.ActualDurationSeconds
		c.Progress.ActualDurationSeconds = &d
	}
	if t.Progress.Result != nil {
		r := *t.Progress.Result
		c.Progress.Result = &r
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
