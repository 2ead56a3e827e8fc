package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/events"
	"github.com/phrazzld/scribe/internal/store"
)

// defaultSaveTimeout bounds a single mirror write.
const defaultSaveTimeout = 10 * time.Second

// Subscriber is the part of the event bus the mirror needs.
type Subscriber interface {
	Subscribe(kind events.Kind, handler events.Handler) func()
}

// TranscriptMirror persists the transcript of every completed task, keyed by
// the task's source file. A later completion for the same file replaces the
// stored transcript.
type TranscriptMirror struct {
	store       store.TranscriptStore
	logger      *slog.Logger
	saveTimeout time.Duration

	mu          sync.Mutex
	unsubscribe func()
}

// NewTranscriptMirror creates a mirror writing to s.
func NewTranscriptMirror(s store.TranscriptStore, logger *slog.Logger) *TranscriptMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptMirror{
		store:       s,
		logger:      logger.With("component", "transcript_mirror"),
		saveTimeout: defaultSaveTimeout,
	}
}

// Attach subscribes the mirror to task_completed events. Calling it again
// replaces the previous subscription.
func (m *TranscriptMirror) Attach(bus Subscriber) {
	unsubscribe := bus.Subscribe(events.KindTaskCompleted, m.Handle)

	m.mu.Lock()
	prev := m.unsubscribe
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Detach removes the subscription, if any.
func (m *TranscriptMirror) Detach() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Handle saves the transcript carried by a task_completed event. Other
// events and completions without a transcript are ignored.
func (m *TranscriptMirror) Handle(event events.Event) {
	if event.Kind != events.KindTaskCompleted || event.Task == nil || event.Transcript == nil {
		return
	}

	record := &domain.TranscriptRecord{
		SourceFileID: event.Task.SourceFileID,
		TaskID:       event.Task.ID.String(),
		FileName:     event.Task.FileName,
		Transcript:   *event.Transcript,
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.saveTimeout)
	defer cancel()

	log := m.logger.With("task_id", event.Task.ID, "file_id", record.SourceFileID)
	if err := m.store.Save(ctx, record); err != nil {
		log.ErrorContext(ctx, "failed to mirror transcript", "error", err)
		return
	}
	log.InfoContext(ctx, "transcript mirrored", "segments", len(record.Transcript.Segments))
}
