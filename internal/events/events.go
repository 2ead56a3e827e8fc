package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/domain"
)

// Kind identifies a task lifecycle event.
type Kind string

// Event kinds emitted by the scheduler
const (
	KindTaskAdded     Kind = "task_added"
	KindTaskProgress  Kind = "task_progress"
	KindTaskCompleted Kind = "task_completed"
	KindTaskFailed    Kind = "task_failed"
	KindTaskCancelled Kind = "task_cancelled"
	KindQueueUpdated  Kind = "queue_updated"
)

// Kinds lists every event kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindTaskAdded,
		KindTaskProgress,
		KindTaskCompleted,
		KindTaskFailed,
		KindTaskCancelled,
		KindQueueUpdated,
	}
}

// Event is a lifecycle notification. Task is a snapshot taken when the event
// was produced; State is only set on queue_updated events.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind selects which subscribers receive the event
	Kind Kind `json:"kind"`

	// Seq is the registry revision the event reflects. It grows with every
	// mutation, so a subscriber can drop a snapshot older than one it applied.
	Seq uint64 `json:"seq"`

	// Task is the affected task, nil for queue_updated
	Task *domain.Task `json:"task,omitempty"`

	// Percent and Message mirror the progress callback for task_progress
	Percent float64 `json:"percent,omitempty"`
	Message string  `json:"message,omitempty"`

	// Error is the human-readable failure for task_failed
	Error string `json:"error,omitempty"`

	// Retrying is true on task_failed when an automatic retry has been
	// scheduled; such a failure is not final.
	Retrying bool `json:"retrying,omitempty"`

	// Transcript is the full result carried by task_completed
	Transcript *domain.Transcript `json:"transcript,omitempty"`

	// State is the queue projection carried by queue_updated
	State *domain.QueueState `json:"state,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent creates an event of the given kind stamped with a fresh ID and time.
func NewEvent(kind Kind) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

// Publisher defines components that can emit events.
// This allows the scheduler to publish events without knowledge of subscribers.
type Publisher interface {
	Publish(event Event)
}
