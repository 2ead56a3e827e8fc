package task

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/events"
)

// TransitionPayload carries the data and preconditions for a state change.
// Zero values mean "no constraint" or "nothing to record".
type TransitionPayload struct {
	// Attempt, when non-zero, must equal the task's current attempt number.
	// Continuations of an older dispatch are rejected with ErrInvalidTransition.
	Attempt int

	// ExpectFrom, when set, must equal the task's current status.
	ExpectFrom domain.TaskStatus

	// Message replaces the progress message.
	Message string

	// Error is recorded on entering Failed.
	Error string

	// Transcript is the result recorded on entering Completed.
	Transcript *domain.Transcript

	// CountRetry consumes one automatic retry on entering Failed and records
	// NextRetryAt as the moment the task will be re-queued.
	CountRetry  bool
	NextRetryAt *time.Time

	// RequirePendingRetry rejects the change unless an automatic retry is
	// still pending. The retry timer uses it so a cancelled retry cannot
	// re-queue the task.
	RequirePendingRetry bool
}

// Registry is the single writer of task state. It owns the task map and the
// source-file index, and serializes every mutation behind one mutex.
// Change notifications are delivered after the lock is released, so two
// concurrent mutations may reach onChange in either order. Every mutation
// advances a revision under the lock and stamps it on its event as Seq.
type Registry struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*domain.Task
	byFile   map[string]uuid.UUID
	seq      uint64
	revision uint64

	onChange func(event *events.Event)
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. onChange is called after every
// mutation with the lifecycle event it produced, or nil when the mutation
// only affects the queue projection. It may be nil.
func NewRegistry(onChange func(event *events.Event), logger *slog.Logger) *Registry {
	if onChange == nil {
		onChange = func(*events.Event) {}
	}
	return &Registry{
		tasks:    make(map[uuid.UUID]*domain.Task),
		byFile:   make(map[string]uuid.UUID),
		onChange: onChange,
		logger:   logger.With("component", "task_registry"),
	}
}

// Create registers a new Idle task for fileID.
// Returns ErrDuplicateTask if the file already has an active task.
func (r *Registry) Create(fileID, fileName string, fileSize int64, opts domain.TaskOptions) (domain.Task, error) {
	t, err := domain.NewTask(fileID, fileName, fileSize, opts)
	if err != nil {
		return domain.Task{}, err
	}

	r.mu.Lock()
	if existingID, ok := r.byFile[fileID]; ok {
		if existing, found := r.tasks[existingID]; found && existing.IsActive() {
			r.mu.Unlock()
			return domain.Task{}, fmt.Errorf("%w: file %s already has task %s in status %s",
				domain.ErrDuplicateTask, fileID, existingID, existing.Status)
		}
	}
	r.seq++
	t.Sequence = r.seq
	r.tasks[t.ID] = t
	r.byFile[fileID] = t.ID
	snap := t.Clone()
	event := events.NewEvent(events.KindTaskAdded)
	event.Task = &snap
	r.stampLocked(&event)
	r.mu.Unlock()

	r.logger.Debug("task created",
		"task_id", snap.ID,
		"file_id", fileID,
		"priority", snap.Priority)

	r.onChange(&event)
	return snap, nil
}

// Transition moves a task to status to, validating the change against the
// lifecycle table and the payload's preconditions. Entering Queued returns
// ErrDuplicateTask while another active task exists for the same file.
func (r *Registry) Transition(id uuid.UUID, to domain.TaskStatus, p TransitionPayload) (domain.Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}

	from := t.Status
	if (p.ExpectFrom != "" && from != p.ExpectFrom) ||
		!domain.CanTransition(from, to) ||
		(p.RequirePendingRetry && t.NextRetryAt == nil) {
		r.mu.Unlock()
		return domain.Task{}, &domain.TransitionError{TaskID: id, From: from, To: to}
	}
	if p.Attempt != 0 && p.Attempt != t.Attempts {
		current := t.Attempts
		r.mu.Unlock()
		return domain.Task{}, fmt.Errorf("%w: stale attempt %d for task %s, current attempt is %d",
			domain.ErrInvalidTransition, p.Attempt, id, current)
	}
	if to == domain.TaskStatusQueued {
		if otherID, ok := r.byFile[t.SourceFileID]; ok && otherID != id {
			if other, found := r.tasks[otherID]; found && other.IsActive() {
				otherStatus := other.Status
				r.mu.Unlock()
				return domain.Task{}, fmt.Errorf("%w: file %s already has task %s in status %s",
					domain.ErrDuplicateTask, t.SourceFileID, otherID, otherStatus)
			}
		}
		r.byFile[t.SourceFileID] = id
	}

	now := time.Now().UTC()
	t.Status = to
	switch to {
	case domain.TaskStatusQueued:
		resetProgress(t)
		t.NextRetryAt = nil
	case domain.TaskStatusProcessing:
		resetProgress(t)
		t.Attempts++
		t.Progress.StartedAt = &now
		t.NextRetryAt = nil
	case domain.TaskStatusCompleted:
		t.Progress.Percent = 100
		t.Progress.Error = ""
		if p.Transcript != nil {
			t.Progress.Result = p.Transcript.Summary()
		}
	case domain.TaskStatusFailed:
		t.Progress.Error = p.Error
		if p.CountRetry {
			t.RetryCount++
			if p.NextRetryAt != nil {
				next := *p.NextRetryAt
				t.NextRetryAt = &next
			}
		}
	}
	if p.Message != "" {
		t.Progress.Message = p.Message
	}
	if to.IsTerminal() {
		t.Progress.CompletedAt = &now
		if t.Progress.StartedAt != nil {
			d := now.Sub(*t.Progress.StartedAt).Seconds()
			t.Progress.ActualDurationSeconds = &d
		}
	}
	snap := t.Clone()
	event := transitionEvent(&snap, p)
	r.stampLocked(event)
	r.mu.Unlock()

	r.logger.Debug("task transitioned",
		"task_id", id,
		"from", from,
		"to", to,
		"attempt", snap.Attempts,
		"retry_count", snap.RetryCount)

	r.onChange(event)
	return snap, nil
}

// ClearRetry drops the pending automatic retry of a failed task, leaving it
// in its terminal Failed state, and emits a final task_failed event.
func (r *Registry) ClearRetry(id uuid.UUID) (domain.Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if t.Status != domain.TaskStatusFailed || t.NextRetryAt == nil {
		from := t.Status
		r.mu.Unlock()
		return domain.Task{}, &domain.TransitionError{TaskID: id, From: from, To: domain.TaskStatusCancelled}
	}
	t.NextRetryAt = nil
	snap := t.Clone()
	event := events.NewEvent(events.KindTaskFailed)
	event.Task = &snap
	event.Error = snap.Progress.Error
	r.stampLocked(&event)
	r.mu.Unlock()

	r.onChange(&event)
	return snap, nil
}

// UpdateProgress records a progress report. Percent is clamped to [0,100].
// Unknown and terminal tasks are ignored. Reports false when ignored.
func (r *Registry) UpdateProgress(id uuid.UUID, percent float64, message string) bool {
	return r.updateProgress(id, 0, percent, message)
}

// updateProgress applies a report only while the given attempt is the one
// processing. Attempt 0 accepts any non-terminal task.
func (r *Registry) updateProgress(id uuid.UUID, attempt int, percent float64, message string) bool {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || t.Status.IsTerminal() {
		r.mu.Unlock()
		return false
	}
	if attempt != 0 && (t.Status != domain.TaskStatusProcessing || t.Attempts != attempt) {
		r.mu.Unlock()
		return false
	}
	t.Progress.Percent = clampPercent(percent)
	if message != "" {
		t.Progress.Message = message
	}
	snap := t.Clone()
	event := events.NewEvent(events.KindTaskProgress)
	event.Task = &snap
	event.Percent = snap.Progress.Percent
	event.Message = message
	r.stampLocked(&event)
	r.mu.Unlock()

	r.onChange(&event)
	return true
}

// Remove deletes a task from both indices.
// Returns ErrTaskInProgress while the task is processing.
func (r *Registry) Remove(id uuid.UUID) (domain.Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if t.Status == domain.TaskStatusProcessing {
		r.mu.Unlock()
		return domain.Task{}, fmt.Errorf("%w: cancel task %s before removing it", domain.ErrTaskInProgress, id)
	}
	r.deleteLocked(t)
	r.stampLocked(nil)
	snap := t.Clone()
	r.mu.Unlock()

	r.logger.Debug("task removed", "task_id", id, "status", snap.Status)
	r.onChange(nil)
	return snap, nil
}

// RemoveFinished deletes every terminal task that has no pending retry and
// returns the removed IDs.
func (r *Registry) RemoveFinished() []uuid.UUID {
	r.mu.Lock()
	var removed []uuid.UUID
	for id, t := range r.tasks {
		if t.Status.IsTerminal() && t.NextRetryAt == nil {
			r.deleteLocked(t)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		r.stampLocked(nil)
	}
	r.mu.Unlock()

	if len(removed) > 0 {
		r.logger.Debug("finished tasks cleared", "count", len(removed))
		r.onChange(nil)
	}
	return removed
}

// stampLocked advances the revision and records it on event, which may be nil.
func (r *Registry) stampLocked(event *events.Event) {
	r.revision++
	if event != nil {
		event.Seq = r.revision
	}
}

// Touch advances the revision for a change held outside the registry, such
// as the concurrency ceiling, and returns it.
func (r *Registry) Touch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stampLocked(nil)
	return r.revision
}

func (r *Registry) deleteLocked(t *domain.Task) {
	delete(r.tasks, t.ID)
	if r.byFile[t.SourceFileID] == t.ID {
		delete(r.byFile, t.SourceFileID)
	}
}

// Get returns a snapshot of the task with the given ID.
func (r *Registry) Get(id uuid.UUID) (domain.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return t.Clone(), true
}

// GetByFileID returns a snapshot of the latest task created for fileID.
func (r *Registry) GetByFileID(fileID string) (domain.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byFile[fileID]
	if !ok {
		return domain.Task{}, false
	}
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return t.Clone(), true
}

// List returns snapshots of all tasks in submission order.
func (r *Registry) List() []domain.Task {
	out, _ := r.Snapshot()
	return out
}

// Snapshot returns List together with the revision it reflects.
func (r *Registry) Snapshot() ([]domain.Task, uint64) {
	r.mu.Lock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	revision := r.revision
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, revision
}

// ListByStatus returns snapshots of the tasks in status, in submission order.
func (r *Registry) ListByStatus(status domain.TaskStatus) []domain.Task {
	all := r.List()
	out := all[:0]
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// CountByStatus returns the number of tasks currently in status.
func (r *Registry) CountByStatus(status domain.TaskStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Len returns the number of tasks held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func resetProgress(t *domain.Task) {
	t.Progress.Percent = 0
	t.Progress.Message = ""
	t.Progress.Error = ""
	t.Progress.StartedAt = nil
	t.Progress.CompletedAt = nil
	t.Progress.ActualDurationSeconds = nil
	t.Progress.Result = nil
}

func clampPercent(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// transitionEvent maps a completed transition to the lifecycle event it
// announces. Transitions without a dedicated kind return nil.
func transitionEvent(t *domain.Task, p TransitionPayload) *events.Event {
	var event events.Event
	switch t.Status {
	case domain.TaskStatusCompleted:
		event = events.NewEvent(events.KindTaskCompleted)
		event.Transcript = p.Transcript
	case domain.TaskStatusFailed:
		event = events.NewEvent(events.KindTaskFailed)
		event.Error = t.Progress.Error
		event.Retrying = t.NextRetryAt != nil
	case domain.TaskStatusCancelled:
		event = events.NewEvent(events.KindTaskCancelled)
	default:
		return nil
	}
	event.Task = t
	return &event
}
