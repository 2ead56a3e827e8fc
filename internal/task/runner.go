package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/events"
)

// SchedulerConfig holds configuration for the scheduler
type SchedulerConfig struct {
	// MaxConcurrency caps how many tasks may be processing at once.
	// It can be changed later with SetMaxConcurrency.
	MaxConcurrency int

	// MaxRetries is the automatic retry limit given to new tasks by DefaultOptions
	MaxRetries int

	// Backoff is the delay before each automatic retry, indexed by retry number.
	// Retries beyond its length reuse the last entry.
	Backoff []time.Duration

	// TaskTimeout bounds a single transcription attempt when a task's
	// options do not set one
	TaskTimeout time.Duration
}

// DefaultSchedulerConfig returns a SchedulerConfig with reasonable defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrency: 2,
		MaxRetries:     domain.DefaultMaxRetries,
		Backoff:        []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		TaskTimeout:    domain.DefaultTaskTimeout,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// Scheduler coordinates transcription tasks: it owns the registry, the
// priority queue view, the concurrency limiter and the retry controller, and
// runs one loop goroutine that dispatches queued tasks whenever capacity
// frees up. Passes are triggered by events, never by a timer.
type Scheduler struct {
	registry      *Registry
	queue         *PriorityQueue
	limiter       *Limiter
	retry         *RetryController
	executor      Executor
	postProcessor PostProcessor
	publisher     events.Publisher
	config        SchedulerConfig

	mu       sync.Mutex
	inflight map[uuid.UUID]*dispatch
	started  bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewScheduler creates a scheduler that runs tasks on executor and announces
// lifecycle changes on publisher. Call Start to begin dispatching.
func NewScheduler(
	executor Executor,
	publisher events.Publisher,
	config SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if config.MaxConcurrency < 1 {
		logger.Warn("invalid max concurrency specified, using default",
			"specified", config.MaxConcurrency,
			"default", 1)
		config.MaxConcurrency = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		limiter:   NewLimiter(config.MaxConcurrency),
		retry:     NewRetryController(config.Backoff, logger),
		executor:  executor,
		publisher: publisher,
		config:    config,
		inflight:  make(map[uuid.UUID]*dispatch),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("component", "scheduler"),
	}
	s.registry = NewRegistry(s.onChange, logger)
	s.queue = NewPriorityQueue(s.registry)
	return s
}

// SetPostProcessor installs the processor applied to tasks whose options
// request post-processing. Must be called before Start.
func (s *Scheduler) SetPostProcessor(p PostProcessor) {
	s.postProcessor = p
}

// DefaultOptions returns task options seeded from the scheduler config.
func (s *Scheduler) DefaultOptions() domain.TaskOptions {
	opts := domain.DefaultTaskOptions()
	opts.MaxRetries = s.config.MaxRetries
	if s.config.TaskTimeout > 0 {
		opts.Timeout = s.config.TaskTimeout
	}
	return opts
}

// Start launches the scheduling loop. Tasks submitted before Start wait in
// the queue until it runs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler stopped")
	}
	s.started = true

	s.wg.Add(1)
	go s.loop()
	s.trigger()

	s.logger.Info("scheduler started",
		"max_concurrency", s.limiter.Max(),
		"max_retries", s.config.MaxRetries)
	return nil
}

// Stop ends the loop, drops pending retry timers and abandons in-flight
// executor calls, then waits for their continuations or for ctx to expire.
// Abandoned tasks are not recovered.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	s.retry.Stop()

	s.mu.Lock()
	pending := make([]*dispatch, 0, len(s.inflight))
	for _, d := range s.inflight {
		pending = append(pending, d)
	}
	s.mu.Unlock()
	for _, d := range pending {
		d.stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped", "abandoned", len(pending))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduler shutdown: %w", ctx.Err())
	}
}

// Submit registers a task for req.FileID. Unless the options disable
// auto-start, the task is queued immediately.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, err
	}

	opts := req.Options
	if opts.Priority == "" {
		opts.Priority = domain.PriorityNormal
	}
	if strings.TrimSpace(opts.Language) == "" {
		opts.Language = domain.DefaultLanguage
	}
	if opts.Timeout == 0 {
		opts.Timeout = s.config.TaskTimeout
	}

	t, err := s.registry.Create(req.FileID, req.FileName, req.FileSize, opts)
	if err != nil {
		return domain.Task{}, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task submitted",
		"task_id", t.ID,
		"file_id", t.SourceFileID,
		"priority", t.Priority,
		"auto_start", opts.AutoStart)

	if !opts.AutoStart {
		return t, nil
	}
	return s.enqueue(t.ID, domain.TaskStatusIdle, "")
}

// StartTask queues a task that was submitted with auto-start disabled.
func (s *Scheduler) StartTask(id uuid.UUID) (domain.Task, error) {
	return s.enqueue(id, domain.TaskStatusIdle, "")
}

// Resume re-queues a paused task. It starts over from the beginning.
func (s *Scheduler) Resume(id uuid.UUID) (domain.Task, error) {
	return s.enqueue(id, domain.TaskStatusPaused, "")
}

// Retry re-queues a failed task on explicit request. It ignores the retry
// limit and leaves RetryCount unchanged. Returns ErrDuplicateTask while a
// newer task for the same file is active.
func (s *Scheduler) Retry(id uuid.UUID) (domain.Task, error) {
	t, ok := s.registry.Get(id)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if t.Status != domain.TaskStatusFailed {
		return domain.Task{}, &domain.TransitionError{TaskID: id, From: t.Status, To: domain.TaskStatusQueued}
	}
	s.retry.Cancel(id)
	return s.enqueue(id, domain.TaskStatusFailed, "manual retry")
}

func (s *Scheduler) enqueue(id uuid.UUID, from domain.TaskStatus, message string) (domain.Task, error) {
	t, err := s.registry.Transition(id, domain.TaskStatusQueued, TransitionPayload{
		ExpectFrom: from,
		Message:    message,
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.trigger()
	return t, nil
}

// Cancel stops a queued, processing or paused task. Cancelling a failed task
// that is waiting for an automatic retry drops the retry instead and leaves
// the task Failed.
func (s *Scheduler) Cancel(id uuid.UUID) (domain.Task, error) {
	t, ok := s.registry.Get(id)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if t.Status == domain.TaskStatusFailed && t.NextRetryAt != nil {
		s.retry.Cancel(id)
		return s.registry.ClearRetry(id)
	}

	cancelled, err := s.registry.Transition(id, domain.TaskStatusCancelled, TransitionPayload{
		Message: "cancelled",
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.stopDispatch(id)
	s.trigger()

	s.logger.Info("task cancelled", "task_id", id, "previous_status", t.Status)
	return cancelled, nil
}

// Pause stops a processing task and frees its slot. The executor result, if
// it still arrives, is discarded.
func (s *Scheduler) Pause(id uuid.UUID) (domain.Task, error) {
	paused, err := s.registry.Transition(id, domain.TaskStatusPaused, TransitionPayload{
		Message: "paused",
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.stopDispatch(id)
	s.trigger()

	s.logger.Info("task paused", "task_id", id)
	return paused, nil
}

// Remove deletes a task that is not processing, dropping any pending retry.
func (s *Scheduler) Remove(id uuid.UUID) (domain.Task, error) {
	removed, err := s.registry.Remove(id)
	if err != nil {
		return domain.Task{}, err
	}
	s.retry.Cancel(id)
	return removed, nil
}

// ClearFinished removes every terminal task and returns how many were removed.
func (s *Scheduler) ClearFinished() int {
	removed := s.registry.RemoveFinished()
	for _, id := range removed {
		s.retry.Cancel(id)
	}
	return len(removed)
}

// SetMaxConcurrency changes the concurrency ceiling. Running tasks are never
// preempted when it is lowered.
func (s *Scheduler) SetMaxConcurrency(n int) error {
	if err := s.limiter.SetMax(n); err != nil {
		return err
	}
	s.logger.Info("max concurrency changed", "max_concurrency", n)
	s.registry.Touch()
	s.onChange(nil)
	s.trigger()
	return nil
}

// MaxConcurrency returns the current concurrency ceiling.
func (s *Scheduler) MaxConcurrency() int {
	return s.limiter.Max()
}

// Get returns the task with the given ID.
func (s *Scheduler) Get(id uuid.UUID) (domain.Task, error) {
	t, ok := s.registry.Get(id)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	return t, nil
}

// GetByFileID returns the latest task for a source file.
func (s *Scheduler) GetByFileID(fileID string) (domain.Task, error) {
	t, ok := s.registry.GetByFileID(fileID)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: file %s", domain.ErrTaskNotFound, fileID)
	}
	return t, nil
}

// List returns all tasks in submission order.
func (s *Scheduler) List() []domain.Task {
	return s.registry.List()
}

// State projects the registry into queue state. Queued tasks are listed in
// dispatch order; failed tasks waiting for a retry do not count as failures.
func (s *Scheduler) State() domain.QueueState {
	state, _ := s.state()
	return state
}

// state builds the projection and returns the registry revision it reflects.
func (s *Scheduler) state() (domain.QueueState, uint64) {
	tasks, revision := s.registry.Snapshot()
	state := domain.QueueState{
		Queued:         []domain.Task{},
		Processing:     []domain.Task{},
		Completed:      []domain.Task{},
		Failed:         []domain.Task{},
		MaxConcurrency: s.limiter.Max(),
	}

	var totalSeconds float64
	var timed int
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskStatusQueued:
			state.Queued = append(state.Queued, t)
		case domain.TaskStatusProcessing:
			state.Processing = append(state.Processing, t)
		case domain.TaskStatusCompleted:
			state.Completed = append(state.Completed, t)
			state.Stats.SuccessCount++
			if t.Progress.ActualDurationSeconds != nil {
				totalSeconds += *t.Progress.ActualDurationSeconds
				timed++
			}
		case domain.TaskStatusFailed:
			state.Failed = append(state.Failed, t)
			if t.NextRetryAt == nil {
				state.Stats.FailureCount++
			}
		}
	}

	OrderQueued(state.Queued)
	state.CurrentConcurrency = len(state.Processing)
	state.Stats.TotalProcessed = state.Stats.SuccessCount + state.Stats.FailureCount
	if timed > 0 {
		state.Stats.AverageProcessingSeconds = totalSeconds / float64(timed)
	}
	return state, revision
}

// onChange publishes the lifecycle event produced by a registry mutation,
// followed by the refreshed queue state.
func (s *Scheduler) onChange(event *events.Event) {
	if event != nil {
		s.publisher.Publish(*event)
	}
	state, revision := s.state()
	updated := events.NewEvent(events.KindQueueUpdated)
	updated.Seq = revision
	updated.State = &state
	s.publisher.Publish(updated)
}

// trigger requests a scheduling pass. Requests made while one is pending
// coalesce into a single pass.
func (s *Scheduler) trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	s.logger.Debug("scheduling loop started")
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("scheduling loop stopped")
			return
		case <-s.wake:
			s.pass()
		}
	}
}

// pass dispatches as many queued tasks as there are free slots, highest
// priority first. It never blocks on an executor.
func (s *Scheduler) pass() {
	if s.ctx.Err() != nil {
		return
	}

	available := s.limiter.Max() - s.registry.CountByStatus(domain.TaskStatusProcessing)
	if free := s.limiter.Available(); free < available {
		available = free
	}
	if available <= 0 {
		return
	}

	for _, t := range s.queue.Next(available) {
		slot, ok := s.limiter.TryAcquire()
		if !ok {
			return
		}
		started, err := s.registry.Transition(t.ID, domain.TaskStatusProcessing, TransitionPayload{
			ExpectFrom: domain.TaskStatusQueued,
			Message:    "starting transcription",
		})
		if err != nil {
			slot.Release()
			s.logger.Debug("skipping task that left the queue", "task_id", t.ID, "error", err)
			continue
		}
		s.dispatch(started, slot)
	}
}

// dispatch hands a processing task to the executor on its own goroutine.
func (s *Scheduler) dispatch(t domain.Task, slot *Slot) {
	ctx, cancel := context.WithCancel(s.ctx)
	d := &dispatch{
		taskID:  t.ID,
		attempt: t.Attempts,
		ctx:     ctx,
		cancel:  cancel,
		slot:    slot,
	}

	s.mu.Lock()
	s.inflight[t.ID] = d
	s.mu.Unlock()

	// A cancel or pause may have landed between the transition and the
	// registration above, in which case nobody else will free the slot.
	if current, ok := s.registry.Get(t.ID); !ok ||
		current.Status != domain.TaskStatusProcessing ||
		current.Attempts != d.attempt {
		s.finishDispatch(d)
		return
	}

	logger := s.logger.With(
		"task_id", t.ID,
		"file_id", t.SourceFileID,
		"priority", t.Priority,
		"attempt", d.attempt,
	)
	logger.Info("dispatching task")

	onProgress := func(percent float64, message string) {
		if d.stale() {
			return
		}
		s.registry.updateProgress(t.ID, d.attempt, percent, message)
	}

	timeout := t.Options.Timeout
	if timeout <= 0 {
		timeout = s.config.TaskTimeout
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finishDispatch(d)

		transcript, err := runExecutor(d.ctx, s.executor, t, timeout, onProgress)
		if d.stale() {
			logger.Debug("discarding result of abandoned dispatch")
			return
		}

		if err == nil && t.Options.PostProcess && s.postProcessor != nil {
			transcript, err = s.postProcess(d.ctx, transcript)
		}

		if err != nil {
			s.handleFailure(t, d.attempt, err, logger)
			return
		}

		if _, err := s.registry.Transition(t.ID, domain.TaskStatusCompleted, TransitionPayload{
			Attempt:    d.attempt,
			Transcript: transcript,
			Message:    "transcription complete",
		}); err != nil {
			logger.Warn("could not record completion", "error", err)
			return
		}
		logger.Info("task completed", "segments", len(transcript.Segments))
	}()
}

func (s *Scheduler) postProcess(ctx context.Context, transcript *domain.Transcript) (out *domain.Transcript, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: post-processing panic: %v", domain.ErrExecutorFailure, r)
		}
	}()
	out, err = s.postProcessor.Process(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: post-processing: %w", domain.ErrExecutorFailure, err)
	}
	if out == nil {
		out = transcript
	}
	return out, nil
}

// handleFailure records a failed attempt and, if the task has retries left,
// schedules its re-queue after the backoff delay.
func (s *Scheduler) handleFailure(t domain.Task, attempt int, cause error, logger *slog.Logger) {
	if !s.retry.ShouldRetry(t) {
		if _, err := s.registry.Transition(t.ID, domain.TaskStatusFailed, TransitionPayload{
			Attempt: attempt,
			Error:   cause.Error(),
		}); err != nil {
			logger.Warn("could not record failure", "error", err)
			return
		}
		logger.Error("task failed", "error", cause, "retry_count", t.RetryCount)
		return
	}

	delay := s.retry.Delay(t.RetryCount + 1)
	next := time.Now().Add(delay).UTC()
	if _, err := s.registry.Transition(t.ID, domain.TaskStatusFailed, TransitionPayload{
		Attempt:     attempt,
		Error:       cause.Error(),
		CountRetry:  true,
		NextRetryAt: &next,
	}); err != nil {
		logger.Warn("could not record failure", "error", err)
		return
	}

	logger.Warn("task failed, retry scheduled",
		"error", cause,
		"retry", t.RetryCount+1,
		"delay", delay)

	if !s.retry.Schedule(t.ID, delay, func() { s.requeue(t.ID) }) {
		if _, err := s.registry.ClearRetry(t.ID); err != nil {
			logger.Debug("could not clear retry after shutdown", "error", err)
		}
	}
}

// requeue is the retry timer callback. It only acts if the task is still
// failed and its retry has not been withdrawn.
func (s *Scheduler) requeue(id uuid.UUID) {
	if _, err := s.registry.Transition(id, domain.TaskStatusQueued, TransitionPayload{
		ExpectFrom:          domain.TaskStatusFailed,
		RequirePendingRetry: true,
		Message:             "retrying",
	}); err != nil {
		s.logger.Debug("retry no longer applicable", "task_id", id, "error", err)
		return
	}
	s.trigger()
}

// stopDispatch abandons the in-flight executor call for id, if any, and
// frees its slot.
func (s *Scheduler) stopDispatch(id uuid.UUID) {
	s.mu.Lock()
	d, ok := s.inflight[id]
	if ok {
		delete(s.inflight, id)
	}
	s.mu.Unlock()
	if ok {
		d.stop()
	}
}

func (s *Scheduler) finishDispatch(d *dispatch) {
	s.mu.Lock()
	if s.inflight[d.taskID] == d {
		delete(s.inflight, d.taskID)
	}
	s.mu.Unlock()
	d.stop()
	s.trigger()
}

// InFlight returns the number of slots currently held by executor calls.
func (s *Scheduler) InFlight() int {
	return s.limiter.InFlight()
}
