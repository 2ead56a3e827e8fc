package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// gatedExecutor blocks every call until released and records the order in
// which files were started.
type gatedExecutor struct {
	mu      sync.Mutex
	order   []string
	started chan string
	release chan struct{}
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{
		started: make(chan string, 100),
		release: make(chan struct{}),
	}
}

func (g *gatedExecutor) Transcribe(
	ctx context.Context,
	fileID, _ string,
	onProgress ProgressFunc,
) (*domain.Transcript, error) {
	g.mu.Lock()
	g.order = append(g.order, fileID)
	g.mu.Unlock()
	g.started <- fileID
	onProgress(10, "started")
	select {
	case <-g.release:
		return &domain.Transcript{Text: "text for " + fileID, Language: "en"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedExecutor) Order() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

func succeed(_ context.Context, fileID, _ string, _ ProgressFunc) (*domain.Transcript, error) {
	return &domain.Transcript{
		Text:     "transcript of " + fileID,
		Segments: []domain.Segment{{Start: 0, End: 1, Text: "transcript"}},
		Language: "en",
	}, nil
}

func newTestScheduler(t *testing.T, exec Executor, mutate func(*SchedulerConfig)) (*Scheduler, *events.Bus) {
	t.Helper()
	cfg := DefaultSchedulerConfig()
	cfg.Backoff = []time.Duration{10 * time.Millisecond}
	if mutate != nil {
		mutate(&cfg)
	}
	bus := events.NewBus(setupTestLogger())
	s := NewScheduler(exec, bus, cfg, setupTestLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, bus
}

func submit(t *testing.T, s *Scheduler, fileID string, mutate func(*domain.TaskOptions)) domain.Task {
	t.Helper()
	opts := s.DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	task, err := s.Submit(context.Background(), SubmitRequest{
		FileID:   fileID,
		FileName: fileID + ".wav",
		FileSize: 1024,
		Options:  opts,
	})
	require.NoError(t, err)
	return task
}

func statusOf(s *Scheduler, id uuid.UUID) domain.TaskStatus {
	task, err := s.Get(id)
	if err != nil {
		return ""
	}
	return task.Status
}

func finalFailure(s *Scheduler, id uuid.UUID) bool {
	task, err := s.Get(id)
	return err == nil && task.Status == domain.TaskStatusFailed && task.NextRetryAt == nil
}

func TestScheduler_Submit(t *testing.T) {
	t.Run("completes a task and publishes its transcript", func(t *testing.T) {
		s, bus := newTestScheduler(t, ExecutorFunc(succeed), nil)
		completed, unsub := bus.SubscribeChan(4, events.KindTaskCompleted)
		defer unsub()
		require.NoError(t, s.Start())

		task := submit(t, s, "file-1", nil)
		assert.Equal(t, domain.TaskStatusQueued, task.Status)

		select {
		case e := <-completed:
			require.NotNil(t, e.Transcript)
			assert.Equal(t, "transcript of file-1", e.Transcript.Text)
			assert.Equal(t, task.ID, e.Task.ID)
		case <-time.After(waitFor):
			t.Fatal("no task_completed event")
		}

		done, err := s.Get(task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, done.Status)
		assert.Equal(t, float64(100), done.Progress.Percent)
		require.NotNil(t, done.Progress.Result)
		assert.Equal(t, 1, done.Progress.Result.SegmentCount)
		assert.Equal(t, 0, done.RetryCount)
	})

	t.Run("duplicate file is rejected while active", func(t *testing.T) {
		s, _ := newTestScheduler(t, newGatedExecutor(), nil)
		first := submit(t, s, "file-1", nil)

		_, err := s.Submit(context.Background(), SubmitRequest{FileID: "file-1", Options: s.DefaultOptions()})
		assert.ErrorIs(t, err, domain.ErrDuplicateTask)
		assert.True(t, domain.IsCallerError(err))

		_, err = s.Cancel(first.ID)
		require.NoError(t, err)
		second := submit(t, s, "file-1", nil)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("auto start disabled keeps task idle", func(t *testing.T) {
		s, _ := newTestScheduler(t, ExecutorFunc(succeed), nil)
		require.NoError(t, s.Start())

		task := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.AutoStart = false })
		assert.Equal(t, domain.TaskStatusIdle, task.Status)

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, domain.TaskStatusIdle, statusOf(s, task.ID))

		_, err := s.StartTask(task.ID)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return statusOf(s, task.ID) == domain.TaskStatusCompleted
		}, waitFor, tick)

		_, err = s.StartTask(task.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("cancelled context", func(t *testing.T) {
		s, _ := newTestScheduler(t, ExecutorFunc(succeed), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Submit(ctx, SubmitRequest{FileID: "file-1", Options: s.DefaultOptions()})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestScheduler_PriorityOrder(t *testing.T) {
	exec := newGatedExecutor()
	close(exec.release)
	s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 1 })

	low := submit(t, s, "low", func(o *domain.TaskOptions) { o.Priority = domain.PriorityLow })
	submit(t, s, "urgent", func(o *domain.TaskOptions) { o.Priority = domain.PriorityUrgent })
	submit(t, s, "normal", func(o *domain.TaskOptions) { o.Priority = domain.PriorityNormal })

	state := s.State()
	require.Len(t, state.Queued, 3)
	assert.Equal(t, "urgent", state.Queued[0].SourceFileID)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return statusOf(s, low.ID) == domain.TaskStatusCompleted
	}, waitFor, tick)

	assert.Equal(t, []string{"urgent", "normal", "low"}, exec.Order())
}

func TestScheduler_HigherPriorityTakesNextSlot(t *testing.T) {
	exec := newGatedExecutor()
	s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 1 })
	require.NoError(t, s.Start())

	submit(t, s, "running", nil)
	require.Equal(t, "running", <-exec.started)

	a := submit(t, s, "A", func(o *domain.TaskOptions) { o.Priority = domain.PriorityNormal })
	b := submit(t, s, "B", func(o *domain.TaskOptions) { o.Priority = domain.PriorityHigh })

	exec.release <- struct{}{}
	assert.Equal(t, "B", <-exec.started)
	assert.Equal(t, domain.TaskStatusQueued, statusOf(s, a.ID))
	assert.Equal(t, domain.TaskStatusProcessing, statusOf(s, b.ID))

	close(exec.release)
	require.Eventually(t, func() bool {
		return statusOf(s, a.ID) == domain.TaskStatusCompleted
	}, waitFor, tick)
}

func TestScheduler_ConcurrencyCeiling(t *testing.T) {
	var running, peak atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, fileID, lang string, p ProgressFunc) (*domain.Transcript, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		running.Add(-1)
		return succeed(ctx, fileID, lang, p)
	})
	s, bus := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 3 })

	var violations atomic.Int32
	bus.Subscribe(events.KindQueueUpdated, func(e events.Event) {
		if e.State.CurrentConcurrency > e.State.MaxConcurrency {
			violations.Add(1)
		}
	})
	require.NoError(t, s.Start())

	var ids []uuid.UUID
	for i := 0; i < 12; i++ {
		ids = append(ids, submit(t, s, fmt.Sprintf("file-%d", i), nil).ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if statusOf(s, id) != domain.TaskStatusCompleted {
				return false
			}
		}
		return true
	}, waitFor, tick)

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(0), violations.Load())
	require.Eventually(t, func() bool { return s.InFlight() == 0 }, waitFor, tick)

	state := s.State()
	assert.Equal(t, 12, state.Stats.SuccessCount)
	assert.Equal(t, 12, state.Stats.TotalProcessed)
	assert.GreaterOrEqual(t, state.Stats.AverageProcessingSeconds, 0.0)
}

func TestScheduler_Retry(t *testing.T) {
	t.Run("exhausted retries end in failure", func(t *testing.T) {
		var calls atomic.Int32
		exec := ExecutorFunc(func(context.Context, string, string, ProgressFunc) (*domain.Transcript, error) {
			calls.Add(1)
			return nil, errors.New("service unavailable")
		})
		s, bus := newTestScheduler(t, exec, nil)
		failed, unsub := bus.SubscribeChan(10, events.KindTaskFailed)
		defer unsub()
		require.NoError(t, s.Start())

		task := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.MaxRetries = 2 })

		require.Eventually(t, func() bool { return finalFailure(s, task.ID) }, waitFor, tick)
		final, err := s.Get(task.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, final.RetryCount)
		assert.Equal(t, int32(3), calls.Load())
		assert.Contains(t, final.Progress.Error, "service unavailable")

		var retrying []bool
		for i := 0; i < 3; i++ {
			select {
			case e := <-failed:
				retrying = append(retrying, e.Retrying)
			case <-time.After(waitFor):
				t.Fatal("missing task_failed event")
			}
		}
		assert.Equal(t, []bool{true, true, false}, retrying)
		assert.Equal(t, 1, s.State().Stats.FailureCount)
	})

	t.Run("fails once then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		exec := ExecutorFunc(func(ctx context.Context, fileID, lang string, p ProgressFunc) (*domain.Transcript, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			return succeed(ctx, fileID, lang, p)
		})
		s, _ := newTestScheduler(t, exec, nil)
		require.NoError(t, s.Start())

		task := submit(t, s, "file-1", nil)

		require.Eventually(t, func() bool {
			return statusOf(s, task.ID) == domain.TaskStatusCompleted
		}, waitFor, tick)
		final, _ := s.Get(task.ID)
		assert.Equal(t, 1, final.RetryCount)
		assert.Equal(t, 2, final.Attempts)
		assert.Empty(t, final.Progress.Error)
	})

	t.Run("backoff follows the table", func(t *testing.T) {
		var mu sync.Mutex
		var callTimes []time.Time
		exec := ExecutorFunc(func(context.Context, string, string, ProgressFunc) (*domain.Transcript, error) {
			mu.Lock()
			callTimes = append(callTimes, time.Now())
			mu.Unlock()
			return nil, errors.New("still failing")
		})
		s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) {
			c.Backoff = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}
		})
		require.NoError(t, s.Start())

		task := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.MaxRetries = 2 })

		require.Eventually(t, func() bool { return finalFailure(s, task.ID) }, 3*waitFor, tick)
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, callTimes, 3)
		assert.GreaterOrEqual(t, callTimes[1].Sub(callTimes[0]), 100*time.Millisecond)
		assert.GreaterOrEqual(t, callTimes[2].Sub(callTimes[1]), 300*time.Millisecond)
	})

	t.Run("no retries when disabled", func(t *testing.T) {
		var calls atomic.Int32
		exec := ExecutorFunc(func(context.Context, string, string, ProgressFunc) (*domain.Transcript, error) {
			calls.Add(1)
			return nil, errors.New("bad audio")
		})
		s, _ := newTestScheduler(t, exec, nil)
		require.NoError(t, s.Start())

		task := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.MaxRetries = 0 })

		require.Eventually(t, func() bool { return finalFailure(s, task.ID) }, waitFor, tick)
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("manual retry bypasses the limit", func(t *testing.T) {
		var calls atomic.Int32
		exec := ExecutorFunc(func(ctx context.Context, fileID, lang string, p ProgressFunc) (*domain.Transcript, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("bad audio")
			}
			return succeed(ctx, fileID, lang, p)
		})
		s, _ := newTestScheduler(t, exec, nil)
		require.NoError(t, s.Start())
		task := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.MaxRetries = 0 })
		require.Eventually(t, func() bool { return finalFailure(s, task.ID) }, waitFor, tick)

		requeued, err := s.Retry(task.ID)
		require.NoError(t, err)
		assert.Empty(t, requeued.Progress.Error)

		require.Eventually(t, func() bool {
			return statusOf(s, task.ID) == domain.TaskStatusCompleted
		}, waitFor, tick)
		final, _ := s.Get(task.ID)
		assert.Equal(t, 0, final.RetryCount)

		_, err = s.Retry(task.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("manual retry refused while the file has a newer active task", func(t *testing.T) {
		exec := ExecutorFunc(func(context.Context, string, string, ProgressFunc) (*domain.Transcript, error) {
			return nil, errors.New("bad audio")
		})
		s, _ := newTestScheduler(t, exec, nil)
		require.NoError(t, s.Start())
		first := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.MaxRetries = 0 })
		require.Eventually(t, func() bool { return finalFailure(s, first.ID) }, waitFor, tick)
		second := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.AutoStart = false })

		_, err := s.Retry(first.ID)

		require.ErrorIs(t, err, domain.ErrDuplicateTask)
		assert.Equal(t, domain.TaskStatusFailed, statusOf(s, first.ID))
		assert.Equal(t, domain.TaskStatusIdle, statusOf(s, second.ID))
		latest, err := s.GetByFileID("file-1")
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
	})

	t.Run("cancelling a pending retry stops the requeue", func(t *testing.T) {
		var calls atomic.Int32
		exec := ExecutorFunc(func(context.Context, string, string, ProgressFunc) (*domain.Transcript, error) {
			calls.Add(1)
			return nil, errors.New("flaky")
		})
		s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) {
			c.Backoff = []time.Duration{100 * time.Millisecond}
		})
		require.NoError(t, s.Start())
		task := submit(t, s, "file-1", nil)
		require.Eventually(t, func() bool {
			got, err := s.Get(task.ID)
			return err == nil && got.NextRetryAt != nil
		}, waitFor, tick)

		cancelled, err := s.Cancel(task.ID)

		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, cancelled.Status)
		assert.Nil(t, cancelled.NextRetryAt)
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, domain.TaskStatusFailed, statusOf(s, task.ID))
	})

	t.Run("removing a task with a pending retry stops the requeue", func(t *testing.T) {
		var calls atomic.Int32
		exec := ExecutorFunc(func(context.Context, string, string, ProgressFunc) (*domain.Transcript, error) {
			calls.Add(1)
			return nil, errors.New("flaky")
		})
		s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) {
			c.Backoff = []time.Duration{100 * time.Millisecond}
		})
		require.NoError(t, s.Start())
		task := submit(t, s, "file-1", nil)
		require.Eventually(t, func() bool {
			got, err := s.Get(task.ID)
			return err == nil && got.NextRetryAt != nil
		}, waitFor, tick)

		_, err := s.Remove(task.ID)
		require.NoError(t, err)

		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, int32(1), calls.Load())
		_, err = s.Get(task.ID)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestScheduler_Timeout(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, _, _ string, _ ProgressFunc) (*domain.Transcript, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s, _ := newTestScheduler(t, exec, nil)
	require.NoError(t, s.Start())

	task := submit(t, s, "file-1", func(o *domain.TaskOptions) {
		o.Timeout = 20 * time.Millisecond
		o.MaxRetries = 0
	})

	require.Eventually(t, func() bool { return finalFailure(s, task.ID) }, waitFor, tick)
	final, _ := s.Get(task.ID)
	assert.Contains(t, final.Progress.Error, domain.ErrTimeoutExceeded.Error())
}

func TestScheduler_ExecutorPanic(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, string, string, ProgressFunc) (*domain.Transcript, error) {
		panic("nil pointer in codec")
	})
	s, _ := newTestScheduler(t, exec, nil)
	require.NoError(t, s.Start())

	task := submit(t, s, "file-1", func(o *domain.TaskOptions) { o.MaxRetries = 0 })

	require.Eventually(t, func() bool { return finalFailure(s, task.ID) }, waitFor, tick)
	final, _ := s.Get(task.ID)
	assert.Contains(t, final.Progress.Error, "nil pointer in codec")
	require.Eventually(t, func() bool { return s.InFlight() == 0 }, waitFor, tick)
}

func TestScheduler_Cancel(t *testing.T) {
	t.Run("queued task is never dispatched", func(t *testing.T) {
		exec := newGatedExecutor()
		s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 1 })
		require.NoError(t, s.Start())

		first := submit(t, s, "first", nil)
		require.Equal(t, "first", <-exec.started)
		queued := submit(t, s, "queued", nil)

		cancelled, err := s.Cancel(queued.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCancelled, cancelled.Status)

		close(exec.release)
		require.Eventually(t, func() bool {
			return statusOf(s, first.ID) == domain.TaskStatusCompleted
		}, waitFor, tick)
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, []string{"first"}, exec.Order())
	})

	t.Run("processing task frees exactly one slot", func(t *testing.T) {
		exec := newGatedExecutor()
		s, bus := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 2 })
		cancelledEvents, unsub := bus.SubscribeChan(4, events.KindTaskCancelled)
		defer unsub()
		require.NoError(t, s.Start())

		a := submit(t, s, "a", nil)
		b := submit(t, s, "b", nil)
		<-exec.started
		<-exec.started
		c := submit(t, s, "c", nil)
		assert.Equal(t, 2, s.InFlight())

		_, err := s.Cancel(a.ID)
		require.NoError(t, err)
		_, err = s.Cancel(a.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		assert.Equal(t, "c", <-exec.started)
		assert.Equal(t, domain.TaskStatusProcessing, statusOf(s, b.ID))
		assert.Equal(t, domain.TaskStatusProcessing, statusOf(s, c.ID))
		assert.Equal(t, 2, s.InFlight())

		select {
		case e := <-cancelledEvents:
			assert.Equal(t, a.ID, e.Task.ID)
		case <-time.After(waitFor):
			t.Fatal("no task_cancelled event")
		}

		close(exec.release)
		require.Eventually(t, func() bool {
			return statusOf(s, b.ID) == domain.TaskStatusCompleted &&
				statusOf(s, c.ID) == domain.TaskStatusCompleted
		}, waitFor, tick)
		assert.Equal(t, domain.TaskStatusCancelled, statusOf(s, a.ID))
		require.Eventually(t, func() bool { return s.InFlight() == 0 }, waitFor, tick)
	})

	t.Run("unknown task", func(t *testing.T) {
		s, _ := newTestScheduler(t, ExecutorFunc(succeed), nil)
		_, err := s.Cancel(uuid.New())
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestScheduler_PauseResume(t *testing.T) {
	exec := newGatedExecutor()
	s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 1 })
	require.NoError(t, s.Start())

	task := submit(t, s, "file-1", nil)
	<-exec.started
	other := submit(t, s, "file-2", nil)

	paused, err := s.Pause(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPaused, paused.Status)
	assert.Equal(t, "file-2", <-exec.started, "pausing frees the slot")

	_, err = s.Pause(task.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	resumed, err := s.Resume(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, resumed.Status)
	assert.Equal(t, float64(0), resumed.Progress.Percent)

	close(exec.release)
	require.Eventually(t, func() bool {
		return statusOf(s, task.ID) == domain.TaskStatusCompleted &&
			statusOf(s, other.ID) == domain.TaskStatusCompleted
	}, waitFor, tick)
	final, _ := s.Get(task.ID)
	assert.Equal(t, 2, final.Attempts)

	_, err = s.Pause(task.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestScheduler_RemoveAndClear(t *testing.T) {
	exec := newGatedExecutor()
	s, _ := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 1 })
	require.NoError(t, s.Start())

	running := submit(t, s, "running", nil)
	<-exec.started

	_, err := s.Remove(running.ID)
	assert.ErrorIs(t, err, domain.ErrTaskInProgress)

	close(exec.release)
	require.Eventually(t, func() bool {
		return statusOf(s, running.ID) == domain.TaskStatusCompleted
	}, waitFor, tick)
	idle := submit(t, s, "idle", func(o *domain.TaskOptions) { o.AutoStart = false })

	assert.Equal(t, 1, s.ClearFinished())
	_, err = s.Get(running.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Len(t, s.List(), 1)

	_, err = s.Remove(idle.ID)
	require.NoError(t, err)
	assert.Empty(t, s.List())
}

func TestScheduler_SetMaxConcurrency(t *testing.T) {
	exec := newGatedExecutor()
	s, bus := newTestScheduler(t, exec, func(c *SchedulerConfig) { c.MaxConcurrency = 1 })
	updates, unsub := bus.SubscribeChan(64, events.KindQueueUpdated)
	defer unsub()
	require.NoError(t, s.Start())

	submit(t, s, "a", nil)
	submit(t, s, "b", nil)
	<-exec.started

	err := s.SetMaxConcurrency(0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, s.SetMaxConcurrency(2))
	assert.Equal(t, "b", <-exec.started)
	assert.Equal(t, 2, s.MaxConcurrency())

	sawMax := false
	for len(updates) > 0 {
		e := <-updates
		if e.State.MaxConcurrency == 2 {
			sawMax = true
		}
	}
	assert.True(t, sawMax)
	close(exec.release)
}

func TestScheduler_QueueUpdatedSeq(t *testing.T) {
	s, bus := newTestScheduler(t, newGatedExecutor(), nil)
	received, unsub := bus.SubscribeChan(16, events.KindTaskAdded, events.KindQueueUpdated)
	defer unsub()

	submit(t, s, "a", func(o *domain.TaskOptions) { o.AutoStart = false })
	require.NoError(t, s.SetMaxConcurrency(4))

	require.Len(t, received, 3)
	added := <-received
	first := <-received
	second := <-received
	assert.Equal(t, events.KindTaskAdded, added.Kind)
	assert.Equal(t, events.KindQueueUpdated, first.Kind)
	assert.Equal(t, added.Seq, first.Seq)
	assert.Greater(t, second.Seq, first.Seq)
	assert.Equal(t, 4, second.State.MaxConcurrency)
}

func TestScheduler_ProgressEvents(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, fileID, lang string, p ProgressFunc) (*domain.Transcript, error) {
		p(30, "uploading")
		p(20, "out of order")
		p(250, "overshoot")
		return succeed(ctx, fileID, lang, p)
	})
	s, bus := newTestScheduler(t, exec, nil)
	progress, unsub := bus.SubscribeChan(16, events.KindTaskProgress)
	defer unsub()
	require.NoError(t, s.Start())

	task := submit(t, s, "file-1", nil)
	require.Eventually(t, func() bool {
		return statusOf(s, task.ID) == domain.TaskStatusCompleted
	}, waitFor, tick)

	var percents []float64
	for len(progress) > 0 {
		percents = append(percents, (<-progress).Percent)
	}
	assert.Equal(t, []float64{30, 20, 100}, percents)
}

type upperCaser struct{}

func (upperCaser) Process(_ context.Context, tr *domain.Transcript) (*domain.Transcript, error) {
	out := *tr
	out.Text = strings.ToUpper(tr.Text)
	return &out, nil
}

func TestScheduler_PostProcess(t *testing.T) {
	s, bus := newTestScheduler(t, ExecutorFunc(succeed), nil)
	s.SetPostProcessor(upperCaser{})
	completed, unsub := bus.SubscribeChan(4, events.KindTaskCompleted)
	defer unsub()
	require.NoError(t, s.Start())

	submit(t, s, "plain", nil)
	submit(t, s, "processed", func(o *domain.TaskOptions) { o.PostProcess = true })

	texts := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-completed:
			texts[e.Task.SourceFileID] = e.Transcript.Text
		case <-time.After(waitFor):
			t.Fatal("missing completion")
		}
	}
	assert.Equal(t, "transcript of plain", texts["plain"])
	assert.Equal(t, "TRANSCRIPT OF PROCESSED", texts["processed"])
}

func TestScheduler_StartStop(t *testing.T) {
	exec := newGatedExecutor()
	s, _ := newTestScheduler(t, exec, nil)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	task := submit(t, s, "file-1", nil)
	<-exec.started

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.Equal(t, 0, s.InFlight())
	assert.Equal(t, domain.TaskStatusProcessing, statusOf(s, task.ID), "abandoned tasks are not recovered")
	assert.Error(t, s.Start())
}
