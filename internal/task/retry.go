package task

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/domain"
)

// RetryController decides whether a failed task is retried automatically and
// owns the timers that re-queue it. At most one timer exists per task.
type RetryController struct {
	mu      sync.Mutex
	backoff []time.Duration
	timers  map[uuid.UUID]*time.Timer
	stopped bool
	logger  *slog.Logger
}

// NewRetryController creates a controller using the given backoff table.
func NewRetryController(backoff []time.Duration, logger *slog.Logger) *RetryController {
	table := make([]time.Duration, len(backoff))
	copy(table, backoff)
	return &RetryController{
		backoff: table,
		timers:  make(map[uuid.UUID]*time.Timer),
		logger:  logger.With("component", "retry_controller"),
	}
}

// ShouldRetry reports whether t still has automatic retries left.
func (c *RetryController) ShouldRetry(t domain.Task) bool {
	return t.RetryCount < t.Options.MaxRetries
}

// Delay returns the wait before the retry with the given 1-based number.
// Numbers past the end of the table reuse its last entry; an empty table
// retries immediately.
func (c *RetryController) Delay(retryNumber int) time.Duration {
	if len(c.backoff) == 0 {
		return 0
	}
	i := retryNumber - 1
	if i < 0 {
		i = 0
	}
	if i >= len(c.backoff) {
		i = len(c.backoff) - 1
	}
	return c.backoff[i]
}

// Schedule runs fn for task id after delay, replacing any timer already
// pending for it. It reports false once the controller has been stopped.
func (c *RetryController) Schedule(id uuid.UUID, delay time.Duration, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	if existing, ok := c.timers[id]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		current, ok := c.timers[id]
		if !ok || current != timer {
			c.mu.Unlock()
			return
		}
		delete(c.timers, id)
		c.mu.Unlock()
		fn()
	})
	c.timers[id] = timer

	c.logger.Debug("retry scheduled", "task_id", id, "delay", delay)
	return true
}

// Cancel stops the pending timer for id. It reports whether one was pending.
func (c *RetryController) Cancel(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer, ok := c.timers[id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(c.timers, id)
	c.logger.Debug("retry cancelled", "task_id", id)
	return true
}

// Pending returns the number of scheduled retries.
func (c *RetryController) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels every pending timer and refuses new ones.
func (c *RetryController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
}
