package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryController_Delay(t *testing.T) {
	c := NewRetryController([]time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}, setupTestLogger())

	assert.Equal(t, 2*time.Second, c.Delay(1))
	assert.Equal(t, 5*time.Second, c.Delay(2))
	assert.Equal(t, 10*time.Second, c.Delay(3))
	assert.Equal(t, 10*time.Second, c.Delay(7), "past the end of the table reuses the last delay")
	assert.Equal(t, 2*time.Second, c.Delay(0))

	empty := NewRetryController(nil, setupTestLogger())
	assert.Equal(t, time.Duration(0), empty.Delay(1))
}

func TestRetryController_ShouldRetry(t *testing.T) {
	c := NewRetryController(nil, setupTestLogger())
	task := domain.Task{Options: domain.TaskOptions{MaxRetries: 2}}

	assert.True(t, c.ShouldRetry(task))
	task.RetryCount = 2
	assert.False(t, c.ShouldRetry(task))

	task = domain.Task{Options: domain.TaskOptions{MaxRetries: 0}}
	assert.False(t, c.ShouldRetry(task))
}

func TestRetryController_Schedule(t *testing.T) {
	t.Run("fires once after delay", func(t *testing.T) {
		c := NewRetryController(nil, setupTestLogger())
		var fired atomic.Int32
		start := time.Now()
		var firedAt atomic.Int64

		require.True(t, c.Schedule(uuid.New(), 30*time.Millisecond, func() {
			firedAt.Store(int64(time.Since(start)))
			fired.Add(1)
		}))

		require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
		assert.GreaterOrEqual(t, time.Duration(firedAt.Load()), 30*time.Millisecond)
		assert.Equal(t, 0, c.Pending())
	})

	t.Run("cancel prevents firing", func(t *testing.T) {
		c := NewRetryController(nil, setupTestLogger())
		id := uuid.New()
		var fired atomic.Int32
		c.Schedule(id, 20*time.Millisecond, func() { fired.Add(1) })

		assert.True(t, c.Cancel(id))
		assert.False(t, c.Cancel(id))

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, int32(0), fired.Load())
	})

	t.Run("rescheduling replaces the pending timer", func(t *testing.T) {
		c := NewRetryController(nil, setupTestLogger())
		id := uuid.New()
		var first, second atomic.Int32
		c.Schedule(id, 20*time.Millisecond, func() { first.Add(1) })
		c.Schedule(id, 20*time.Millisecond, func() { second.Add(1) })

		require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(0), first.Load())
		assert.Equal(t, 0, c.Pending())
	})

	t.Run("stop drops timers and refuses new ones", func(t *testing.T) {
		c := NewRetryController(nil, setupTestLogger())
		var fired atomic.Int32
		c.Schedule(uuid.New(), 20*time.Millisecond, func() { fired.Add(1) })

		c.Stop()

		assert.False(t, c.Schedule(uuid.New(), time.Millisecond, func() { fired.Add(1) }))
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, int32(0), fired.Load())
		assert.Equal(t, 0, c.Pending())
	})
}
