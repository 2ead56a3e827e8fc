package task

import (
	"fmt"
	"sync"

	"github.com/phrazzld/scribe/internal/domain"
)

// Limiter caps the number of concurrently executing tasks. Capacity is
// handed out as Slots; a slot is returned by releasing it exactly once.
// The ceiling can change at runtime. Lowering it below the number of slots
// in use never revokes them; new slots are refused until enough are released.
type Limiter struct {
	mu       sync.Mutex
	max      int
	inFlight int
}

// Slot is one unit of concurrency capacity.
type Slot struct {
	once    sync.Once
	limiter *Limiter
}

// NewLimiter creates a limiter allowing max concurrent slots. Values below 1
// are raised to 1.
func NewLimiter(max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{max: max}
}

// TryAcquire takes a slot without blocking. It reports false when the
// limiter is at capacity.
func (l *Limiter) TryAcquire() (*Slot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight >= l.max {
		return nil, false
	}
	l.inFlight++
	return &Slot{limiter: l}, true
}

// Release returns the slot to its limiter. Further calls do nothing.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.limiter.mu.Lock()
		s.limiter.inFlight--
		s.limiter.mu.Unlock()
	})
}

// SetMax changes the ceiling. It rejects values below 1.
func (l *Limiter) SetMax(max int) error {
	if max < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1, got %d", domain.ErrValidation, max)
	}
	l.mu.Lock()
	l.max = max
	l.mu.Unlock()
	return nil
}

// Max returns the current ceiling.
func (l *Limiter) Max() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.max
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Available returns how many more slots can be acquired right now.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := l.max - l.inFlight; n > 0 {
		return n
	}
	return 0
}
