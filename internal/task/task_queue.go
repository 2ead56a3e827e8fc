package task

import (
	"sort"

	"github.com/phrazzld/scribe/internal/domain"
)

// PriorityQueue is the ordered view of the registry's Queued tasks.
// It holds no state of its own; every call re-reads the registry and sorts,
// so the order can never drift from task state.
type PriorityQueue struct {
	registry *Registry
}

// NewPriorityQueue creates a queue view over registry.
func NewPriorityQueue(registry *Registry) *PriorityQueue {
	return &PriorityQueue{registry: registry}
}

// Pending returns all queued tasks in dispatch order.
func (q *PriorityQueue) Pending() []domain.Task {
	queued := q.registry.ListByStatus(domain.TaskStatusQueued)
	OrderQueued(queued)
	return queued
}

// Next returns at most n queued tasks in dispatch order.
func (q *PriorityQueue) Next(n int) []domain.Task {
	if n <= 0 {
		return nil
	}
	pending := q.Pending()
	if len(pending) > n {
		pending = pending[:n]
	}
	return pending
}

// Len returns the number of queued tasks.
func (q *PriorityQueue) Len() int {
	return q.registry.CountByStatus(domain.TaskStatusQueued)
}

// OrderQueued sorts tasks by priority tier, then creation time, then
// submission sequence.
func OrderQueued(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if !a.Progress.CreatedAt.Equal(b.Progress.CreatedAt) {
			return a.Progress.CreatedAt.Before(b.Progress.CreatedAt)
		}
		return a.Sequence < b.Sequence
	})
}
