// Package task schedules transcription tasks and tracks their lifecycle.
// A Scheduler owns a Registry (the single writer of task state), a
// PriorityQueue view over it, a Limiter that caps concurrent executor calls
// and a RetryController that re-queues failed tasks after a backoff delay.
// Every state change is announced on an events.Publisher.
package task
