package events

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe channel keyed by event kind.
// Handlers run synchronously in subscription order. A handler that panics is
// logged and skipped; the remaining handlers still run.
//
// Delivery follows Publish call order only. Events from concurrent mutations
// can arrive out of mutation order, so subscribers that keep state compare
// Event.Seq and ignore an event older than the last one applied for the same
// task. queue_updated carries the Seq of the state it projects.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Kind][]subscription
	logger   *slog.Logger
}

// NewBus creates a new Bus with no subscribers.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]subscription),
		logger:   logger.With("component", "event_bus"),
	}
}

// Subscribe registers handler for events of the given kind and returns a
// function that removes it. Calling the returned function more than once is
// harmless.
func (b *Bus) Subscribe(kind Kind, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], subscription{id: id, handler: handler})
	count := len(b.handlers[kind])
	b.mu.Unlock()

	b.logger.Debug("registered event handler", "kind", kind, "handler_count", count)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(kind, id) })
	}
}

// SubscribeChan delivers events of the given kinds on a buffered channel.
// Delivery never blocks the publisher: when the buffer is full the event is
// dropped for this subscriber. The returned function unsubscribes and closes
// the channel.
func (b *Bus) SubscribeChan(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	if len(kinds) == 0 {
		kinds = Kinds()
	}

	ch := make(chan Event, buffer)
	var mu sync.Mutex
	closed := false

	send := func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping event for slow channel subscriber",
				"kind", event.Kind,
				"event_id", event.ID)
		}
	}

	unsubs := make([]func(), 0, len(kinds))
	for _, kind := range kinds {
		unsubs = append(unsubs, b.Subscribe(kind, send))
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			for _, unsub := range unsubs {
				unsub()
			}
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// Publish calls every current subscriber of event.Kind once.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[event.Kind]))
	copy(subs, b.handlers[event.Kind])
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	for i, sub := range subs {
		if err := b.invoke(sub.handler, event); err != nil {
			b.logger.Error("event handler failed",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"kind", event.Kind)
		}
	}
}

// SubscriberCount returns the number of handlers registered for kind.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

func (b *Bus) invoke(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	handler(event)
	return nil
}

func (b *Bus) unsubscribe(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[kind]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[kind]) == 0 {
		delete(b.handlers, kind)
	}
}

// Ensure Bus implements Publisher
var _ Publisher = (*Bus)(nil)
