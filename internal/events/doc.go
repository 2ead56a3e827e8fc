// Package events provides the in-process event bus that broadcasts task
// lifecycle notifications.
//
// Publishers emit events without knowing who listens. Subscribers register a
// Handler per event Kind, or take a buffered channel for streaming consumers
// such as the server-sent events endpoint.
//
// The primary components are:
// - Event: a lifecycle notification with a task snapshot or queue projection
// - Bus: synchronous fan-out with per-handler panic isolation
// - Publisher: interface for components that only need to emit events
package events
