// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts the HTTP surface to the scheduler and
// the application services: uploads, task submission and control, queue
// inspection, stored transcripts, and a server-sent event stream of task
// lifecycle events.
package api
