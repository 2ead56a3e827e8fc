// Package logger sets up the service's log/slog JSON logger and carries
// request-scoped loggers through contexts.
//
// Handlers store a logger annotated with the request's trace ID via
// WithContext; deeper layers retrieve it with FromContext, or with
// FromContextOrDefault to fall back to their own component logger.
package logger
