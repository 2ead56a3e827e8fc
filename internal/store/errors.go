package store

import (
	"errors"
	"fmt"
)

// Errors shared by every TranscriptStore implementation. Backends wrap them
// with detail, so compare with errors.Is.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate means a write collided with a unique key.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity means a record was rejected before or by the backend.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTranscriptNotFound is ErrNotFound for transcript lookups.
	ErrTranscriptNotFound = fmt.Errorf("%w: transcript", ErrNotFound)
)

// IsNotFoundError reports whether err is, or wraps, ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
