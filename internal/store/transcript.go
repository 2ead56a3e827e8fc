package store

import (
	"context"

	"github.com/phrazzld/scribe/internal/domain"
)

// TranscriptStore defines the interface for persisting completed transcripts.
type TranscriptStore interface {
	// Save inserts the record or replaces the one stored for the same
	// source file. CreatedAt is kept from the first save; UpdatedAt is set
	// on every save. Returns ErrInvalidEntity if the record is invalid.
	Save(ctx context.Context, record *domain.TranscriptRecord) error

	// GetBySourceFileID retrieves the transcript produced from a file.
	// Returns ErrTranscriptNotFound if none is stored.
	GetBySourceFileID(ctx context.Context, sourceFileID string) (*domain.TranscriptRecord, error)

	// List returns stored transcripts, most recently updated first.
	List(ctx context.Context, limit, offset int) ([]*domain.TranscriptRecord, error)

	// Delete removes the transcript for a source file.
	// Returns ErrTranscriptNotFound if none is stored.
	Delete(ctx context.Context, sourceFileID string) error
}
