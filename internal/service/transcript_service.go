package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/store"
)

// TranscriptService reads mirrored transcripts.
type TranscriptService interface {
	// GetTranscript returns the transcript stored for a source file.
	// Returns ErrTranscriptNotFound if none has been stored.
	GetTranscript(ctx context.Context, sourceFileID string) (*domain.TranscriptRecord, error)

	// ListTranscripts returns stored transcripts, most recent first.
	ListTranscripts(ctx context.Context, limit, offset int) ([]*domain.TranscriptRecord, error)
}

type transcriptServiceImpl struct {
	store  store.TranscriptStore
	logger *slog.Logger
}

// NewTranscriptService creates a TranscriptService backed by s.
func NewTranscriptService(s store.TranscriptStore, logger *slog.Logger) (TranscriptService, error) {
	if s == nil {
		return nil, errors.New("transcript store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &transcriptServiceImpl{
		store:  s,
		logger: logger.With("component", "transcript_service"),
	}, nil
}

// GetTranscript implements TranscriptService.
func (s *transcriptServiceImpl) GetTranscript(
	ctx context.Context,
	sourceFileID string,
) (*domain.TranscriptRecord, error) {
	record, err := s.store.GetBySourceFileID(ctx, sourceFileID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, NewServiceError("get_transcript", "no transcript for file "+sourceFileID, ErrTranscriptNotFound)
		}
		s.logger.ErrorContext(ctx, "failed to load transcript", "file_id", sourceFileID, "error", err)
		return nil, NewServiceError("get_transcript", "failed to load transcript", err)
	}
	return record, nil
}

// ListTranscripts implements TranscriptService.
func (s *transcriptServiceImpl) ListTranscripts(
	ctx context.Context,
	limit, offset int,
) ([]*domain.TranscriptRecord, error) {
	records, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, NewServiceError("list_transcripts", "failed to list transcripts", err)
	}
	return records, nil
}
