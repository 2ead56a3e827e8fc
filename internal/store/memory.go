package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/scribe/internal/domain"
)

// MemoryTranscriptStore keeps transcripts in a map. It is safe for
// concurrent use and does not survive a restart.
type MemoryTranscriptStore struct {
	mu      sync.RWMutex
	records map[string]*domain.TranscriptRecord
	logger  *slog.Logger
}

// NewMemoryTranscriptStore creates an empty in-memory store.
func NewMemoryTranscriptStore(logger *slog.Logger) *MemoryTranscriptStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryTranscriptStore{
		records: make(map[string]*domain.TranscriptRecord),
		logger:  logger.With(slog.String("component", "transcript_store")),
	}
}

// Ensure MemoryTranscriptStore implements TranscriptStore
var _ TranscriptStore = (*MemoryTranscriptStore)(nil)

// Save implements TranscriptStore.Save.
func (s *MemoryTranscriptStore) Save(ctx context.Context, record *domain.TranscriptRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil transcript record", ErrInvalidEntity)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}

	now := time.Now().UTC()
	stored := copyRecord(record)
	stored.UpdatedAt = now

	s.mu.Lock()
	if prev, ok := s.records[record.SourceFileID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	s.records[record.SourceFileID] = stored
	s.mu.Unlock()

	record.CreatedAt = stored.CreatedAt
	record.UpdatedAt = stored.UpdatedAt

	s.logger.DebugContext(ctx, "transcript saved",
		slog.String("source_file_id", record.SourceFileID),
		slog.String("task_id", record.TaskID))
	return nil
}

// GetBySourceFileID implements TranscriptStore.GetBySourceFileID.
func (s *MemoryTranscriptStore) GetBySourceFileID(
	_ context.Context,
	sourceFileID string,
) (*domain.TranscriptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sourceFileID]
	if !ok {
		return nil, ErrTranscriptNotFound
	}
	return copyRecord(record), nil
}

// List implements TranscriptStore.List.
func (s *MemoryTranscriptStore) List(_ context.Context, limit, offset int) ([]*domain.TranscriptRecord, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidEntity)
	}

	s.mu.RLock()
	out := make([]*domain.TranscriptRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, copyRecord(r))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].SourceFileID < out[j].SourceFileID
	})

	if offset >= len(out) {
		return []*domain.TranscriptRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Delete implements TranscriptStore.Delete.
func (s *MemoryTranscriptStore) Delete(_ context.Context, sourceFileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[sourceFileID]; !ok {
		return ErrTranscriptNotFound
	}
	delete(s.records, sourceFileID)
	return nil
}

func copyRecord(r *domain.TranscriptRecord) *domain.TranscriptRecord {
	c := *r
	if r.Transcript.Segments != nil {
		c.Transcript.Segments = append([]domain.Segment(nil), r.Transcript.Segments...)
	}
	return &c
}
