package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/platform/logger"
	"github.com/phrazzld/scribe/internal/store"
)

// transcriptRow is the database shape of a domain.TranscriptRecord.
type transcriptRow struct {
	SourceFileID    string    `db:"source_file_id"`
	TaskID          string    `db:"task_id"`
	FileName        string    `db:"file_name"`
	Text            string    `db:"text"`
	Language        string    `db:"language"`
	DurationSeconds float64   `db:"duration_seconds"`
	Segments        []byte    `db:"segments"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *transcriptRow) toDomain() (*domain.TranscriptRecord, error) {
	record := &domain.TranscriptRecord{
		SourceFileID: r.SourceFileID,
		TaskID:       r.TaskID,
		FileName:     r.FileName,
		Transcript: domain.Transcript{
			Text:            r.Text,
			Language:        r.Language,
			DurationSeconds: r.DurationSeconds,
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if len(r.Segments) > 0 {
		if err := json.Unmarshal(r.Segments, &record.Transcript.Segments); err != nil {
			return nil, fmt.Errorf("failed to decode segments: %w", err)
		}
	}
	return record, nil
}

const transcriptColumns = `source_file_id, task_id, file_name, text, language,
	duration_seconds, segments, created_at, updated_at`

// PostgresTranscriptStore implements the store.TranscriptStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTranscriptStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTranscriptStore creates a new PostgreSQL implementation of the
// TranscriptStore interface. If logger is nil, the default logger is used.
func NewPostgresTranscriptStore(db store.DBTX, logger *slog.Logger) *PostgresTranscriptStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTranscriptStore{
		db:     db,
		logger: logger.With(slog.String("component", "transcript_store")),
	}
}

// Ensure PostgresTranscriptStore implements store.TranscriptStore interface
var _ store.TranscriptStore = (*PostgresTranscriptStore)(nil)

// Save implements store.TranscriptStore.Save with an upsert keyed by
// source_file_id. created_at is left untouched on conflict.
func (s *PostgresTranscriptStore) Save(ctx context.Context, record *domain.TranscriptRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if record == nil {
		return fmt.Errorf("%w: nil transcript record", store.ErrInvalidEntity)
	}
	if err := record.Validate(); err != nil {
		log.Warn("transcript validation failed during save",
			slog.String("error", err.Error()),
			slog.String("source_file_id", record.SourceFileID))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	segments := record.Transcript.Segments
	if segments == nil {
		segments = []domain.Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("%w: failed to encode segments: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO transcripts (` + transcriptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (source_file_id) DO UPDATE SET
			task_id = EXCLUDED.task_id,
			file_name = EXCLUDED.file_name,
			text = EXCLUDED.text,
			language = EXCLUDED.language,
			duration_seconds = EXCLUDED.duration_seconds,
			segments = EXCLUDED.segments,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`

	var stamps struct {
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err = s.db.GetContext(
		ctx,
		&stamps,
		query,
		record.SourceFileID,
		record.TaskID,
		record.FileName,
		record.Transcript.Text,
		record.Transcript.Language,
		record.Transcript.DurationSeconds,
		segmentsJSON,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to save transcript",
			slog.String("error", err.Error()),
			slog.String("source_file_id", record.SourceFileID))
		return MapError(err)
	}

	record.CreatedAt = stamps.CreatedAt.UTC()
	record.UpdatedAt = stamps.UpdatedAt.UTC()

	log.Debug("transcript saved",
		slog.String("source_file_id", record.SourceFileID),
		slog.String("task_id", record.TaskID))
	return nil
}

// GetBySourceFileID implements store.TranscriptStore.GetBySourceFileID.
func (s *PostgresTranscriptStore) GetBySourceFileID(
	ctx context.Context,
	sourceFileID string,
) (*domain.TranscriptRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + transcriptColumns + ` FROM transcripts WHERE source_file_id = $1`

	var row transcriptRow
	if err := s.db.GetContext(ctx, &row, query, sourceFileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("transcript not found", slog.String("source_file_id", sourceFileID))
			return nil, store.ErrTranscriptNotFound
		}
		log.Error("failed to get transcript",
			slog.String("error", err.Error()),
			slog.String("source_file_id", sourceFileID))
		return nil, MapError(err)
	}

	return row.toDomain()
}

// List implements store.TranscriptStore.List. A limit of zero returns all rows.
func (s *PostgresTranscriptStore) List(ctx context.Context, limit, offset int) ([]*domain.TranscriptRecord, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", store.ErrInvalidEntity)
	}

	query := `SELECT ` + transcriptColumns + ` FROM transcripts
		ORDER BY updated_at DESC, source_file_id
		LIMIT $1 OFFSET $2`

	// LIMIT NULL means no limit in PostgreSQL.
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	var rows []transcriptRow
	if err := s.db.SelectContext(ctx, &rows, query, limitArg, offset); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list transcripts", slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	records := make([]*domain.TranscriptRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete implements store.TranscriptStore.Delete.
func (s *PostgresTranscriptStore) Delete(ctx context.Context, sourceFileID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE source_file_id = $1`, sourceFileID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to delete transcript",
			slog.String("error", err.Error()),
			slog.String("source_file_id", sourceFileID))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTranscriptNotFound)
}
