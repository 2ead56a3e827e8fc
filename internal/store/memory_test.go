package store

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/scribe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(fileID, text string) *domain.TranscriptRecord {
	return &domain.TranscriptRecord{
		SourceFileID: fileID,
		TaskID:       "task-" + fileID,
		FileName:     fileID + ".wav",
		Transcript: domain.Transcript{
			Text:     text,
			Language: "en",
			Segments: []domain.Segment{{Start: 0, End: 1, Text: text}},
		},
	}
}

func TestMemoryTranscriptStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTranscriptStore(nil)

	rec := testRecord("file-1", "hello")
	require.NoError(t, s.Save(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())
	assert.False(t, rec.UpdatedAt.IsZero())

	got, err := s.GetBySourceFileID(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Transcript.Text)
	assert.Equal(t, "task-file-1", got.TaskID)

	// Mutating the returned copy must not affect the stored record.
	got.Transcript.Segments[0].Text = "changed"
	again, err := s.GetBySourceFileID(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Transcript.Segments[0].Text)
}

func TestMemoryTranscriptStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTranscriptStore(nil)

	first := testRecord("file-1", "first")
	require.NoError(t, s.Save(ctx, first))
	time.Sleep(2 * time.Millisecond)

	second := testRecord("file-1", "second")
	second.TaskID = "task-retry"
	require.NoError(t, s.Save(ctx, second))

	got, err := s.GetBySourceFileID(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Transcript.Text)
	assert.Equal(t, "task-retry", got.TaskID)
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt), "created_at is kept across saves")
	assert.True(t, got.UpdatedAt.After(first.UpdatedAt))
}

func TestMemoryTranscriptStore_Invalid(t *testing.T) {
	s := NewMemoryTranscriptStore(nil)

	assert.ErrorIs(t, s.Save(context.Background(), nil), ErrInvalidEntity)
	assert.ErrorIs(t, s.Save(context.Background(), testRecord("  ", "x")), ErrInvalidEntity)

	_, err := s.GetBySourceFileID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestMemoryTranscriptStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTranscriptStore(nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, testRecord(id, id)))
		time.Sleep(2 * time.Millisecond)
	}

	all, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SourceFileID, "most recently updated first")

	page, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].SourceFileID)

	empty, err := s.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.List(ctx, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidEntity)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.ErrorIs(t, s.Delete(ctx, "b"), ErrTranscriptNotFound)

	all, err = s.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
