package domain

import (
	"strings"
	"time"
)

// Segment is a timestamped slice of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the full output of a successful transcription.
type Transcript struct {
	Text            string    `json:"text"`
	Segments        []Segment `json:"segments"`
	DurationSeconds float64   `json:"duration_seconds"`
	Language        string    `json:"language"`
}

// Summary reduces the transcript to the fields stored on the task.
func (t *Transcript) Summary() *ResultSummary {
	return &ResultSummary{
		TextLength:   len([]rune(t.Text)),
		SegmentCount: len(t.Segments),
		Language:     t.Language,
	}
}

// TranscriptRecord is a completed transcript mirrored outside the scheduler,
// keyed by the source file it was produced from.
type TranscriptRecord struct {
	SourceFileID string     `json:"source_file_id"`
	TaskID       string     `json:"task_id"`
	FileName     string     `json:"file_name"`
	Transcript   Transcript `json:"transcript"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks the record has the fields a store needs.
func (r *TranscriptRecord) Validate() error {
	if strings.TrimSpace(r.SourceFileID) == "" {
		return ErrValidation
	}
	return nil
}
