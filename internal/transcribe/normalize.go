package transcribe

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/phrazzld/scribe/internal/domain"
)

// Normalizer cleans up a raw transcript: whitespace is collapsed, empty
// segments are dropped, segments are ordered by start time and end times
// never precede start times. When the model returns segments but no text,
// the text is rebuilt from them.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Process implements task.PostProcessor. The input is not modified.
func (n *Normalizer) Process(_ context.Context, in *domain.Transcript) (*domain.Transcript, error) {
	if in == nil {
		return nil, nil
	}

	out := &domain.Transcript{
		Text:            collapseSpace(in.Text),
		DurationSeconds: in.DurationSeconds,
		Language:        strings.ToLower(strings.TrimSpace(in.Language)),
		Segments:        make([]domain.Segment, 0, len(in.Segments)),
	}
	for _, seg := range in.Segments {
		text := collapseSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		seg.Text = text
		out.Segments = append(out.Segments, seg)
	}
	sort.SliceStable(out.Segments, func(i, j int) bool {
		return out.Segments[i].Start < out.Segments[j].Start
	})

	if out.Text == "" && len(out.Segments) > 0 {
		parts := make([]string, len(out.Segments))
		for i, seg := range out.Segments {
			parts[i] = seg.Text
		}
		out.Text = strings.Join(parts, " ")
	}
	if out.DurationSeconds == 0 && len(out.Segments) > 0 {
		out.DurationSeconds = out.Segments[len(out.Segments)-1].End
	}
	return out, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
