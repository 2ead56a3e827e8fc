package gemini

// promptData represents the data passed to the prompt template
type promptData struct {
	Language string
}

// ResponseSchema represents the expected structure of the transcription
// returned by the Gemini API
type ResponseSchema struct {
	// Text is the full transcript
	Text string `json:"text"`

	// Language is the detected or confirmed language code
	Language string `json:"language"`

	// DurationSeconds is the length of the audio as reported by the model
	DurationSeconds float64 `json:"duration_seconds"`

	// Segments are timestamped slices of the transcript
	Segments []SegmentSchema `json:"segments"`
}

// SegmentSchema represents a single timestamped segment in the API response
type SegmentSchema struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
