package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/phrazzld/scribe/internal/config"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/task"
	"github.com/phrazzld/scribe/internal/transcribe"
	"google.golang.org/genai"
)

const promptText = `Transcribe the attached audio recording verbatim.
{{if eq .Language "auto"}}Detect the spoken language and report it as an ISO 639-1 code.{{else}}The recording is in the language with code "{{.Language}}".{{end}}
Respond with a single JSON object and nothing else, using this shape:
{"text": "<full transcript>", "language": "<ISO 639-1 code>", "duration_seconds": <number>,
 "segments": [{"start": <seconds>, "end": <seconds>, "text": "<segment text>"}]}
Split segments at sentence or speaker boundaries. Timestamps are seconds from the start of the recording.`

// contentGenerator is the subset of the genai client used by the
// transcriber; *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Transcriber implements task.Executor using Google's Gemini API.
type Transcriber struct {
	// logger is used for structured logging
	logger *slog.Logger

	// models issues generate-content requests
	models contentGenerator

	// model is the name of the Gemini model to use
	model string

	// source provides the uploaded audio
	source transcribe.AudioSource

	// prompt is the parsed template for the instruction text
	prompt *template.Template
}

// NewTranscriber creates a Transcriber backed by a new Gemini client.
func NewTranscriber(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.TranscriptionConfig,
	source transcribe.AudioSource,
) (*Transcriber, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", transcribe.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", transcribe.ErrInvalidConfig, err)
	}

	return newTranscriber(logger, client.Models, cfg.ModelName, source)
}

func newTranscriber(
	logger *slog.Logger,
	models contentGenerator,
	model string,
	source transcribe.AudioSource,
) (*Transcriber, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if models == nil {
		return nil, fmt.Errorf("%w: content generator cannot be nil", transcribe.ErrInvalidConfig)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", transcribe.ErrInvalidConfig)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: audio source cannot be nil", transcribe.ErrInvalidConfig)
	}

	prompt, err := template.New("transcription").Parse(promptText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", transcribe.ErrInvalidConfig, err)
	}

	return &Transcriber{
		logger: logger.With("component", "gemini_transcriber"),
		models: models,
		model:  model,
		source: source,
		prompt: prompt,
	}, nil
}

// Transcribe implements task.Executor. It makes a single request; retries
// are left to the caller.
func (g *Transcriber) Transcribe(
	ctx context.Context,
	fileID string,
	language string,
	onProgress task.ProgressFunc,
) (*domain.Transcript, error) {
	if onProgress == nil {
		onProgress = func(float64, string) {}
	}
	logger := g.logger.With("file_id", fileID, "model", g.model)

	onProgress(5, "loading audio")
	audio, err := g.source.Open(ctx, fileID)
	if err != nil {
		return nil, err
	}

	prompt, err := g.createPrompt(language)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{Data: audio.Data, MIMEType: audio.MIMEType}},
		},
	}}
	temperature := float32(0)
	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	}

	onProgress(20, "transcribing audio")
	logger.InfoContext(ctx, "Making Gemini API call",
		"audio_bytes", len(audio.Data),
		"mime_type", audio.MIMEType)

	resp, err := g.models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		logger.ErrorContext(ctx, "Gemini API call error", "error", err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	onProgress(90, "parsing transcript")
	text, err := responseText(resp)
	if err != nil {
		logger.WarnContext(ctx, "Gemini returned an unusable response", "error", err)
		return nil, err
	}

	transcript, err := parseResponse(text)
	if err != nil {
		return nil, err
	}
	if transcript.Language == "" && language != domain.DefaultLanguage {
		transcript.Language = language
	}

	logger.InfoContext(ctx, "Gemini API call successful",
		"text_length", len(transcript.Text),
		"segments", len(transcript.Segments))
	return transcript, nil
}

func (g *Transcriber) createPrompt(language string) (string, error) {
	if strings.TrimSpace(language) == "" {
		language = domain.DefaultLanguage
	}
	var buf bytes.Buffer
	if err := g.prompt.Execute(&buf, promptData{Language: language}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// responseText extracts the concatenated text of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("%w: nil response", transcribe.ErrInvalidResponse)
	case len(resp.Candidates) == 0 || resp.Candidates[0] == nil:
		return "", fmt.Errorf("%w: no content generated", transcribe.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", fmt.Errorf("%w: response finished for safety reasons", transcribe.ErrContentBlocked)
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content in response", transcribe.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: response has no text", transcribe.ErrInvalidResponse)
	}
	return sb.String(), nil
}

// parseResponse decodes the model's JSON answer into a transcript.
func parseResponse(text string) (*domain.Transcript, error) {
	var parsed ResponseSchema
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", transcribe.ErrInvalidResponse, err)
	}
	if strings.TrimSpace(parsed.Text) == "" && len(parsed.Segments) == 0 {
		return nil, fmt.Errorf("%w: transcript is empty", transcribe.ErrInvalidResponse)
	}

	transcript := &domain.Transcript{
		Text:            parsed.Text,
		Language:        parsed.Language,
		DurationSeconds: parsed.DurationSeconds,
		Segments:        make([]domain.Segment, 0, len(parsed.Segments)),
	}
	for i, seg := range parsed.Segments {
		if seg.End < seg.Start {
			return nil, fmt.Errorf("%w: segment %d ends before it starts", transcribe.ErrInvalidResponse, i)
		}
		transcript.Segments = append(transcript.Segments, domain.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return transcript, nil
}

// stripCodeFence removes a surrounding Markdown code fence, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Ensure Transcriber implements task.Executor
var _ task.Executor = (*Transcriber)(nil)
