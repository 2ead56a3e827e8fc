package transcribe

import "errors"

// Common errors returned by the transcribe package and its backends
var (
	// ErrInvalidConfig is returned when a backend is constructed with unusable settings
	ErrInvalidConfig = errors.New("invalid transcription configuration")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from transcription model")

	// ErrContentBlocked is returned when the model refuses the audio due to safety filters
	ErrContentBlocked = errors.New("content blocked by transcription model safety filters")

	// ErrAudioNotFound is returned when no stored audio exists for a file ID
	ErrAudioNotFound = errors.New("audio file not found")

	// ErrUnsupportedMedia is returned when an upload is not recognised as audio
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrTooLarge is returned when an upload exceeds the configured size limit
	ErrTooLarge = errors.New("audio file too large")
)
