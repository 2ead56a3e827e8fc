package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler" validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription" validate:"required"`
	Events        EventsConfig        `mapstructure:"events" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL keeps transcripts in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// SchedulerConfig controls concurrency and automatic retries of
// transcription tasks.
type SchedulerConfig struct {
	MaxConcurrency int             `mapstructure:"max_concurrency" validate:"required,gt=0"`
	MaxRetries     int             `mapstructure:"max_retries" validate:"gte=0"`
	Backoff        []time.Duration `mapstructure:"backoff" validate:"required,min=1,dive,gt=0"`
	TaskTimeout    time.Duration   `mapstructure:"task_timeout" validate:"required,gt=0"`
}

// TranscriptionConfig contains the Gemini integration and upload settings.
type TranscriptionConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
	UploadDir    string `mapstructure:"upload_dir" validate:"required"`
	MaxUploadMB  int    `mapstructure:"max_upload_mb" validate:"required,gt=0"`
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c TranscriptionConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// EventsConfig tunes event delivery to streaming clients.
type EventsConfig struct {
	StreamBuffer int `mapstructure:"stream_buffer" validate:"required,gt=0"`
}
