package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/scribe/internal/config"
	"github.com/phrazzld/scribe/internal/events"
	"github.com/phrazzld/scribe/internal/platform/gemini"
	"github.com/phrazzld/scribe/internal/platform/postgres"
	"github.com/phrazzld/scribe/internal/service"
	"github.com/phrazzld/scribe/internal/store"
	"github.com/phrazzld/scribe/internal/task"
	"github.com/phrazzld/scribe/internal/transcribe"
)

// schedulerStopTimeout bounds how long shutdown waits for the scheduler loop.
const schedulerStopTimeout = 15 * time.Second

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sqlx.DB

	audio       *transcribe.DirSource
	transcripts store.TranscriptStore
	bus         *events.Bus
	scheduler   *task.Scheduler
	mirror      *service.TranscriptMirror

	taskService       service.TaskService
	transcriptService service.TranscriptService
}

// newApplication creates a new application instance with all dependencies
// initialized and the scheduler started. When executor is nil a Gemini
// transcriber is built from the configuration.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	executor task.Executor,
) (_ *application, err error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	app.audio, err = transcribe.NewDirSource(
		cfg.Transcription.UploadDir,
		cfg.Transcription.MaxUploadBytes(),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio storage: %w", err)
	}

	if executor == nil {
		executor, err = gemini.NewTranscriber(ctx, logger, cfg.Transcription, app.audio)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize transcriber: %w", err)
		}
		logger.Info("Gemini transcriber initialized", "model", cfg.Transcription.ModelName)
	}

	if err := app.setupTranscriptStore(ctx); err != nil {
		return nil, err
	}

	app.bus = events.NewBus(logger)
	app.mirror = service.NewTranscriptMirror(app.transcripts, logger)
	app.mirror.Attach(app.bus)

	app.scheduler = task.NewScheduler(executor, app.bus, task.SchedulerConfig{
		MaxConcurrency: cfg.Scheduler.MaxConcurrency,
		MaxRetries:     cfg.Scheduler.MaxRetries,
		Backoff:        cfg.Scheduler.Backoff,
		TaskTimeout:    cfg.Scheduler.TaskTimeout,
	}, logger)
	app.scheduler.SetPostProcessor(transcribe.NewNormalizer())

	app.taskService, err = service.NewTaskService(app.audio, app.scheduler, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	app.transcriptService, err = service.NewTranscriptService(app.transcripts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript service: %w", err)
	}

	if err := app.scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupTranscriptStore selects Postgres when a database URL is configured
// and an in-memory store otherwise. Migrations are applied on startup.
func (app *application) setupTranscriptStore(ctx context.Context) error {
	if app.config.Database.URL == "" {
		app.transcripts = store.NewMemoryTranscriptStore(app.logger)
		app.logger.Info("Using in-memory transcript store")
		return nil
	}

	db, err := postgres.Open(ctx, app.config.Database.URL, app.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	if err := postgres.Migrate(ctx, db.DB, "up", app.logger); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	app.transcripts = postgres.NewPostgresTranscriptStore(db, app.logger)
	app.logger.Info("Using Postgres transcript store",
		"database", postgres.MaskDatabaseURL(app.config.Database.URL))
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), schedulerStopTimeout)
		if err := app.scheduler.Stop(ctx); err != nil {
			app.logger.Error("Error stopping scheduler", "error", err)
		}
		cancel()
	}

	if app.mirror != nil {
		app.mirror.Detach()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
