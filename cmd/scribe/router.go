package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scribe/internal/api"
	apiMiddleware "github.com/phrazzld/scribe/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	api.RegisterRoutes(r,
		api.NewTaskHandler(
			app.taskService,
			app.scheduler,
			app.config.Transcription.MaxUploadBytes(),
			app.logger,
		),
		api.NewTranscriptHandler(app.transcriptService, app.logger),
		api.NewEventStreamHandler(app.bus, app.config.Events.StreamBuffer, app.logger),
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
