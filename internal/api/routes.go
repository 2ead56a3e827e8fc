package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts every API endpoint under /api on r.
func RegisterRoutes(
	r chi.Router,
	tasks *TaskHandler,
	transcripts *TranscriptHandler,
	stream *EventStreamHandler,
) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", tasks.Upload)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", tasks.SubmitTask)
			r.Get("/", tasks.ListTasks)
			r.Delete("/", tasks.ClearFinished)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tasks.GetTask)
				r.Delete("/", tasks.RemoveTask)
				r.Post("/start", tasks.StartTask)
				r.Post("/cancel", tasks.CancelTask)
				r.Post("/pause", tasks.PauseTask)
				r.Post("/resume", tasks.ResumeTask)
				r.Post("/retry", tasks.RetryTask)
			})
		})

		r.Get("/files/{fileID}/task", tasks.GetTaskByFile)

		r.Get("/queue", tasks.GetQueue)
		r.Put("/queue/concurrency", tasks.SetConcurrency)

		r.Get("/transcripts", transcripts.ListTranscripts)
		r.Get("/transcripts/{fileID}", transcripts.GetTranscript)

		r.Get("/events", stream.Stream)
	})
}
