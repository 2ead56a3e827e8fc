package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scribe/internal/api/shared"
	"github.com/phrazzld/scribe/internal/service"
)

// TranscriptHandler serves stored transcripts.
type TranscriptHandler struct {
	transcripts service.TranscriptService
	logger      *slog.Logger
}

// NewTranscriptHandler creates a new TranscriptHandler.
func NewTranscriptHandler(transcripts service.TranscriptService, logger *slog.Logger) *TranscriptHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptHandler{
		transcripts: transcripts,
		logger:      logger.With("component", "transcript_handler"),
	}
}

// GetTranscript handles GET /api/transcripts/{fileID}.
func (h *TranscriptHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	record, err := h.transcripts.GetTranscript(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get transcript")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, transcriptToResponse(record))
}

// ListTranscripts handles GET /api/transcripts.
func (h *TranscriptHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := getPagination(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	records, err := h.transcripts.ListTranscripts(r.Context(), limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list transcripts")
		return
	}

	resp := TranscriptListResponse{
		Transcripts: make([]TranscriptResponse, 0, len(records)),
		Limit:       limit,
		Offset:      offset,
	}
	for _, rec := range records {
		resp.Transcripts = append(resp.Transcripts, transcriptToResponse(rec))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
