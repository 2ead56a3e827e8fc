package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/scribe/internal/api/shared"
	"github.com/phrazzld/scribe/internal/domain"
	"github.com/phrazzld/scribe/internal/events"
	"github.com/phrazzld/scribe/internal/platform/logger"
)

// defaultHeartbeat is how often an idle stream sends a keep-alive comment.
const defaultHeartbeat = 15 * time.Second

// EventSource provides channel subscriptions to lifecycle events.
type EventSource interface {
	SubscribeChan(buffer int, kinds ...events.Kind) (<-chan events.Event, func())
}

// EventStreamHandler streams lifecycle events as server-sent events.
type EventStreamHandler struct {
	source    EventSource
	buffer    int
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventStreamHandler creates a handler whose subscriptions buffer up to
// buffer events per client; a slower client misses events.
func NewEventStreamHandler(source EventSource, buffer int, logger *slog.Logger) *EventStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStreamHandler{
		source:    source,
		buffer:    buffer,
		heartbeat: defaultHeartbeat,
		logger:    logger.With("component", "event_stream"),
	}
}

// Stream handles GET /api/events. An optional ?kinds= filter takes a
// comma-separated list of event kinds.
func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	kinds, err := parseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	ch, unsubscribe := h.source.SubscribeChan(h.buffer, kinds...)
	defer unsubscribe()

	log := logger.FromContextOrDefault(r.Context(), h.logger)
	log.Info("event stream opened", "kinds", kinds)
	defer log.Info("event stream closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				log.Debug("failed to write event", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one event in text/event-stream framing.
func writeEvent(w http.ResponseWriter, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
	return err
}

// parseKinds validates a comma-separated kind filter. Empty means all kinds.
func parseKinds(raw string) ([]events.Kind, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	known := make(map[events.Kind]bool)
	for _, k := range events.Kinds() {
		known[k] = true
	}

	var kinds []events.Kind
	for _, s := range strings.Split(raw, ",") {
		k := events.Kind(strings.TrimSpace(s))
		if !known[k] {
			return nil, fmt.Errorf("%w: unknown event kind %q", domain.ErrValidation, s)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
