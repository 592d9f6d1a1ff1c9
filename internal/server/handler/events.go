package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/markettwin/internal/events"
)

// EventHandler serves the in-memory event ring over HTTP for consumers that
// poll instead of holding a WebSocket.
type EventHandler struct {
	sink   *events.Sink
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler over the given sink.
func NewEventHandler(sink *events.Sink, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		sink:   sink,
		logger: logHandler(logger, "events"),
	}
}

// Recent returns the most recent events in arrival order.
// GET /api/events/recent
func (h *EventHandler) Recent(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	published, dropped := h.sink.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"events":    h.sink.Recent(n),
		"published": published,
		"dropped":   dropped,
	})
}
