package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/scenario"
)

// ScenarioHandler serves the what-if projection API.
type ScenarioHandler struct {
	projector *scenario.Projector
	universe  []string
	logger    *slog.Logger
}

// NewScenarioHandler creates a ScenarioHandler. universe is the default
// ticker set used when a request does not name its own.
func NewScenarioHandler(projector *scenario.Projector, universe []string, logger *slog.Logger) *ScenarioHandler {
	return &ScenarioHandler{
		projector: projector,
		universe:  universe,
		logger:    logHandler(logger, "scenario"),
	}
}

type scenarioRequest struct {
	Text     string   `json:"text"`
	Steps    int      `json:"steps"`
	Universe []string `json:"universe"`
}

// Project runs a scenario projection.
// POST /api/scenario
func (h *ScenarioHandler) Project(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	universe := req.Universe
	if len(universe) == 0 {
		universe = h.universe
	}

	resp, err := h.projector.Project(r.Context(), req.Text, req.Steps, universe)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, domain.ErrEmptyScenario):
		writeError(w, http.StatusBadRequest, "scenario text is empty")
	case errors.Is(err, domain.ErrTimeout):
		// Partial results are still useful; the payload carries the flag.
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, domain.ErrUnknownTicker):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("projection failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "projection failed")
	}
}

// History returns recent scenario responses, newest first.
// GET /api/scenario/history
func (h *ScenarioHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, h.projector.History(limit))
}
