package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// RunHandler serves run summaries and trade tapes. Summaries come from
// Postgres when persistence is configured; the metrics cache answers for
// in-flight runs that have not been persisted yet.
type RunHandler struct {
	runs    domain.RunStore
	trades  domain.TradeStore
	metrics domain.MetricsCache
	logger  *slog.Logger
}

// NewRunHandler creates a RunHandler. Any of the stores may be nil when the
// corresponding backend is not configured; affected endpoints then return
// 404 or 503 as appropriate.
func NewRunHandler(runs domain.RunStore, trades domain.TradeStore, metrics domain.MetricsCache, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runs:    runs,
		trades:  trades,
		metrics: metrics,
		logger:  logHandler(logger, "runs"),
	}
}

// List returns recent run summaries, newest first.
// GET /api/runs
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run persistence not configured")
		return
	}
	summaries, err := h.runs.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.Error("list runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if summaries == nil {
		summaries = []domain.RunSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Get returns one run summary.
// GET /api/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := pathParam(r, "id")

	if h.runs != nil {
		summary, err := h.runs.Get(r.Context(), runID)
		if err == nil {
			writeJSON(w, http.StatusOK, summary)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Error("get run failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to get run")
			return
		}
	}

	if h.metrics != nil {
		summary, err := h.metrics.GetRunMetrics(r.Context(), runID)
		if err == nil {
			writeJSON(w, http.StatusOK, summary)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Error("get run metrics failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to get run")
			return
		}
	}

	writeError(w, http.StatusNotFound, "run not found")
}

// Trades returns a run's trade tape in execution order.
// GET /api/runs/{id}/trades
func (h *RunHandler) Trades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade persistence not configured")
		return
	}
	runID := pathParam(r, "id")
	trades, err := h.trades.ListByRun(r.Context(), runID, parseListOpts(r))
	if err != nil {
		h.logger.Error("list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// Latest returns the summary of the most recent run.
// GET /api/metrics/latest
func (h *RunHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics cache not configured")
		return
	}
	summary, err := h.metrics.GetLatest(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	if err != nil {
		h.logger.Error("get latest metrics failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get latest metrics")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
