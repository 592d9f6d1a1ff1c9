package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// PriceHandler serves the latest cached price per ticker. The cache is fed
// by the running simulation, so the endpoints answer only while Redis is
// configured.
type PriceHandler struct {
	cache   domain.PriceCache
	symbols []string
	logger  *slog.Logger
}

// NewPriceHandler creates a PriceHandler. cache may be nil when Redis is not
// configured; the endpoints then return 503. symbols is the default universe
// when the request names no tickers.
func NewPriceHandler(cache domain.PriceCache, symbols []string, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		cache:   cache,
		symbols: symbols,
		logger:  logHandler(logger, "prices"),
	}
}

// Latest returns the latest cached prices for the requested tickers
// (comma-separated `tickers` query param), defaulting to the configured
// simulation universe. Tickers without a cached price are omitted.
// GET /api/prices
func (h *PriceHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "price cache not configured")
		return
	}

	tickers := h.symbols
	if v := r.URL.Query().Get("tickers"); v != "" {
		tickers = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				tickers = append(tickers, t)
			}
		}
	}
	if len(tickers) == 0 {
		writeError(w, http.StatusBadRequest, "no tickers requested")
		return
	}

	prices, err := h.cache.GetPrices(r.Context(), tickers)
	if err != nil {
		h.logger.Error("get prices failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

// Ticker returns the latest cached price and observation time for one ticker.
// GET /api/prices/{ticker}
func (h *PriceHandler) Ticker(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "price cache not configured")
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(pathParam(r, "ticker")))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	price, ts, err := h.cache.GetPrice(r.Context(), ticker)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no cached price for "+ticker)
		return
	}
	if err != nil {
		h.logger.Error("get price failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":      ticker,
		"price":       price,
		"observed_at": ts,
	})
}
