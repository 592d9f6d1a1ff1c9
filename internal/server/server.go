// Package server exposes the simulation laboratory over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/markettwin/internal/server/handler"
	"github.com/alanyoungcy/markettwin/internal/server/middleware"
	"github.com/alanyoungcy/markettwin/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Scenario *handler.ScenarioHandler
	Runs     *handler.RunHandler
	Events   *handler.EventHandler
	Prices   *handler.PriceHandler
}

// Server is the headless HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (logging, CORS, auth) attached.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Scenario projection.
	mux.HandleFunc("POST /api/scenario", handlers.Scenario.Project)
	mux.HandleFunc("GET /api/scenario/history", handlers.Scenario.History)

	// Run summaries and trade tapes.
	mux.HandleFunc("GET /api/runs", handlers.Runs.List)
	mux.HandleFunc("GET /api/runs/{id}", handlers.Runs.Get)
	mux.HandleFunc("GET /api/runs/{id}/trades", handlers.Runs.Trades)
	mux.HandleFunc("GET /api/metrics/latest", handlers.Runs.Latest)

	// Latest cached prices.
	mux.HandleFunc("GET /api/prices", handlers.Prices.Latest)
	mux.HandleFunc("GET /api/prices/{ticker}", handlers.Prices.Ticker)

	// Recent events for polling consumers.
	mux.HandleFunc("GET /api/events/recent", handlers.Events.Recent)

	// WebSocket streaming.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
