package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/engine"
	"github.com/alanyoungcy/markettwin/internal/server"
	"github.com/alanyoungcy/markettwin/internal/server/handler"
	"github.com/alanyoungcy/markettwin/internal/server/ws"
	"github.com/alanyoungcy/markettwin/internal/sim"
)

// persistTimeout bounds post-run persistence and archival so a hung backend
// cannot block shutdown.
const persistTimeout = 30 * time.Second

// BacktestMode runs one backtest simulation to completion, persists the
// results where backends are configured, and returns.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	return a.runSimulation(ctx, deps, "backtest")
}

// RealtimeMode consumes the streaming provider until cancelled or the
// safety stop fires.
func (a *App) RealtimeMode(ctx context.Context, deps *Dependencies) error {
	return a.runSimulation(ctx, deps, "realtime")
}

// ServeMode runs only the API surface: HTTP handlers, the WebSocket hub, and
// the scenario projector. No simulation is started.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startServer(gctx, g, deps)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// FullMode runs the API surface and a backtest simulation side by side. The
// server outlives the run so finished results stay queryable until shutdown.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startServer(gctx, g, deps)
	g.Go(func() error {
		if err := a.runSimulation(gctx, deps, "backtest"); err != nil {
			// A failed run is an outcome, not a server fault: results and
			// events stay queryable.
			a.logger.Error("simulation failed", slog.String("error", err.Error()))
		}
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runSimulation builds a Loop, runs it, and fans results out to the
// configured backends. Persistence failures are logged, never propagated:
// the run result stands on its own.
func (a *App) runSimulation(ctx context.Context, deps *Dependencies, mode string) error {
	loop, err := sim.New(sim.Config{
		Mode:         mode,
		Symbols:      a.cfg.Simulation.Symbols,
		Personas:     a.cfg.Simulation.Agents,
		MaxTicks:     a.cfg.Simulation.MaxTicks,
		Seed:         a.cfg.Simulation.Seed,
		InitialCash:  a.cfg.Simulation.InitialCash,
		ReorderDepth: a.cfg.Simulation.ReorderDepth,
	}, a.cfg.Agents, engine.Config{
		SensitivityK: a.cfg.Engine.SensitivityK,
		FeeRate:      a.cfg.Engine.FeeRate,
	}, deps.Prices, deps.Streamer, deps.Sink, a.logger)
	if err != nil {
		return err
	}

	stopBridge := a.bridgeEvents(ctx, deps)
	defer stopBridge()

	// Seed the metrics cache so the API can answer for the run while it is
	// still in flight; the finished summary replaces this snapshot.
	if deps.MetricsCache != nil {
		started := domain.RunSummary{
			RunID:     loop.RunID(),
			Mode:      mode,
			Seed:      a.cfg.Simulation.Seed,
			State:     string(sim.StateRunning),
			StartedAt: time.Now().UTC(),
		}
		if err := deps.MetricsCache.SetRunMetrics(ctx, started); err != nil {
			a.logger.Warn("metrics cache write failed", slog.String("error", err.Error()))
		}
	}

	summary, runErr := loop.Run(ctx)
	a.persistRun(deps, summary, loop.Trades(), loop.Bars())
	return runErr
}

// bridgeEvents forwards sink events to the Redis bus and keeps the price
// cache current. It is a no-op when Redis is not configured.
func (a *App) bridgeEvents(ctx context.Context, deps *Dependencies) func() {
	if deps.EventBus == nil && deps.PriceCache == nil {
		return func() {}
	}

	ch, cancel := deps.Sink.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			if deps.EventBus != nil {
				if data, err := json.Marshal(e); err == nil {
					if err := deps.EventBus.Publish(ctx, ws.EventsChannel, data); err != nil {
						a.logger.Warn("event bus publish failed", slog.String("error", err.Error()))
					}
				}
			}
			if deps.PriceCache != nil && e.Type == domain.EventTick && e.Tick != nil {
				if err := deps.PriceCache.SetPrice(ctx, e.Tick.Ticker, e.Tick.Close, e.Tick.Timestamp); err != nil {
					a.logger.Warn("price cache update failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// persistRun writes the finished run wherever backends exist. Uses a
// background context so a cancelled run still persists its partial summary.
func (a *App) persistRun(deps *Dependencies, summary domain.RunSummary, trades []domain.Trade, bars []domain.Tick) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if deps.RunStore != nil {
		if err := deps.RunStore.Insert(ctx, summary); err != nil {
			a.logger.Error("persist run failed", slog.String("error", err.Error()))
		}
	}
	if deps.TradeStore != nil {
		if err := deps.TradeStore.InsertBatch(ctx, summary.RunID, trades); err != nil {
			a.logger.Error("persist trades failed", slog.String("error", err.Error()))
		}
	}
	if deps.BarStore != nil {
		// The processed tick series seeds future store-backed runs.
		if err := deps.BarStore.InsertBatch(ctx, bars); err != nil {
			a.logger.Error("persist bars failed", slog.String("error", err.Error()))
		}
	}
	if deps.MetricsCache != nil {
		if err := deps.MetricsCache.SetRunMetrics(ctx, summary); err != nil {
			a.logger.Warn("metrics cache write failed", slog.String("error", err.Error()))
		}
	}
	if deps.Archiver != nil {
		if err := deps.Archiver.ArchiveRun(ctx, summary, trades); err != nil {
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
		}
	}
}

// hubBus picks the event bus the WebSocket hub should listen on. A process
// that runs its own simulation bridges the local sink onto the bus, so
// reading the bus back would deliver every event to clients twice; only a
// serve-only process listens for events published elsewhere.
func hubBus(mode string, bus domain.EventBus) domain.EventBus {
	if strings.ToLower(strings.TrimSpace(mode)) == "serve" {
		return bus
	}
	return nil
}

// startServer registers the hub and HTTP server on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Sink, hubBus(a.cfg.Mode, deps.EventBus), a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Scenario: handler.NewScenarioHandler(deps.Projector, a.cfg.Simulation.Symbols, a.logger),
		Runs:     handler.NewRunHandler(deps.RunStore, deps.TradeStore, deps.MetricsCache, a.logger),
		Events:   handler.NewEventHandler(deps.Sink, a.logger),
		Prices:   handler.NewPriceHandler(deps.PriceCache, a.cfg.Simulation.Symbols, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
