// Package sim drives simulation runs: it pulls or receives price ticks,
// invokes every agent in a fixed deterministic order, submits the resulting
// orders to the matching engine as one batch, and emits telemetry events.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/markettwin/internal/agent"
	"github.com/alanyoungcy/markettwin/internal/config"
	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/engine"
	"github.com/alanyoungcy/markettwin/internal/events"
	"github.com/alanyoungcy/markettwin/internal/provider"
)

// State is the loop lifecycle.
type State string

const (
	StateInit      State = "INIT"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateStopped   State = "STOPPED"
	StateFailed    State = "FAILED"
)

// Config describes one run.
type Config struct {
	Mode         string // "backtest" or "realtime"
	Symbols      []string
	Personas     []string
	MaxTicks     int
	Seed         int64
	InitialCash  float64
	ReorderDepth int
}

// Loop is a single simulation run. Ticks are strictly sequential: within a
// tick all agent decisions are computed against a snapshot of prior-tick
// state before any engine mutation is applied. Independent runs share only
// the event sink and the analog index, both safe for concurrent access.
type Loop struct {
	cfg      Config
	runID    string
	engine   *engine.Engine
	agents   []agent.Agent
	prices   provider.PriceSeries
	streamer provider.Streamer
	sink     *events.Sink
	logger   *slog.Logger

	state atomic.Value // State

	histories map[string][]domain.Tick
	last      map[string]float64
	tape      []domain.Trade

	ticks    int
	trades   int
	rejected int
	faults   int

	startedAt time.Time
}

// New validates the configuration, binds agents to the ticker universe, and
// prepares the matching engine (the INIT state). streamer may be nil for
// backtest-only use.
func New(cfg Config, agentsCfg config.AgentsConfig, engCfg engine.Config, prices provider.PriceSeries, streamer provider.Streamer, sink *events.Sink, logger *slog.Logger) (*Loop, error) {
	mode := strings.ToLower(cfg.Mode)
	if mode != "backtest" && mode != "realtime" {
		return nil, fmt.Errorf("sim: unsupported mode %q", cfg.Mode)
	}
	cfg.Mode = mode
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("sim: empty symbol universe")
	}
	if cfg.MaxTicks <= 0 {
		return nil, fmt.Errorf("sim: max_ticks must be positive")
	}
	if mode == "realtime" && streamer == nil {
		return nil, fmt.Errorf("sim: realtime mode requires a streamer")
	}

	agents, err := agent.BuildAll(cfg.Personas, agentsCfg)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	runID := uuid.NewString()
	eng := engine.New(engCfg, cfg.Symbols, logger)
	for _, a := range agents {
		eng.Register(domain.NewAgentState(a.ID(), cfg.InitialCash))
	}

	l := &Loop{
		cfg:       cfg,
		runID:     runID,
		engine:    eng,
		agents:    agents,
		prices:    prices,
		streamer:  streamer,
		sink:      sink,
		logger:    logger.With(slog.String("component", "sim_loop"), slog.String("run_id", runID)),
		histories: make(map[string][]domain.Tick, len(cfg.Symbols)),
		last:      make(map[string]float64, len(cfg.Symbols)),
	}
	l.state.Store(StateInit)
	return l, nil
}

// RunID returns the run identifier.
func (l *Loop) RunID() string { return l.runID }

// State returns the current lifecycle state.
func (l *Loop) State() State { return l.state.Load().(State) }

// Trades returns the accumulated trade tape.
func (l *Loop) Trades() []domain.Trade {
	out := make([]domain.Trade, len(l.tape))
	copy(out, l.tape)
	return out
}

// Bars returns every tick the run processed, ordered by timestamp with ties
// broken by ticker, so the bar store receives the same series under the
// same seed.
func (l *Loop) Bars() []domain.Tick {
	var out []domain.Tick
	for _, hist := range l.histories {
		out = append(out, hist...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// Run executes the loop until the series is exhausted, the safety stop
// fires, the context is cancelled, or an engine invariant breaks. It always
// returns a summary; on FAILED the summary reflects state at the point of
// failure and previously emitted events remain intact.
func (l *Loop) Run(ctx context.Context) (domain.RunSummary, error) {
	l.startedAt = time.Now().UTC()
	l.state.Store(StateRunning)
	l.logger.Info("run starting",
		slog.String("mode", l.cfg.Mode),
		slog.Int("max_ticks", l.cfg.MaxTicks),
		slog.Int64("seed", l.cfg.Seed),
	)

	var err error
	if l.cfg.Mode == "backtest" {
		err = l.runBacktest(ctx)
	} else {
		err = l.runRealtime(ctx)
	}

	switch {
	case err == nil:
		l.state.Store(StateCompleted)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		l.state.Store(StateStopped)
		err = nil
	default:
		l.state.Store(StateFailed)
	}

	summary := l.summary()
	l.sink.Publish(domain.Event{
		Type:      domain.EventSummary,
		Timestamp: summary.FinishedAt,
		RunID:     l.runID,
		Summary:   &summary,
	})
	l.logger.Info("run finished",
		slog.String("state", summary.State),
		slog.Int("ticks", summary.Ticks),
		slog.Int("trades", summary.Trades),
	)
	return summary, err
}

func (l *Loop) runBacktest(ctx context.Context) error {
	series := make(map[string][]domain.Tick, len(l.cfg.Symbols))
	for _, sym := range l.cfg.Symbols {
		hist, err := l.prices.History(ctx, sym, l.cfg.MaxTicks)
		if err != nil {
			return fmt.Errorf("sim: load series %s: %w", sym, err)
		}
		if len(hist) == 0 {
			return fmt.Errorf("sim: %s: %w", sym, domain.ErrUnknownTicker)
		}
		series[sym] = hist
	}

	for i := 0; i < l.cfg.MaxTicks; i++ {
		// Cooperative stop, observed only at tick boundaries.
		if err := ctx.Err(); err != nil {
			return err
		}
		exhausted := true
		for _, sym := range l.cfg.Symbols {
			if i >= len(series[sym]) {
				continue
			}
			exhausted = false
			if err := l.processTick(series[sym][i]); err != nil {
				return err
			}
		}
		if exhausted {
			return nil
		}
	}
	return nil
}

func (l *Loop) runRealtime(ctx context.Context) error {
	sub, err := l.streamer.Subscribe(ctx, l.cfg.Symbols)
	if err != nil {
		return fmt.Errorf("sim: subscribe: %w", err)
	}
	defer sub.Close()

	buf := newReorderBuffer(l.cfg.ReorderDepth)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-sub.Ticks():
			if !ok {
				// Upstream ended: drain whatever is buffered.
				for _, pending := range buf.Flush() {
					if err := l.processTick(pending); err != nil {
						return err
					}
					if l.ticks >= l.cfg.MaxTicks {
						return nil
					}
				}
				if err := sub.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("sim: subscription: %w", err)
				}
				return nil
			}
			if err := buf.Push(t); err != nil {
				// Bad upstream data is a warning, never fatal.
				l.sink.Publish(domain.Event{
					Type:      domain.EventWarning,
					Timestamp: t.Timestamp,
					Symbol:    t.Ticker,
					RunID:     l.runID,
					Message:   err.Error(),
				})
				l.logger.Warn("tick dropped", slog.String("reason", err.Error()))
				continue
			}
			for _, released := range buf.Release() {
				if err := l.processTick(released); err != nil {
					return err
				}
				if l.ticks >= l.cfg.MaxTicks {
					return nil
				}
			}
		}
	}
}

// processTick runs one full tick: snapshot, decisions, one engine batch,
// telemetry. An engine invariant violation is the only fatal outcome.
func (l *Loop) processTick(t domain.Tick) error {
	hist := append(l.histories[t.Ticker], t)
	l.histories[t.Ticker] = hist
	prior := t.Close
	l.ticks++

	l.sink.Publish(domain.Event{
		Type:      domain.EventTick,
		Timestamp: t.Timestamp,
		Symbol:    t.Ticker,
		RunID:     l.runID,
		Tick:      &t,
	})

	// All decisions read a consistent snapshot before any mutation.
	var orders []domain.Order
	participants := make(map[string]bool)
	for _, a := range l.agents {
		state, ok := l.engine.State(a.ID())
		if !ok {
			continue
		}
		decided, err := l.safeDecide(a, hist, state)
		if err != nil {
			l.faults++
			l.sink.Publish(domain.Event{
				Type:      domain.EventFault,
				Timestamp: t.Timestamp,
				Symbol:    t.Ticker,
				RunID:     l.runID,
				Message:   fmt.Sprintf("agent %s: %v", a.ID(), err),
			})
			l.logger.Warn("agent fault isolated",
				slog.String("agent", a.ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		orders = append(orders, decided...)
	}

	for i := range orders {
		participants[orders[i].AgentID] = true
		l.sink.Publish(domain.Event{
			Type:      domain.EventOrder,
			Timestamp: t.Timestamp,
			Symbol:    orders[i].Ticker,
			RunID:     l.runID,
			Order:     &orders[i],
		})
	}

	prices, trades, rejected, err := l.engine.StepAll(orders, map[string]float64{t.Ticker: prior}, t.Timestamp)
	l.rejected += len(rejected)
	if err != nil {
		// Conservation breach: emit the diagnostic and halt. Persisted
		// state and sink contents stay readable.
		l.sink.Publish(domain.Event{
			Type:      domain.EventFault,
			Timestamp: t.Timestamp,
			Symbol:    t.Ticker,
			RunID:     l.runID,
			Message:   err.Error(),
		})
		return err
	}

	l.last[t.Ticker] = prices[t.Ticker]
	l.engine.MarkToMarket(l.last)

	for i := range trades {
		l.trades++
		l.tape = append(l.tape, trades[i])
		l.sink.Publish(domain.Event{
			Type:      domain.EventTrade,
			Timestamp: trades[i].Timestamp,
			Symbol:    trades[i].Ticker,
			RunID:     l.runID,
			Trade:     &trades[i],
		})
	}

	for _, a := range l.agents {
		if !participants[a.ID()] {
			continue
		}
		state, _ := l.engine.State(a.ID())
		l.sink.Publish(domain.Event{
			Type:      domain.EventPosition,
			Timestamp: t.Timestamp,
			Symbol:    t.Ticker,
			RunID:     l.runID,
			Position: &domain.PositionUpdate{
				AgentID:       a.ID(),
				Ticker:        t.Ticker,
				Qty:           state.Position(t.Ticker),
				Cash:          state.Cash,
				RealizedPnL:   state.RealizedPnL,
				UnrealizedPnL: state.UnrealizedPnL,
			},
		})
	}
	return nil
}

// safeDecide shields the loop from a misbehaving persona: both returned
// errors and panics surface as an agent fault for this tick only.
func (l *Loop) safeDecide(a agent.Agent, hist []domain.Tick, state domain.AgentState) (orders []domain.Order, err error) {
	defer func() {
		if r := recover(); r != nil {
			orders = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrAgentFault, r)
		}
	}()
	orders, err = a.Decide(hist, state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAgentFault, err)
	}
	return orders, nil
}

func (l *Loop) summary() domain.RunSummary {
	states := l.engine.States()
	agentSummaries := make([]domain.AgentSummary, 0, len(states))
	personaByID := make(map[string]string, len(l.agents))
	for _, a := range l.agents {
		personaByID[a.ID()] = a.Persona()
	}
	for _, s := range states {
		agentSummaries = append(agentSummaries, domain.AgentSummary{
			AgentID:       s.AgentID,
			Persona:       personaByID[s.AgentID],
			Cash:          s.Cash,
			RealizedPnL:   s.RealizedPnL,
			UnrealizedPnL: s.UnrealizedPnL,
			Trades:        s.Trades,
			Inventory:     s.Inventory,
		})
	}
	return domain.RunSummary{
		RunID:      l.runID,
		Mode:       l.cfg.Mode,
		Seed:       l.cfg.Seed,
		State:      string(l.State()),
		StartedAt:  l.startedAt,
		FinishedAt: time.Now().UTC(),
		Ticks:      l.ticks,
		Trades:     l.trades,
		Rejected:   l.rejected,
		Faults:     l.faults,
		Agents:     agentSummaries,
	}
}
