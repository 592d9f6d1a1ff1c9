// Package scenario implements the analog-projection engine: given a free
// text macro scenario and a ticker universe, it retrieves historical
// analogs, aggregates their statistics, and synthesizes a forward price
// path plus an impact score per ticker.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/markettwin/internal/agent"
	"github.com/alanyoungcy/markettwin/internal/analog"
	"github.com/alanyoungcy/markettwin/internal/config"
	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/provider"
)

// historyDepth is how many baseline ticks are pulled per ticker to anchor a
// projection.
const historyDepth = 30

// Config holds projector parameters. The step clamp and analog fan-in are
// configuration, not fixed behavior.
type Config struct {
	TopN       int           // analogs retrieved per ticker
	MinSteps   int           // requested steps are clamped to [MinSteps, MaxSteps]
	MaxSteps   int
	Seed       int64
	DefaultVol float64 // used when no analog clears the floor
	// RelativeFloor excludes retrieved analogs whose similarity falls below
	// this fraction of the best match when aggregating. Weak backfill tends
	// to describe the opposite regime and would drag the drift the wrong way.
	RelativeFloor float64
	Timeout       time.Duration
	HistoryLen    int // scenario responses retained in memory
	Personas      []string
	AgentCfg      config.AgentsConfig
}

// Projector runs scenario requests end to end. It is safe for concurrent
// use; every request works on fresh state and mutates nothing persisted.
type Projector struct {
	cfg    Config
	index  *analog.Index
	prices provider.PriceSeries
	logger *slog.Logger

	mu      sync.Mutex
	history []domain.ScenarioResponse
}

// New creates a Projector.
func New(cfg Config, index *analog.Index, prices provider.PriceSeries, logger *slog.Logger) *Projector {
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	if cfg.RelativeFloor <= 0 || cfg.RelativeFloor > 1 {
		cfg.RelativeFloor = 0.75
	}
	return &Projector{
		cfg:    cfg,
		index:  index,
		prices: prices,
		logger: logger.With(slog.String("component", "scenario_projector")),
	}
}

// ClampSteps applies the configured [min,max] range.
func (p *Projector) ClampSteps(steps int) int {
	if steps < p.cfg.MinSteps {
		return p.cfg.MinSteps
	}
	if steps > p.cfg.MaxSteps {
		return p.cfg.MaxSteps
	}
	return steps
}

// Project produces one ImpactResult per requested ticker, in the requested
// order regardless of per-ticker completion order. Per-ticker work runs in
// parallel. Blank text fails with ErrEmptyScenario; a ticker without price
// history fails the call with ErrUnknownTicker. When the configured timeout
// elapses, the tickers completed so far are returned alongside ErrTimeout.
func (p *Projector) Project(ctx context.Context, text string, steps int, universe []string) (domain.ScenarioResponse, error) {
	resp := domain.ScenarioResponse{Scenario: text, GeneratedAt: time.Now().UTC()}

	if strings.TrimSpace(text) == "" {
		return resp, domain.ErrEmptyScenario
	}
	if len(universe) == 0 {
		return resp, fmt.Errorf("scenario: empty universe: %w", domain.ErrUnknownTicker)
	}
	steps = p.ClampSteps(steps)

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	results := make([]*domain.ImpactResult, len(universe))
	g, gctx := errgroup.WithContext(ctx)
	for i, ticker := range universe {
		g.Go(func() error {
			impact, err := p.projectTicker(gctx, text, ticker, steps)
			if err != nil {
				return err
			}
			results[i] = &impact
			return nil
		})
	}

	err := g.Wait()
	for _, r := range results {
		if r != nil {
			resp.Impacts = append(resp.Impacts, *r)
		}
	}

	switch {
	case err == nil:
		p.remember(resp)
		return resp, nil
	case errors.Is(err, context.DeadlineExceeded):
		resp.Partial = len(resp.Impacts) < len(universe)
		p.logger.Warn("scenario timed out",
			slog.Int("completed", len(resp.Impacts)),
			slog.Int("requested", len(universe)),
		)
		return resp, fmt.Errorf("scenario: %w", domain.ErrTimeout)
	default:
		return domain.ScenarioResponse{Scenario: text, GeneratedAt: resp.GeneratedAt}, err
	}
}

// History returns up to limit retained scenario responses, newest first.
func (p *Projector) History(limit int) []domain.ScenarioResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	if limit <= 0 || limit > len(p.history) {
		limit = len(p.history)
	}
	out := make([]domain.ScenarioResponse, 0, limit)
	for i := len(p.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, p.history[i])
	}
	return out
}

func (p *Projector) remember(resp domain.ScenarioResponse) {
	if p.cfg.HistoryLen <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, resp)
	if overflow := len(p.history) - p.cfg.HistoryLen; overflow > 0 {
		p.history = append([]domain.ScenarioResponse(nil), p.history[overflow:]...)
	}
}

func (p *Projector) projectTicker(ctx context.Context, text, ticker string, steps int) (domain.ImpactResult, error) {
	history, err := p.prices.History(ctx, ticker, historyDepth)
	if err != nil {
		return domain.ImpactResult{}, err
	}
	if len(history) == 0 {
		return domain.ImpactResult{}, fmt.Errorf("scenario: %s has no price history: %w", ticker, domain.ErrUnknownTicker)
	}
	if err := ctx.Err(); err != nil {
		return domain.ImpactResult{}, err
	}

	analogs := p.index.Query(ticker, text, p.cfg.TopN)
	params, score := p.aggregate(analogs)

	// Per-ticker substream keeps the path independent of sibling tickers
	// and of goroutine scheduling.
	rng := rand.New(rand.NewSource(p.cfg.Seed ^ tickerSeed(ticker)))

	baseline := domain.LastClose(history)
	projection := synthesizePath(rng, history, ticker, steps, params)

	impact := domain.ImpactResult{
		Ticker:         ticker,
		Score:          score,
		BaselinePrice:  baseline,
		CurrentPrice:   baseline,
		ProjectedPrice: domain.LastClose(projection),
		Projection:     projection,
		Analogs:        analogs,
		Orders:         p.whatIfOrders(projection),
	}
	return impact, nil
}

// aggregate reduces the retrieved analogs into path parameters and the
// impact score. Analogs within RelativeFloor of the best match contribute
// with weight equal to their historical sample size (1 when absent); the
// score is the weighted drift scaled by a confidence term that grows with
// total weight and mean similarity. The query sorts by similarity
// descending, so the first analog is the best match.
func (p *Projector) aggregate(analogs []domain.AnalogEvent) (pathParams, float64) {
	if len(analogs) == 0 {
		return pathParams{Vol: p.cfg.DefaultVol, Kurtosis: 3}, 0
	}

	floor := p.cfg.RelativeFloor * analogs[0].Similarity
	var n int
	var totalW, drift, vol, skew, kurt, simSum float64
	for _, a := range analogs {
		if a.Similarity < floor {
			continue
		}
		n++
		w := a.Weight()
		totalW += w
		drift += w * a.Drift
		vol += w * a.Vol
		skew += w * a.Skew
		kurt += w * a.Kurtosis
		simSum += a.Similarity
	}
	drift /= totalW
	vol /= totalW
	skew /= totalW
	kurt /= totalW

	meanSim := simSum / float64(n)
	confidence := meanSim * totalW / (totalW + 1)
	score := drift * confidence

	return pathParams{Drift: drift, Vol: vol, Skew: skew, Kurtosis: kurt}, score
}

// whatIfOrders replays the projected path through fresh persona instances
// to produce illustrative order flow. The agents are constructed per
// request, so no persisted AgentState is touched.
func (p *Projector) whatIfOrders(projection []domain.Tick) []domain.Order {
	if len(p.cfg.Personas) == 0 {
		return nil
	}
	agents, err := agent.BuildAll(p.cfg.Personas, p.cfg.AgentCfg)
	if err != nil {
		p.logger.Warn("what-if personas unavailable", slog.String("error", err.Error()))
		return nil
	}

	var orders []domain.Order
	for _, a := range agents {
		state := domain.NewAgentState(a.ID(), 100_000)
		for i := range projection {
			decided, err := a.Decide(projection[:i+1], state.Clone())
			if err != nil {
				continue
			}
			orders = append(orders, decided...)
		}
	}
	return orders
}

func tickerSeed(ticker string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	return int64(h.Sum64())
}
