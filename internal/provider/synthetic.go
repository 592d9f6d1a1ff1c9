package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// Synthetic generates seeded OHLCV series so runs are reproducible without
// any external data source. Each ticker gets an independent substream
// derived from the base seed, so adding a ticker does not perturb the
// others.
type Synthetic struct {
	seed      int64
	basePrice float64
	vol       float64
	interval  time.Duration
	start     time.Time

	mu     sync.Mutex
	series map[string][]domain.Tick
}

// SyntheticConfig tunes the generator.
type SyntheticConfig struct {
	Seed      int64
	BasePrice float64       // mean starting price, default 100
	Vol       float64       // per-step return stdev, default 0.005
	Interval  time.Duration // tick spacing, default 1m
	Start     time.Time     // first timestamp, default a fixed epoch
}

// NewSynthetic creates a Synthetic provider.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100
	}
	if cfg.Vol <= 0 {
		cfg.Vol = 0.005
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Start.IsZero() {
		// Fixed epoch keeps two runs with the same seed byte-identical.
		cfg.Start = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	}
	return &Synthetic{
		seed:      cfg.Seed,
		basePrice: cfg.BasePrice,
		vol:       cfg.Vol,
		interval:  cfg.Interval,
		start:     cfg.Start,
		series:    make(map[string][]domain.Tick),
	}
}

// History returns the first n ticks of the ticker's deterministic series,
// generating and caching them on demand.
func (s *Synthetic) History(ctx context.Context, ticker string, n int) ([]domain.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("synthetic: history length %d", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cached := s.series[ticker]
	if len(cached) < n {
		s.series[ticker] = s.generate(ticker, n)
		cached = s.series[ticker]
	}
	out := make([]domain.Tick, n)
	copy(out, cached[:n])
	return out, nil
}

// Subscribe streams the ticker series on a fixed cadence until the context
// is cancelled. Intended for realtime-mode runs without a live feed.
func (s *Synthetic) Subscribe(ctx context.Context, tickers []string) (Subscription, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("synthetic: no tickers to subscribe")
	}
	sub := &syntheticSub{
		ch:   make(chan domain.Tick, 64),
		done: make(chan struct{}),
	}
	go sub.run(ctx, s, tickers)
	return sub, nil
}

// generate builds n ticks of a bounded random walk with intra-bar ranges.
func (s *Synthetic) generate(ticker string, n int) []domain.Tick {
	rng := rand.New(rand.NewSource(s.seed ^ tickerSeed(ticker)))

	price := s.basePrice * (1 + 0.1*rng.NormFloat64())
	if price <= 1 {
		price = s.basePrice
	}
	out := make([]domain.Tick, n)
	for i := 0; i < n; i++ {
		open := price
		ret := s.vol * rng.NormFloat64()
		price = math.Max(0.01, price*(1+ret))
		closePx := price

		span := math.Abs(s.vol * rng.NormFloat64())
		high := math.Max(open, closePx) * (1 + span)
		low := math.Min(open, closePx) * math.Max(0, 1-span)

		out[i] = domain.Tick{
			Timestamp: s.start.Add(time.Duration(i) * s.interval),
			Ticker:    ticker,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    math.Abs(1_000_000 + 50_000*rng.NormFloat64()),
		}
	}
	return out
}

func tickerSeed(ticker string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	return int64(h.Sum64())
}

type syntheticSub struct {
	ch   chan domain.Tick
	done chan struct{}
	once sync.Once
	err  error
}

func (ss *syntheticSub) run(ctx context.Context, s *Synthetic, tickers []string) {
	defer close(ss.ch)

	// Pre-generate a long horizon per ticker and interleave round-robin.
	const horizon = 100_000
	series := make([][]domain.Tick, len(tickers))
	for i, t := range tickers {
		hist, err := s.History(ctx, t, horizon)
		if err != nil {
			ss.err = err
			return
		}
		series[i] = hist
	}

	ticker := time.NewTicker(s.interval / 60) // accelerated replay
	defer ticker.Stop()

	for i := 0; i < horizon; i++ {
		for j := range tickers {
			select {
			case <-ctx.Done():
				ss.err = ctx.Err()
				return
			case <-ss.done:
				return
			case <-ticker.C:
			}
			select {
			case ss.ch <- series[j][i]:
			case <-ctx.Done():
				ss.err = ctx.Err()
				return
			case <-ss.done:
				return
			}
		}
	}
}

func (ss *syntheticSub) Ticks() <-chan domain.Tick { return ss.ch }
func (ss *syntheticSub) Err() error                { return ss.err }
func (ss *syntheticSub) Close()                    { ss.once.Do(func() { close(ss.done) }) }
