package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/markettwin/internal/analog"
	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIndex(t *testing.T) *analog.Index {
	t.Helper()
	idx, err := analog.Load(analog.Config{MinSimilarity: 0.05, BleedThreshold: 0.8})
	if err != nil {
		t.Fatalf("analog.Load() error = %v", err)
	}
	return idx
}

func testProjector(t *testing.T, cfg Config) *Projector {
	t.Helper()
	if cfg.MinSteps == 0 {
		cfg.MinSteps = 5
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 120
	}
	if cfg.DefaultVol == 0 {
		cfg.DefaultVol = 0.02
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	prices := provider.NewSynthetic(provider.SyntheticConfig{Seed: 42})
	return New(cfg, testIndex(t), prices, testLogger())
}

func TestProjectProducesValidOHLC(t *testing.T) {
	p := testProjector(t, Config{TopN: 3})

	resp, err := p.Project(context.Background(), "fed raises rates 75bps", 20, []string{"SPY"})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(resp.Impacts) != 1 {
		t.Fatalf("len(impacts) = %d, want 1", len(resp.Impacts))
	}

	impact := resp.Impacts[0]
	if len(impact.Projection) != 20 {
		t.Fatalf("len(projection) = %d, want 20", len(impact.Projection))
	}
	for i, tick := range impact.Projection {
		if !tick.Valid() {
			t.Errorf("projection[%d] violates OHLC ordering: %+v", i, tick)
		}
	}
	if impact.BaselinePrice <= 0 {
		t.Errorf("baseline price = %v, want > 0", impact.BaselinePrice)
	}
	if impact.ProjectedPrice != domain.LastClose(impact.Projection) {
		t.Errorf("projected price %v != last projection close %v",
			impact.ProjectedPrice, domain.LastClose(impact.Projection))
	}

	// Projection timestamps continue strictly past the baseline.
	for i := 1; i < len(impact.Projection); i++ {
		if !impact.Projection[i].Timestamp.After(impact.Projection[i-1].Timestamp) {
			t.Errorf("projection[%d] timestamp not increasing", i)
		}
	}
}

func TestProjectIsReproducible(t *testing.T) {
	run := func() domain.ScenarioResponse {
		p := testProjector(t, Config{TopN: 3})
		resp, err := p.Project(context.Background(), "fed raises rates 75bps", 15, []string{"SPY", "TLT"})
		if err != nil {
			t.Fatalf("Project() error = %v", err)
		}
		return resp
	}

	r1, r2 := run(), run()
	if len(r1.Impacts) != len(r2.Impacts) {
		t.Fatalf("impact counts differ: %d vs %d", len(r1.Impacts), len(r2.Impacts))
	}
	for i := range r1.Impacts {
		a, b := r1.Impacts[i], r2.Impacts[i]
		if a.Ticker != b.Ticker || a.Score != b.Score {
			t.Errorf("impact %d differs: (%s %v) vs (%s %v)", i, a.Ticker, a.Score, b.Ticker, b.Score)
		}
		for j := range a.Projection {
			if a.Projection[j] != b.Projection[j] {
				t.Fatalf("impact %d projection %d differs: %+v vs %+v",
					i, j, a.Projection[j], b.Projection[j])
			}
		}
	}
}

func TestProjectPreservesUniverseOrder(t *testing.T) {
	p := testProjector(t, Config{TopN: 3})
	universe := []string{"TLT", "SPY", "QQQ"}

	resp, err := p.Project(context.Background(), "fed raises rates", 10, universe)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(resp.Impacts) != len(universe) {
		t.Fatalf("len(impacts) = %d, want %d", len(resp.Impacts), len(universe))
	}
	for i, want := range universe {
		if resp.Impacts[i].Ticker != want {
			t.Errorf("impacts[%d].Ticker = %s, want %s", i, resp.Impacts[i].Ticker, want)
		}
	}
}

func TestProjectClampsSteps(t *testing.T) {
	p := testProjector(t, Config{TopN: 3, MinSteps: 5, MaxSteps: 30})

	tests := []struct {
		requested int
		want      int
	}{
		{requested: 1, want: 5},
		{requested: 10, want: 10},
		{requested: 500, want: 30},
	}
	for _, tt := range tests {
		resp, err := p.Project(context.Background(), "fed raises rates", tt.requested, []string{"SPY"})
		if err != nil {
			t.Fatalf("Project(steps=%d) error = %v", tt.requested, err)
		}
		if got := len(resp.Impacts[0].Projection); got != tt.want {
			t.Errorf("Project(steps=%d) projection length = %d, want %d", tt.requested, got, tt.want)
		}
	}
}

func TestProjectEmptyScenario(t *testing.T) {
	p := testProjector(t, Config{TopN: 3})
	_, err := p.Project(context.Background(), "   ", 10, []string{"SPY"})
	if !errors.Is(err, domain.ErrEmptyScenario) {
		t.Errorf("Project(blank) error = %v, want ErrEmptyScenario", err)
	}
}

type failingSeries struct{}

func (failingSeries) History(ctx context.Context, ticker string, n int) ([]domain.Tick, error) {
	return nil, domain.ErrUnknownTicker
}

func TestProjectUnknownTickerFailsCall(t *testing.T) {
	p := New(Config{
		TopN: 3, MinSteps: 5, MaxSteps: 30, Seed: 42, DefaultVol: 0.02,
	}, testIndex(t), failingSeries{}, testLogger())

	_, err := p.Project(context.Background(), "fed raises rates", 10, []string{"NOPE"})
	if !errors.Is(err, domain.ErrUnknownTicker) {
		t.Errorf("Project() error = %v, want ErrUnknownTicker", err)
	}
}

func TestProjectTimeoutReturnsPartial(t *testing.T) {
	p := testProjector(t, Config{TopN: 3, Timeout: time.Nanosecond})

	resp, err := p.Project(context.Background(), "fed raises rates", 10, []string{"SPY", "TLT"})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("Project() error = %v, want ErrTimeout", err)
	}
	if len(resp.Impacts) < len([]string{"SPY", "TLT"}) && !resp.Partial {
		t.Error("incomplete response not flagged partial")
	}
}

// A rate hike scenario must depress bonds harder than equities, and a cut
// must lift bonds. This pins the sign conventions end to end: analog
// retrieval, weighted aggregation, and the confidence scaling.
func TestProjectRateScenarioSigns(t *testing.T) {
	p := testProjector(t, Config{TopN: 2})

	hike, err := p.Project(context.Background(),
		"Fed raises rates by 75 basis points at the FOMC meeting", 10, []string{"SPY", "TLT"})
	if err != nil {
		t.Fatalf("hike Project() error = %v", err)
	}
	spyScore := hike.Impacts[0].Score
	tltScore := hike.Impacts[1].Score

	if spyScore >= 0 {
		t.Errorf("hike SPY score = %v, want negative", spyScore)
	}
	if tltScore >= 0 {
		t.Errorf("hike TLT score = %v, want negative", tltScore)
	}
	if math.Abs(tltScore) <= math.Abs(spyScore) {
		t.Errorf("hike impact: |TLT| = %v not above |SPY| = %v",
			math.Abs(tltScore), math.Abs(spyScore))
	}

	cut, err := p.Project(context.Background(),
		"Fed cuts rates to support the economy", 10, []string{"TLT"})
	if err != nil {
		t.Fatalf("cut Project() error = %v", err)
	}
	if cut.Impacts[0].Score <= 0 {
		t.Errorf("cut TLT score = %v, want positive", cut.Impacts[0].Score)
	}
}

// Weak retrieval backfill must not join the aggregation: a single strong
// easing analog with positive drift outweighs nothing when two much weaker
// tightening analogs are allowed to vote, so the floor has to exclude them.
func TestAggregateExcludesWeakBackfill(t *testing.T) {
	p := testProjector(t, Config{TopN: 3})

	analogs := []domain.AnalogEvent{
		{ID: "easing", Similarity: 0.80, Drift: 0.0038, Vol: 0.009, SampleSize: 21},
		{ID: "tightening-a", Similarity: 0.52, Drift: -0.0062, Vol: 0.016, SampleSize: 21},
		{ID: "tightening-b", Similarity: 0.51, Drift: -0.0055, Vol: 0.014, SampleSize: 21},
	}

	params, score := p.aggregate(analogs)
	if score <= 0 {
		t.Errorf("score = %v, want positive from the dominant analog alone", score)
	}
	if math.Abs(params.Drift-analogs[0].Drift) > 1e-12 {
		t.Errorf("drift = %v, want %v (weak analogs excluded)", params.Drift, analogs[0].Drift)
	}

	// Near-equal similarities all participate.
	pair := []domain.AnalogEvent{
		{ID: "a", Similarity: 0.78, Drift: -0.0062, Vol: 0.016, SampleSize: 21},
		{ID: "b", Similarity: 0.77, Drift: -0.0055, Vol: 0.014, SampleSize: 21},
	}
	params, _ = p.aggregate(pair)
	want := (-0.0062 - 0.0055) / 2
	if math.Abs(params.Drift-want) > 1e-12 {
		t.Errorf("pair drift = %v, want %v", params.Drift, want)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	p := testProjector(t, Config{TopN: 3, HistoryLen: 2})

	for _, text := range []string{"first scenario", "second scenario", "third scenario"} {
		if _, err := p.Project(context.Background(), text+" fed rates", 10, []string{"SPY"}); err != nil {
			t.Fatalf("Project(%q) error = %v", text, err)
		}
	}

	hist := p.History(10)
	if len(hist) != 2 {
		t.Fatalf("len(history) = %d, want 2 (bounded)", len(hist))
	}
	if hist[0].Scenario != "third scenario fed rates" {
		t.Errorf("history[0] = %q, want the newest", hist[0].Scenario)
	}
	if hist[1].Scenario != "second scenario fed rates" {
		t.Errorf("history[1] = %q, want the second newest", hist[1].Scenario)
	}
}
