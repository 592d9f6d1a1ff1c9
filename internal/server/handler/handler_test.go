package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/markettwin/internal/analog"
	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/events"
	"github.com/alanyoungcy/markettwin/internal/provider"
	"github.com/alanyoungcy/markettwin/internal/scenario"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProjector(t *testing.T) *scenario.Projector {
	t.Helper()
	index, err := analog.Load(analog.Config{MinSimilarity: 0.05, BleedThreshold: 0.8})
	if err != nil {
		t.Fatalf("analog.Load() error = %v", err)
	}
	prices := provider.NewSynthetic(provider.SyntheticConfig{Seed: 42})
	return scenario.New(scenario.Config{
		TopN:       3,
		MinSteps:   5,
		MaxSteps:   120,
		Seed:       42,
		DefaultVol: 0.02,
		Timeout:    5 * time.Second,
		HistoryLen: 10,
	}, index, prices, testLogger())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestScenarioProjectEndpoint(t *testing.T) {
	h := NewScenarioHandler(newTestProjector(t), []string{"SPY", "TLT"}, testLogger())

	body := `{"text": "Fed raises rates by 75 basis points", "steps": 10}`
	req := httptest.NewRequest(http.MethodPost, "/api/scenario", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Project(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}
	var resp domain.ScenarioResponse
	decodeBody(t, rec, &resp)
	if len(resp.Impacts) != 2 {
		t.Fatalf("len(Impacts) = %d, want 2", len(resp.Impacts))
	}
	if resp.Impacts[0].Ticker != "SPY" || resp.Impacts[1].Ticker != "TLT" {
		t.Errorf("impact order = %s, %s, want SPY, TLT", resp.Impacts[0].Ticker, resp.Impacts[1].Ticker)
	}
	if len(resp.Impacts[0].Projection) != 10 {
		t.Errorf("projection steps = %d, want 10", len(resp.Impacts[0].Projection))
	}
}

func TestScenarioProjectBadRequests(t *testing.T) {
	h := NewScenarioHandler(newTestProjector(t), []string{"SPY"}, testLogger())

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"text": `},
		{"empty text", `{"text": "   ", "steps": 10}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/scenario", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.Project(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestScenarioHistoryEndpoint(t *testing.T) {
	p := newTestProjector(t)
	h := NewScenarioHandler(p, []string{"SPY"}, testLogger())

	for _, text := range []string{"fed raises rates", "fed cuts rates"} {
		if _, err := p.Project(context.Background(), text, 5, []string{"SPY"}); err != nil {
			t.Fatalf("Project(%q) error = %v", text, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/scenario/history?limit=1", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got []domain.ScenarioResponse
	decodeBody(t, rec, &got)
	if len(got) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(got))
	}
	if got[0].Scenario != "fed cuts rates" {
		t.Errorf("history[0].Scenario = %q, want the newest entry", got[0].Scenario)
	}
}

func TestEventsRecentEndpoint(t *testing.T) {
	sink := events.NewSink(16)
	for i := 0; i < 3; i++ {
		sink.Publish(domain.Event{Type: domain.EventTick, Timestamp: time.Now().UTC(), Symbol: "SPY"})
	}
	h := NewEventHandler(sink, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events/recent?n=2", nil)
	rec := httptest.NewRecorder()
	h.Recent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got struct {
		Events    []domain.Event `json:"events"`
		Published int64          `json:"published"`
		Dropped   int64          `json:"dropped"`
	}
	decodeBody(t, rec, &got)
	if len(got.Events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(got.Events))
	}
	if got.Published != 3 {
		t.Errorf("published = %d, want 3", got.Published)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/events/recent?n=-1", nil)
	rec = httptest.NewRecorder()
	h.Recent(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for n=-1 = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// fakeRunStore answers from a map.
type fakeRunStore struct {
	runs map[string]domain.RunSummary
}

func (f *fakeRunStore) Insert(_ context.Context, s domain.RunSummary) error {
	f.runs[s.RunID] = s
	return nil
}

func (f *fakeRunStore) Get(_ context.Context, runID string) (domain.RunSummary, error) {
	s, ok := f.runs[runID]
	if !ok {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeRunStore) ListRecent(_ context.Context, _ domain.ListOpts) ([]domain.RunSummary, error) {
	out := make([]domain.RunSummary, 0, len(f.runs))
	for _, s := range f.runs {
		out = append(out, s)
	}
	return out, nil
}

type fakeMetricsCache struct {
	runs   map[string]domain.RunSummary
	latest string
}

func (f *fakeMetricsCache) SetRunMetrics(_ context.Context, s domain.RunSummary) error {
	f.runs[s.RunID] = s
	f.latest = s.RunID
	return nil
}

func (f *fakeMetricsCache) GetRunMetrics(_ context.Context, runID string) (domain.RunSummary, error) {
	s, ok := f.runs[runID]
	if !ok {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeMetricsCache) GetLatest(_ context.Context) (domain.RunSummary, error) {
	if f.latest == "" {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	return f.runs[f.latest], nil
}

func getRun(h *RunHandler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	return rec
}

func TestRunGetFallsBackToMetricsCache(t *testing.T) {
	store := &fakeRunStore{runs: map[string]domain.RunSummary{
		"persisted": {RunID: "persisted", State: "COMPLETED"},
	}}
	cache := &fakeMetricsCache{runs: map[string]domain.RunSummary{}}
	_ = cache.SetRunMetrics(context.Background(), domain.RunSummary{RunID: "in-flight", State: "RUNNING"})
	h := NewRunHandler(store, nil, cache, testLogger())

	rec := getRun(h, "persisted")
	if rec.Code != http.StatusOK {
		t.Errorf("persisted run status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = getRun(h, "in-flight")
	if rec.Code != http.StatusOK {
		t.Fatalf("in-flight run status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got domain.RunSummary
	decodeBody(t, rec, &got)
	if got.State != "RUNNING" {
		t.Errorf("in-flight run state = %q, want RUNNING", got.State)
	}

	rec = getRun(h, "ghost")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRunEndpointsWithoutBackends(t *testing.T) {
	h := NewRunHandler(nil, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("List status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/metrics/latest", nil)
	rec = httptest.NewRecorder()
	h.Latest(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Latest status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	if rec := getRun(h, "anything"); rec.Code != http.StatusNotFound {
		t.Errorf("Get status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// fakePriceCache answers from a map.
type fakePriceCache struct {
	prices map[string]float64
}

func (f *fakePriceCache) SetPrice(_ context.Context, ticker string, price float64, _ time.Time) error {
	f.prices[ticker] = price
	return nil
}

func (f *fakePriceCache) GetPrice(_ context.Context, ticker string) (float64, time.Time, error) {
	p, ok := f.prices[ticker]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC), nil
}

func (f *fakePriceCache) GetPrices(_ context.Context, tickers []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, t := range tickers {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func TestPricesLatestEndpoint(t *testing.T) {
	cache := &fakePriceCache{prices: map[string]float64{"SPY": 512.34, "TLT": 92.18}}
	h := NewPriceHandler(cache, []string{"SPY", "TLT", "QQQ"}, testLogger())

	// Default universe; QQQ has no cached price and is omitted.
	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	rec := httptest.NewRecorder()
	h.Latest(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got struct {
		Prices map[string]float64 `json:"prices"`
	}
	decodeBody(t, rec, &got)
	if len(got.Prices) != 2 || got.Prices["SPY"] != 512.34 || got.Prices["TLT"] != 92.18 {
		t.Errorf("prices = %v, want cached SPY and TLT only", got.Prices)
	}

	// Explicit tickers override the default universe and are upcased.
	req = httptest.NewRequest(http.MethodGet, "/api/prices?tickers=spy,%20tlt", nil)
	rec = httptest.NewRecorder()
	h.Latest(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	decodeBody(t, rec, &got)
	if len(got.Prices) != 2 {
		t.Errorf("prices = %v, want both requested tickers", got.Prices)
	}
}

func TestPricesTickerEndpoint(t *testing.T) {
	cache := &fakePriceCache{prices: map[string]float64{"SPY": 512.34}}
	h := NewPriceHandler(cache, []string{"SPY"}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/prices/spy", nil)
	req.SetPathValue("ticker", "spy")
	rec := httptest.NewRecorder()
	h.Ticker(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got map[string]any
	decodeBody(t, rec, &got)
	if got["ticker"] != "SPY" || got["price"] != 512.34 {
		t.Errorf("body = %v, want SPY at 512.34", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/prices/GLD", nil)
	req.SetPathValue("ticker", "GLD")
	rec = httptest.NewRecorder()
	h.Ticker(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("uncached ticker status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestPricesWithoutCache(t *testing.T) {
	h := NewPriceHandler(nil, []string{"SPY"}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	rec := httptest.NewRecorder()
	h.Latest(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Latest status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/prices/SPY", nil)
	req.SetPathValue("ticker", "SPY")
	rec = httptest.NewRecorder()
	h.Ticker(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Ticker status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got map[string]any
	decodeBody(t, rec, &got)
	if got["status"] != "ok" {
		t.Errorf("status field = %v, want ok", got["status"])
	}
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=9000&offset=30", nil)
	opts := parseListOpts(req)
	if opts.Limit != 500 {
		t.Errorf("Limit = %d, want clamp to 500", opts.Limit)
	}
	if opts.Offset != 30 {
		t.Errorf("Offset = %d, want 30", opts.Offset)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/runs?limit=junk&offset=-2", nil)
	opts = parseListOpts(req)
	if opts.Limit != 50 || opts.Offset != 0 {
		t.Errorf("opts = %+v, want defaults on malformed input", opts)
	}
}
