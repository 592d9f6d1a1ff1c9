package provider

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

func TestSyntheticHistoryIsDeterministic(t *testing.T) {
	first := NewSynthetic(SyntheticConfig{Seed: 42})
	second := NewSynthetic(SyntheticConfig{Seed: 42})

	a, err := first.History(context.Background(), "SPY", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	b, err := second.History(context.Background(), "SPY", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same seed produced different series")
	}

	other := NewSynthetic(SyntheticConfig{Seed: 43})
	c, err := other.History(context.Background(), "SPY", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if reflect.DeepEqual(a, c) {
		t.Errorf("different seeds produced identical series")
	}
}

func TestSyntheticHistoryPrefixStable(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Seed: 7})
	short, err := s.History(context.Background(), "SPY", 20)
	if err != nil {
		t.Fatalf("History(20) error = %v", err)
	}
	long, err := s.History(context.Background(), "SPY", 200)
	if err != nil {
		t.Fatalf("History(200) error = %v", err)
	}
	if !reflect.DeepEqual(short, long[:20]) {
		t.Errorf("extending the series changed its prefix")
	}
}

func TestSyntheticTickersAreIndependent(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Seed: 7})
	spy, _ := s.History(context.Background(), "SPY", 50)

	// Generating another ticker must not perturb an existing one.
	if _, err := s.History(context.Background(), "TLT", 50); err != nil {
		t.Fatalf("History(TLT) error = %v", err)
	}
	again, _ := s.History(context.Background(), "SPY", 50)
	if !reflect.DeepEqual(spy, again) {
		t.Errorf("adding a ticker perturbed an existing series")
	}

	tlt, _ := s.History(context.Background(), "TLT", 50)
	if spy[0].Close == tlt[0].Close && spy[10].Close == tlt[10].Close {
		t.Errorf("distinct tickers produced identical series")
	}
}

func TestSyntheticTicksAreValid(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Seed: 99})
	hist, err := s.History(context.Background(), "SPY", 500)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 500 {
		t.Fatalf("len(hist) = %d, want 500", len(hist))
	}
	for i, tick := range hist {
		if !tick.Valid() {
			t.Fatalf("tick %d invalid: %+v", i, tick)
		}
		if tick.Close <= 0 {
			t.Fatalf("tick %d close = %v, want positive", i, tick.Close)
		}
		if i > 0 && !tick.Timestamp.After(hist[i-1].Timestamp) {
			t.Fatalf("tick %d timestamp %v not after %v", i, tick.Timestamp, hist[i-1].Timestamp)
		}
	}
}

func TestSyntheticHistoryArgumentErrors(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Seed: 1})
	if _, err := s.History(context.Background(), "SPY", 0); err == nil {
		t.Errorf("History(n=0) = nil error, want failure")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.History(ctx, "SPY", 10); !errors.Is(err, context.Canceled) {
		t.Errorf("History(cancelled ctx) error = %v, want context.Canceled", err)
	}
}

func TestSyntheticSubscribeStreamsInOrder(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Seed: 5, Interval: 60 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := s.Subscribe(ctx, []string{"SPY"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	var got []domain.Tick
	deadline := time.After(5 * time.Second)
	for len(got) < 5 {
		select {
		case tick, ok := <-sub.Ticks():
			if !ok {
				t.Fatalf("stream closed after %d ticks: %v", len(got), sub.Err())
			}
			got = append(got, tick)
		case <-deadline:
			t.Fatalf("timed out after %d ticks", len(got))
		}
	}

	hist, _ := s.History(context.Background(), "SPY", 5)
	if !reflect.DeepEqual(got, hist) {
		t.Errorf("streamed ticks diverge from the deterministic series")
	}
}

func TestSyntheticSubscribeRequiresTickers(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Seed: 5})
	if _, err := s.Subscribe(context.Background(), nil); err == nil {
		t.Errorf("Subscribe(nil) = nil error, want failure")
	}
}

// memoryBars is a minimal in-memory bar store.
type memoryBars struct {
	bars map[string][]domain.Tick
	err  error
}

func (m *memoryBars) InsertBatch(_ context.Context, bars []domain.Tick) error {
	for _, b := range bars {
		m.bars[b.Ticker] = append(m.bars[b.Ticker], b)
	}
	return nil
}

func (m *memoryBars) ListRecent(_ context.Context, ticker string, n int) ([]domain.Tick, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := m.bars[ticker]
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func TestStoreBackedPrefersStoredBars(t *testing.T) {
	stored := []domain.Tick{
		{Timestamp: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), Ticker: "SPY", Open: 470, High: 471, Low: 469, Close: 470.5, Volume: 1000},
	}
	store := &memoryBars{bars: map[string][]domain.Tick{"SPY": stored}}
	p := NewStoreBacked(store, NewSynthetic(SyntheticConfig{Seed: 1}))

	got, err := p.History(context.Background(), "SPY", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("History() = %v, want stored bars", got)
	}
}

func TestStoreBackedFallsBackWhenEmpty(t *testing.T) {
	store := &memoryBars{bars: map[string][]domain.Tick{}}
	fallback := NewSynthetic(SyntheticConfig{Seed: 1})
	p := NewStoreBacked(store, fallback)

	got, err := p.History(context.Background(), "TLT", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	want, _ := fallback.History(context.Background(), "TLT", 10)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("History() did not fall back to the synthetic series")
	}
}

func TestStoreBackedWithoutFallback(t *testing.T) {
	store := &memoryBars{bars: map[string][]domain.Tick{}}
	p := NewStoreBacked(store, nil)
	if _, err := p.History(context.Background(), "TLT", 10); !errors.Is(err, domain.ErrUnknownTicker) {
		t.Errorf("History() error = %v, want ErrUnknownTicker", err)
	}

	broken := &memoryBars{err: errors.New("connection reset")}
	if _, err := NewStoreBacked(broken, nil).History(context.Background(), "TLT", 10); err == nil {
		t.Errorf("History() = nil error from a broken store, want failure")
	}
}
