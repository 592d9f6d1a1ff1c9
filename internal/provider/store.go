package provider

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// StoreBacked serves history from the bar store, falling back to a secondary
// provider (typically Synthetic) when the store has no rows for a ticker.
type StoreBacked struct {
	bars     domain.BarStore
	fallback PriceSeries
}

// NewStoreBacked creates a StoreBacked provider. fallback may be nil, in
// which case an empty store yields ErrUnknownTicker.
func NewStoreBacked(bars domain.BarStore, fallback PriceSeries) *StoreBacked {
	return &StoreBacked{bars: bars, fallback: fallback}
}

// History returns up to n most recent bars for the ticker, oldest first.
func (p *StoreBacked) History(ctx context.Context, ticker string, n int) ([]domain.Tick, error) {
	bars, err := p.bars.ListRecent(ctx, ticker, n)
	if err != nil {
		return nil, fmt.Errorf("provider: list bars %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		if p.fallback != nil {
			return p.fallback.History(ctx, ticker, n)
		}
		return nil, fmt.Errorf("provider: %s: %w", ticker, domain.ErrUnknownTicker)
	}
	return bars, nil
}
