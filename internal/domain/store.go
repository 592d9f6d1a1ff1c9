package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts carries standard pagination parameters for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RunStore persists run summaries keyed by run identifier.
type RunStore interface {
	Insert(ctx context.Context, summary RunSummary) error
	Get(ctx context.Context, runID string) (RunSummary, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]RunSummary, error)
}

// TradeStore persists the trade tape of a run.
type TradeStore interface {
	InsertBatch(ctx context.Context, runID string, trades []Trade) error
	ListByRun(ctx context.Context, runID string, opts ListOpts) ([]Trade, error)
}

// BarStore persists historical OHLCV bars and backs the store-based price
// series provider.
type BarStore interface {
	InsertBatch(ctx context.Context, bars []Tick) error
	ListRecent(ctx context.Context, ticker string, n int) ([]Tick, error)
}

// PriceCache stores the latest observed price per ticker.
type PriceCache interface {
	SetPrice(ctx context.Context, ticker string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, ticker string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tickers []string) (map[string]float64, error)
}

// MetricsCache holds the latest metrics snapshot per run. The snapshot has an
// explicit lifecycle: written on run start, replaced on every summary, and
// the "latest" pointer moves to each new run.
type MetricsCache interface {
	SetRunMetrics(ctx context.Context, summary RunSummary) error
	GetRunMetrics(ctx context.Context, runID string) (RunSummary, error)
	GetLatest(ctx context.Context) (RunSummary, error)
}

// EventBus is a lightweight pub/sub transport bridging the in-process event
// sink to out-of-process consumers (the WebSocket hub).
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads opaque objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver persists run artifacts for later inspection. Archival failures
// must never affect run correctness.
type Archiver interface {
	ArchiveRun(ctx context.Context, summary RunSummary, trades []Trade) error
}
