// Package provider supplies ordered price series to the simulation loop and
// the scenario projector. Implementations here are local (synthetic or
// store-backed); network data acquisition lives behind the same interfaces.
package provider

import (
	"context"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// PriceSeries returns historical ticks for a ticker, oldest first. It must
// be a bounded, cancellable call; implementations do not block indefinitely.
type PriceSeries interface {
	History(ctx context.Context, ticker string, n int) ([]domain.Tick, error)
}

// Subscription yields ticks incrementally for realtime runs. The channel is
// closed when the upstream ends or the subscription is cancelled; Err
// reports the terminal error, if any.
type Subscription interface {
	Ticks() <-chan domain.Tick
	Err() error
	Close()
}

// Streamer opens live subscriptions.
type Streamer interface {
	Subscribe(ctx context.Context, tickers []string) (Subscription, error)
}
