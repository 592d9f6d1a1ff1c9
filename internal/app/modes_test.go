package app

import (
	"context"
	"testing"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

type stubBus struct{}

func (stubBus) Publish(context.Context, string, []byte) error { return nil }
func (stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

// A full-mode process bridges its own sink onto the bus, so the hub must not
// subscribe there as well or every event reaches clients twice. Only a
// serve-only process listens on the bus.
func TestHubBusSuppressedWhenSimulationRunsLocally(t *testing.T) {
	bus := stubBus{}

	for _, mode := range []string{"full", "Full", "backtest", "realtime"} {
		if got := hubBus(mode, bus); got != nil {
			t.Errorf("hubBus(%q) = %v, want nil", mode, got)
		}
	}
	for _, mode := range []string{"serve", "SERVE", " serve "} {
		if got := hubBus(mode, bus); got != domain.EventBus(bus) {
			t.Errorf("hubBus(%q) did not pass the bus through", mode)
		}
	}
	if got := hubBus("serve", nil); got != nil {
		t.Errorf("hubBus(serve, nil) = %v, want nil", got)
	}
}
