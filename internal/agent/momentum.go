package agent

import (
	"math"

	"github.com/alanyoungcy/markettwin/internal/config"
	"github.com/alanyoungcy/markettwin/internal/domain"
)

// Momentum chases the short-horizon trend: when the mean of the last
// `lookback` returns is positive it buys, when negative it sells, sized as a
// fixed fraction of available cash and capped by a maximum position.
type Momentum struct {
	id           string
	lookback     int
	cashFraction float64
	maxQty       float64
}

// NewMomentum creates a momentum persona.
func NewMomentum(id string, cfg config.MomentumConfig) *Momentum {
	lookback := cfg.Lookback
	if lookback < 1 {
		lookback = 1
	}
	return &Momentum{
		id:           id,
		lookback:     lookback,
		cashFraction: cfg.CashFraction,
		maxQty:       cfg.MaxQty,
	}
}

func (m *Momentum) ID() string      { return m.id }
func (m *Momentum) Persona() string { return PersonaMomentum }

// Decide computes the trailing mean return and trades in its direction.
func (m *Momentum) Decide(history []domain.Tick, state domain.AgentState) ([]domain.Order, error) {
	if len(history) < m.lookback+1 {
		return nil, nil
	}
	last := history[len(history)-1]
	ticker := last.Ticker
	price := last.Close
	if price <= 0 {
		return nil, nil
	}

	window := history[len(history)-m.lookback-1:]
	var sum float64
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if prev == 0 {
			continue
		}
		sum += (window[i].Close - prev) / prev
	}
	momentum := sum / float64(m.lookback)
	if momentum == 0 {
		return nil, nil
	}

	pos := state.Position(ticker)
	notional := state.Cash * m.cashFraction
	qty := math.Abs(notional) / price
	if qty <= 0 {
		return nil, nil
	}

	if momentum > 0 && pos < m.maxQty {
		qty = math.Min(qty, m.maxQty-pos)
		if qty > 0 {
			return []domain.Order{marketOrder(m.id, ticker, domain.OrderSideBuy, qty)}, nil
		}
		return nil, nil
	}
	if momentum < 0 && pos > -m.maxQty {
		qty = math.Min(qty, m.maxQty+pos)
		if qty > 0 {
			return []domain.Order{marketOrder(m.id, ticker, domain.OrderSideSell, qty)}, nil
		}
	}
	return nil, nil
}
