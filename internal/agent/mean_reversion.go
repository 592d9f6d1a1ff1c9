package agent

import (
	"math"

	"github.com/alanyoungcy/markettwin/internal/config"
	"github.com/alanyoungcy/markettwin/internal/domain"
)

// MeanReversion buys when the close falls below a trailing EMA by more than
// a threshold and sells when it rises above, sized proportionally to the
// deviation and capped by a maximum position.
type MeanReversion struct {
	id        string
	span      int
	threshold float64 // fraction, converted from bps
	maxQty    float64

	ema    map[string]float64
	primed map[string]bool
}

// NewMeanReversion creates a mean-reversion persona.
func NewMeanReversion(id string, cfg config.MeanReversionConfig) *MeanReversion {
	span := cfg.Span
	if span < 2 {
		span = 2
	}
	return &MeanReversion{
		id:        id,
		span:      span,
		threshold: cfg.ThresholdBps / 10_000,
		maxQty:    cfg.MaxQty,
		ema:       make(map[string]float64),
		primed:    make(map[string]bool),
	}
}

func (m *MeanReversion) ID() string      { return m.id }
func (m *MeanReversion) Persona() string { return PersonaMeanReversion }

// Decide updates the incremental EMA with the latest close and emits at most
// one market order against the deviation.
func (m *MeanReversion) Decide(history []domain.Tick, state domain.AgentState) ([]domain.Order, error) {
	if len(history) == 0 {
		return nil, nil
	}
	last := history[len(history)-1]
	ticker := last.Ticker
	price := last.Close

	alpha := 2 / (float64(m.span) + 1)
	if !m.primed[ticker] {
		m.ema[ticker] = price
		m.primed[ticker] = true
		return nil, nil
	}
	m.ema[ticker] = alpha*price + (1-alpha)*m.ema[ticker]

	avg := m.ema[ticker]
	if avg == 0 {
		return nil, nil
	}
	dev := (price - avg) / avg
	if math.Abs(dev) <= m.threshold {
		return nil, nil
	}

	// Size scales with how far past the threshold the deviation sits.
	scale := math.Min(math.Abs(dev)/m.threshold, 4)
	qty := math.Min(m.maxQty/4*scale, m.maxQty)
	pos := state.Position(ticker)

	if dev > 0 && pos > -m.maxQty {
		// Price rich relative to trend: sell, respecting the short cap.
		qty = math.Min(qty, m.maxQty+pos)
		if qty > 0 {
			return []domain.Order{marketOrder(m.id, ticker, domain.OrderSideSell, qty)}, nil
		}
		return nil, nil
	}
	if dev < 0 && pos < m.maxQty {
		qty = math.Min(qty, m.maxQty-pos)
		if qty > 0 {
			return []domain.Order{marketOrder(m.id, ticker, domain.OrderSideBuy, qty)}, nil
		}
	}
	return nil, nil
}
