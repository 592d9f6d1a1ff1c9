package agent

import (
	"math"

	"github.com/alanyoungcy/markettwin/internal/config"
	"github.com/alanyoungcy/markettwin/internal/domain"
)

// Dealer quotes a limit order on each side of the last close and leans its
// quotes toward flattening accumulated inventory. It is the liquidity
// provider of the persona set.
type Dealer struct {
	id         string
	spread     float64 // half-spread as a fraction
	quoteQty   float64
	revertRate float64
	maxQty     float64
}

// NewDealer creates a dealer persona.
func NewDealer(id string, cfg config.DealerConfig) *Dealer {
	return &Dealer{
		id:         id,
		spread:     cfg.SpreadBps / 10_000,
		quoteQty:   cfg.QuoteQty,
		revertRate: cfg.RevertRate,
		maxQty:     cfg.MaxQty,
	}
}

func (d *Dealer) ID() string      { return d.id }
func (d *Dealer) Persona() string { return PersonaDealer }

// Decide emits a bid and an ask around the last close, plus an inventory
// reduction order when the book has drifted from flat.
func (d *Dealer) Decide(history []domain.Tick, state domain.AgentState) ([]domain.Order, error) {
	if len(history) == 0 {
		return nil, nil
	}
	last := history[len(history)-1]
	ticker := last.Ticker
	price := last.Close
	if price <= 0 {
		return nil, nil
	}

	pos := state.Position(ticker)
	var orders []domain.Order

	// Two-sided quotes, suppressed on the side that would breach the cap.
	bid := price * (1 - d.spread)
	ask := price * (1 + d.spread)
	if pos < d.maxQty {
		orders = append(orders, limitOrder(d.id, ticker, domain.OrderSideBuy, d.quoteQty, bid))
	}
	if pos > -d.maxQty {
		orders = append(orders, limitOrder(d.id, ticker, domain.OrderSideSell, d.quoteQty, ask))
	}

	// Mean-revert inventory toward flat.
	if flatten := math.Abs(pos) * d.revertRate; flatten >= 1 {
		side := domain.OrderSideSell
		if pos < 0 {
			side = domain.OrderSideBuy
		}
		orders = append(orders, marketOrder(d.id, ticker, side, flatten))
	}
	return orders, nil
}
