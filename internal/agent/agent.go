// Package agent defines the trading agent contract and the closed set of
// rule-based personas that can be bound to a simulation run.
package agent

import (
	"fmt"

	"github.com/alanyoungcy/markettwin/internal/config"
	"github.com/alanyoungcy/markettwin/internal/domain"
)

// Agent is a polymorphic decision unit. Decide observes the tick history for
// one ticker plus a snapshot of the agent's own state and returns zero or
// more orders for the current tick. Implementations may keep internal memory
// (moving averages, trailing returns) but must not mutate the history slice
// or anything outside their own fields.
type Agent interface {
	ID() string
	Persona() string
	Decide(history []domain.Tick, state domain.AgentState) ([]domain.Order, error)
}

// Persona names form a closed set; selection happens by name at construction
// time rather than open-ended runtime loading.
const (
	PersonaMeanReversion = "mean_reversion"
	PersonaMomentum      = "momentum"
	PersonaDealer        = "dealer"
)

// New constructs the persona registered under name. The returned agent's id
// is "<name>-<n>" style identifiers chosen by the caller.
func New(name, id string, cfg config.AgentsConfig) (Agent, error) {
	switch name {
	case PersonaMeanReversion:
		return NewMeanReversion(id, cfg.MeanReversion), nil
	case PersonaMomentum:
		return NewMomentum(id, cfg.Momentum), nil
	case PersonaDealer:
		return NewDealer(id, cfg.Dealer), nil
	default:
		return nil, fmt.Errorf("agent: unknown persona %q", name)
	}
}

// BuildAll constructs one agent per persona name, assigning sequential ids.
// The slice order is the deterministic decision order used by the loop.
func BuildAll(names []string, cfg config.AgentsConfig) ([]Agent, error) {
	agents := make([]Agent, 0, len(names))
	for i, name := range names {
		a, err := New(name, fmt.Sprintf("%s-%d", name, i+1), cfg)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// marketOrder is a small helper shared by the personas.
func marketOrder(agentID, ticker string, side domain.OrderSide, qty float64) domain.Order {
	return domain.Order{
		AgentID:     agentID,
		Ticker:      ticker,
		Side:        side,
		Qty:         qty,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TIFIOC,
	}
}

// limitOrder builds a one-tick limit order.
func limitOrder(agentID, ticker string, side domain.OrderSide, qty, limit float64) domain.Order {
	return domain.Order{
		AgentID:     agentID,
		Ticker:      ticker,
		Side:        side,
		Qty:         qty,
		Type:        domain.OrderTypeLimit,
		LimitPrice:  limit,
		TimeInForce: domain.TIFIOC,
	}
}
