package domain

import "time"

// AgentState is the book-keeping record for one agent. It is exclusively
// owned by its agent and mutated only through matching-engine callbacks; it
// persists for the life of a simulation run.
type AgentState struct {
	AgentID       string             `json:"agent_id"`
	Cash          float64            `json:"cash"`
	Inventory     map[string]float64 `json:"inventory"`
	RealizedPnL   float64            `json:"realized_pnl"`
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	Trades        int                `json:"trades"`
}

// NewAgentState returns a state with the given starting cash and an empty
// inventory map.
func NewAgentState(agentID string, cash float64) *AgentState {
	return &AgentState{
		AgentID:   agentID,
		Cash:      cash,
		Inventory: make(map[string]float64),
	}
}

// Position returns the signed inventory for a ticker.
func (s *AgentState) Position(ticker string) float64 {
	return s.Inventory[ticker]
}

// Equity marks the state to market at the given prices.
func (s *AgentState) Equity(prices map[string]float64) float64 {
	eq := s.Cash
	for ticker, qty := range s.Inventory {
		eq += qty * prices[ticker]
	}
	return eq
}

// Clone returns a deep copy. Agents receive clones during decision steps so
// no agent can observe another's mid-step mutations.
func (s *AgentState) Clone() AgentState {
	out := *s
	out.Inventory = make(map[string]float64, len(s.Inventory))
	for k, v := range s.Inventory {
		out.Inventory[k] = v
	}
	return out
}

// AgentSummary is the per-agent slice of a run summary.
type AgentSummary struct {
	AgentID       string             `json:"agent_id"`
	Persona       string             `json:"persona"`
	Cash          float64            `json:"cash"`
	RealizedPnL   float64            `json:"realized_pnl"`
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	Trades        int                `json:"trades"`
	Inventory     map[string]float64 `json:"inventory"`
}

// RunSummary is the persisted artifact describing a finished (or stopped)
// simulation run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Mode       string         `json:"mode"`
	Seed       int64          `json:"seed"`
	State      string         `json:"state"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Ticks      int            `json:"ticks"`
	Trades     int            `json:"trades"`
	Rejected   int            `json:"rejected"`
	Faults     int            `json:"faults"`
	Agents     []AgentSummary `json:"agents"`
}
