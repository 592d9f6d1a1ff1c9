package domain

import "time"

// EventType discriminates typed events on the wire. The shape
// {type, timestamp, symbol, ...} is a stable contract consumed by the
// dashboard and the streaming API.
type EventType string

const (
	EventTick     EventType = "tick"
	EventOrder    EventType = "order"
	EventTrade    EventType = "trade"
	EventPosition EventType = "position"
	EventFault    EventType = "fault"
	EventWarning  EventType = "warning"
	EventSummary  EventType = "summary"
)

// PositionUpdate reflects one agent's post-step book-keeping.
type PositionUpdate struct {
	AgentID       string  `json:"agent_id"`
	Ticker        string  `json:"ticker"`
	Qty           float64 `json:"qty"`
	Cash          float64 `json:"cash"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Event is the typed record published to the event sink by both the
// simulation loop and the scenario projector. Exactly one payload pointer is
// set, matching Type.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol,omitempty"`
	RunID     string    `json:"run_id,omitempty"`

	Tick     *Tick           `json:"tick,omitempty"`
	Order    *Order          `json:"order,omitempty"`
	Trade    *Trade          `json:"trade,omitempty"`
	Position *PositionUpdate `json:"position,omitempty"`
	Summary  *RunSummary     `json:"summary,omitempty"`
	Message  string          `json:"message,omitempty"`
}
