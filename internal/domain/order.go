package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType distinguishes market orders from price-limited orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce describes how long an order remains eligible. In the baseline
// matching model every order lives for exactly one tick, so DAY and IOC
// behave identically; the field is carried for the wire contract.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFIOC TimeInForce = "IOC"
	TIFGTC TimeInForce = "GTC"
)

// MarketCounterparty is the synthetic agent id credited with any residual
// quantity that cannot be paired against real agent flow.
const MarketCounterparty = "MARKET"

// Order is created by an agent during a tick and consumed exactly once by the
// matching engine in the same tick. It is never mutated after creation.
type Order struct {
	AgentID     string      `json:"agent_id"`
	Ticker      string      `json:"ticker"`
	Side        OrderSide   `json:"side"`
	Qty         float64     `json:"qty"`
	Type        OrderType   `json:"order_type"`
	LimitPrice  float64     `json:"price_limit,omitempty"`
	TimeInForce TimeInForce `json:"time_in_force,omitempty"`
}

// Trade records one fill produced by the matching engine. Trades are
// immutable and append-only. SellAgentID (or BuyAgentID) is
// MarketCounterparty when the opposite side was the implicit market book.
type Trade struct {
	Ticker      string    `json:"ticker"`
	Qty         float64   `json:"qty"`
	Price       float64   `json:"price"`
	BuyAgentID  string    `json:"buy_agent_id"`
	SellAgentID string    `json:"sell_agent_id"`
	Timestamp   time.Time `json:"timestamp"`
}
