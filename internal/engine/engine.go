// Package engine implements the matching engine: per-tick order aggregation,
// order-imbalance price formation, greedy fill pairing, and agent
// book-keeping with conservation checks.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// epsilon guards the imbalance denominator when no quantity is present.
const epsilon = 1e-12

// tolerance for conservation checks; float accumulation across a full batch
// stays well under this for realistic quantities.
const conservationTol = 1e-6

// Config holds matching engine parameters.
type Config struct {
	// SensitivityK bounds the per-tick price move: new/prior stays within
	// [1-k, 1+k] regardless of order volume extremes.
	SensitivityK float64
	// FeeRate is charged per side on notional. Fees accumulate in the
	// engine's fee account so cash remains conserved overall.
	FeeRate float64
}

// Rejection pairs a rejected order with the reason it was refused.
type Rejection struct {
	Order domain.Order
	Err   error
}

// StepResult is the outcome of one matching step for one ticker.
type StepResult struct {
	NewPrice float64
	Trades   []domain.Trade
	Rejected []Rejection
}

// Engine aggregates agent orders per tick and advances agent state. It is
// confined to the simulation loop goroutine; all mutation happens inside
// Step, so decisions taken before Step observe a consistent snapshot.
type Engine struct {
	cfg     Config
	tickers map[string]bool
	states  map[string]*domain.AgentState
	order   []string // registration order, for deterministic iteration

	// Implicit market counterparty book. Residual quantity fills against
	// this account so conservation is checkable across every trade.
	market *domain.AgentState

	// Average cost basis per agent per ticker, for realized PnL.
	costBasis map[string]map[string]float64

	fees   float64
	logger *slog.Logger
}

// New creates an Engine for the given ticker universe.
func New(cfg Config, universe []string, logger *slog.Logger) *Engine {
	tickers := make(map[string]bool, len(universe))
	for _, t := range universe {
		tickers[t] = true
	}
	return &Engine{
		cfg:       cfg,
		tickers:   tickers,
		states:    make(map[string]*domain.AgentState),
		market:    domain.NewAgentState(domain.MarketCounterparty, 0),
		costBasis: make(map[string]map[string]float64),
		logger:    logger.With(slog.String("component", "matching_engine")),
	}
}

// Register adds an agent's state to the engine's books. States are owned by
// the engine between registration and the end of the run; agents only ever
// see clones.
func (e *Engine) Register(state *domain.AgentState) {
	if _, ok := e.states[state.AgentID]; !ok {
		e.order = append(e.order, state.AgentID)
	}
	e.states[state.AgentID] = state
}

// State returns a snapshot of the named agent's state.
func (e *Engine) State(agentID string) (domain.AgentState, bool) {
	s, ok := e.states[agentID]
	if !ok {
		return domain.AgentState{}, false
	}
	return s.Clone(), true
}

// States returns snapshots of all registered agent states in registration
// order.
func (e *Engine) States() []domain.AgentState {
	out := make([]domain.AgentState, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.states[id].Clone())
	}
	return out
}

// Fees returns the total fees collected so far.
func (e *Engine) Fees() float64 { return e.fees }

// Step executes one matching round for a single ticker. Orders must all be
// for the given ticker and are processed in arrival order; with a fixed
// agent ordering the result is fully deterministic.
//
// Invalid orders (non-positive quantity, unknown ticker, non-finite limit)
// are rejected individually; the step itself only fails on an internal
// conservation breach, which is fatal to the run.
func (e *Engine) Step(ticker string, orders []domain.Order, priorPrice float64, ts time.Time) (StepResult, error) {
	res := StepResult{NewPrice: priorPrice}

	valid := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if err := e.validate(ticker, o); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Order: o, Err: err})
			e.logger.Warn("order rejected",
				slog.String("agent", o.AgentID),
				slog.String("ticker", o.Ticker),
				slog.Float64("qty", o.Qty),
				slog.String("reason", err.Error()),
			)
			continue
		}
		valid = append(valid, o)
	}

	if len(valid) == 0 {
		return res, nil
	}

	// Price formation: bounded order-imbalance model.
	var buyQty, sellQty float64
	for _, o := range valid {
		if o.Side == domain.OrderSideBuy {
			buyQty += o.Qty
		} else {
			sellQty += o.Qty
		}
	}
	imbalance := (buyQty - sellQty) / (buyQty + sellQty + epsilon)
	newPrice := priorPrice * (1 + e.cfg.SensitivityK*imbalance)
	res.NewPrice = newPrice

	// Fill eligibility at the formed price. Limit orders on the wrong side
	// of the new price do not execute and are dropped; there is no
	// carryover across ticks in the baseline model.
	buys := make([]domain.Order, 0, len(valid))
	sells := make([]domain.Order, 0, len(valid))
	for _, o := range valid {
		if !marketable(o, newPrice) {
			continue
		}
		if o.Side == domain.OrderSideBuy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}

	before := e.snapshotBalances()

	trades := e.pair(ticker, buys, sells, newPrice, ts)
	res.Trades = trades

	if err := e.checkConservation(before, ticker); err != nil {
		return res, err
	}
	return res, nil
}

// StepAll partitions a mixed batch by ticker (preserving arrival order
// within each ticker) and runs one Step per ticker present in priors.
// It returns the new price per ticker and the concatenated trade tape.
func (e *Engine) StepAll(orders []domain.Order, priors map[string]float64, ts time.Time) (map[string]float64, []domain.Trade, []Rejection, error) {
	byTicker := make(map[string][]domain.Order)
	var tickerOrder []string
	for _, o := range orders {
		if _, seen := byTicker[o.Ticker]; !seen {
			tickerOrder = append(tickerOrder, o.Ticker)
		}
		byTicker[o.Ticker] = append(byTicker[o.Ticker], o)
	}

	prices := make(map[string]float64, len(priors))
	for t, p := range priors {
		prices[t] = p
	}

	var trades []domain.Trade
	var rejected []Rejection
	for _, t := range tickerOrder {
		prior, ok := priors[t]
		if !ok {
			// Unknown ticker for the whole partition: reject each order.
			for _, o := range byTicker[t] {
				rejected = append(rejected, Rejection{Order: o, Err: domain.ErrUnknownTicker})
			}
			continue
		}
		sr, err := e.Step(t, byTicker[t], prior, ts)
		rejected = append(rejected, sr.Rejected...)
		if err != nil {
			return prices, trades, rejected, err
		}
		prices[t] = sr.NewPrice
		trades = append(trades, sr.Trades...)
	}
	return prices, trades, rejected, nil
}

// MarkToMarket refreshes every agent's unrealized PnL at the given prices.
func (e *Engine) MarkToMarket(prices map[string]float64) {
	for _, id := range e.order {
		s := e.states[id]
		var unreal float64
		for ticker, qty := range s.Inventory {
			px, ok := prices[ticker]
			if !ok {
				continue
			}
			unreal += qty * (px - e.basis(id, ticker))
		}
		s.UnrealizedPnL = unreal
	}
}

func (e *Engine) validate(ticker string, o domain.Order) error {
	if o.Qty <= 0 || math.IsNaN(o.Qty) || math.IsInf(o.Qty, 0) {
		return fmt.Errorf("%w: qty %v", domain.ErrInvalidOrder, o.Qty)
	}
	if o.Ticker != ticker || !e.tickers[o.Ticker] {
		return fmt.Errorf("%w: ticker %q", domain.ErrInvalidOrder, o.Ticker)
	}
	if o.Type == domain.OrderTypeLimit {
		if math.IsNaN(o.LimitPrice) || math.IsInf(o.LimitPrice, 0) || o.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit price %v", domain.ErrInvalidOrder, o.LimitPrice)
		}
	}
	if o.Side != domain.OrderSideBuy && o.Side != domain.OrderSideSell {
		return fmt.Errorf("%w: side %q", domain.ErrInvalidOrder, o.Side)
	}
	if _, ok := e.states[o.AgentID]; !ok {
		return fmt.Errorf("%w: unregistered agent %q", domain.ErrInvalidOrder, o.AgentID)
	}
	return nil
}

func marketable(o domain.Order, price float64) bool {
	if o.Type != domain.OrderTypeLimit {
		return true
	}
	if o.Side == domain.OrderSideBuy {
		return o.LimitPrice >= price-epsilon
	}
	return o.LimitPrice <= price+epsilon
}

// pair greedily crosses buy and sell quantity in arrival order at the step
// price; residual on either side fills against the market counterparty so
// every marketable order fully executes.
func (e *Engine) pair(ticker string, buys, sells []domain.Order, price float64, ts time.Time) []domain.Trade {
	var trades []domain.Trade

	bi, si := 0, 0
	bRem, sRem := remaining(buys, bi), remaining(sells, si)
	for bi < len(buys) && si < len(sells) {
		qty := math.Min(bRem, sRem)
		trades = append(trades, e.execute(ticker, qty, price, buys[bi].AgentID, sells[si].AgentID, ts))
		bRem -= qty
		sRem -= qty
		if bRem <= epsilon {
			bi++
			bRem = remaining(buys, bi)
		}
		if sRem <= epsilon {
			si++
			sRem = remaining(sells, si)
		}
	}

	// Residual buys against the market book.
	for bi < len(buys) {
		if bRem > epsilon {
			trades = append(trades, e.execute(ticker, bRem, price, buys[bi].AgentID, domain.MarketCounterparty, ts))
		}
		bi++
		bRem = remaining(buys, bi)
	}
	// Residual sells against the market book.
	for si < len(sells) {
		if sRem > epsilon {
			trades = append(trades, e.execute(ticker, sRem, price, domain.MarketCounterparty, sells[si].AgentID, ts))
		}
		si++
		sRem = remaining(sells, si)
	}
	return trades
}

func remaining(orders []domain.Order, i int) float64 {
	if i < len(orders) {
		return orders[i].Qty
	}
	return 0
}

// execute applies one fill to both counterparties and returns the trade
// record. State updates for a fill are atomic with respect to the step: no
// agent reads engine state until Step returns.
func (e *Engine) execute(ticker string, qty, price float64, buyer, seller string, ts time.Time) domain.Trade {
	notional := qty * price
	fee := notional * e.cfg.FeeRate

	e.apply(buyer, ticker, qty, price, -notional-fee)
	e.apply(seller, ticker, -qty, price, notional-fee)
	e.fees += 2 * fee

	return domain.Trade{
		Ticker:      ticker,
		Qty:         qty,
		Price:       price,
		BuyAgentID:  buyer,
		SellAgentID: seller,
		Timestamp:   ts,
	}
}

// apply adjusts one side's cash and inventory and rolls the average cost
// basis forward, realizing PnL on position-reducing fills.
func (e *Engine) apply(agentID, ticker string, qtyDelta, price, cashDelta float64) {
	s := e.stateFor(agentID)
	s.Cash += cashDelta
	prev := s.Inventory[ticker]
	next := prev + qtyDelta
	s.Inventory[ticker] = next
	s.Trades++

	basis := e.basisMap(agentID)
	switch {
	case prev == 0 || sameSign(prev, qtyDelta):
		// Opening or adding: weighted-average cost.
		total := math.Abs(prev) + math.Abs(qtyDelta)
		if total > 0 {
			basis[ticker] = (basis[ticker]*math.Abs(prev) + price*math.Abs(qtyDelta)) / total
		}
	case sameSign(prev, next) || next == 0:
		// Reducing: realize against the existing basis.
		closed := math.Abs(qtyDelta)
		if prev > 0 {
			s.RealizedPnL += closed * (price - basis[ticker])
		} else {
			s.RealizedPnL += closed * (basis[ticker] - price)
		}
		if next == 0 {
			delete(basis, ticker)
		}
	default:
		// Flipping through zero: realize the closed leg, restart basis.
		closed := math.Abs(prev)
		if prev > 0 {
			s.RealizedPnL += closed * (price - basis[ticker])
		} else {
			s.RealizedPnL += closed * (basis[ticker] - price)
		}
		basis[ticker] = price
	}
}

func (e *Engine) stateFor(agentID string) *domain.AgentState {
	if agentID == domain.MarketCounterparty {
		return e.market
	}
	return e.states[agentID]
}

func (e *Engine) basisMap(agentID string) map[string]float64 {
	m, ok := e.costBasis[agentID]
	if !ok {
		m = make(map[string]float64)
		e.costBasis[agentID] = m
	}
	return m
}

func (e *Engine) basis(agentID, ticker string) float64 {
	return e.costBasis[agentID][ticker]
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

type balances struct {
	cash      float64
	fees      float64
	inventory map[string]float64
}

func (e *Engine) snapshotBalances() balances {
	b := balances{fees: e.fees, inventory: make(map[string]float64)}
	accounts := append([]*domain.AgentState{e.market}, e.statesSlice()...)
	for _, s := range accounts {
		b.cash += s.Cash
		for t, q := range s.Inventory {
			b.inventory[t] += q
		}
	}
	return b
}

func (e *Engine) statesSlice() []*domain.AgentState {
	out := make([]*domain.AgentState, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.states[id])
	}
	return out
}

// checkConservation verifies that the step created no cash or inventory out
// of thin air: the change in total cash plus collected fees must be zero,
// and the net inventory change per ticker must be zero.
func (e *Engine) checkConservation(before balances, ticker string) error {
	after := e.snapshotBalances()

	cashDrift := (after.cash + after.fees) - (before.cash + before.fees)
	if math.Abs(cashDrift) > conservationTol {
		return fmt.Errorf("%w: cash drift %.9f on %s", domain.ErrInvariantViolation, cashDrift, ticker)
	}
	invDrift := after.inventory[ticker] - before.inventory[ticker]
	if math.Abs(invDrift) > conservationTol {
		return fmt.Errorf("%w: inventory drift %.9f on %s", domain.ErrInvariantViolation, invDrift, ticker)
	}
	return nil
}
