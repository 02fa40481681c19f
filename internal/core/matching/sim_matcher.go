// Package matching provides a concrete execution.Executor for
// backtesting and paper trading: a simulated venue that fills orders
// against the most recently observed tick price for their symbol
// rather than against other participants' resting liquidity. There is
// no real counterparty book, so "crossing the spread" is modeled as
// the order's limit (or stop) price being satisfied by the last trade
// price observed on that symbol.
package matching

import (
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/execution"
	"github.com/darkskele/quantengine/internal/core/orderbook"
	"github.com/darkskele/quantengine/pkg/types"
)

// SimMatcher implements execution.Executor. It embeds the shared
// execution.Engine for the emit_fill/emit_cancel aggregation algorithm
// and adds the matching semantics specific to a simulated book: market
// orders fill immediately at the last price, limit orders fill when
// the last price crosses their limit (else rest or cancel per flag),
// and stop orders use their single Price as both stop and limit level:
// a stop-market fills at the tick price once the stop is reached, and a
// stop-limit fills only on a tick that both reaches the stop and
// crosses the limit. A reached stop is not remembered between ticks.
type SimMatcher struct {
	*execution.Engine
	logger zerolog.Logger

	lastPrice map[string]float64
	// resting indexes live order ids by symbol so OnMarket can
	// re-evaluate only the orders a tick could plausibly affect,
	// without scanning the whole order store.
	resting map[string]map[uint64]struct{}
}

// NewSimMatcher constructs a matcher backed by store.
func NewSimMatcher(store *orderbook.Store, logger zerolog.Logger) *SimMatcher {
	return &SimMatcher{
		Engine:    execution.NewEngine(store, logger),
		logger:    logger.With().Str("component", "sim_matcher").Logger(),
		lastPrice: make(map[string]float64),
		resting:   make(map[string]map[uint64]struct{}),
	}
}

var _ execution.Executor = (*SimMatcher)(nil)

// OnOrder dispatches on order type. The ReduceOnly flag is not
// enforced: neither the matcher nor the portfolio's risk gate reads it.
// Position-size limits are applied by the portfolio manager
// (can_execute); the matcher only applies fill/rest/cancel semantics.
func (m *SimMatcher) OnOrder(order events.OrderEvent, queue *events.Queue) {
	switch order.Type {
	case types.Market:
		m.fillMarket(order, queue)
	case types.Limit:
		m.handleLimit(order, queue)
	case types.StopMarket, types.StopLimit:
		m.handleStop(order, queue)
	default:
		m.EmitCancel(order, "unrecognized order type", queue, order.SubmittedAt)
	}
}

// OnMarket records the new last price and re-evaluates every order
// resting against that symbol: limit orders that now cross fill in
// full (no partial-depth model — full-fill-at-best-price is the
// simplification the simulated venue makes), a StopMarket whose stop
// is reached fills at the tick price, and a StopLimit fills at its
// limit only when the same tick both reaches the stop and crosses the
// limit.
func (m *SimMatcher) OnMarket(market events.MarketEvent, queue *events.Queue) {
	m.lastPrice[market.Symbol] = market.Price

	ids := m.resting[market.Symbol]
	if len(ids) == 0 {
		return
	}
	pending := make([]uint64, 0, len(ids))
	for id := range ids {
		pending = append(pending, id)
	}

	for _, id := range pending {
		state := m.GetOrder(id)
		if state == nil {
			delete(ids, id)
			continue
		}
		order := state.Order
		remaining := order.Quantity - state.FilledQty

		switch order.Type {
		case types.Limit:
			if m.crosses(order, market.Price) {
				delete(ids, id)
				m.EmitFill(order, remaining, order.Price, queue, market.TimestampMs)
			}
		case types.StopMarket:
			if m.stopTriggered(order, market.Price) {
				delete(ids, id)
				m.EmitFill(order, remaining, market.Price, queue, market.TimestampMs)
			}
		case types.StopLimit:
			if m.stopTriggered(order, market.Price) && m.crosses(order, market.Price) {
				delete(ids, id)
				m.EmitFill(order, remaining, order.Price, queue, market.TimestampMs)
			}
			// Triggered-but-not-crossing stop-limits simply stay
			// resting; they are re-checked on every subsequent tick.
		}
	}
}

func (m *SimMatcher) fillMarket(order events.OrderEvent, queue *events.Queue) {
	price, ok := m.lastPrice[order.Symbol]
	if !ok {
		m.EmitCancel(order, "no market data for symbol", queue, order.SubmittedAt)
		return
	}
	m.EmitFill(order, order.Quantity, price, queue, order.SubmittedAt)
}

func (m *SimMatcher) handleLimit(order events.OrderEvent, queue *events.Queue) {
	price, haveMarket := m.lastPrice[order.Symbol]
	crosses := haveMarket && m.crosses(order, price)

	if crosses {
		if order.Flags.Has(types.PostOnly) {
			m.EmitCancel(order, "post-only order would have crossed the market", queue, order.SubmittedAt)
			return
		}
		m.EmitFill(order, order.Quantity, order.Price, queue, order.SubmittedAt)
		return
	}

	switch {
	case order.Flags.Has(types.FOK):
		m.EmitCancel(order, "fill-or-kill could not fill in full at submission", queue, order.SubmittedAt)
	case order.Flags.Has(types.IOC):
		m.EmitCancel(order, "immediate-or-cancel found no match at submission", queue, order.SubmittedAt)
	default:
		m.rest(order)
	}
}

func (m *SimMatcher) handleStop(order events.OrderEvent, queue *events.Queue) {
	price, haveMarket := m.lastPrice[order.Symbol]
	if haveMarket && m.stopTriggered(order, price) {
		if order.Type == types.StopMarket {
			m.EmitFill(order, order.Quantity, price, queue, order.SubmittedAt)
			return
		}
		// StopLimit, triggered at submission: fall through to the
		// same crossing check a plain limit order gets.
		m.handleLimit(order, queue)
		return
	}

	if order.Flags.Has(types.IOC) || order.Flags.Has(types.FOK) {
		m.EmitCancel(order, "stop condition not met at submission", queue, order.SubmittedAt)
		return
	}
	m.rest(order)
}

func (m *SimMatcher) rest(order events.OrderEvent) {
	m.Store().Emplace(orderbook.OrderState{Order: order})
	if m.resting[order.Symbol] == nil {
		m.resting[order.Symbol] = make(map[uint64]struct{})
	}
	m.resting[order.Symbol][order.ID] = struct{}{}
}

// crosses reports whether price satisfies order's limit: a buy crosses
// when the market trades at or below the limit, a sell when it trades
// at or above it.
func (m *SimMatcher) crosses(order events.OrderEvent, price float64) bool {
	if order.Side == types.Buy {
		return price <= order.Price
	}
	return price >= order.Price
}

// stopTriggered reports whether price has reached order's stop level:
// a buy-stop triggers on a rally through the stop, a sell-stop on a
// decline through it.
func (m *SimMatcher) stopTriggered(order events.OrderEvent, price float64) bool {
	if order.Side == types.Buy {
		return price >= order.Price
	}
	return price <= order.Price
}
