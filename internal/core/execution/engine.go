// Package execution implements the engine-side half of order handling:
// the fill/cancel aggregation that every concrete matcher shares.
// Concrete executors (see internal/core/matching) embed *Engine and call
// its EmitFill/EmitCancel helpers rather than touching the order store
// directly, so the aggregation algorithm lives in exactly one place.
package execution

import (
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/orderbook"
)

// Executor is implemented by a concrete matching strategy. OnOrder is
// called once per incoming Order event; OnMarket is called once per
// incoming Market event so the executor can re-evaluate resting orders
// against the new price. Either may push zero or more Fill/Cancel
// events onto queue before returning.
type Executor interface {
	OnOrder(order events.OrderEvent, queue *events.Queue)
	OnMarket(market events.MarketEvent, queue *events.Queue)
}

// Engine is the base execution engine: it owns the order store and
// implements the fill/cancel aggregation contract every concrete
// executor shares. It does not itself decide what fills — that is the
// concrete Executor's job — it only records the consequences.
type Engine struct {
	store  *orderbook.Store
	logger zerolog.Logger
}

// NewEngine wraps store with the shared fill/cancel aggregation logic.
func NewEngine(store *orderbook.Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger.With().Str("component", "execution").Logger()}
}

// Store returns the underlying order store.
func (e *Engine) Store() *orderbook.Store {
	return e.store
}

// GetOrder returns the live state of order id, or nil if it is absent
// (never submitted, or already terminal and moved to the ledger).
func (e *Engine) GetOrder(id uint64) *orderbook.OrderState {
	return e.store.Get(id)
}

// EmitFill records a fill against order, recomputing its weighted
// average execution price, and pushes the corresponding Fill event.
// If order has no existing state it is emplaced first — the initial
// fill path for an order that never rested on the book. Once the
// cumulative filled quantity reaches or exceeds the order's requested
// quantity the order is moved to the historical ledger; filled_qty may
// exceed the requested quantity (an accepted over-fill quirk), in
// which case it is logged and the order is still retired.
func (e *Engine) EmitFill(order events.OrderEvent, filledQty int64, execPrice float64, queue *events.Queue, timestampMs int64) {
	state := e.store.Get(order.ID)
	if state == nil {
		e.store.Emplace(orderbook.OrderState{Order: order})
		state = e.store.Get(order.ID)
	}

	prevFilled := state.FilledQty
	state.FilledQty += filledQty
	if state.FilledQty > 0 {
		totalValue := state.AvgPrice*float64(prevFilled) + execPrice*float64(filledQty)
		state.AvgPrice = totalValue / float64(state.FilledQty)
	} else {
		state.AvgPrice = 0
	}

	if state.FilledQty >= order.Quantity {
		if state.FilledQty > order.Quantity {
			e.logger.Warn().
				Uint64("order_id", order.ID).
				Int64("filled_qty", state.FilledQty).
				Int64("quantity", order.Quantity).
				Msg("order over-filled")
		}
		e.store.Inactive(order.ID)
	}

	queue.Push(events.NewFill(events.FillEvent{
		Order:       order,
		FilledQty:   filledQty,
		TotalQty:    order.Quantity,
		Side:        order.Side,
		Price:       execPrice,
		TimestampMs: timestampMs,
	}))
}

// EmitCancel retires order without a fill and pushes the corresponding
// Cancel event. No-op on the store side if the order was never
// emplaced (e.g. an IOC order rejected before resting).
func (e *Engine) EmitCancel(order events.OrderEvent, reason string, queue *events.Queue, timestampMs int64) {
	e.store.Inactive(order.ID)
	queue.Push(events.NewCancel(events.CancelEvent{
		Order:       order,
		Reason:      reason,
		TimestampMs: timestampMs,
	}))
}
