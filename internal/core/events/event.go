// Package events defines the engine's tagged-union event model and the
// single-consumer FIFO queue that carries events between the dispatcher
// and its handlers.
//
// The event set is closed and small (Market, Signal, Order, Fill,
// Cancel), so it is modeled as one flat struct with a Kind discriminant
// rather than an interface hierarchy with virtual dispatch: on the
// dispatcher's hot path there is no allocation or dynamic dispatch to
// decide which handler runs, just a switch on Kind.
package events

import "github.com/darkskele/quantengine/pkg/types"

// Kind discriminates which field of Event is populated.
type Kind int

const (
	KindMarket Kind = iota
	KindSignal
	KindOrder
	KindFill
	KindCancel
)

func (k Kind) String() string {
	switch k {
	case KindMarket:
		return "market"
	case KindSignal:
		return "signal"
	case KindOrder:
		return "order"
	case KindFill:
		return "fill"
	case KindCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// MarketEvent is a single trade observation from the market source.
type MarketEvent struct {
	Symbol         string
	Price          float64
	Quantity       float64
	TimestampMs    int64
	BuyerInitiated bool
}

// SignalEvent is an opaque carrier that triggers a strategy's signal
// handler. It has no required payload; StrategyID and Reason are
// optional context a strategy may attach for its own bookkeeping.
type SignalEvent struct {
	StrategyID  string
	Reason      string
	TimestampMs int64
}

// OrderEvent is immutable once constructed. Price is ignored when
// Type is types.Market. Quantity is the total requested quantity and
// is always a positive integer (fractional quantities are out of
// scope).
type OrderEvent struct {
	Symbol string
	ID     uint64
	// ClientOrderID is a UUID assigned at submission time, independent
	// of the monotonic ID used as the order store's key. It exists
	// purely for external correlation (audit ledger rows, the control
	// API's order lookup) and is never used internally to identify or
	// look up an order.
	ClientOrderID string
	Quantity      int64
	Side          types.Side
	Price         float64
	Type          types.OrderType
	Flags         types.Flags
	SubmittedAt   int64
	// Trigger is the market event that caused this order to be
	// submitted, kept for traceability. Nil for orders submitted
	// directly off a signal with no specific triggering tick.
	Trigger *MarketEvent
}

// FillEvent reports partial or full execution of an order. FilledQty
// may be less than TotalQty (partial), equal (full), or — in the
// over-fill case the spec accepts as a protocol quirk of upstream
// reporting — greater than TotalQty.
type FillEvent struct {
	Order       OrderEvent
	FilledQty   int64
	TotalQty    int64
	Side        types.Side
	Price       float64
	TimestampMs int64
}

// CancelEvent reports that an order was removed from the book without
// reaching a full fill.
type CancelEvent struct {
	Order       OrderEvent
	Reason      string
	TimestampMs int64
}

// Event is the fixed-size tagged union flowing through the queue.
// Exactly one of Market/Signal/Order/Fill/Cancel is meaningful,
// selected by Kind.
type Event struct {
	Kind   Kind
	Market MarketEvent
	Signal SignalEvent
	Order  OrderEvent
	Fill   FillEvent
	Cancel CancelEvent
}

// NewMarket constructs a Market event from a source tick.
func NewMarket(t types.Tick) Event {
	return Event{
		Kind: KindMarket,
		Market: MarketEvent{
			Symbol:         t.Symbol,
			Price:          t.Price,
			Quantity:       t.Quantity,
			TimestampMs:    t.TimestampMs,
			BuyerInitiated: t.BuyerInitiated,
		},
	}
}

// NewSignal constructs a Signal event.
func NewSignal(strategyID, reason string, timestampMs int64) Event {
	return Event{
		Kind: KindSignal,
		Signal: SignalEvent{
			StrategyID:  strategyID,
			Reason:      reason,
			TimestampMs: timestampMs,
		},
	}
}

// NewOrder constructs an Order event.
func NewOrder(o OrderEvent) Event {
	return Event{Kind: KindOrder, Order: o}
}

// NewFill constructs a Fill event.
func NewFill(f FillEvent) Event {
	return Event{Kind: KindFill, Fill: f}
}

// NewCancel constructs a Cancel event.
func NewCancel(c CancelEvent) Event {
	return Event{Kind: KindCancel, Cancel: c}
}
