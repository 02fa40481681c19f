// Package strategy provides concrete Strategy implementations: the
// on_market/on_signal/on_cancel contract the dispatcher drives.
package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/portfolio"
)

// MovingAverageCrossover trades the crossover of two simple moving
// averages of trade price: a bullish crossover (short MA moves above
// long MA) submits a buy, a bearish crossover a sell. Each crossover
// routes straight through the portfolio's risk gate rather than
// waiting on the dispatcher to replay a pushed Signal event — the
// pushed Signal event itself is kept only for traceability.
type MovingAverageCrossover struct {
	id          string
	shortPeriod int
	longPeriod  int
	orderQty    int64
	portfolio   *portfolio.Manager
	logger      zerolog.Logger

	priceHistory map[string][]float64
	crossState   map[string]crossState
}

type crossState int

const (
	crossNone crossState = iota
	crossAbove
	crossBelow
)

// NewMovingAverageCrossover builds a strategy trading orderQty shares
// per crossover signal, gated through pf.
func NewMovingAverageCrossover(id string, shortPeriod, longPeriod int, orderQty int64, pf *portfolio.Manager, logger zerolog.Logger) *MovingAverageCrossover {
	return &MovingAverageCrossover{
		id:           id,
		shortPeriod:  shortPeriod,
		longPeriod:   longPeriod,
		orderQty:     orderQty,
		portfolio:    pf,
		logger:       logger.With().Str("strategy_id", id).Logger(),
		priceHistory: make(map[string][]float64),
		crossState:   make(map[string]crossState),
	}
}

// OnMarket updates the symbol's price history, recomputes both moving
// averages, and on a fresh crossover routes a signed order through the
// portfolio's risk gate.
func (s *MovingAverageCrossover) OnMarket(market events.MarketEvent, queue *events.Queue) {
	symbolID, tracked := s.portfolio.SymbolID(market.Symbol)
	if !tracked {
		return
	}

	history := s.addPrice(market.Symbol, market.Price)
	if len(history) < s.longPeriod {
		return
	}

	shortMA := average(history[len(history)-s.shortPeriod:])
	longMA := average(history[len(history)-s.longPeriod:])

	next := crossNone
	switch {
	case shortMA > longMA:
		next = crossAbove
	case shortMA < longMA:
		next = crossBelow
	}
	prev := s.crossState[market.Symbol]
	s.crossState[market.Symbol] = next

	var signedQty int64
	switch {
	case prev == crossBelow && next == crossAbove:
		signedQty = s.orderQty
	case prev == crossAbove && next == crossBelow:
		signedQty = -s.orderQty
	default:
		return
	}

	reason := fmt.Sprintf("ma crossover: short=%.4f long=%.4f", shortMA, longMA)
	queue.Push(events.NewSignal(s.id, reason, market.TimestampMs))

	if _, err := s.portfolio.OnSignal(symbolID, signedQty, market.Price, market.TimestampMs, queue); err != nil {
		s.logger.Error().Err(err).Str("symbol", market.Symbol).Msg("signal rejected by portfolio validation")
	}
}

// OnSignal is a no-op here: the order was already placed synchronously
// from OnMarket. A strategy that wants to defer order placement until
// the Signal event is replayed through the queue would do that work
// here instead.
func (s *MovingAverageCrossover) OnSignal(signal events.SignalEvent, queue *events.Queue) {}

// OnCancel logs the cancellation; this strategy keeps no per-order
// state that needs unwinding on a cancel.
func (s *MovingAverageCrossover) OnCancel(cancel events.CancelEvent) {
	s.logger.Info().
		Uint64("order_id", cancel.Order.ID).
		Str("symbol", cancel.Order.Symbol).
		Str("reason", cancel.Reason).
		Msg("order cancelled")
}

func (s *MovingAverageCrossover) addPrice(symbol string, price float64) []float64 {
	history := append(s.priceHistory[symbol], price)
	if len(history) > s.longPeriod {
		history = history[len(history)-s.longPeriod:]
	}
	s.priceHistory[symbol] = history
	return history
}

func average(prices []float64) float64 {
	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}
