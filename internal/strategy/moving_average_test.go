package strategy

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/portfolio"
	"github.com/darkskele/quantengine/internal/core/risk"
)

func newTestPortfolio() *portfolio.Manager {
	limits := []risk.Limits{{MaxOrderSize: 1000, MaxPositions: 10000, MaxNotional: 1e9}}
	return portfolio.New([]string{"TEST"}, limits, 1_000_000, zerolog.Nop())
}

func feed(t *testing.T, s *MovingAverageCrossover, q *events.Queue, prices []float64) {
	t.Helper()
	for i, p := range prices {
		s.OnMarket(events.MarketEvent{Symbol: "TEST", Price: p, TimestampMs: int64(i)}, q)
	}
}

func TestNoSignalUntilEnoughHistory(t *testing.T) {
	pf := newTestPortfolio()
	s := NewMovingAverageCrossover("ma1", 2, 3, 10, pf, zerolog.Nop())
	q := events.NewQueue(0)

	feed(t, s, q, []float64{100, 101})
	if !q.Empty() {
		t.Fatal("should not signal before long period is satisfied")
	}
}

func TestUntrackedSymbolIsIgnored(t *testing.T) {
	pf := newTestPortfolio()
	s := NewMovingAverageCrossover("ma1", 2, 3, 10, pf, zerolog.Nop())
	q := events.NewQueue(0)

	s.OnMarket(events.MarketEvent{Symbol: "OTHER", Price: 100, TimestampMs: 1}, q)
	if !q.Empty() {
		t.Fatal("market data for an untracked symbol must produce nothing")
	}
}

func TestBullishCrossoverPlacesBuyOrder(t *testing.T) {
	pf := newTestPortfolio()
	s := NewMovingAverageCrossover("ma1", 2, 3, 10, pf, zerolog.Nop())
	q := events.NewQueue(0)

	// Declining then rising prices so the short MA crosses from below
	// to above the long MA partway through the feed.
	feed(t, s, q, []float64{100, 99, 98, 105, 110, 115})

	var sawOrder bool
	for !q.Empty() {
		ev, err := q.Pop()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind == events.KindOrder && ev.Order.Side.Sign() > 0 {
			sawOrder = true
		}
	}
	if !sawOrder {
		t.Fatal("expected a buy order to be placed on a bullish crossover")
	}
}

func TestBearishCrossoverPlacesSellOrder(t *testing.T) {
	pf := newTestPortfolio()
	s := NewMovingAverageCrossover("ma1", 2, 3, 10, pf, zerolog.Nop())
	q := events.NewQueue(0)

	feed(t, s, q, []float64{100, 101, 102, 95, 90, 85})

	var sawOrder bool
	for !q.Empty() {
		ev, err := q.Pop()
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind == events.KindOrder && ev.Order.Side.Sign() < 0 {
			sawOrder = true
		}
	}
	if !sawOrder {
		t.Fatal("expected a sell order to be placed on a bearish crossover")
	}
}

func TestOnCancelDoesNotPanic(t *testing.T) {
	pf := newTestPortfolio()
	s := NewMovingAverageCrossover("ma1", 2, 3, 10, pf, zerolog.Nop())
	s.OnCancel(events.CancelEvent{Order: events.OrderEvent{ID: 1, Symbol: "TEST"}, Reason: "test"})
}
