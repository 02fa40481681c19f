package portfolio

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/risk"
)

func newTestManager(cash float64) *Manager {
	limits := []risk.Limits{
		{MaxOrderSize: 100, MaxPositions: 200, MaxNotional: 100000},
	}
	return New([]string{"TEST"}, limits, cash, zerolog.Nop())
}

func TestOnSignalOutOfRange(t *testing.T) {
	m := newTestManager(10000)
	q := events.NewQueue(0)
	if _, err := m.OnSignal(5, 10, 100, 1, q); err != ErrOutOfRange {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
}

func TestOnSignalInvalidPrice(t *testing.T) {
	m := newTestManager(10000)
	q := events.NewQueue(0)
	if _, err := m.OnSignal(0, 10, 0, 1, q); err != ErrInvalidPrice {
		t.Fatalf("got %v, want ErrInvalidPrice", err)
	}
	if _, err := m.OnSignal(0, 10, -5, 1, q); err != ErrInvalidPrice {
		t.Fatalf("got %v, want ErrInvalidPrice", err)
	}
}

func TestOnSignalInvalidQuantity(t *testing.T) {
	m := newTestManager(10000)
	q := events.NewQueue(0)
	if _, err := m.OnSignal(0, 0, 100, 1, q); err != ErrInvalidQuantity {
		t.Fatalf("got %v, want ErrInvalidQuantity", err)
	}
}

func TestOnSignalAcceptedPushesOrder(t *testing.T) {
	m := newTestManager(10000)
	q := events.NewQueue(0)

	id, err := m.OnSignal(0, 10, 100, 1, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected nonzero allocated order id")
	}
	ev, perr := q.Pop()
	if perr != nil || ev.Kind != events.KindOrder || ev.Order.Quantity != 10 {
		t.Fatalf("expected order event for qty 10, got %+v err=%v", ev, perr)
	}
	if m.pendingQty[0] != 10 {
		t.Errorf("pending qty = %d, want 10", m.pendingQty[0])
	}
	if ev.Order.ClientOrderID == "" {
		t.Error("expected a non-empty client order id")
	}
}

func TestOnSignalRejectedByOrderSizeLimit(t *testing.T) {
	m := newTestManager(100000)
	q := events.NewQueue(0)

	id, err := m.OnSignal(0, 500, 100, 1, q) // exceeds MaxOrderSize of 100
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 0 {
		t.Fatalf("rejected signal should not allocate an id, got %d", id)
	}
	if !q.Empty() {
		t.Fatal("rejected signal must not push an order")
	}
	if m.rejectCount != 1 {
		t.Errorf("reject count = %d, want 1", m.rejectCount)
	}
}

func TestOnSignalRejectedByCashGuard(t *testing.T) {
	m := newTestManager(500) // cash too low for a 10 * 100 buy
	q := events.NewQueue(0)

	_, err := m.OnSignal(0, 10, 100, 1, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Empty() {
		t.Fatal("cash-insufficient buy must be rejected, not emitted")
	}
}

func TestOnFillOpeningPosition(t *testing.T) {
	m := newTestManager(10000)
	if err := m.OnFill(0, 10, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := m.Position(0)
	if pos.Quantity != 10 || pos.AvgCost != 100 {
		t.Fatalf("position = %+v, want qty 10 avg 100", pos)
	}
	if m.Cash() != 10000-1000 {
		t.Errorf("cash = %v, want %v", m.Cash(), 10000-1000)
	}
}

func TestOnFillAddingSameSide(t *testing.T) {
	m := newTestManager(100000)
	m.OnFill(0, 10, 100)
	m.OnFill(0, 10, 110)

	pos := m.Position(0)
	wantAvg := (10.0*100 + 10.0*110) / 20.0
	if pos.Quantity != 20 || pos.AvgCost != wantAvg {
		t.Fatalf("position = %+v, want qty 20 avg %v", pos, wantAvg)
	}
}

func TestOnFillReducingRealizesPnL(t *testing.T) {
	m := newTestManager(100000)
	m.OnFill(0, 10, 100)  // open long 10 @ 100
	m.OnFill(0, -4, 120) // sell 4 @ 120

	pos := m.Position(0)
	if pos.Quantity != 6 {
		t.Fatalf("quantity = %d, want 6", pos.Quantity)
	}
	if pos.AvgCost != 100 {
		t.Fatalf("avg cost should be unchanged on partial close, got %v", pos.AvgCost)
	}
	wantRealized := 4.0 * (120 - 100)
	if pos.RealizedPnL != wantRealized {
		t.Fatalf("realized pnl = %v, want %v", pos.RealizedPnL, wantRealized)
	}
}

func TestOnFillClosingFlatResetsAvgCost(t *testing.T) {
	m := newTestManager(100000)
	m.OnFill(0, 10, 100)
	m.OnFill(0, -10, 120)

	pos := m.Position(0)
	if pos.Quantity != 0 || pos.AvgCost != 0 {
		t.Fatalf("position = %+v, want flat and avg cost reset", pos)
	}
}

func TestOnFillFlipRealizesAndResetsCostBasis(t *testing.T) {
	m := newTestManager(100000)
	m.OnFill(0, 10, 100)  // long 10 @ 100
	m.OnFill(0, -15, 90) // sell 15: closes 10 long, opens 5 short @ 90

	pos := m.Position(0)
	if pos.Quantity != -5 {
		t.Fatalf("quantity = %d, want -5", pos.Quantity)
	}
	if pos.AvgCost != 90 {
		t.Fatalf("avg cost after flip = %v, want 90", pos.AvgCost)
	}
	wantRealized := 10.0 * (90 - 100)
	if pos.RealizedPnL != wantRealized {
		t.Fatalf("realized pnl = %v, want %v", pos.RealizedPnL, wantRealized)
	}
}

func TestOnFillRefreshesActiveBitmap(t *testing.T) {
	m := newTestManager(100000)
	m.OnFill(0, 10, 100)
	metrics := m.ComputeMetrics()
	if metrics.ActivePositions != 1 {
		t.Fatalf("active positions = %d, want 1", metrics.ActivePositions)
	}

	m.OnFill(0, -10, 100)
	metrics = m.ComputeMetrics()
	if metrics.ActivePositions != 0 {
		t.Fatalf("active positions after flattening = %d, want 0", metrics.ActivePositions)
	}
}

func TestComputeMetricsUnrealizedAndExposure(t *testing.T) {
	m := newTestManager(100000)
	m.OnFill(0, 10, 100)
	m.OnMarketData(0, 120)

	metrics := m.ComputeMetrics()
	wantUnrealized := 10.0 * (120 - 100)
	if metrics.UnrealizedPnL != wantUnrealized {
		t.Errorf("unrealized = %v, want %v", metrics.UnrealizedPnL, wantUnrealized)
	}
	if metrics.GrossExposure != 1200 || metrics.NetExposure != 1200 {
		t.Errorf("exposure = gross %v net %v, want 1200 both", metrics.GrossExposure, metrics.NetExposure)
	}
}

func TestGetTotalValue(t *testing.T) {
	m := newTestManager(10000)
	m.OnFill(0, 10, 100) // cash now 9000, position 10 @ 100
	m.OnMarketData(0, 150)

	want := m.Cash() + 10*150
	if got := m.GetTotalValue(); got != want {
		t.Errorf("total value = %v, want %v", got, want)
	}
}

func TestOnMarketDataValidation(t *testing.T) {
	m := newTestManager(10000)
	if err := m.OnMarketData(0, 0); err != ErrInvalidPrice {
		t.Fatalf("got %v, want ErrInvalidPrice", err)
	}
	if err := m.OnMarketData(9, 100); err != ErrOutOfRange {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
}

func TestOnCancelReleasesPending(t *testing.T) {
	m := newTestManager(10000)
	q := events.NewQueue(0)
	m.OnSignal(0, 10, 100, 1, q)
	if m.pendingQty[0] != 10 {
		t.Fatalf("pending = %d, want 10", m.pendingQty[0])
	}
	m.OnCancel(0, 10)
	if m.pendingQty[0] != 0 {
		t.Fatalf("pending after cancel = %d, want 0", m.pendingQty[0])
	}
}
