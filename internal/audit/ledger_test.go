package audit

import (
	"time"

	"testing"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/circuitbreaker"
	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/pkg/types"
)

func openBreaker() *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.New(circuitbreaker.Config{MaxFailures: 1, Timeout: time.Hour, MaxRequests: 1, Name: "test"})
	cb.Execute(func() error { return errBoomAudit })
	return cb
}

var errBoomAudit = &testErr{"boom"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func TestRecordFillDroppedWhileBreakerOpen(t *testing.T) {
	l := NewLedger(nil, openBreaker(), zerolog.Nop())
	defer l.Close()

	l.RecordFill(events.FillEvent{
		Order:     events.OrderEvent{Symbol: "AAPL", ID: 1, Quantity: 10, Side: types.Buy},
		FilledQty: 10,
		TotalQty:  10,
		Price:     100,
	})

	deadline := time.Now().Add(time.Second)
	for l.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if l.Dropped() == 0 {
		t.Fatal("expected the write to be dropped while the breaker is open")
	}
}

func TestRecordCancelDroppedWhileBreakerOpen(t *testing.T) {
	l := NewLedger(nil, openBreaker(), zerolog.Nop())
	defer l.Close()

	l.RecordCancel(events.CancelEvent{
		Order:  events.OrderEvent{Symbol: "AAPL", ID: 2},
		Reason: "ioc_unfilled",
	})

	deadline := time.Now().Add(time.Second)
	for l.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if l.Dropped() == 0 {
		t.Fatal("expected the cancel write to be dropped while the breaker is open")
	}
}

func TestCloseDrainsQueueBeforeReturning(t *testing.T) {
	l := NewLedger(nil, openBreaker(), zerolog.Nop())
	l.RecordFill(events.FillEvent{Order: events.OrderEvent{Symbol: "AAPL", ID: 1}})
	l.Close()
	if l.Dropped() == 0 {
		t.Fatal("expected the queued entry to be processed (and dropped) before Close returns")
	}
}
