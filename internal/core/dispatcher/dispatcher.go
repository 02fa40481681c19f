// Package dispatcher runs the engine's single-threaded event loop: poll
// the market source, dispatch the resulting Market event, drain
// whatever the handlers pushed back onto the queue, report metrics,
// repeat. All handler code — portfolio, execution, strategy — runs to
// completion on this one goroutine; there is no preemption and no
// cross-handler interleaving.
package dispatcher

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/internal/core/execution"
	"github.com/darkskele/quantengine/internal/core/portfolio"
	"github.com/darkskele/quantengine/pkg/types"
)

// MarketSource supplies ticks to the dispatcher. A false second return
// value signals end-of-stream or no data currently available.
type MarketSource interface {
	Next() (types.Tick, bool)
}

// Strategy reacts to market and signal events. Implementations must
// not block; they may push any number of Signal or Order events onto
// the supplied queue.
type Strategy interface {
	OnMarket(market events.MarketEvent, queue *events.Queue)
	OnSignal(signal events.SignalEvent, queue *events.Queue)
	OnCancel(cancel events.CancelEvent)
}

// MetricsSink receives per-iteration loop telemetry. Both methods must
// be cheap and non-blocking since they run on the dispatcher's own
// goroutine.
type MetricsSink interface {
	ObserveLoopLatency(d time.Duration)
	ObserveTick()
}

// ErrorHandler receives an error recovered from a panicking handler.
// The default policy (nil ErrorHandler) ends Run, which returns the
// error.
type ErrorHandler func(err error)

// Dispatcher owns the run loop. Construct with New, optionally set
// Metrics/OnError/ShouldStop/HandleNoEvent, then call Run.
type Dispatcher struct {
	source    MarketSource
	executor  execution.Executor
	strategy  Strategy
	portfolio *portfolio.Manager
	queue     *events.Queue
	logger    zerolog.Logger

	// Metrics is consulted after every iteration if non-nil.
	Metrics MetricsSink
	// OnError is consulted whenever a handler panics. Nil reproduces
	// the default rethrow policy.
	OnError ErrorHandler
	// ShouldStop, if set, is polled at the top of every iteration (and
	// again under pause) alongside the internal stop flag set by Stop.
	ShouldStop func() bool
	// HandleNoEvent is consulted when the market source has nothing to
	// offer. Returning true continues the loop; false (the default,
	// nil HandleNoEvent) ends it.
	HandleNoEvent func() bool
	// OnFill and OnCancel, if set, are called after the portfolio has
	// applied the corresponding event — the only point in the loop a
	// Fill or Cancel event is visible outside the queue itself. Used to
	// feed an external sink (audit persistence, metrics) without that
	// sink needing its own view into the event stream. Must not block.
	OnFill   func(events.FillEvent)
	OnCancel func(events.CancelEvent)

	paused  atomic.Bool
	stopped atomic.Bool
}

// New wires a dispatcher over the given source, executor, strategy, and
// portfolio, with queue pre-allocated for queueHint events.
func New(source MarketSource, executor execution.Executor, strategy Strategy, pf *portfolio.Manager, queueHint int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		source:    source,
		executor:  executor,
		strategy:  strategy,
		portfolio: pf,
		queue:     events.NewQueue(queueHint),
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Pause sets the advisory pause flag. Eventual, relaxed: the loop
// checks it once per iteration, not mid-dispatch.
func (d *Dispatcher) Pause() { d.paused.Store(true) }

// Resume clears the pause flag.
func (d *Dispatcher) Resume() { d.paused.Store(false) }

// Paused reports the current pause flag value.
func (d *Dispatcher) Paused() bool { return d.paused.Load() }

// Stop requests a clean exit at the top of the next iteration.
func (d *Dispatcher) Stop() { d.stopped.Store(true) }

// Run executes the loop until should_stop, the source drains and
// HandleNoEvent declines to continue, or an unrecovered error escapes
// OnError. It returns the error that ended the loop, or nil on a clean
// stop/drain exit.
func (d *Dispatcher) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = asError(r)
		}
	}()

	for {
		if d.stopped.Load() || (d.ShouldStop != nil && d.ShouldStop()) {
			return nil
		}
		if d.paused.Load() {
			runtime.Gosched()
			continue
		}

		start := time.Now()
		tick, ok := d.source.Next()

		if !ok {
			if d.HandleNoEvent == nil || !d.HandleNoEvent() {
				return nil
			}
			continue
		}

		iterErr := d.safeIteration(func() {
			d.handleEvent(events.NewMarket(tick))
			d.drainQueue()
		})
		if iterErr != nil {
			if d.OnError != nil {
				d.OnError(iterErr)
			} else {
				return iterErr
			}
		}

		if d.Metrics != nil {
			d.Metrics.ObserveLoopLatency(time.Since(start))
			d.Metrics.ObserveTick()
		}
	}
}

// safeIteration runs fn and converts any panic into an error, matching
// the spec's throw/rethrow error policy in a language without
// exceptions: handler code signals a programmer error by panicking
// (see the sentinel errors in internal/core/portfolio), and the loop's
// only recovery boundary is this one, once per iteration.
func (d *Dispatcher) safeIteration(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = asError(r)
		}
	}()
	fn()
	return nil
}

func asError(r interface{}) error {
	if e, ok := r.(error); ok {
		return e
	}
	return fmt.Errorf("dispatcher: %v", r)
}

func (d *Dispatcher) drainQueue() {
	for !d.queue.Empty() {
		ev, err := d.queue.Pop()
		if err != nil {
			panic(err)
		}
		d.handleEvent(ev)
	}
}

// handleEvent routes a single event per the fixed ordering: Market
// marks the portfolio and re-evaluates resting orders before the
// strategy reacts, so resting fills a price move generates precede the
// strategy's own reaction in the queue.
func (d *Dispatcher) handleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindMarket:
		d.handleMarket(ev.Market)
	case events.KindSignal:
		d.strategy.OnSignal(ev.Signal, d.queue)
	case events.KindOrder:
		d.executor.OnOrder(ev.Order, d.queue)
	case events.KindFill:
		d.handleFill(ev.Fill)
	case events.KindCancel:
		d.handleCancel(ev.Cancel)
	}
}

func (d *Dispatcher) handleMarket(m events.MarketEvent) {
	if id, ok := d.portfolio.SymbolID(m.Symbol); ok {
		if err := d.portfolio.OnMarketData(id, m.Price); err != nil {
			panic(err)
		}
	}
	d.executor.OnMarket(m, d.queue)
	d.strategy.OnMarket(m, d.queue)
}

func (d *Dispatcher) handleFill(f events.FillEvent) {
	id, ok := d.portfolio.SymbolID(f.Order.Symbol)
	if !ok {
		d.logger.Warn().Str("symbol", f.Order.Symbol).Msg("fill for symbol outside portfolio universe")
		return
	}
	signedQty := int64(f.Side.Sign()) * f.FilledQty
	if err := d.portfolio.OnFill(id, signedQty, f.Price); err != nil {
		panic(err)
	}
	if d.OnFill != nil {
		d.OnFill(f)
	}
}

func (d *Dispatcher) handleCancel(c events.CancelEvent) {
	d.strategy.OnCancel(c)

	id, ok := d.portfolio.SymbolID(c.Order.Symbol)
	if !ok {
		return
	}
	signedQty := int64(c.Order.Side.Sign()) * c.Order.Quantity
	if err := d.portfolio.OnCancel(id, signedQty); err != nil {
		panic(err)
	}
	if d.OnCancel != nil {
		d.OnCancel(c)
	}
}
