// Package audit persists a write-only blotter of fills and cancels to
// Postgres/TimescaleDB for external reporting. It never feeds back into
// the live portfolio: the in-memory portfolio manager is always the
// authoritative state, and the ledger is append-only.
package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/darkskele/quantengine/internal/circuitbreaker"
	"github.com/darkskele/quantengine/internal/core/events"
)

// entry is one queued write. Exactly one of fill/cancel is set.
type entry struct {
	fill       *events.FillEvent
	cancel     *events.CancelEvent
	recordedAt int64
}

// Ledger writes Fill and Cancel events to Postgres on a background
// goroutine so a stalled database never blocks the dispatcher's run
// loop. Writes are guarded by a circuit breaker: once the sink is
// judged unhealthy, entries are dropped (and counted) rather than
// queued indefinitely.
type Ledger struct {
	pool    *pgxpool.Pool
	breaker *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger

	queue   chan entry
	done    chan struct{}
	dropped int64
}

// NewLedger starts the background writer. Callers must call Close to
// drain pending writes and release the goroutine.
func NewLedger(pool *pgxpool.Pool, breaker *circuitbreaker.CircuitBreaker, logger zerolog.Logger) *Ledger {
	l := &Ledger{
		pool:    pool,
		breaker: breaker,
		logger:  logger,
		queue:   make(chan entry, 1024),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// InitSchema creates the append-only fills/cancels tables if absent.
func (l *Ledger) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS fills (
			order_id        BIGINT NOT NULL,
			client_order_id TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			side            TEXT NOT NULL,
			filled_qty      BIGINT NOT NULL,
			total_qty       BIGINT NOT NULL,
			price           DOUBLE PRECISION NOT NULL,
			timestamp_ms    BIGINT NOT NULL,
			recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_fills_order_id ON fills (order_id);
		CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills (symbol);
		CREATE INDEX IF NOT EXISTS idx_fills_client_order_id ON fills (client_order_id);

		CREATE TABLE IF NOT EXISTS cancels (
			order_id        BIGINT NOT NULL,
			client_order_id TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			reason          TEXT NOT NULL,
			timestamp_ms    BIGINT NOT NULL,
			recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_cancels_order_id ON cancels (order_id);
	`
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return err
	}
	l.logger.Info().Msg("audit ledger schema initialized")
	return nil
}

// RecordFill enqueues a fill for persistence. Never blocks: if the
// queue is full the entry is dropped and counted rather than stalling
// the caller (the dispatcher's run loop).
func (l *Ledger) RecordFill(fill events.FillEvent) {
	l.enqueue(entry{fill: &fill})
}

// RecordCancel enqueues a cancel for persistence. Same non-blocking
// contract as RecordFill.
func (l *Ledger) RecordCancel(cancel events.CancelEvent) {
	l.enqueue(entry{cancel: &cancel})
}

func (l *Ledger) enqueue(e entry) {
	select {
	case l.queue <- e:
	default:
		l.dropped++
		l.logger.Warn().Int64("dropped_total", l.dropped).Msg("audit ledger queue full, dropping entry")
	}
}

// Dropped reports how many entries were discarded because the queue
// was full, the circuit breaker was open, or the write itself failed.
func (l *Ledger) Dropped() int64 {
	return l.dropped
}

// Close drains the queue and stops the background writer.
func (l *Ledger) Close() {
	close(l.queue)
	<-l.done
}

func (l *Ledger) run() {
	defer close(l.done)
	ctx := context.Background()
	for e := range l.queue {
		var err error
		switch {
		case e.fill != nil:
			err = l.breaker.Execute(func() error { return l.writeFill(ctx, *e.fill) })
		case e.cancel != nil:
			err = l.breaker.Execute(func() error { return l.writeCancel(ctx, *e.cancel) })
		}
		if err != nil {
			l.dropped++
			l.logger.Warn().Err(err).Msg("audit ledger write failed")
		}
	}
}

func (l *Ledger) writeFill(ctx context.Context, f events.FillEvent) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO fills (order_id, client_order_id, symbol, side, filled_qty, total_qty, price, timestamp_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.Order.ID, f.Order.ClientOrderID, f.Order.Symbol, string(f.Side), f.FilledQty, f.TotalQty, f.Price, f.TimestampMs,
	)
	return err
}

func (l *Ledger) writeCancel(ctx context.Context, c events.CancelEvent) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO cancels (order_id, client_order_id, symbol, reason, timestamp_ms) VALUES ($1, $2, $3, $4, $5)`,
		c.Order.ID, c.Order.ClientOrderID, c.Order.Symbol, c.Reason, c.TimestampMs,
	)
	return err
}
