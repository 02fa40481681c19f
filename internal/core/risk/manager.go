// Package risk defines the per-symbol risk limits the portfolio manager
// gates every signal against before it becomes an order.
package risk

// Limits bounds a single symbol's trading activity. The portfolio
// manager holds one Limits value per symbol-id in a dense array rather
// than a map, matching the symbol universe's own dense indexing.
type Limits struct {
	// MaxOrderSize bounds the absolute size of any single signed
	// quantity passed to on_signal.
	MaxOrderSize int64
	// MaxPositions bounds the absolute resulting position (current +
	// pending + the new signal) in shares.
	MaxPositions int64
	// MaxNotional bounds the absolute resulting position valued at the
	// signal price.
	MaxNotional float64
}

// DefaultLimits returns conservative defaults suitable for a single
// mid-cap equity symbol. Callers scale these per instrument.
func DefaultLimits() Limits {
	return Limits{
		MaxOrderSize: 500,
		MaxPositions: 1000,
		MaxNotional:  50000,
	}
}
