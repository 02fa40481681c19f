package source

import (
	"math/rand"

	"github.com/darkskele/quantengine/pkg/types"
)

// SyntheticSource generates a deterministic geometric random walk for a
// fixed set of symbols, useful for strategy smoke tests and demos that
// should not depend on recorded data. Seeded construction makes a run
// fully reproducible.
type SyntheticSource struct {
	rng         *rand.Rand
	symbols     []string
	price       []float64
	volatility  float64
	tickMs      int64
	timestampMs int64
	remaining   int
	next        int
}

// NewSyntheticSource builds a source over symbols starting at
// startPrice, stepping tickMs milliseconds per tick, with the
// given per-tick return volatility, producing exactly ticks events
// before exhausting (Next returns false once reached).
func NewSyntheticSource(seed int64, symbols []string, startPrice float64, volatility float64, tickMs int64, ticks int) *SyntheticSource {
	prices := make([]float64, len(symbols))
	for i := range prices {
		prices[i] = startPrice
	}
	return &SyntheticSource{
		rng:        rand.New(rand.NewSource(seed)),
		symbols:    symbols,
		price:      prices,
		volatility: volatility,
		tickMs:     tickMs,
		remaining:  ticks,
	}
}

// Next advances one of the tracked symbols by one simulated trade,
// round-robin, until the configured tick budget is exhausted.
func (s *SyntheticSource) Next() (types.Tick, bool) {
	if s.remaining <= 0 || len(s.symbols) == 0 {
		return types.Tick{}, false
	}

	idx := s.next
	s.next = (s.next + 1) % len(s.symbols)
	s.remaining--
	s.timestampMs += s.tickMs

	ret := s.rng.NormFloat64() * s.volatility
	s.price[idx] *= 1 + ret
	if s.price[idx] <= 0 {
		s.price[idx] = 0.01
	}

	return types.Tick{
		Symbol:         s.symbols[idx],
		Price:          s.price[idx],
		Quantity:       1,
		TimestampMs:    s.timestampMs,
		BuyerInitiated: ret >= 0,
	}, true
}
