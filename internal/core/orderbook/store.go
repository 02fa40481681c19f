// Package orderbook holds the dual-sided priced order structure the
// execution engine uses to track working orders: price-time-priority
// bid/ask containers plus a secondary id index, exactly the "balanced
// tree + hash map" design the spec calls out as satisfying O(log n)
// insert/remove with O(1) id lookup and iterator stability.
package orderbook

import (
	"github.com/tidwall/btree"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/pkg/types"
)

// OrderState is the execution engine's view of a single order: the
// immutable originating order plus cumulative fill progress.
//
// Invariant: FilledQty <= Order.Quantity throughout the order's active
// lifetime; reaching equality is what moves it to the historical
// ledger (see Store.Inactive).
type OrderState struct {
	Order     events.OrderEvent
	FilledQty int64
	AvgPrice  float64
}

// node is the btree element: an OrderState plus an insertion sequence
// used only to break ties when two orders share both price and
// timestamp. The spec leaves that tie-break unspecified but stable;
// a sequence number gives deterministic ordering across runs.
type node struct {
	state OrderState
	seq   uint64
}

func bidLess(a, b *node) bool {
	pa, pb := a.state.Order.Price, b.state.Order.Price
	if pa != pb {
		return pa > pb // higher price has priority
	}
	ta, tb := a.state.Order.SubmittedAt, b.state.Order.SubmittedAt
	if ta != tb {
		return ta < tb // earlier timestamp has priority
	}
	return a.seq < b.seq
}

func askLess(a, b *node) bool {
	pa, pb := a.state.Order.Price, b.state.Order.Price
	if pa != pb {
		return pa < pb // lower price has priority
	}
	ta, tb := a.state.Order.SubmittedAt, b.state.Order.SubmittedAt
	if ta != tb {
		return ta < tb
	}
	return a.seq < b.seq
}

// Store is the dual-sided priced order structure. The execution engine
// exclusively owns a Store; no other component retains references into
// it.
type Store struct {
	bids   *btree.BTreeG[*node]
	asks   *btree.BTreeG[*node]
	index  map[uint64]*node
	ledger *ledger
	seq    uint64
}

// New creates an empty store whose historical ledger holds at most
// ledgerCapacity terminal orders before overwriting the oldest.
func New(ledgerCapacity int) *Store {
	return &Store{
		bids:   btree.NewBTreeG(bidLess),
		asks:   btree.NewBTreeG(askLess),
		index:  make(map[uint64]*node),
		ledger: newLedger(ledgerCapacity),
	}
}

// Emplace inserts a new order-state. If an entry with the same id
// exists it is erased first (idempotent re-seed). The correct side is
// chosen from the order's side flag.
func (s *Store) Emplace(state OrderState) {
	s.removeLive(state.Order.ID)
	s.seq++
	n := &node{state: state, seq: s.seq}
	s.index[state.Order.ID] = n
	if state.Order.Side == types.Buy {
		s.bids.Set(n)
	} else {
		s.asks.Set(n)
	}
}

// Get returns a mutable handle to the stored state, or nil if absent.
// Mutation through the handle must not alter the fields that
// participate in ordering (Order.Price, Order.SubmittedAt, Order.Side)
// — doing so corrupts the tree's invariants without it noticing.
func (s *Store) Get(id uint64) *OrderState {
	n, ok := s.index[id]
	if !ok {
		return nil
	}
	return &n.state
}

// Inactive removes the order from the live set and appends a copy into
// the historical ledger. No-op if absent.
func (s *Store) Inactive(id uint64) {
	n, ok := s.index[id]
	if !ok {
		return
	}
	s.removeLive(id)
	s.ledger.append(n.state)
}

func (s *Store) removeLive(id uint64) {
	n, ok := s.index[id]
	if !ok {
		return
	}
	delete(s.index, id)
	if n.state.Order.Side == types.Buy {
		s.bids.Delete(n)
	} else {
		s.asks.Delete(n)
	}
}

// BestBid returns the highest-priority resting bid. Callers must check
// ok before using state.
func (s *Store) BestBid() (state OrderState, ok bool) {
	n, ok := s.bids.Min()
	if !ok {
		return OrderState{}, false
	}
	return n.state, true
}

// BestAsk returns the highest-priority (lowest-priced) resting ask.
// Callers must check
// ok before using state.
func (s *Store) BestAsk() (state OrderState, ok bool) {
	n, ok := s.asks.Min()
	if !ok {
		return OrderState{}, false
	}
	return n.state, true
}

// ForEachPruned iterates bids in priority order then asks in priority
// order, stopping as soon as the corresponding visitor returns false —
// the two sides stop independently of one another.
func (s *Store) ForEachPruned(visitBid, visitAsk func(OrderState) bool) {
	s.bids.Scan(func(n *node) bool {
		return visitBid(n.state)
	})
	s.asks.Scan(func(n *node) bool {
		return visitAsk(n.state)
	})
}

// Len returns the number of live bid and ask orders.
func (s *Store) Len() (bids, asks int) {
	return s.bids.Len(), s.asks.Len()
}

// Ledger returns a read-only view of the historical ledger, oldest
// surviving entry first.
func (s *Store) Ledger() []OrderState {
	return s.ledger.snapshot()
}
