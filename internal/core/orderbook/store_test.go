package orderbook

import (
	"testing"

	"github.com/darkskele/quantengine/internal/core/events"
	"github.com/darkskele/quantengine/pkg/types"
)

func bidOrder(id uint64, price float64, ts int64) OrderState {
	return OrderState{Order: events.OrderEvent{
		ID: id, Symbol: "TEST", Side: types.Buy, Price: price,
		Quantity: 10, Type: types.Limit, SubmittedAt: ts,
	}}
}

func askOrder(id uint64, price float64, ts int64) OrderState {
	return OrderState{Order: events.OrderEvent{
		ID: id, Symbol: "TEST", Side: types.Sell, Price: price,
		Quantity: 10, Type: types.Limit, SubmittedAt: ts,
	}}
}

func TestBidPriorityHigherPriceWins(t *testing.T) {
	s := New(16)
	s.Emplace(bidOrder(1, 100, 1))
	s.Emplace(bidOrder(2, 105, 2))
	s.Emplace(bidOrder(3, 95, 3))

	best, ok := s.BestBid()
	if !ok || best.Order.ID != 2 {
		t.Fatalf("best bid = %+v, want id 2 (price 105)", best)
	}
}

func TestBidPriorityTieBrokenByTimestamp(t *testing.T) {
	s := New(16)
	s.Emplace(bidOrder(1, 100, 5))
	s.Emplace(bidOrder(2, 100, 2))

	best, ok := s.BestBid()
	if !ok || best.Order.ID != 2 {
		t.Fatalf("best bid = %+v, want id 2 (earlier timestamp)", best)
	}
}

func TestAskPriorityLowerPriceWins(t *testing.T) {
	s := New(16)
	s.Emplace(askOrder(1, 100, 1))
	s.Emplace(askOrder(2, 95, 2))
	s.Emplace(askOrder(3, 105, 3))

	best, ok := s.BestAsk()
	if !ok || best.Order.ID != 2 {
		t.Fatalf("best ask = %+v, want id 2 (price 95)", best)
	}
}

func TestEmplaceIdempotentReseed(t *testing.T) {
	s := New(16)
	st := bidOrder(1, 100, 1)
	s.Emplace(st)
	st.FilledQty = 4
	s.Emplace(st)

	bids, _ := s.Len()
	if bids != 1 {
		t.Fatalf("bids count = %d, want 1 after re-emplace of same id", bids)
	}
	got := s.Get(1)
	if got == nil || got.FilledQty != 4 {
		t.Fatalf("got %+v, want filled_qty 4", got)
	}
}

func TestGetReturnsNilForAbsent(t *testing.T) {
	s := New(16)
	if s.Get(999) != nil {
		t.Fatal("expected nil for absent id")
	}
}

func TestInactiveMovesToLedger(t *testing.T) {
	s := New(16)
	s.Emplace(bidOrder(1, 100, 1))
	s.Inactive(1)

	if s.Get(1) != nil {
		t.Fatal("order should no longer be live")
	}
	bids, _ := s.Len()
	if bids != 0 {
		t.Fatalf("bids count = %d, want 0", bids)
	}
	ledger := s.Ledger()
	if len(ledger) != 1 || ledger[0].Order.ID != 1 {
		t.Fatalf("ledger = %+v, want one entry for id 1", ledger)
	}
}

func TestInactiveOnAbsentIsNoOp(t *testing.T) {
	s := New(16)
	s.Inactive(42) // must not panic
	if len(s.Ledger()) != 0 {
		t.Fatal("ledger should remain empty")
	}
}

func TestLedgerEvictsOldestWhenFull(t *testing.T) {
	s := New(2)
	s.Emplace(bidOrder(1, 100, 1))
	s.Inactive(1)
	s.Emplace(bidOrder(2, 100, 2))
	s.Inactive(2)
	s.Emplace(bidOrder(3, 100, 3))
	s.Inactive(3)

	ledger := s.Ledger()
	if len(ledger) != 2 {
		t.Fatalf("ledger len = %d, want 2", len(ledger))
	}
	if ledger[0].Order.ID != 2 || ledger[1].Order.ID != 3 {
		t.Fatalf("ledger ids = [%d %d], want [2 3] (oldest evicted)", ledger[0].Order.ID, ledger[1].Order.ID)
	}
}

func TestForEachPrunedStopsIndependently(t *testing.T) {
	s := New(16)
	s.Emplace(bidOrder(1, 100, 1))
	s.Emplace(bidOrder(2, 99, 2))
	s.Emplace(askOrder(3, 50, 1))
	s.Emplace(askOrder(4, 51, 2))

	var bidsSeen, asksSeen int
	s.ForEachPruned(
		func(OrderState) bool { bidsSeen++; return false }, // stop after first bid
		func(OrderState) bool { asksSeen++; return true },  // visit all asks
	)

	if bidsSeen != 1 {
		t.Errorf("bidsSeen = %d, want 1", bidsSeen)
	}
	if asksSeen != 2 {
		t.Errorf("asksSeen = %d, want 2", asksSeen)
	}
}
