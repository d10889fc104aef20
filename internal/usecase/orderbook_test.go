package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
	"github.com/braulionova/bybit-orderflow-bot/internal/usecase"
)

func testSnapshot(seq uint64, ts time.Time) domain.SnapshotMsg {
	return domain.SnapshotMsg{
		Symbol: "BTCUSDT",
		Bids: []domain.PriceLevel{
			{Price: 50000, Quantity: 1.0},
			{Price: 49999, Quantity: 2.0},
			{Price: 49998, Quantity: 3.0},
		},
		Asks: []domain.PriceLevel{
			{Price: 50001, Quantity: 1.5},
			{Price: 50002, Quantity: 2.5},
		},
		Sequence:  seq,
		Timestamp: ts,
	}
}

func TestOrderBook_Snapshot(t *testing.T) {
	ob := usecase.NewOrderBook("BTCUSDT")
	ts := time.Now()
	ob.ApplySnapshot(testSnapshot(100, ts))

	view := ob.Read()
	if view.Version != 100 {
		t.Errorf("Expected version 100, got %d", view.Version)
	}

	bid, ok := view.BestBid()
	if !ok || bid.Price != 50000 {
		t.Errorf("Expected best bid 50000, got %v (ok=%v)", bid.Price, ok)
	}
	ask, ok := view.BestAsk()
	if !ok || ask.Price != 50001 {
		t.Errorf("Expected best ask 50001, got %v (ok=%v)", ask.Price, ok)
	}

	// Bids descending, asks ascending
	for i := 1; i < len(view.Bids); i++ {
		if view.Bids[i].Price >= view.Bids[i-1].Price {
			t.Errorf("Bids not sorted descending at %d", i)
		}
	}
	for i := 1; i < len(view.Asks); i++ {
		if view.Asks[i].Price <= view.Asks[i-1].Price {
			t.Errorf("Asks not sorted ascending at %d", i)
		}
	}
}

func TestOrderBook_SnapshotDropsZeroQuantity(t *testing.T) {
	ob := usecase.NewOrderBook("BTCUSDT")
	ob.ApplySnapshot(domain.SnapshotMsg{
		Bids:      []domain.PriceLevel{{Price: 50000, Quantity: 1.0}, {Price: 49999, Quantity: 0}},
		Asks:      []domain.PriceLevel{{Price: 50001, Quantity: 0}},
		Sequence:  1,
		Timestamp: time.Now(),
	})

	view := ob.Read()
	if len(view.Bids) != 1 {
		t.Errorf("Expected 1 bid, got %d", len(view.Bids))
	}
	if len(view.Asks) != 0 {
		t.Errorf("Expected 0 asks, got %d", len(view.Asks))
	}
}

func TestOrderBook_DeltaUpdateRemoveInsert(t *testing.T) {
	ob := usecase.NewOrderBook("BTCUSDT")
	ts := time.Now()
	ob.ApplySnapshot(testSnapshot(100, ts))

	// Update existing bid quantity
	if err := ob.ApplyDelta(domain.DeltaMsg{Sequence: 101, Side: domain.SideBid, Price: 50000, Quantity: 5.0, Timestamp: ts}); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	bid, _ := ob.Read().BestBid()
	if bid.Quantity != 5.0 {
		t.Errorf("Expected updated bid qty 5.0, got %f", bid.Quantity)
	}

	// Remove best bid via zero quantity
	if err := ob.ApplyDelta(domain.DeltaMsg{Sequence: 102, Side: domain.SideBid, Price: 50000, Quantity: 0, Timestamp: ts}); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	bid, _ = ob.Read().BestBid()
	if bid.Price != 49999 {
		t.Errorf("Expected best bid 49999 after removal, got %f", bid.Price)
	}

	// Insert a new ask inside the spread
	if err := ob.ApplyDelta(domain.DeltaMsg{Sequence: 103, Side: domain.SideAsk, Price: 50000.5, Quantity: 0.7, Timestamp: ts}); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	ask, _ := ob.Read().BestAsk()
	if ask.Price != 50000.5 {
		t.Errorf("Expected best ask 50000.5, got %f", ask.Price)
	}
	if ob.Version() != 103 {
		t.Errorf("Expected version 103, got %d", ob.Version())
	}
}

func TestOrderBook_SequenceGapLeavesBookUntouched(t *testing.T) {
	ob := usecase.NewOrderBook("BTCUSDT")
	ts := time.Now()
	ob.ApplySnapshot(testSnapshot(100, ts))
	before := ob.Read()

	err := ob.ApplyDelta(domain.DeltaMsg{Sequence: 102, Side: domain.SideBid, Price: 50000, Quantity: 9.9, Timestamp: ts})
	if !errors.Is(err, domain.ErrSequenceGap) {
		t.Fatalf("Expected ErrSequenceGap, got %v", err)
	}

	after := ob.Read()
	if after != before {
		t.Error("View changed after rejected delta")
	}
	if after.Version != 100 {
		t.Errorf("Expected version 100 after gap, got %d", after.Version)
	}

	// A stale (already applied) sequence is also a gap
	err = ob.ApplyDelta(domain.DeltaMsg{Sequence: 100, Side: domain.SideBid, Price: 50000, Quantity: 9.9, Timestamp: ts})
	if !errors.Is(err, domain.ErrSequenceGap) {
		t.Fatalf("Expected ErrSequenceGap for stale sequence, got %v", err)
	}

	// Resync via snapshot restarts the sequence
	ob.ApplySnapshot(testSnapshot(500, ts))
	if err := ob.ApplyDelta(domain.DeltaMsg{Sequence: 501, Side: domain.SideBid, Price: 50000, Quantity: 1.1, Timestamp: ts}); err != nil {
		t.Fatalf("Delta after resync failed: %v", err)
	}
}

func TestOrderBook_ReadIsStableWhileWriterAdvances(t *testing.T) {
	ob := usecase.NewOrderBook("BTCUSDT")
	ts := time.Now()
	ob.ApplySnapshot(testSnapshot(1, ts))

	held := ob.Read()
	for seq := uint64(2); seq <= 50; seq++ {
		if err := ob.ApplyDelta(domain.DeltaMsg{Sequence: seq, Side: domain.SideBid, Price: 49000 + float64(seq), Quantity: 1, Timestamp: ts}); err != nil {
			t.Fatalf("ApplyDelta failed: %v", err)
		}
	}

	// The held view is immutable: it still reflects the snapshot
	if held.Version != 1 {
		t.Errorf("Held view version changed to %d", held.Version)
	}
	if len(held.Bids) != 3 {
		t.Errorf("Held view bids changed, got %d levels", len(held.Bids))
	}
	if ob.Read().Version != 50 {
		t.Errorf("Expected current version 50, got %d", ob.Read().Version)
	}
}

func TestBookView_Derived(t *testing.T) {
	view := &domain.BookView{
		Bids: []domain.PriceLevel{{Price: 50000, Quantity: 2}, {Price: 49999, Quantity: 2}},
		Asks: []domain.PriceLevel{{Price: 50010, Quantity: 1}, {Price: 50011, Quantity: 1}},
	}

	if mid := view.MidPrice(); mid != 50005 {
		t.Errorf("Expected mid 50005, got %f", mid)
	}
	// Spread = 10 / 50005
	expectedSpread := 10.0 / 50005.0
	if s := view.SpreadPct(); s != expectedSpread {
		t.Errorf("Expected spread %f, got %f", expectedSpread, s)
	}
	// Imbalance over depth 2: (4 - 2) / 6
	if imb := view.Imbalance(2); imb != 2.0/6.0 {
		t.Errorf("Expected imbalance %f, got %f", 2.0/6.0, imb)
	}
	if liq := view.LiquidityDepth(10); liq != 6 {
		t.Errorf("Expected liquidity 6, got %f", liq)
	}
	if view.Crossed() {
		t.Error("Book should not be crossed")
	}

	crossed := &domain.BookView{
		Bids: []domain.PriceLevel{{Price: 50010, Quantity: 1}},
		Asks: []domain.PriceLevel{{Price: 50000, Quantity: 1}},
	}
	if !crossed.Crossed() {
		t.Error("Expected crossed book")
	}

	empty := &domain.BookView{}
	if empty.MidPrice() != 0 || empty.SpreadPct() != 0 || empty.Imbalance(5) != 0 {
		t.Error("Empty book should read neutral")
	}
}
