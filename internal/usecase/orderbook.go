package usecase

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// OrderBook maintains the ladder for a single symbol from snapshot and delta
// messages. One goroutine writes; any number of goroutines read through
// Read(), which returns the last published immutable view. The writer builds
// a fresh view on every successful apply and swaps it in atomically, so
// readers never observe a partially updated book and never block the writer.
type OrderBook struct {
	symbol string

	// Writer-owned working state. Views published to readers are copies.
	bids map[float64]float64
	asks map[float64]float64

	version uint64
	view    atomic.Pointer[domain.BookView]
}

func NewOrderBook(symbol string) *OrderBook {
	ob := &OrderBook{
		symbol: symbol,
		bids:   make(map[float64]float64),
		asks:   make(map[float64]float64),
	}
	ob.view.Store(&domain.BookView{Symbol: symbol})
	return ob
}

// Read returns the current immutable view. Never nil, never blocks.
func (ob *OrderBook) Read() *domain.BookView {
	return ob.view.Load()
}

// Version returns the sequence number of the last applied message.
func (ob *OrderBook) Version() uint64 {
	return ob.view.Load().Version
}

// ApplySnapshot replaces the book wholesale and resets the version to the
// snapshot's sequence number. Zero-quantity levels are dropped.
func (ob *OrderBook) ApplySnapshot(msg domain.SnapshotMsg) {
	ob.bids = make(map[float64]float64, len(msg.Bids))
	ob.asks = make(map[float64]float64, len(msg.Asks))
	for _, l := range msg.Bids {
		if l.Quantity > 0 {
			ob.bids[l.Price] = l.Quantity
		}
	}
	for _, l := range msg.Asks {
		if l.Quantity > 0 {
			ob.asks[l.Price] = l.Quantity
		}
	}
	ob.version = msg.Sequence
	ob.publish(msg.Timestamp)
}

// ApplyDelta applies one level update. The delta must carry the next sequence
// number; otherwise ErrSequenceGap is returned and the book is left exactly
// as it was, until the caller resynchronizes with a fresh snapshot.
func (ob *OrderBook) ApplyDelta(msg domain.DeltaMsg) error {
	if msg.Sequence != ob.version+1 {
		return domain.ErrSequenceGap
	}

	side := ob.bids
	if msg.Side == domain.SideAsk {
		side = ob.asks
	}
	if msg.Quantity == 0 {
		delete(side, msg.Price)
	} else {
		side[msg.Price] = msg.Quantity
	}

	ob.version = msg.Sequence
	ob.publish(msg.Timestamp)
	return nil
}

// publish sorts the working maps into a fresh immutable view and swaps it in.
func (ob *OrderBook) publish(ts time.Time) {
	bids := make([]domain.PriceLevel, 0, len(ob.bids))
	for p, q := range ob.bids {
		bids = append(bids, domain.PriceLevel{Price: p, Quantity: q})
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	asks := make([]domain.PriceLevel, 0, len(ob.asks))
	for p, q := range ob.asks {
		asks = append(asks, domain.PriceLevel{Price: p, Quantity: q})
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	ob.view.Store(&domain.BookView{
		Symbol:    ob.symbol,
		Bids:      bids,
		Asks:      asks,
		Version:   ob.version,
		UpdatedAt: ts,
	})
}
