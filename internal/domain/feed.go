package domain

import "time"

// BookSide identifies one side of the order book.
type BookSide string

const (
	SideBid BookSide = "bid"
	SideAsk BookSide = "ask"
)

// SnapshotMsg is a full-book message from the feed. Levels replace the
// current state wholesale.
type SnapshotMsg struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Sequence  uint64
	Timestamp time.Time
}

// DeltaMsg is an incremental level update from the feed. Quantity 0 removes
// the level.
type DeltaMsg struct {
	Symbol    string
	Sequence  uint64
	Side      BookSide
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// Trade is one print from the public trade tape. Side is the taker side:
// "Buy" means aggressive buying.
type Trade struct {
	Symbol    string
	Side      string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// IsBuy reports whether the trade was taker-buy.
func (t Trade) IsBuy() bool { return t.Side == "Buy" }
