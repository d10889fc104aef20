package domain

import "time"

// PriceLevel is a single rung of the ladder. A level with zero quantity is
// removed from the book, never retained.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// BookView is an immutable point-in-time view of the order book. Bids are
// sorted by descending price, asks by ascending price. Readers must never
// mutate a view; the book writer publishes a fresh one on every update.
type BookView struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Version   uint64       `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BestBid returns the highest bid, or false if the bid side is empty.
func (v *BookView) BestBid() (PriceLevel, bool) {
	if len(v.Bids) == 0 {
		return PriceLevel{}, false
	}
	return v.Bids[0], true
}

// BestAsk returns the lowest ask, or false if the ask side is empty.
func (v *BookView) BestAsk() (PriceLevel, bool) {
	if len(v.Asks) == 0 {
		return PriceLevel{}, false
	}
	return v.Asks[0], true
}

// MidPrice returns the midpoint of the best bid and ask, or 0 if either side
// is empty.
func (v *BookView) MidPrice() float64 {
	bid, okB := v.BestBid()
	ask, okA := v.BestAsk()
	if !okB || !okA {
		return 0
	}
	return (bid.Price + ask.Price) / 2
}

// SpreadPct returns the spread as a fraction of the mid price, or 0 if the
// book is one-sided.
func (v *BookView) SpreadPct() float64 {
	bid, okB := v.BestBid()
	ask, okA := v.BestAsk()
	if !okB || !okA {
		return 0
	}
	mid := (bid.Price + ask.Price) / 2
	if mid == 0 {
		return 0
	}
	return (ask.Price - bid.Price) / mid
}

// Crossed reports whether best bid >= best ask. A crossed book is an anomaly,
// flagged by validation and never accepted downstream.
func (v *BookView) Crossed() bool {
	bid, okB := v.BestBid()
	ask, okA := v.BestAsk()
	return okB && okA && bid.Price >= ask.Price
}

// Imbalance returns (bidQty-askQty)/(bidQty+askQty) over the top depth levels
// of each side, in [-1,1]. Returns 0 for an empty book.
func (v *BookView) Imbalance(depth int) float64 {
	bidVol := sideVolume(v.Bids, depth)
	askVol := sideVolume(v.Asks, depth)
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

// LiquidityDepth returns the total quantity resting in the top depth levels
// of both sides.
func (v *BookView) LiquidityDepth(depth int) float64 {
	return sideVolume(v.Bids, depth) + sideVolume(v.Asks, depth)
}

func sideVolume(levels []PriceLevel, depth int) float64 {
	if depth > len(levels) {
		depth = len(levels)
	}
	var total float64
	for _, l := range levels[:depth] {
		total += l.Quantity
	}
	return total
}

// Age returns the time elapsed since the last update.
func (v *BookView) Age(now time.Time) time.Duration {
	return now.Sub(v.UpdatedAt)
}
