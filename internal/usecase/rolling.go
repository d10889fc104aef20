package usecase

import (
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// tapeSample is one trade-tape entry kept in the rolling flow window.
type tapeSample struct {
	ts   time.Time
	buy  float64
	sell float64
}

// FlowWindow is a duration-bounded window over the trade tape. Samples older
// than the horizon are evicted on every append; aggregation always covers
// whatever currently sits inside the horizon, never a fixed count.
type FlowWindow struct {
	horizon time.Duration
	samples []tapeSample
}

func NewFlowWindow(horizon time.Duration) *FlowWindow {
	return &FlowWindow{horizon: horizon}
}

// Add records a trade and evicts everything older than the horizon.
func (w *FlowWindow) Add(t domain.Trade) {
	s := tapeSample{ts: t.Timestamp}
	notional := t.Size
	if t.IsBuy() {
		s.buy = notional
	} else {
		s.sell = notional
	}
	w.samples = append(w.samples, s)
	w.evict(t.Timestamp)
}

func (w *FlowWindow) evict(now time.Time) {
	cutoff := now.Add(-w.horizon)
	i := 0
	for i < len(w.samples) && w.samples[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// Flows returns the buy and sell volume currently inside the window ending
// at now, restricted to the given sub-duration.
func (w *FlowWindow) Flows(now time.Time, within time.Duration) (buy, sell float64) {
	cutoff := now.Add(-within)
	for _, s := range w.samples {
		if s.ts.Before(cutoff) {
			continue
		}
		buy += s.buy
		sell += s.sell
	}
	return buy, sell
}

// Len returns the number of samples currently held.
func (w *FlowWindow) Len() int { return len(w.samples) }

// pricePoint is one bar for ATR: high/low from bid/ask, close at mid.
type pricePoint struct {
	high  float64
	low   float64
	close float64
}

// PriceWindow keeps the last period+1 price points for ATR. Unlike the flow
// window it is count-based: ATR is period-count-based by definition.
type PriceWindow struct {
	period int
	points []pricePoint
}

func NewPriceWindow(period int) *PriceWindow {
	return &PriceWindow{period: period}
}

// Add records the current best bid/ask as a pseudo-bar.
func (w *PriceWindow) Add(bid, ask float64) {
	w.points = append(w.points, pricePoint{high: ask, low: bid, close: (bid + ask) / 2})
	if excess := len(w.points) - (w.period + 1); excess > 0 {
		w.points = append(w.points[:0], w.points[excess:]...)
	}
}

// ATR returns the average true range over the held points, and false until a
// full period of history has accumulated.
func (w *PriceWindow) ATR() (float64, bool) {
	if len(w.points) < w.period+1 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(w.points); i++ {
		cur, prev := w.points[i], w.points[i-1]
		tr := cur.high - cur.low
		if hc := abs(cur.high - prev.close); hc > tr {
			tr = hc
		}
		if lc := abs(cur.low - prev.close); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(len(w.points)-1), true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
