package usecase

import (
	"math"
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// MetricsEngine derives the six microstructure dimensions from the current
// book view plus short rolling history. It owns its windows exclusively and
// is not safe for concurrent use: OnTrade and Compute must run on the same
// goroutine, which the pipeline guarantees by draining queued prints at the
// top of each cycle. Dimensions whose history is still shorter than their
// window come back neutral with the Defined flag cleared, never as an error.
type MetricsEngine struct {
	depths         []int
	deltaWindows   []time.Duration
	whaleMult      float64
	whaleFloor     float64
	liquidityDepth int

	tape         *FlowWindow
	prices       *PriceWindow
	firstTradeAt time.Time

	// Trailing average order size, exponentially smoothed across cycles.
	avgOrderSize float64

	prevBestBid float64
	prevBestAsk float64
	prevSeenAt  time.Time
}

type MetricsParams struct {
	Depths       []int
	DeltaWindows []time.Duration
	WhaleMult    float64
	WhaleFloor   float64
	ATRPeriod    int
}

func NewMetricsEngine(p MetricsParams) *MetricsEngine {
	maxWindow := time.Second
	for _, w := range p.DeltaWindows {
		if w > maxWindow {
			maxWindow = w
		}
	}
	return &MetricsEngine{
		depths:         p.Depths,
		deltaWindows:   p.DeltaWindows,
		whaleMult:      p.WhaleMult,
		whaleFloor:     p.WhaleFloor,
		liquidityDepth: 10,
		tape:           NewFlowWindow(maxWindow),
		prices:         NewPriceWindow(p.ATRPeriod),
	}
}

// OnTrade feeds one print from the public trade tape into the flow window.
func (e *MetricsEngine) OnTrade(t domain.Trade) {
	if e.firstTradeAt.IsZero() {
		e.firstTradeAt = t.Timestamp
	}
	e.tape.Add(t)
}

// Compute produces the metrics snapshot for one cycle.
func (e *MetricsEngine) Compute(view *domain.BookView, now time.Time) *domain.MetricsSnapshot {
	m := &domain.MetricsSnapshot{
		Timestamp:    now,
		VolumeDeltas: make(map[time.Duration]float64, len(e.deltaWindows)),
		Imbalances:   make(map[int]float64, len(e.depths)),
		SpreadPct:    view.SpreadPct(),
		Liquidity:    view.LiquidityDepth(e.liquidityDepth),
		Latency:      view.Age(now),
	}

	e.computeVolumeDeltas(m, now)
	e.computeImbalances(m, view)
	m.WhaleScore = e.whaleScore(view)
	e.computePressure(m, view, now)
	e.computeATR(m, view)
	return m
}

// Volume delta per window as net/total taker flow, normalized to [-1,1] so
// windows of different lengths stay comparable.
func (e *MetricsEngine) computeVolumeDeltas(m *domain.MetricsSnapshot, now time.Time) {
	shortest := e.deltaWindows[0]
	for _, w := range e.deltaWindows {
		if w < shortest {
			shortest = w
		}
	}
	m.VolumeDefined = !e.firstTradeAt.IsZero() && now.Sub(e.firstTradeAt) >= shortest && e.tape.Len() >= 2

	for _, w := range e.deltaWindows {
		buy, sell := e.tape.Flows(now, w)
		total := buy + sell
		if total == 0 {
			m.VolumeDeltas[w] = 0
			continue
		}
		m.VolumeDeltas[w] = (buy - sell) / total
	}
}

func (e *MetricsEngine) computeImbalances(m *domain.MetricsSnapshot, view *domain.BookView) {
	for _, d := range e.depths {
		m.Imbalances[d] = view.Imbalance(d)
	}

	// Depth consistency: imbalance spread across depths collapsed into [0,1]
	// via exponential decay of the standard deviation. Uniform structure
	// scores near 1, concentration in a few levels scores near 0.
	if len(m.Imbalances) < 2 || (len(view.Bids) == 0 && len(view.Asks) == 0) {
		m.ConsistencyDefined = false
		return
	}
	var mean float64
	for _, v := range m.Imbalances {
		mean += v
	}
	mean /= float64(len(m.Imbalances))
	var variance float64
	for _, v := range m.Imbalances {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(m.Imbalances))
	m.DepthConsistency = clamp01(math.Exp(-2 * math.Sqrt(variance)))
	m.ConsistencyDefined = true
}

// whaleScore compares the largest resting order against the trailing average
// order size. Below the multiplier threshold or the absolute floor the score
// is zero; past it the score grows linearly with the excess ratio.
func (e *MetricsEngine) whaleScore(view *domain.BookView) float64 {
	var largest, total float64
	var count int
	for _, l := range view.Bids {
		total += l.Quantity
		count++
		if l.Quantity > largest {
			largest = l.Quantity
		}
	}
	for _, l := range view.Asks {
		total += l.Quantity
		count++
		if l.Quantity > largest {
			largest = l.Quantity
		}
	}
	if count == 0 {
		return 0
	}

	cycleAvg := total / float64(count)
	if e.avgOrderSize == 0 {
		e.avgOrderSize = cycleAvg
	} else {
		e.avgOrderSize = e.avgOrderSize*0.9 + cycleAvg*0.1
	}

	if largest < e.whaleFloor || e.avgOrderSize == 0 {
		return 0
	}
	ratio := largest / e.avgOrderSize
	if ratio < e.whaleMult {
		return 0
	}
	return math.Min(100, (ratio-e.whaleMult)*25)
}

// Pressure: velocity of the best bid and ask since the previous cycle,
// averaged and expressed as price fraction per second, clamp-and-scaled so
// that a move of 0.1%/s saturates the score.
func (e *MetricsEngine) computePressure(m *domain.MetricsSnapshot, view *domain.BookView, now time.Time) {
	bid, okB := view.BestBid()
	ask, okA := view.BestAsk()
	if !okB || !okA {
		m.PressureDefined = false
		return
	}

	if e.prevSeenAt.IsZero() {
		e.prevBestBid, e.prevBestAsk, e.prevSeenAt = bid.Price, ask.Price, now
		m.PressureDefined = false
		return
	}

	dt := now.Sub(e.prevSeenAt).Seconds()
	if dt <= 0 {
		m.PressureDefined = false
		return
	}

	mid := view.MidPrice()
	bidVel := (bid.Price - e.prevBestBid) / dt
	askVel := (ask.Price - e.prevBestAsk) / dt
	e.prevBestBid, e.prevBestAsk, e.prevSeenAt = bid.Price, ask.Price, now

	if mid == 0 {
		m.PressureDefined = false
		return
	}
	pctVel := (bidVel + askVel) / 2 / mid
	m.PressureScore = clamp(pctVel*1e5, -100, 100)
	m.PressureDefined = true
}

func (e *MetricsEngine) computeATR(m *domain.MetricsSnapshot, view *domain.BookView) {
	bid, okB := view.BestBid()
	ask, okA := view.BestAsk()
	if !okB || !okA {
		m.ATRDefined = false
		return
	}
	e.prices.Add(bid.Price, ask.Price)

	atr, ok := e.prices.ATR()
	if !ok {
		m.ATRDefined = false
		return
	}
	m.ATR = atr
	if mid := view.MidPrice(); mid > 0 {
		m.ATRPct = atr / mid
	}
	m.ATRDefined = true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
