package usecase_test

import (
	"math"
	"testing"
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
	"github.com/braulionova/bybit-orderflow-bot/internal/usecase"
)

func newTestEngine() *usecase.MetricsEngine {
	return usecase.NewMetricsEngine(usecase.MetricsParams{
		Depths:       []int{5, 10, 20},
		DeltaWindows: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		WhaleMult:    3.0,
		WhaleFloor:   0.5,
		ATRPeriod:    14,
	})
}

// uniformBook builds a view with `levels` rungs per side, all of quantity qty,
// best bid/ask around mid.
func uniformBook(mid, qty float64, levels int, ts time.Time) *domain.BookView {
	v := &domain.BookView{Symbol: "BTCUSDT", UpdatedAt: ts}
	for i := 0; i < levels; i++ {
		v.Bids = append(v.Bids, domain.PriceLevel{Price: mid - 1 - float64(i), Quantity: qty})
		v.Asks = append(v.Asks, domain.PriceLevel{Price: mid + 1 + float64(i), Quantity: qty})
	}
	return v
}

func TestMetrics_VolumeDelta(t *testing.T) {
	e := newTestEngine()
	base := time.Now()

	e.OnTrade(domain.Trade{Side: "Buy", Size: 30, Timestamp: base})
	e.OnTrade(domain.Trade{Side: "Sell", Size: 10, Timestamp: base.Add(500 * time.Millisecond)})

	now := base.Add(2 * time.Second)
	m := e.Compute(uniformBook(50000, 1, 20, now), now)

	if !m.VolumeDefined {
		t.Fatal("Volume delta should be defined after the shortest window elapsed")
	}
	// Both trades sit inside the 5s window: (30-10)/40 = 0.5
	if d := m.VolumeDeltas[5*time.Second]; math.Abs(d-0.5) > 1e-9 {
		t.Errorf("Expected 5s delta 0.5, got %f", d)
	}
	// The 1s window holds neither trade by now: neutral
	if d := m.VolumeDeltas[time.Second]; d != 0 {
		t.Errorf("Expected empty 1s window delta 0, got %f", d)
	}
}

func TestMetrics_VolumeDeltaUndefinedOnColdStart(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	m := e.Compute(uniformBook(50000, 1, 20, now), now)
	if m.VolumeDefined {
		t.Error("Volume delta defined with no trades seen")
	}
	if d := m.VolumeDeltas[time.Second]; d != 0 {
		t.Errorf("Undefined dimension should read neutral, got %f", d)
	}

	// One single trade is still not enough
	e.OnTrade(domain.Trade{Side: "Buy", Size: 1, Timestamp: now})
	m = e.Compute(uniformBook(50000, 1, 20, now), now.Add(2*time.Second))
	if m.VolumeDefined {
		t.Error("Volume delta defined with a single trade")
	}
}

func TestMetrics_ImbalanceAndConsistency(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	// Uniform book: imbalance 0 at every depth, consistency at its ceiling
	m := e.Compute(uniformBook(50000, 1, 20, now), now)
	for depth, imb := range m.Imbalances {
		if imb != 0 {
			t.Errorf("Depth %d: expected imbalance 0, got %f", depth, imb)
		}
	}
	if !m.ConsistencyDefined {
		t.Fatal("Consistency undefined on a populated book")
	}
	if math.Abs(m.DepthConsistency-1.0) > 1e-9 {
		t.Errorf("Expected consistency 1.0 for uniform imbalances, got %f", m.DepthConsistency)
	}

	// Lopsided top of book, balanced further down: consistency drops
	v := uniformBook(50000, 1, 20, now)
	v.Bids[0].Quantity = 50
	m2 := e.Compute(v, now)
	if m2.Imbalances[5] <= m2.Imbalances[20] {
		t.Errorf("Shallow imbalance %f should exceed deep imbalance %f", m2.Imbalances[5], m2.Imbalances[20])
	}
	if m2.DepthConsistency >= m.DepthConsistency {
		t.Errorf("Concentrated book should score lower consistency: %f >= %f", m2.DepthConsistency, m.DepthConsistency)
	}
}

func TestMetrics_ImbalanceBounds(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	// Bid-only book pins imbalance at +1
	v := &domain.BookView{UpdatedAt: now}
	for i := 0; i < 20; i++ {
		v.Bids = append(v.Bids, domain.PriceLevel{Price: 50000 - float64(i), Quantity: 1})
	}
	m := e.Compute(v, now)
	for depth, imb := range m.Imbalances {
		if imb != 1 {
			t.Errorf("Depth %d: expected imbalance 1 on bid-only book, got %f", depth, imb)
		}
	}
}

func TestMetrics_WhaleScore(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	// 19 rungs of 1.0 and one of 11.0: avg 1.5, ratio 11/1.5 = 7.33
	v := uniformBook(50000, 1, 10, now)
	v.Bids[5].Quantity = 11
	m := e.Compute(v, now)

	ratio := 11.0 / 1.5
	expected := math.Min(100, (ratio-3.0)*25)
	if math.Abs(m.WhaleScore-expected) > 1e-9 {
		t.Errorf("Expected whale score %f, got %f", expected, m.WhaleScore)
	}
}

func TestMetrics_WhaleScoreZeroBelowThreshold(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	// Largest order only 2x the average: below the 3x multiplier
	v := uniformBook(50000, 1, 10, now)
	v.Bids[0].Quantity = 2
	if m := e.Compute(v, now); m.WhaleScore != 0 {
		t.Errorf("Expected whale score 0 below threshold, got %f", m.WhaleScore)
	}

	// Dust book: largest order below the absolute floor
	e2 := newTestEngine()
	v2 := uniformBook(50000, 0.001, 10, now)
	v2.Bids[0].Quantity = 0.01
	if m := e2.Compute(v2, now); m.WhaleScore != 0 {
		t.Errorf("Expected whale score 0 below floor, got %f", m.WhaleScore)
	}
}

func TestMetrics_PressureNeedsTwoCycles(t *testing.T) {
	e := newTestEngine()
	base := time.Now()

	m := e.Compute(uniformBook(50000, 1, 20, base), base)
	if m.PressureDefined {
		t.Error("Pressure defined on the first cycle")
	}

	// Best bid/ask up 5 over one second
	m = e.Compute(uniformBook(50005, 1, 20, base.Add(time.Second)), base.Add(time.Second))
	if !m.PressureDefined {
		t.Fatal("Pressure undefined on the second cycle")
	}
	if m.PressureScore <= 0 {
		t.Errorf("Rising book should give positive pressure, got %f", m.PressureScore)
	}
	// 5/s on a ~50004 mid is ~1e-4 fraction/s -> ~10 after scaling
	if m.PressureScore < 5 || m.PressureScore > 15 {
		t.Errorf("Pressure %f outside expected band", m.PressureScore)
	}
}

func TestMetrics_PressureClamped(t *testing.T) {
	e := newTestEngine()
	base := time.Now()

	e.Compute(uniformBook(50000, 1, 20, base), base)
	m := e.Compute(uniformBook(90000, 1, 20, base.Add(time.Second)), base.Add(time.Second))
	if m.PressureScore != 100 {
		t.Errorf("Expected pressure clamped to 100, got %f", m.PressureScore)
	}
}

func TestMetrics_ATRDefinedAfterPeriod(t *testing.T) {
	e := newTestEngine()
	base := time.Now()

	for i := 0; i < 14; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		if m := e.Compute(uniformBook(50000, 1, 20, now), now); m.ATRDefined {
			t.Fatalf("ATR defined after only %d cycles", i+1)
		}
	}
	now := base.Add(15 * time.Second)
	m := e.Compute(uniformBook(50000, 1, 20, now), now)
	if !m.ATRDefined {
		t.Fatal("ATR undefined after full period")
	}
	// Spread is 2 on a flat book, so each pseudo-bar spans 2
	if math.Abs(m.ATR-2) > 1e-9 {
		t.Errorf("Expected ATR 2, got %f", m.ATR)
	}
	if math.Abs(m.ATRPct-2.0/50000.0) > 1e-12 {
		t.Errorf("Expected ATR%% %f, got %f", 2.0/50000.0, m.ATRPct)
	}
}

func TestMetrics_BookQualityFields(t *testing.T) {
	e := newTestEngine()
	ts := time.Now()
	v := uniformBook(50000, 1, 20, ts)

	now := ts.Add(250 * time.Millisecond)
	m := e.Compute(v, now)
	if m.Latency != 250*time.Millisecond {
		t.Errorf("Expected latency 250ms, got %v", m.Latency)
	}
	if m.SpreadPct != v.SpreadPct() {
		t.Errorf("Expected spread %f, got %f", v.SpreadPct(), m.SpreadPct)
	}
	if m.Liquidity != v.LiquidityDepth(10) {
		t.Errorf("Expected liquidity %f, got %f", v.LiquidityDepth(10), m.Liquidity)
	}
	if m.Complete() {
		t.Error("Snapshot should not be complete on a cold engine")
	}
}
