package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// minBaselineSamples is the calibration threshold: below it the spread and
// liquidity checks are skipped so a cold-started gate stays permissive.
const minBaselineSamples = 10

// percentileBaseline is a bounded sample set that tracks the 10th and 90th
// percentile of a stream. The capacity-bounded window is kept in arrival
// order for eviction and in a second sorted slice for percentile reads, so a
// sample update costs one binary search and one bounded copy, never a full
// re-sort.
type percentileBaseline struct {
	capacity int
	arrival  []float64
	sorted   []float64
}

func newPercentileBaseline(capacity int) *percentileBaseline {
	return &percentileBaseline{capacity: capacity}
}

func (b *percentileBaseline) Add(v float64) {
	if len(b.arrival) == b.capacity {
		oldest := b.arrival[0]
		b.arrival = b.arrival[1:]
		i := sort.SearchFloat64s(b.sorted, oldest)
		b.sorted = append(b.sorted[:i], b.sorted[i+1:]...)
	}
	b.arrival = append(b.arrival, v)
	i := sort.SearchFloat64s(b.sorted, v)
	b.sorted = append(b.sorted, 0)
	copy(b.sorted[i+1:], b.sorted[i:])
	b.sorted[i] = v
}

func (b *percentileBaseline) Len() int { return len(b.arrival) }

// Percentile returns the value at rank p in [0,1].
func (b *percentileBaseline) Percentile(p float64) float64 {
	if len(b.sorted) == 0 {
		return 0
	}
	idx := int(float64(len(b.sorted)) * p)
	if idx >= len(b.sorted) {
		idx = len(b.sorted) - 1
	}
	return b.sorted[idx]
}

// Validator gates each cycle on book quality. Thresholds self-calibrate from
// the rolling percentile baseline, which is fed from accepted ticks only:
// a rejected tick never moves the baseline, so a burst of anomalous ticks
// cannot loosen the very thresholds that flagged it.
type Validator struct {
	maxSpreadMult    float64
	minLiquidityMult float64
	maxDataAge       time.Duration
	minDepthLevels   int
	liquidityDepth   int

	// mu guards the baselines: Validate writes them on the processing
	// goroutine while the status handlers read them from HTTP goroutines.
	mu        sync.RWMutex
	spread    *percentileBaseline
	liquidity *percentileBaseline
}

type ValidatorParams struct {
	MaxSpreadMultiplier    float64
	MinLiquidityMultiplier float64
	MaxDataAge             time.Duration
	MinDepthLevels         int
}

func NewValidator(p ValidatorParams) *Validator {
	return &Validator{
		maxSpreadMult:    p.MaxSpreadMultiplier,
		minLiquidityMult: p.MinLiquidityMultiplier,
		maxDataAge:       p.MaxDataAge,
		minDepthLevels:   p.MinDepthLevels,
		liquidityDepth:   10,
		spread:           newPercentileBaseline(100),
		liquidity:        newPercentileBaseline(100),
	}
}

// Validate applies the rejection checks in priority order; the first failure
// wins. On acceptance the current spread and liquidity feed the baseline.
func (v *Validator) Validate(view *domain.BookView, now time.Time) domain.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	spreadPct := view.SpreadPct()
	liq := view.LiquidityDepth(v.liquidityDepth)

	if v.calibrated() && spreadPct > v.spread.Percentile(0.90)*v.maxSpreadMult {
		return domain.Reject(domain.RejectSpreadTooWide)
	}
	if v.calibrated() && liq < v.liquidity.Percentile(0.10)*v.minLiquidityMult {
		return domain.Reject(domain.RejectLiquidityTooLow)
	}
	if view.UpdatedAt.IsZero() || view.Age(now) > v.maxDataAge {
		return domain.Reject(domain.RejectStaleData)
	}
	if view.Crossed() {
		return domain.Reject(domain.RejectCrossedBook)
	}
	if len(view.Bids) < v.minDepthLevels || len(view.Asks) < v.minDepthLevels {
		return domain.Reject(domain.RejectInsufficientDepth)
	}

	v.spread.Add(spreadPct)
	v.liquidity.Add(liq)
	return domain.Accept()
}

// Calibrated reports whether the baseline holds enough accepted samples for
// the adaptive checks to fire.
func (v *Validator) Calibrated() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.calibrated()
}

func (v *Validator) calibrated() bool {
	return v.spread.Len() >= minBaselineSamples
}

// BaselineRanges exposes the current (p10, p90) pairs for spread and
// liquidity, for the status surface.
func (v *Validator) BaselineRanges() (spread [2]float64, liquidity [2]float64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	spread = [2]float64{v.spread.Percentile(0.10), v.spread.Percentile(0.90)}
	liquidity = [2]float64{v.liquidity.Percentile(0.10), v.liquidity.Percentile(0.90)}
	return spread, liquidity
}
