package usecase

import (
	"math"
	"sort"
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// Strategy folds an accepted metrics snapshot into one weighted composite
// score with a directional bias and a confidence figure.
//
// Normalization is clamp-and-scale: imbalance (averaged across the configured
// depths) and the volume-delta flow ratio map from [-1,1] to [-100,100], the
// pressure score is already on that scale, and whale score and depth
// consistency are [0,100] magnitudes that take the sign of the directional
// sum. Penalties shrink the magnitude toward zero and never flip the sign, so
// the clamped result stays inside [-100,100].
type Strategy struct {
	imbalanceWeight   float64
	volumeDeltaWeight float64
	whaleWeight       float64
	pressureWeight    float64
	consistencyWeight float64

	maxSpreadPct float64
	minLiquidity float64
	maxLatency   time.Duration
	deadBand     int
}

type StrategyParams struct {
	ImbalanceWeight   float64
	VolumeDeltaWeight float64
	WhaleWeight       float64
	PressureWeight    float64
	ConsistencyWeight float64

	MaxSpreadPct float64 // fraction, penalty threshold
	MinLiquidity float64
	MaxLatency   time.Duration
	DeadBand     int
}

func NewStrategy(p StrategyParams) *Strategy {
	return &Strategy{
		imbalanceWeight:   p.ImbalanceWeight,
		volumeDeltaWeight: p.VolumeDeltaWeight,
		whaleWeight:       p.WhaleWeight,
		pressureWeight:    p.PressureWeight,
		consistencyWeight: p.ConsistencyWeight,
		maxSpreadPct:      p.MaxSpreadPct,
		minLiquidity:      p.MinLiquidity,
		maxLatency:        p.MaxLatency,
		deadBand:          p.DeadBand,
	}
}

// Score produces the signal for one accepted cycle.
func (s *Strategy) Score(m *domain.MetricsSnapshot, reference float64) *domain.ScoredSignal {
	imb := meanImbalance(m.Imbalances)
	vd := mediumVolumeDelta(m.VolumeDeltas)

	imbComp := clamp(imb*100, -100, 100) * s.imbalanceWeight
	vdComp := clamp(vd*100, -100, 100) * s.volumeDeltaWeight
	prComp := m.PressureScore * s.pressureWeight
	directional := imbComp + vdComp + prComp

	whaleComp := m.WhaleScore * s.whaleWeight
	consComp := m.DepthConsistency * 100 * s.consistencyWeight
	magnitude := math.Abs(directional) + whaleComp + consComp

	var penalties float64
	if m.SpreadPct > s.maxSpreadPct {
		penalties += 30
	}
	if m.Liquidity < s.minLiquidity {
		penalties += 20
	}
	if m.Latency > s.maxLatency {
		penalties += 20
	}
	// Divergence: momentum fighting the book structure halves the trust put
	// in the volume-delta component.
	if sign(imb) != 0 && sign(vd) != 0 && sign(imb) != sign(vd) {
		penalties += math.Abs(vdComp) / 2
	}

	magnitude = math.Max(0, magnitude-penalties)
	score := int(math.Round(clamp(magnitude, 0, 100))) * sign(directional)

	sig := &domain.ScoredSignal{
		Timestamp: m.Timestamp,
		Score:     score,
		Bias:      s.bias(score),
		Reference: reference,
		Breakdown: domain.ScoreBreakdown{
			Imbalance:   imbComp,
			VolumeDelta: vdComp,
			Whale:       whaleComp,
			Pressure:    prComp,
			Consistency: consComp,
			Penalties:   penalties,
		},
	}
	sig.Confidence = s.confidence(sig, m)
	return sig
}

// bias maps the score through the neutral dead-band; the boundary itself is
// Neutral.
func (s *Strategy) bias(score int) domain.Bias {
	switch {
	case score > s.deadBand:
		return domain.BiasLong
	case score < -s.deadBand:
		return domain.BiasShort
	default:
		return domain.BiasNeutral
	}
}

// confidence blends score magnitude with depth consistency: a thin, lopsided
// book caps confidence no matter how extreme the score. Any undefined
// contributing metric zeroes it.
func (s *Strategy) confidence(sig *domain.ScoredSignal, m *domain.MetricsSnapshot) float64 {
	if !m.Complete() {
		return 0
	}
	return math.Min(100, 0.6*math.Abs(float64(sig.Score))+40*m.DepthConsistency)
}

func meanImbalance(byDepth map[int]float64) float64 {
	if len(byDepth) == 0 {
		return 0
	}
	var sum float64
	for _, v := range byDepth {
		sum += v
	}
	return sum / float64(len(byDepth))
}

// mediumVolumeDelta picks the middle configured window, the one the score
// leans on for momentum.
func mediumVolumeDelta(byWindow map[time.Duration]float64) float64 {
	if len(byWindow) == 0 {
		return 0
	}
	windows := make([]time.Duration, 0, len(byWindow))
	for w := range byWindow {
		windows = append(windows, w)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })
	return byWindow[windows[len(windows)/2]]
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
