package domain

import "time"

// MetricsSnapshot is the output of one metrics cycle. It is built once per
// book update and never mutated afterwards. Each dimension that needs history
// carries a Defined flag; an undefined dimension reads as neutral and
// disqualifies scoring for that cycle.
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// Volume delta per configured window, as net/total flow in [-1,1].
	VolumeDeltas       map[time.Duration]float64 `json:"volume_deltas"`
	VolumeDefined      bool                      `json:"volume_defined"`
	WhaleScore         float64                   `json:"whale_score"`    // 0..100
	Imbalances         map[int]float64           `json:"imbalances"`     // per depth, -1..1
	PressureScore      float64                   `json:"pressure_score"` // -100..100
	PressureDefined    bool                      `json:"pressure_defined"`
	DepthConsistency   float64                   `json:"depth_consistency"` // 0..1
	ConsistencyDefined bool                      `json:"consistency_defined"`
	ATR                float64                   `json:"atr"`     // absolute price units
	ATRPct             float64                   `json:"atr_pct"` // fraction of mid
	ATRDefined         bool                      `json:"atr_defined"`

	SpreadPct float64       `json:"spread_pct"`
	Liquidity float64       `json:"liquidity"`
	Latency   time.Duration `json:"latency"`
}

// Complete reports whether every history-dependent dimension is defined.
func (m *MetricsSnapshot) Complete() bool {
	return m.VolumeDefined && m.PressureDefined && m.ConsistencyDefined && m.ATRDefined
}

// Bias is the directional read of a scored signal.
type Bias string

const (
	BiasLong    Bias = "Long"
	BiasShort   Bias = "Short"
	BiasNeutral Bias = "Neutral"
)

// ScoreBreakdown records the weighted components and penalties that produced
// a composite score.
type ScoreBreakdown struct {
	Imbalance   float64 `json:"imbalance"`
	VolumeDelta float64 `json:"volume_delta"`
	Whale       float64 `json:"whale"`
	Pressure    float64 `json:"pressure"`
	Consistency float64 `json:"consistency"`
	Penalties   float64 `json:"penalties"`
}

// ScoredSignal is the strategy output for one accepted cycle. Immutable.
type ScoredSignal struct {
	Timestamp  time.Time      `json:"timestamp"`
	Score      int            `json:"score"` // -100..100
	Bias       Bias           `json:"bias"`
	Confidence float64        `json:"confidence"` // 0..100
	Breakdown  ScoreBreakdown `json:"breakdown"`
	Reference  float64        `json:"reference"` // mid price at scoring time
}

// VolatilityRegime classifies current ATR% into sizing buckets.
type VolatilityRegime string

const (
	RegimeLow    VolatilityRegime = "Low"
	RegimeMedium VolatilityRegime = "Medium"
	RegimeHigh   VolatilityRegime = "High"
)

// RiskEnvelope is the advisory sizing output for an entry-eligible signal.
// Actual order placement belongs to the execution adapter.
type RiskEnvelope struct {
	StopLossPct    float64          `json:"stop_loss_pct"`
	TakeProfitPct  float64          `json:"take_profit_pct"`
	Regime         VolatilityRegime `json:"regime"`
	SizeMultiplier float64          `json:"size_multiplier"`
	ATR            float64          `json:"atr"`
}
