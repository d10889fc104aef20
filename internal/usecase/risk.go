package usecase

import "github.com/braulionova/bybit-orderflow-bot/internal/domain"

// Stop-loss and take-profit clamp bounds, as fractions of price.
const (
	minSLPct = 0.005
	maxSLPct = 0.05
	minTPPct = 0.01
	maxTPPct = 0.10
)

// RiskSizer converts the current ATR% into a volatility-adapted risk
// envelope. TP scales with 1.5x the SL multiplier, keeping the reward side of
// the envelope growing faster than the risk side as volatility rises. Output
// is advisory only; order placement lives in the execution adapter.
type RiskSizer struct {
	baseSLPct      float64 // fraction, e.g. 0.01
	baseTPPct      float64
	volatilityMult float64
}

func NewRiskSizer(baseSLPct, baseTPPct, volatilityMult float64) *RiskSizer {
	return &RiskSizer{
		baseSLPct:      baseSLPct,
		baseTPPct:      baseTPPct,
		volatilityMult: volatilityMult,
	}
}

// Size produces the envelope for the given ATR (absolute and as a fraction of
// the reference price).
func (r *RiskSizer) Size(atr, atrPct float64) domain.RiskEnvelope {
	regime := Regime(atrPct)
	return domain.RiskEnvelope{
		StopLossPct:    clamp(r.baseSLPct+atrPct*r.volatilityMult, minSLPct, maxSLPct),
		TakeProfitPct:  clamp(r.baseTPPct+atrPct*r.volatilityMult*1.5, minTPPct, maxTPPct),
		Regime:         regime,
		SizeMultiplier: regimeSizeMultiplier(regime),
		ATR:            atr,
	}
}

// Regime buckets ATR% into the volatility regimes used for sizing.
func Regime(atrPct float64) domain.VolatilityRegime {
	switch {
	case atrPct < 0.005:
		return domain.RegimeLow
	case atrPct <= 0.02:
		return domain.RegimeMedium
	default:
		return domain.RegimeHigh
	}
}

// Smaller size and wider stops as volatility rises keeps risk-per-trade
// roughly constant across regimes.
func regimeSizeMultiplier(r domain.VolatilityRegime) float64 {
	switch r {
	case domain.RegimeLow:
		return 1.5
	case domain.RegimeMedium:
		return 1.0
	default:
		return 0.5
	}
}
