package usecase_test

import (
	"testing"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
	"github.com/braulionova/bybit-orderflow-bot/internal/usecase"
)

func newTestSizer() *usecase.RiskSizer {
	return usecase.NewRiskSizer(0.01, 0.02, 0.5)
}

func TestRiskSizer_QuietMarket(t *testing.T) {
	// ATR $245 on a $50000 mid
	env := newTestSizer().Size(245, 0.0049)

	approx(t, "stop loss", env.StopLossPct, 0.01+0.0049*0.5)      // 1.245%
	approx(t, "take profit", env.TakeProfitPct, 0.02+0.0049*0.75) // 2.3675%
	if env.Regime != domain.RegimeLow {
		t.Errorf("Expected Low regime, got %s", env.Regime)
	}
	if env.SizeMultiplier != 1.5 {
		t.Errorf("Expected size multiplier 1.5, got %f", env.SizeMultiplier)
	}
	if env.ATR != 245 {
		t.Errorf("Expected ATR carried through, got %f", env.ATR)
	}
}

func TestRiskSizer_ClampEndpoints(t *testing.T) {
	s := newTestSizer()

	// Zero volatility: envelope sits at the base, inside the clamps
	env := s.Size(0, 0)
	approx(t, "stop loss", env.StopLossPct, 0.01)
	approx(t, "take profit", env.TakeProfitPct, 0.02)

	// Extreme volatility pins both at the ceiling
	env = s.Size(3000, 0.06)
	approx(t, "stop loss", env.StopLossPct, 0.05)
	approx(t, "take profit", env.TakeProfitPct, 0.10)

	// A tiny base cannot go below the floor
	tiny := usecase.NewRiskSizer(0.001, 0.002, 0.5)
	env = tiny.Size(0, 0)
	approx(t, "stop loss floor", env.StopLossPct, 0.005)
	approx(t, "take profit floor", env.TakeProfitPct, 0.01)
}

func TestRiskSizer_MonotonicInVolatility(t *testing.T) {
	s := newTestSizer()
	prevSL, prevTP := 0.0, 0.0
	for _, atrPct := range []float64{0, 0.002, 0.005, 0.01, 0.02, 0.04, 0.08} {
		env := s.Size(atrPct*50000, atrPct)
		if env.StopLossPct < prevSL {
			t.Errorf("SL shrank as volatility rose: %f -> %f at atrPct=%f", prevSL, env.StopLossPct, atrPct)
		}
		if env.TakeProfitPct < prevTP {
			t.Errorf("TP shrank as volatility rose: %f -> %f at atrPct=%f", prevTP, env.TakeProfitPct, atrPct)
		}
		// TP grows 1.5x as fast as SL, so it stays ahead
		if env.TakeProfitPct <= env.StopLossPct {
			t.Errorf("TP %f not ahead of SL %f at atrPct=%f", env.TakeProfitPct, env.StopLossPct, atrPct)
		}
		prevSL, prevTP = env.StopLossPct, env.TakeProfitPct
	}
}

func TestRegimeBuckets(t *testing.T) {
	cases := []struct {
		atrPct float64
		regime domain.VolatilityRegime
		mult   float64
	}{
		{0.0, domain.RegimeLow, 1.5},
		{0.0049, domain.RegimeLow, 1.5},
		{0.005, domain.RegimeMedium, 1.0}, // boundary belongs to Medium
		{0.01, domain.RegimeMedium, 1.0},
		{0.02, domain.RegimeMedium, 1.0}, // boundary belongs to Medium
		{0.0201, domain.RegimeHigh, 0.5},
		{0.1, domain.RegimeHigh, 0.5},
	}
	for _, c := range cases {
		if got := usecase.Regime(c.atrPct); got != c.regime {
			t.Errorf("atrPct=%f: expected regime %s, got %s", c.atrPct, c.regime, got)
		}
		env := newTestSizer().Size(0, c.atrPct)
		if env.SizeMultiplier != c.mult {
			t.Errorf("atrPct=%f: expected size multiplier %f, got %f", c.atrPct, c.mult, env.SizeMultiplier)
		}
	}
}
