package usecase

import (
	"math"
	"sync"
	"time"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// Lifecycle is the single writer of the process-wide trading state. It runs a
// small Idle/PositionOpen machine with independent guard counters; every side
// effect of the pipeline is gated here. All other components see the state
// only as value copies.
type Lifecycle struct {
	mu sync.RWMutex

	symbol        string
	minScore      int
	minConfidence float64
	cooldown      time.Duration
	maxPerHour    int
	maxDrawdown   float64 // negative percent
	maxLossStreak int
	sltpOrderType string
	sltpTriggerBy string

	state      domain.TradingState
	position   *domain.OpenPosition
	tradeTimes []time.Time // entries within the trailing hour
	dailyNet   float64     // signed daily PnL percent; drawdown is its negative part
}

type LifecycleParams struct {
	Symbol               string
	MinScore             int
	MinConfidence        float64
	Cooldown             time.Duration
	MaxTradesPerHour     int
	MaxDailyDrawdownPct  float64
	MaxConsecutiveLosses int
	SLTPOrderType        string
	SLTPTriggerBy        string
}

func NewLifecycle(p LifecycleParams) *Lifecycle {
	return &Lifecycle{
		symbol:        p.Symbol,
		minScore:      p.MinScore,
		minConfidence: p.MinConfidence,
		cooldown:      p.Cooldown,
		maxPerHour:    p.MaxTradesPerHour,
		maxDrawdown:   p.MaxDailyDrawdownPct,
		maxLossStreak: p.MaxConsecutiveLosses,
		sltpOrderType: p.SLTPOrderType,
		sltpTriggerBy: p.SLTPTriggerBy,
	}
}

// State returns a copy of the trading state.
func (l *Lifecycle) State() domain.TradingState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Position returns a copy of the open position, or nil when flat.
func (l *Lifecycle) Position() *domain.OpenPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.position == nil {
		return nil
	}
	p := *l.position
	return &p
}

// Eligible reports whether a signal clears the entry thresholds. This is the
// strategy contract's entry-eligibility check, evaluated here and not in the
// strategy itself.
func (l *Lifecycle) Eligible(sig *domain.ScoredSignal) bool {
	return sig != nil &&
		sig.Bias != domain.BiasNeutral &&
		absInt(sig.Score) >= l.minScore &&
		sig.Confidence >= l.minConfidence
}

// OnSignal runs the state machine for one cycle. It may emit an entry
// instruction (Idle, signal eligible, all guards pass) or an exit instruction
// (PositionOpen, eligible signal with the opposite bias). A nil envelope
// blocks entries; exits are never blocked, kill switch included.
func (l *Lifecycle) OnSignal(sig *domain.ScoredSignal, env *domain.RiskEnvelope, now time.Time) (*domain.EntryInstruction, *domain.ExitInstruction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollDay(now)
	l.rollHour(now)

	if !l.Eligible(sig) {
		return nil, nil
	}

	if l.state.PositionOpen {
		if l.position != nil && biasOpposes(sig.Bias, l.position.Side) {
			return nil, &domain.ExitInstruction{Symbol: l.symbol, Reason: domain.ExitSignalReversal}
		}
		return nil, nil
	}

	if env == nil || !l.guardsPass(now) {
		return nil, nil
	}

	side := domain.SideLong
	if sig.Bias == domain.BiasShort {
		side = domain.SideShort
	}

	instr := &domain.EntryInstruction{
		Symbol:             l.symbol,
		Side:               side,
		ReferencePrice:     sig.Reference,
		QuantityMultiplier: env.SizeMultiplier,
		StopLossPct:        env.StopLossPct,
		TakeProfitPct:      env.TakeProfitPct,
		SLTPOrderType:      l.sltpOrderType,
		SLTPTriggerBy:      l.sltpTriggerBy,
	}

	l.state.PositionOpen = true
	l.state.LastTradeAt = now
	l.tradeTimes = append(l.tradeTimes, now)
	l.state.TradesThisHour = len(l.tradeTimes)
	l.position = &domain.OpenPosition{
		Side:       side,
		EntryPrice: instr.ReferencePrice,
		StopLoss:   instr.StopLossPrice(),
		TakeProfit: instr.TakeProfitPrice(),
		Quantity:   env.SizeMultiplier,
		OpenedAt:   now,
	}
	return instr, nil
}

// CheckExit is the software backup for the exchange-native SL/TP orders: it
// tests the latest mid price against the stored stop and target while a
// position is open.
func (l *Lifecycle) CheckExit(price float64, now time.Time) *domain.ExitInstruction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.position == nil || price == 0 {
		return nil
	}

	var reason domain.ExitReason
	switch l.position.Side {
	case domain.SideLong:
		if price <= l.position.StopLoss {
			reason = domain.ExitStopLoss
		} else if price >= l.position.TakeProfit {
			reason = domain.ExitTakeProfit
		}
	case domain.SideShort:
		if price >= l.position.StopLoss {
			reason = domain.ExitStopLoss
		} else if price <= l.position.TakeProfit {
			reason = domain.ExitTakeProfit
		}
	}
	if reason == "" {
		return nil
	}
	return &domain.ExitInstruction{Symbol: l.symbol, Reason: reason}
}

// OnPositionClosed records the round trip: loss streak, daily drawdown and,
// when a limit is breached, the kill switch. The switch is a latch: it only
// clears on the next calendar-day rollover, never by retry.
func (l *Lifecycle) OnPositionClosed(exitPrice float64, reason domain.ExitReason, now time.Time) *domain.ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.position == nil {
		return nil
	}
	pos := l.position
	l.position = nil
	l.state.PositionOpen = false
	l.rollDay(now)

	var pnlPct float64
	if pos.EntryPrice != 0 {
		pnlPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
		if pos.Side == domain.SideShort {
			pnlPct = -pnlPct
		}
	}

	if pnlPct > 0 {
		l.state.ConsecutiveLosses = 0
	} else if pnlPct < 0 {
		l.state.ConsecutiveLosses++
	}
	l.dailyNet += pnlPct
	l.state.DailyDrawdownPct = math.Min(0, l.dailyNet)

	if l.state.DailyDrawdownPct <= l.maxDrawdown || l.state.ConsecutiveLosses >= l.maxLossStreak {
		l.state.KillSwitch = true
	}

	return &domain.ClosedTrade{
		Symbol:     l.symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		PnLPct:     pnlPct,
		Reason:     reason,
		ClosedAt:   now,
	}
}

// RestoreDrawdown seeds the daily drawdown from persisted history after a
// restart, so a crash cannot reset the loss budget mid-day.
func (l *Lifecycle) RestoreDrawdown(pnlPct float64, day time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Day = day.Truncate(24 * time.Hour)
	l.dailyNet = pnlPct
	l.state.DailyDrawdownPct = math.Min(0, pnlPct)
	if l.state.DailyDrawdownPct <= l.maxDrawdown {
		l.state.KillSwitch = true
	}
}

func (l *Lifecycle) guardsPass(now time.Time) bool {
	if l.state.PositionOpen || l.state.KillSwitch {
		return false
	}
	if !l.state.LastTradeAt.IsZero() && now.Sub(l.state.LastTradeAt) < l.cooldown {
		return false
	}
	return len(l.tradeTimes) < l.maxPerHour
}

// rollDay resets the daily counters and the kill switch on a calendar-day
// boundary.
func (l *Lifecycle) rollDay(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if l.state.Day.IsZero() {
		l.state.Day = day
		return
	}
	if day.After(l.state.Day) {
		l.state.Day = day
		l.dailyNet = 0
		l.state.DailyDrawdownPct = 0
		l.state.KillSwitch = false
	}
}

// rollHour evicts entries that left the trailing-hour window.
func (l *Lifecycle) rollHour(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(l.tradeTimes) && l.tradeTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.tradeTimes = append(l.tradeTimes[:0], l.tradeTimes[i:]...)
	}
	l.state.TradesThisHour = len(l.tradeTimes)
}

func biasOpposes(b domain.Bias, side domain.Side) bool {
	return (b == domain.BiasLong && side == domain.SideShort) ||
		(b == domain.BiasShort && side == domain.SideLong)
}

func absInt(v int) int {
	return int(math.Abs(float64(v)))
}
