package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// Pipeline wires the five stages together and runs one processing cycle per
// successful book update. Ingestion and processing are decoupled: feed
// callbacks apply the update and poke a capacity-1 trigger channel, so a slow
// cycle never blocks the writer; it just processes the most recent
// consistent view and lets superseded updates collapse into one trigger.
// Trade prints cross to the processing goroutine over a buffered channel,
// keeping the metrics windows single-owner. Staleness that results from
// falling behind is policed by the validator's data-age check.
type Pipeline struct {
	book      *OrderBook
	metrics   *MetricsEngine
	validator *Validator
	strategy  *Strategy
	sizer     *RiskSizer
	lifecycle *Lifecycle

	executor domain.ExecutionClient // nil in signal-only mode
	repo     domain.SignalRepository
	notifier domain.Notifier // nil when telegram is disabled
	log      *zap.Logger

	trigger chan struct{}
	trades  chan domain.Trade

	// last published artifacts, for the status surface
	statusMu     sync.RWMutex
	lastSignal   *domain.ScoredSignal
	lastEnvelope *domain.RiskEnvelope
	lastMetrics  *domain.MetricsSnapshot
	lastVerdict  domain.ValidationResult
}

func NewPipeline(
	book *OrderBook,
	metrics *MetricsEngine,
	validator *Validator,
	strategy *Strategy,
	sizer *RiskSizer,
	lifecycle *Lifecycle,
	executor domain.ExecutionClient,
	repo domain.SignalRepository,
	notifier domain.Notifier,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		book:      book,
		metrics:   metrics,
		validator: validator,
		strategy:  strategy,
		sizer:     sizer,
		lifecycle: lifecycle,
		executor:  executor,
		repo:      repo,
		notifier:  notifier,
		log:       log,
		trigger:   make(chan struct{}, 1),
		trades:    make(chan domain.Trade, 1024),
	}
}

// ApplySnapshot ingests a full-book message and schedules a cycle.
func (p *Pipeline) ApplySnapshot(msg domain.SnapshotMsg) {
	p.book.ApplySnapshot(msg)
	p.wake()
}

// ApplyDelta ingests one incremental update. A sequence gap leaves the book
// untouched and is returned to the feed, which must resynchronize with a
// fresh snapshot before sending further deltas.
func (p *Pipeline) ApplyDelta(msg domain.DeltaMsg) error {
	if err := p.book.ApplyDelta(msg); err != nil {
		if errors.Is(err, domain.ErrSequenceGap) {
			p.log.Warn("sequence gap, resynchronization required",
				zap.Uint64("version", p.book.Version()),
				zap.Uint64("got", msg.Sequence))
		}
		return err
	}
	p.wake()
	return nil
}

// OnTrade queues one print from the public trade tape. The metrics windows
// belong to the processing goroutine, so prints cross over the buffered
// channel and are drained at the top of each cycle. A full buffer drops the
// print: volume delta is a flow ratio and tolerates thinning under
// backpressure.
func (p *Pipeline) OnTrade(t domain.Trade) {
	select {
	case p.trades <- t:
	default:
	}
}

func (p *Pipeline) drainTrades() {
	for {
		select {
		case t := <-p.trades:
			p.metrics.OnTrade(t)
		default:
			return
		}
	}
}

func (p *Pipeline) wake() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run consumes triggers until the context is cancelled. It owns every
// artifact the cycle produces; nothing here is written from another
// goroutine.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.trigger:
			p.cycle(ctx, time.Now())
		}
	}
}

// cycle runs Metrics -> Validation -> Scoring -> Risk -> Lifecycle once over
// the latest consistent book view.
func (p *Pipeline) cycle(ctx context.Context, now time.Time) {
	p.drainTrades()
	view := p.book.Read()
	m := p.metrics.Compute(view, now)
	p.publishStatus(func() { p.lastMetrics = m })

	// Software SL/TP backup runs before validation: exits must work even
	// while the gate is rejecting ticks.
	if exit := p.lifecycle.CheckExit(view.MidPrice(), now); exit != nil {
		p.dispatchExit(ctx, exit, view.MidPrice(), now)
	}

	verdict := p.validator.Validate(view, now)
	p.publishStatus(func() { p.lastVerdict = verdict })
	if !verdict.Accepted {
		p.log.Debug("tick rejected",
			zap.String("reason", string(verdict.Reason)),
			zap.Uint64("version", view.Version))
		return
	}

	sig := p.strategy.Score(m, view.MidPrice())

	var env *domain.RiskEnvelope
	if p.lifecycle.Eligible(sig) && m.ATRDefined {
		e := p.sizer.Size(m.ATR, m.ATRPct)
		env = &e
	}
	p.publishStatus(func() {
		p.lastSignal = sig
		if env != nil {
			p.lastEnvelope = env
		}
	})

	p.logCycle(view, m, sig, env)
	if p.repo != nil {
		if err := p.repo.SaveSignal(ctx, sig, env); err != nil {
			p.log.Error("save signal", zap.Error(err))
		}
	}

	entry, exit := p.lifecycle.OnSignal(sig, env, now)
	if exit != nil {
		p.dispatchExit(ctx, exit, view.MidPrice(), now)
	}
	if entry != nil {
		p.dispatchEntry(ctx, entry)
	}
}

func (p *Pipeline) dispatchEntry(ctx context.Context, instr *domain.EntryInstruction) {
	p.log.Info("entry instruction",
		zap.String("side", string(instr.Side)),
		zap.Float64("reference", instr.ReferencePrice),
		zap.Float64("sl_pct", instr.StopLossPct*100),
		zap.Float64("tp_pct", instr.TakeProfitPct*100),
		zap.Float64("size_mult", instr.QuantityMultiplier))

	if p.repo != nil {
		if err := p.repo.SaveInstruction(ctx, instr); err != nil {
			p.log.Error("save instruction", zap.Error(err))
		}
	}
	if p.executor != nil {
		if err := p.executor.PlaceEntry(ctx, *instr); err != nil {
			p.log.Error("place entry", zap.Error(err))
			// The exchange never saw the order; unwind the controller state.
			p.lifecycle.OnPositionClosed(instr.ReferencePrice, domain.ExitManual, time.Now())
			return
		}
	}
	p.notify(ctx, "Position Opened", fmt.Sprintf("%s %s @ %.2f | SL %.2f%% TP %.2f%%",
		instr.Symbol, instr.Side, instr.ReferencePrice, instr.StopLossPct*100, instr.TakeProfitPct*100))
}

func (p *Pipeline) dispatchExit(ctx context.Context, instr *domain.ExitInstruction, price float64, now time.Time) {
	if p.executor != nil {
		if err := p.executor.ClosePosition(ctx, instr.Symbol); err != nil {
			p.log.Error("close position", zap.Error(err))
		}
	}

	closed := p.lifecycle.OnPositionClosed(price, instr.Reason, now)
	if closed == nil {
		return
	}
	p.log.Info("position closed",
		zap.String("reason", string(closed.Reason)),
		zap.Float64("pnl_pct", closed.PnLPct))

	if p.repo != nil {
		if err := p.repo.SavePositionHistory(ctx, closed); err != nil {
			p.log.Error("save position history", zap.Error(err))
		}
	}
	p.notify(ctx, "Position Closed", fmt.Sprintf("%s %s | %.2f%% (%s)",
		closed.Symbol, closed.Side, closed.PnLPct, closed.Reason))

	if p.lifecycle.State().KillSwitch {
		p.log.Warn("kill switch engaged", zap.Float64("daily_drawdown_pct", p.lifecycle.State().DailyDrawdownPct))
		p.notify(ctx, "Kill Switch Engaged", "new entries blocked until the next daily reset")
	}
}

func (p *Pipeline) notify(ctx context.Context, title, msg string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, title, msg); err != nil {
		p.log.Warn("notify", zap.Error(err))
	}
}

// logCycle emits the per-cycle structured record: metrics, verdict, signal
// and envelope when present.
func (p *Pipeline) logCycle(view *domain.BookView, m *domain.MetricsSnapshot, sig *domain.ScoredSignal, env *domain.RiskEnvelope) {
	fields := []zap.Field{
		zap.Uint64("version", view.Version),
		zap.Float64("mid", view.MidPrice()),
		zap.Float64("spread_pct", m.SpreadPct*100),
		zap.Float64("liquidity", m.Liquidity),
		zap.Float64("whale", m.WhaleScore),
		zap.Float64("consistency", m.DepthConsistency),
		zap.Int("score", sig.Score),
		zap.String("bias", string(sig.Bias)),
		zap.Float64("confidence", sig.Confidence),
	}
	if m.ATRDefined {
		fields = append(fields, zap.Float64("atr_pct", m.ATRPct*100))
	}
	if env != nil {
		fields = append(fields,
			zap.String("regime", string(env.Regime)),
			zap.Float64("sl_pct", env.StopLossPct*100),
			zap.Float64("tp_pct", env.TakeProfitPct*100))
	}
	p.log.Debug("cycle", fields...)
}

// Snapshot of the latest artifacts, for the status server.
type PipelineStatus struct {
	Signal   *domain.ScoredSignal    `json:"signal,omitempty"`
	Envelope *domain.RiskEnvelope    `json:"envelope,omitempty"`
	Metrics  *domain.MetricsSnapshot `json:"metrics,omitempty"`
	Verdict  domain.ValidationResult `json:"verdict"`
	State    domain.TradingState     `json:"state"`
	Position *domain.OpenPosition    `json:"position,omitempty"`
}

func (p *Pipeline) publishStatus(fn func()) {
	p.statusMu.Lock()
	fn()
	p.statusMu.Unlock()
}

// Status returns the most recent cycle's artifacts.
func (p *Pipeline) Status() PipelineStatus {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return PipelineStatus{
		Signal:   p.lastSignal,
		Envelope: p.lastEnvelope,
		Metrics:  p.lastMetrics,
		Verdict:  p.lastVerdict,
		State:    p.lifecycle.State(),
		Position: p.lifecycle.Position(),
	}
}
