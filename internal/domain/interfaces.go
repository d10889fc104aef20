package domain

import (
	"context"
	"time"
)

// ExecutionClient turns instructions into exchange orders. Implementations
// place native SL/TP orders alongside the entry so the protective orders
// survive a crash of this process.
type ExecutionClient interface {
	PlaceEntry(ctx context.Context, instr EntryInstruction) error
	ClosePosition(ctx context.Context, symbol string) error
}

// SignalRepository persists the per-cycle observability records and the trade
// journal.
type SignalRepository interface {
	SaveSignal(ctx context.Context, signal *ScoredSignal, envelope *RiskEnvelope) error
	SaveInstruction(ctx context.Context, instr *EntryInstruction) error
	SavePositionHistory(ctx context.Context, trade *ClosedTrade) error
	ListPositionHistory(ctx context.Context, limit int) ([]*ClosedTrade, error)
	DailyRealizedPnLPct(ctx context.Context, day time.Time) (float64, error)
}

// Notifier delivers operator-facing messages (entries, exits, kill switch).
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}
