package domain

import "time"

// Side of an intended trade.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TradingState is the process-wide trading bookkeeping. It is mutated only by
// the lifecycle controller; everyone else receives value copies per cycle.
type TradingState struct {
	PositionOpen      bool      `json:"position_open"`
	LastTradeAt       time.Time `json:"last_trade_at"`
	TradesThisHour    int       `json:"trades_this_hour"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	DailyDrawdownPct  float64   `json:"daily_drawdown_pct"`
	KillSwitch        bool      `json:"kill_switch"`
	Day               time.Time `json:"day"` // calendar day the daily counters belong to
}

// OpenPosition is the position the controller is currently monitoring.
type OpenPosition struct {
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Quantity   float64   `json:"quantity"`
	OpenedAt   time.Time `json:"opened_at"`
}

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitStopLoss       ExitReason = "StopLoss"
	ExitTakeProfit     ExitReason = "TakeProfit"
	ExitSignalReversal ExitReason = "SignalReversal"
	ExitManual         ExitReason = "Manual"
)

// EntryInstruction is handed to the execution adapter when the controller
// allows an entry. Quantity sizing and native SL/TP submission happen there.
type EntryInstruction struct {
	Symbol             string  `json:"symbol"`
	Side               Side    `json:"side"`
	ReferencePrice     float64 `json:"reference_price"`
	QuantityMultiplier float64 `json:"quantity_multiplier"`
	StopLossPct        float64 `json:"stop_loss_pct"`
	TakeProfitPct      float64 `json:"take_profit_pct"`
	SLTPOrderType      string  `json:"sltp_order_type"` // "Market" or "Limit"
	SLTPTriggerBy      string  `json:"sltp_trigger_by"` // "LastPrice", "MarkPrice", "IndexPrice"
}

// StopLossPrice resolves the stop price for the instruction side.
func (e EntryInstruction) StopLossPrice() float64 {
	if e.Side == SideLong {
		return e.ReferencePrice * (1 - e.StopLossPct)
	}
	return e.ReferencePrice * (1 + e.StopLossPct)
}

// TakeProfitPrice resolves the take-profit price for the instruction side.
func (e EntryInstruction) TakeProfitPrice() float64 {
	if e.Side == SideLong {
		return e.ReferencePrice * (1 + e.TakeProfitPct)
	}
	return e.ReferencePrice * (1 - e.TakeProfitPct)
}

// ExitInstruction closes the open position.
type ExitInstruction struct {
	Symbol string     `json:"symbol"`
	Reason ExitReason `json:"reason"`
}

// ClosedTrade reports a finished round trip back to the controller.
type ClosedTrade struct {
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	PnLPct     float64    `json:"pnl_pct"`
	Reason     ExitReason `json:"reason"`
	ClosedAt   time.Time  `json:"closed_at"`
}
