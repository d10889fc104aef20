package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// SQLiteStore persists the signal journal, the emitted instructions and the
// position history. The position history backs the daily drawdown restore
// after a restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			score INTEGER NOT NULL,
			bias TEXT NOT NULL,
			confidence REAL NOT NULL,
			reference REAL NOT NULL,
			breakdown TEXT NOT NULL,
			sl_pct REAL,
			tp_pct REAL,
			regime TEXT,
			size_multiplier REAL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at);`,
		`CREATE TABLE IF NOT EXISTS instructions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			reference_price REAL NOT NULL,
			quantity_multiplier REAL NOT NULL,
			sl_pct REAL NOT NULL,
			tp_pct REAL NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			pnl_pct REAL NOT NULL,
			reason TEXT NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_position_history_closed_at ON position_history(closed_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *domain.ScoredSignal, env *domain.RiskEnvelope) error {
	breakdown, err := json.Marshal(sig.Breakdown)
	if err != nil {
		return err
	}

	var slPct, tpPct, sizeMult sql.NullFloat64
	var regime sql.NullString
	if env != nil {
		slPct = sql.NullFloat64{Float64: env.StopLossPct, Valid: true}
		tpPct = sql.NullFloat64{Float64: env.TakeProfitPct, Valid: true}
		sizeMult = sql.NullFloat64{Float64: env.SizeMultiplier, Valid: true}
		regime = sql.NullString{String: string(env.Regime), Valid: true}
	}

	query := `INSERT INTO signals (score, bias, confidence, reference, breakdown, sl_pct, tp_pct, regime, size_multiplier, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		sig.Score, string(sig.Bias), sig.Confidence, sig.Reference, string(breakdown),
		slPct, tpPct, regime, sizeMult, sig.Timestamp)
	return err
}

func (s *SQLiteStore) SaveInstruction(ctx context.Context, instr *domain.EntryInstruction) error {
	query := `INSERT INTO instructions (symbol, side, reference_price, quantity_multiplier, sl_pct, tp_pct, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		instr.Symbol, string(instr.Side), instr.ReferencePrice, instr.QuantityMultiplier,
		instr.StopLossPct, instr.TakeProfitPct, time.Now())
	return err
}

func (s *SQLiteStore) SavePositionHistory(ctx context.Context, trade *domain.ClosedTrade) error {
	query := `INSERT INTO position_history (symbol, side, entry_price, exit_price, pnl_pct, reason, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.Symbol, string(trade.Side), trade.EntryPrice, trade.ExitPrice,
		trade.PnLPct, string(trade.Reason), trade.ClosedAt)
	return err
}

func (s *SQLiteStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.ClosedTrade, error) {
	query := `SELECT symbol, side, entry_price, exit_price, pnl_pct, reason, closed_at
			  FROM position_history ORDER BY closed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		var side, reason string
		if err := rows.Scan(&t.Symbol, &side, &t.EntryPrice, &t.ExitPrice, &t.PnLPct, &reason, &t.ClosedAt); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		t.Reason = domain.ExitReason(reason)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// DailyRealizedPnLPct sums the realized PnL of positions closed on the given
// calendar day.
func (s *SQLiteStore) DailyRealizedPnLPct(ctx context.Context, day time.Time) (float64, error) {
	start := day.Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	query := `SELECT COALESCE(SUM(pnl_pct), 0) FROM position_history WHERE closed_at >= ? AND closed_at < ?`
	var total float64
	err := s.db.QueryRowContext(ctx, query, start, end).Scan(&total)
	return total, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
