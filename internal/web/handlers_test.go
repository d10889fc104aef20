package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
	"github.com/braulionova/bybit-orderflow-bot/internal/usecase"
)

type stubRepo struct {
	trades []*domain.ClosedTrade
	err    error
}

func (r *stubRepo) SaveSignal(context.Context, *domain.ScoredSignal, *domain.RiskEnvelope) error {
	return nil
}
func (r *stubRepo) SaveInstruction(context.Context, *domain.EntryInstruction) error { return nil }
func (r *stubRepo) SavePositionHistory(context.Context, *domain.ClosedTrade) error  { return nil }
func (r *stubRepo) DailyRealizedPnLPct(context.Context, time.Time) (float64, error) { return 0, nil }

func (r *stubRepo) ListPositionHistory(context.Context, int) ([]*domain.ClosedTrade, error) {
	return r.trades, r.err
}

func newTestServer(repo domain.SignalRepository) *Server {
	validator := usecase.NewValidator(usecase.ValidatorParams{
		MaxSpreadMultiplier:    3.0,
		MinLiquidityMultiplier: 0.25,
		MaxDataAge:             5 * time.Second,
		MinDepthLevels:         5,
	})
	lifecycle := usecase.NewLifecycle(usecase.LifecycleParams{
		Symbol:               "BTCUSDT",
		MinScore:             20,
		MinConfidence:        30,
		Cooldown:             30 * time.Second,
		MaxTradesPerHour:     40,
		MaxDailyDrawdownPct:  -3.0,
		MaxConsecutiveLosses: 3,
	})
	pipeline := usecase.NewPipeline(
		usecase.NewOrderBook("BTCUSDT"),
		usecase.NewMetricsEngine(usecase.MetricsParams{
			Depths:       []int{5, 10, 20},
			DeltaWindows: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
			WhaleMult:    3.0,
			WhaleFloor:   0.5,
			ATRPeriod:    14,
		}),
		validator,
		usecase.NewStrategy(usecase.StrategyParams{
			ImbalanceWeight: 0.30, VolumeDeltaWeight: 0.25, WhaleWeight: 0.20,
			PressureWeight: 0.15, ConsistencyWeight: 0.10,
			MaxSpreadPct: 0.001, MinLiquidity: 10, MaxLatency: time.Second,
		}),
		usecase.NewRiskSizer(0.01, 0.02, 0.5),
		lifecycle,
		nil, repo, nil, zap.NewNop(),
	)
	return NewServer(0, pipeline, validator, repo, zap.NewNop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	rec := get(t, newTestServer(&stubRepo{}), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	rec := get(t, newTestServer(&stubRepo{}), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		State    domain.TradingState    `json:"state"`
		Baseline map[string]interface{} `json:"baseline"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.State.PositionOpen {
		t.Error("Fresh pipeline reports an open position")
	}
	if calibrated, ok := body.Baseline["calibrated"].(bool); !ok || calibrated {
		t.Errorf("Fresh validator should not be calibrated: %v", body.Baseline["calibrated"])
	}
}

func TestHandleSignal_NoSignalYet(t *testing.T) {
	rec := get(t, newTestServer(&stubRepo{}), "/signal")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before the first cycle, got %d", rec.Code)
	}
}

func TestHandleMetrics_NoMetricsYet(t *testing.T) {
	rec := get(t, newTestServer(&stubRepo{}), "/metrics/latest")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before the first cycle, got %d", rec.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	repo := &stubRepo{trades: []*domain.ClosedTrade{
		{Symbol: "BTCUSDT", Side: domain.SideLong, PnLPct: 1.0, Reason: domain.ExitTakeProfit},
	}}
	rec := get(t, newTestServer(repo), "/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var trades []*domain.ClosedTrade
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(trades) != 1 || trades[0].Reason != domain.ExitTakeProfit {
		t.Errorf("Unexpected history: %+v", trades)
	}
}
