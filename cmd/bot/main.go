package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/braulionova/bybit-orderflow-bot/internal/config"
	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
	"github.com/braulionova/bybit-orderflow-bot/internal/infrastructure/exchange"
	"github.com/braulionova/bybit-orderflow-bot/internal/infrastructure/logger"
	"github.com/braulionova/bybit-orderflow-bot/internal/infrastructure/storage"
	"github.com/braulionova/bybit-orderflow-bot/internal/infrastructure/telegram"
	"github.com/braulionova/bybit-orderflow-bot/internal/usecase"
	"github.com/braulionova/bybit-orderflow-bot/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting orderflow bot",
		zap.String("symbol", cfg.Trading.Symbol),
		zap.Bool("testnet", cfg.Bybit.Testnet),
		zap.Bool("trading_enabled", cfg.Trading.Enabled))

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// Per-cycle signal records go to a separate journal file when configured,
	// so they don't drown the console log.
	cycleLog := log
	if cfg.Logging.JournalPath != "" {
		journal, err := logger.NewFileLogger(cfg.Logging.JournalPath, "debug")
		if err != nil {
			log.Error("Failed to init journal logger, using default", zap.Error(err))
		} else {
			cycleLog = journal
			defer journal.Sync()
		}
	}

	// 4. Build the pipeline stages
	book := usecase.NewOrderBook(cfg.Trading.Symbol)
	metrics := usecase.NewMetricsEngine(usecase.MetricsParams{
		Depths:       cfg.Strategy.DepthLevels,
		DeltaWindows: cfg.Strategy.DeltaWindows(),
		WhaleMult:    cfg.Strategy.WhaleThresholdMultiplier,
		WhaleFloor:   cfg.Strategy.MinWhaleSize,
		ATRPeriod:    cfg.Risk.ATRPeriod,
	})
	validator := usecase.NewValidator(usecase.ValidatorParams{
		MaxSpreadMultiplier:    cfg.Validation.MaxSpreadMultiplier,
		MinLiquidityMultiplier: cfg.Validation.MinLiquidityMultiplier,
		MaxDataAge:             cfg.Validation.MaxDataAge(),
		MinDepthLevels:         cfg.Validation.MinDepthLevels,
	})
	strategy := usecase.NewStrategy(usecase.StrategyParams{
		ImbalanceWeight:   cfg.Strategy.ImbalanceWeight,
		VolumeDeltaWeight: cfg.Strategy.VolumeDeltaWeight,
		WhaleWeight:       cfg.Strategy.WhaleWeight,
		PressureWeight:    cfg.Strategy.PressureWeight,
		ConsistencyWeight: cfg.Strategy.DepthConsistencyWeight,
		MaxSpreadPct:      cfg.Risk.MaxSpreadPct / 100,
		MinLiquidity:      cfg.Risk.MinLiquidity,
		MaxLatency:        cfg.Risk.MaxLatency(),
		DeadBand:          cfg.Strategy.NeutralDeadBand,
	})
	sizer := usecase.NewRiskSizer(cfg.Risk.BaseSLPct/100, cfg.Risk.BaseTPPct/100, cfg.Risk.VolatilityMultiplier)
	lifecycle := usecase.NewLifecycle(usecase.LifecycleParams{
		Symbol:               cfg.Trading.Symbol,
		MinScore:             cfg.Strategy.MinScore,
		MinConfidence:        cfg.Strategy.MinConfidence,
		Cooldown:             cfg.Trading.MinTimeBetweenTrades(),
		MaxTradesPerHour:     cfg.Trading.MaxTradesPerHour,
		MaxDailyDrawdownPct:  cfg.Risk.MaxDailyDrawdownPct,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		SLTPOrderType:        cfg.Risk.SLTPOrderType,
		SLTPTriggerBy:        cfg.Risk.SLTPTriggerBy,
	})

	// Restore today's realized PnL from storage so a restart cannot clear a
	// mid-day drawdown.
	if pnl, err := store.DailyRealizedPnLPct(context.Background(), time.Now()); err != nil {
		log.Error("Failed to restore daily pnl", zap.Error(err))
	} else if pnl != 0 {
		lifecycle.RestoreDrawdown(pnl, time.Now())
		log.Info("Restored daily pnl", zap.Float64("pnl_pct", pnl))
	}

	// 5. Execution and notifications
	var executor domain.ExecutionClient
	if cfg.Trading.Enabled {
		executor = exchange.NewBybitExecution(
			cfg.Bybit.APIKey, cfg.Bybit.APISecret, cfg.Bybit.RESTURL,
			cfg.Trading.OrderQty, cfg.Trading.RiskPerTradePct, cfg.Trading.AccountEquityUSD,
			cfg.Trading.MaxLeverage, log)
	} else {
		log.Info("Trading disabled, running in signal-only mode")
	}

	var notifier domain.Notifier
	var tg *telegram.Notifier
	if cfg.Telegram.Enabled {
		tg = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		notifier = tg
	}

	pipeline := usecase.NewPipeline(book, metrics, validator, strategy, sizer, lifecycle,
		executor, store, notifier, cycleLog)

	// 6. Market data feed and processing loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := exchange.NewFeedClient(cfg.Bybit.WSURL, cfg.Trading.Symbol, 50, pipeline, log)

	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Feed stopped", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Pipeline stopped", zap.Error(err))
			cancel()
		}
	}()

	// 7. Status server
	server := web.NewServer(cfg.Server.Port, pipeline, validator, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	if tg != nil {
		if err := tg.NotifyStartup(ctx, cfg.Trading.Symbol, cfg.Bybit.Testnet); err != nil {
			log.Warn("Startup notification failed", zap.Error(err))
		}
	}

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
