// Package config loads and validates the bot configuration from YAML.
// Validation is exhaustive and fails fast: a config whose strategy weights do
// not sum to 1.0, or with a non-positive bound where positivity is required,
// never reaches the trading core.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

type Config struct {
	Bybit      BybitConfig      `yaml:"bybit"`
	Trading    TradingConfig    `yaml:"trading"`
	Risk       RiskConfig       `yaml:"risk"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Validation ValidationConfig `yaml:"validation"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
}

type BybitConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	WSURL     string `yaml:"ws_url"`
	RESTURL   string `yaml:"rest_url"`
}

type TradingConfig struct {
	Symbol                 string  `yaml:"symbol"`
	OrderQty               float64 `yaml:"order_qty"` // base quantity before the size multiplier
	RiskPerTradePct        float64 `yaml:"risk_per_trade_pct"`
	AccountEquityUSD       float64 `yaml:"account_equity_usd"` // 0 = fixed order_qty sizing
	MaxLeverage            int     `yaml:"max_leverage"`
	MinTimeBetweenTradesMs int64   `yaml:"min_time_between_trades_ms"`
	MaxTradesPerHour       int     `yaml:"max_trades_per_hour"`
	Enabled                bool    `yaml:"enabled"` // false = signal-only mode, no orders placed
}

type RiskConfig struct {
	MaxDailyDrawdownPct  float64 `yaml:"max_daily_drawdown_pct"` // negative, e.g. -3.0
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	MaxLatencyMs         int64   `yaml:"max_latency_ms"`
	MaxSpreadPct         float64 `yaml:"max_spread_pct"`
	MinLiquidity         float64 `yaml:"min_liquidity"`
	BaseSLPct            float64 `yaml:"base_sl_pct"`
	BaseTPPct            float64 `yaml:"base_tp_pct"`
	VolatilityMultiplier float64 `yaml:"volatility_multiplier"`
	ATRPeriod            int     `yaml:"atr_period"`
	SLTPOrderType        string  `yaml:"sltp_order_type"` // "Market" or "Limit"
	SLTPTriggerBy        string  `yaml:"sltp_trigger_by"` // "LastPrice", "MarkPrice", "IndexPrice"
}

type StrategyConfig struct {
	ImbalanceWeight        float64 `yaml:"imbalance_weight"`
	VolumeDeltaWeight      float64 `yaml:"volume_delta_weight"`
	WhaleWeight            float64 `yaml:"whale_weight"`
	PressureWeight         float64 `yaml:"pressure_weight"`
	DepthConsistencyWeight float64 `yaml:"depth_consistency_weight"`

	DepthLevels              []int   `yaml:"depth_levels"`
	WhaleThresholdMultiplier float64 `yaml:"whale_threshold_multiplier"`
	MinWhaleSize             float64 `yaml:"min_whale_size"`
	DeltaWindowsMs           []int64 `yaml:"delta_windows_ms"`
	MinScore                 int     `yaml:"min_score"`
	MinConfidence            float64 `yaml:"min_confidence"`
	NeutralDeadBand          int     `yaml:"neutral_dead_band"`
}

type ValidationConfig struct {
	MaxSpreadMultiplier    float64 `yaml:"max_spread_multiplier"`
	MinLiquidityMultiplier float64 `yaml:"min_liquidity_multiplier"`
	MaxDataAgeMs           int64   `yaml:"max_data_age_ms"`
	MinDepthLevels         int     `yaml:"min_depth_levels"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	JournalPath string `yaml:"journal_path"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bybit.WSURL == "" {
		c.Bybit.WSURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if c.Bybit.RESTURL == "" {
		c.Bybit.RESTURL = "https://api.bybit.com"
	}
	if c.Trading.Symbol == "" {
		c.Trading.Symbol = "BTCUSDT"
	}
	if c.Trading.OrderQty == 0 {
		c.Trading.OrderQty = 0.001
	}
	if c.Trading.RiskPerTradePct == 0 {
		c.Trading.RiskPerTradePct = 1.0
	}
	if c.Trading.MaxLeverage == 0 {
		c.Trading.MaxLeverage = 5
	}
	if c.Trading.MinTimeBetweenTradesMs == 0 {
		c.Trading.MinTimeBetweenTradesMs = 30000
	}
	if c.Trading.MaxTradesPerHour == 0 {
		c.Trading.MaxTradesPerHour = 40
	}

	if c.Risk.MaxDailyDrawdownPct == 0 {
		c.Risk.MaxDailyDrawdownPct = -3.0
	}
	if c.Risk.MaxConsecutiveLosses == 0 {
		c.Risk.MaxConsecutiveLosses = 3
	}
	if c.Risk.MaxLatencyMs == 0 {
		c.Risk.MaxLatencyMs = 1000
	}
	if c.Risk.MaxSpreadPct == 0 {
		c.Risk.MaxSpreadPct = 0.1
	}
	if c.Risk.MinLiquidity == 0 {
		c.Risk.MinLiquidity = 10
	}
	if c.Risk.BaseSLPct == 0 {
		c.Risk.BaseSLPct = 1.0
	}
	if c.Risk.BaseTPPct == 0 {
		c.Risk.BaseTPPct = 2.0
	}
	if c.Risk.VolatilityMultiplier == 0 {
		c.Risk.VolatilityMultiplier = 0.5
	}
	if c.Risk.ATRPeriod == 0 {
		c.Risk.ATRPeriod = 14
	}
	if c.Risk.SLTPOrderType == "" {
		c.Risk.SLTPOrderType = "Market"
	}
	if c.Risk.SLTPTriggerBy == "" {
		c.Risk.SLTPTriggerBy = "LastPrice"
	}

	s := &c.Strategy
	if s.ImbalanceWeight == 0 && s.VolumeDeltaWeight == 0 && s.WhaleWeight == 0 &&
		s.PressureWeight == 0 && s.DepthConsistencyWeight == 0 {
		s.ImbalanceWeight = 0.30
		s.VolumeDeltaWeight = 0.25
		s.WhaleWeight = 0.20
		s.PressureWeight = 0.15
		s.DepthConsistencyWeight = 0.10
	}
	if len(s.DepthLevels) == 0 {
		s.DepthLevels = []int{5, 10, 20}
	}
	if s.WhaleThresholdMultiplier == 0 {
		s.WhaleThresholdMultiplier = 3.0
	}
	if s.MinWhaleSize == 0 {
		s.MinWhaleSize = 0.5
	}
	if len(s.DeltaWindowsMs) == 0 {
		s.DeltaWindowsMs = []int64{1000, 5000, 30000}
	}
	if s.MinScore == 0 {
		s.MinScore = 20
	}
	if s.MinConfidence == 0 {
		s.MinConfidence = 30
	}

	v := &c.Validation
	if v.MaxSpreadMultiplier == 0 {
		v.MaxSpreadMultiplier = 3.0
	}
	if v.MinLiquidityMultiplier == 0 {
		v.MinLiquidityMultiplier = 0.25
	}
	if v.MaxDataAgeMs == 0 {
		v.MaxDataAgeMs = 5000
	}
	if v.MinDepthLevels == 0 {
		v.MinDepthLevels = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "bot.db"
	}
}

// Validate checks every numeric bound and the weight invariant.
func (c *Config) Validate() error {
	s := c.Strategy
	sum := s.ImbalanceWeight + s.VolumeDeltaWeight + s.WhaleWeight +
		s.PressureWeight + s.DepthConsistencyWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: strategy weights sum to %.4f, want 1.0", domain.ErrConfigInvalid, sum)
	}
	for _, w := range []float64{s.ImbalanceWeight, s.VolumeDeltaWeight, s.WhaleWeight, s.PressureWeight, s.DepthConsistencyWeight} {
		if w < 0 {
			return fmt.Errorf("%w: negative strategy weight", domain.ErrConfigInvalid)
		}
	}
	for _, d := range s.DepthLevels {
		if d <= 0 {
			return fmt.Errorf("%w: depth level must be positive, got %d", domain.ErrConfigInvalid, d)
		}
	}
	for _, w := range s.DeltaWindowsMs {
		if w <= 0 {
			return fmt.Errorf("%w: delta window must be positive, got %dms", domain.ErrConfigInvalid, w)
		}
	}
	if s.WhaleThresholdMultiplier <= 0 {
		return fmt.Errorf("%w: whale threshold multiplier must be positive", domain.ErrConfigInvalid)
	}
	if s.MinWhaleSize <= 0 {
		return fmt.Errorf("%w: min whale size must be positive", domain.ErrConfigInvalid)
	}
	if s.MinScore <= 0 || s.MinScore > 100 {
		return fmt.Errorf("%w: min_score out of range (0,100]", domain.ErrConfigInvalid)
	}
	if s.MinConfidence <= 0 || s.MinConfidence > 100 {
		return fmt.Errorf("%w: min_confidence out of range (0,100]", domain.ErrConfigInvalid)
	}
	if s.NeutralDeadBand < 0 {
		return fmt.Errorf("%w: neutral dead band must not be negative", domain.ErrConfigInvalid)
	}

	if c.Trading.Symbol == "" {
		return fmt.Errorf("%w: trading symbol required", domain.ErrConfigInvalid)
	}
	if c.Trading.OrderQty <= 0 {
		return fmt.Errorf("%w: order_qty must be positive", domain.ErrConfigInvalid)
	}
	if c.Trading.RiskPerTradePct <= 0 {
		return fmt.Errorf("%w: risk_per_trade_pct must be positive", domain.ErrConfigInvalid)
	}
	if c.Trading.AccountEquityUSD < 0 {
		return fmt.Errorf("%w: account_equity_usd must not be negative", domain.ErrConfigInvalid)
	}
	if c.Trading.MinTimeBetweenTradesMs <= 0 {
		return fmt.Errorf("%w: min_time_between_trades_ms must be positive", domain.ErrConfigInvalid)
	}
	if c.Trading.MaxTradesPerHour <= 0 {
		return fmt.Errorf("%w: max_trades_per_hour must be positive", domain.ErrConfigInvalid)
	}

	r := c.Risk
	if r.MaxDailyDrawdownPct >= 0 {
		return fmt.Errorf("%w: max_daily_drawdown_pct must be negative", domain.ErrConfigInvalid)
	}
	if r.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("%w: max_consecutive_losses must be positive", domain.ErrConfigInvalid)
	}
	if r.MaxLatencyMs <= 0 || r.MaxSpreadPct <= 0 || r.MinLiquidity <= 0 {
		return fmt.Errorf("%w: latency/spread/liquidity limits must be positive", domain.ErrConfigInvalid)
	}
	if r.BaseSLPct <= 0 || r.BaseTPPct <= 0 || r.VolatilityMultiplier <= 0 {
		return fmt.Errorf("%w: risk sizing parameters must be positive", domain.ErrConfigInvalid)
	}
	if r.ATRPeriod <= 0 {
		return fmt.Errorf("%w: atr_period must be positive", domain.ErrConfigInvalid)
	}

	v := c.Validation
	if v.MaxSpreadMultiplier <= 0 || v.MinLiquidityMultiplier <= 0 {
		return fmt.Errorf("%w: validation multipliers must be positive", domain.ErrConfigInvalid)
	}
	if v.MaxDataAgeMs <= 0 {
		return fmt.Errorf("%w: max_data_age_ms must be positive", domain.ErrConfigInvalid)
	}
	if v.MinDepthLevels <= 0 {
		return fmt.Errorf("%w: min_depth_levels must be positive", domain.ErrConfigInvalid)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("%w: telegram enabled without bot_token/chat_id", domain.ErrConfigInvalid)
	}
	return nil
}

// MinTimeBetweenTrades returns the entry cooldown as a duration.
func (c *TradingConfig) MinTimeBetweenTrades() time.Duration {
	return time.Duration(c.MinTimeBetweenTradesMs) * time.Millisecond
}

// MaxDataAge returns the staleness limit as a duration.
func (c *ValidationConfig) MaxDataAge() time.Duration {
	return time.Duration(c.MaxDataAgeMs) * time.Millisecond
}

// MaxLatency returns the latency penalty threshold as a duration.
func (c *RiskConfig) MaxLatency() time.Duration {
	return time.Duration(c.MaxLatencyMs) * time.Millisecond
}

// DeltaWindows returns the configured volume-delta windows as durations.
func (c *StrategyConfig) DeltaWindows() []time.Duration {
	out := make([]time.Duration, len(c.DeltaWindowsMs))
	for i, ms := range c.DeltaWindowsMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}
