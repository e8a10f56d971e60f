// Package config loads process configuration for any of the four runtime
// entrypoints (backtest, walkforward, paper, live) from an optional YAML
// file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/strategy"
)

// Config is the top-level process configuration. Maps directly onto an
// optional YAML file with TRADINGCORE_* environment variable overrides.
type Config struct {
	Market   string         `mapstructure:"market"`
	Mode     string         `mapstructure:"mode"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Cost     CostConfig     `mapstructure:"cost"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Sizing   SizingConfig   `mapstructure:"sizing"`
	Bus      BusConfig      `mapstructure:"bus"`
	Store    StoreConfig    `mapstructure:"store"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StrategyConfig names and scopes the strategy the runtime drives.
type StrategyConfig struct {
	Name           string   `mapstructure:"name"`
	StrategiesDir  string   `mapstructure:"strategies_dir"`
	Symbols        []string `mapstructure:"symbols"`
	Interval       string   `mapstructure:"interval"`
	Seed           int64    `mapstructure:"seed"`
	InitialCapital float64  `mapstructure:"initial_capital"`
}

// CostConfig seeds the fill simulator's per-market overrides; zero values
// fall back to the simulator's own defaults.
type CostConfig struct {
	SlippageBpsOverride   map[string]float64 `mapstructure:"slippage_bps_override"`
	CommissionBpsOverride map[string]float64 `mapstructure:"commission_bps_override"`
	MinLatencyMs          int64              `mapstructure:"min_latency_ms"`
}

// RiskConfig maps directly onto risk.ManagerConfig.
type RiskConfig struct {
	MaxDrawdownPct    float64 `mapstructure:"max_drawdown_pct"`
	DailyLossLimitPct float64 `mapstructure:"daily_loss_limit_pct"`
}

// SizingConfig controls the fraction of capital committed per position.
type SizingConfig struct {
	PositionSizePct float64 `mapstructure:"position_size_pct"`
}

// BusConfig configures the NATS connection used for the bars/signals/
// orders/fills/risk/kill-switch/health subjects.
type BusConfig struct {
	URL    string `mapstructure:"url"`
	Market string `mapstructure:"market_scope"`
}

// StoreConfig configures the historical candle source and the persistence
// sink's connection string.
type StoreConfig struct {
	CandleSource string `mapstructure:"candle_source"`
	PostgresURL  string `mapstructure:"postgres_url"`
}

// OpsConfig controls the health/metrics/mode HTTP surface.
type OpsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from an optional YAML file at path (skipped if empty
// or missing) with TRADINGCORE_* environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRADINGCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !errors.Is(err, os.ErrNotExist) {
				return nil, coreerrors.Config(fmt.Sprintf("read config file %s", path), err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, coreerrors.Config("unmarshal config", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("market", "crypto")
	v.SetDefault("mode", "backtest")
	v.SetDefault("strategy.interval", "1d")
	v.SetDefault("strategy.seed", 42)
	v.SetDefault("strategy.initial_capital", 100000)
	v.SetDefault("strategy.strategies_dir", "strategies")
	v.SetDefault("cost.min_latency_ms", 50)
	v.SetDefault("risk.max_drawdown_pct", 20.0)
	v.SetDefault("risk.daily_loss_limit_pct", 5.0)
	v.SetDefault("sizing.position_size_pct", 0.1)
	v.SetDefault("bus.url", "nats://localhost:4222")
	v.SetDefault("ops.addr", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate fails fast at startup on an invalid market, mode, interval,
// or numeric bound.
func (c *Config) Validate() error {
	if !domain.Market(c.Market).Valid() {
		return coreerrors.Config(fmt.Sprintf("market %q is not one of crypto|kr|us", c.Market), nil)
	}
	switch domain.TradingMode(c.Mode) {
	case domain.ModeBacktest, domain.ModePaper, domain.ModeLive:
	default:
		return coreerrors.Config(fmt.Sprintf("mode %q is not one of backtest|paper|live", c.Mode), nil)
	}
	if c.Strategy.Name == "" {
		return coreerrors.Config("strategy.name is required", nil)
	}
	if !strategy.Timeframe(c.Strategy.Interval).Valid() {
		return coreerrors.Config(fmt.Sprintf("strategy.interval %q is not supported", c.Strategy.Interval), nil)
	}
	if len(c.Strategy.Symbols) == 0 {
		return coreerrors.Config("strategy.symbols must be non-empty", nil)
	}
	if c.Strategy.InitialCapital <= 0 {
		return coreerrors.Config("strategy.initial_capital must be > 0", nil)
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 100 {
		return coreerrors.Config("risk.max_drawdown_pct must be within (0, 100]", nil)
	}
	if c.Risk.DailyLossLimitPct <= 0 || c.Risk.DailyLossLimitPct > 100 {
		return coreerrors.Config("risk.daily_loss_limit_pct must be within (0, 100]", nil)
	}
	if c.Sizing.PositionSizePct <= 0 || c.Sizing.PositionSizePct > 1 {
		return coreerrors.Config("sizing.position_size_pct must be within (0, 1]", nil)
	}
	return nil
}

// IntervalDuration parses the configured bar interval into a time.Duration where
// possible; "1d" has no fixed Duration and is returned as (0, false).
func (c StrategyConfig) IntervalDuration() (time.Duration, bool) {
	switch c.Interval {
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "15m":
		return 15 * time.Minute, true
	case "1h":
		return time.Hour, true
	default:
		return 0, false
	}
}
