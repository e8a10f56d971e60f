// Command tradingcore runs the trading core in one of its four modes:
//
//	tradingcore backtest    -strategy turtle_breakout -market crypto -symbols BTCUSDT -data bars.csv
//	tradingcore walkforward -strategy turtle_breakout -start 2022-01-01 -end 2024-01-01 -data bars.parquet
//	tradingcore paper       -strategy turtle_breakout -symbols BTCUSDT -config paper.yaml
//	tradingcore live        -strategy turtle_breakout -symbols BTCUSDT -config live.yaml
//
// Exit code 0 on success; non-zero on validation error or unrecoverable
// runtime error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/adapters/livebroker"
	"github.com/autovant/tradingcore/internal/adapters/paperbroker"
	"github.com/autovant/tradingcore/internal/adapters/wsfeed"
	"github.com/autovant/tradingcore/internal/bus"
	"github.com/autovant/tradingcore/internal/config"
	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/data"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/engine"
	"github.com/autovant/tradingcore/internal/fillsim"
	"github.com/autovant/tradingcore/internal/live"
	"github.com/autovant/tradingcore/internal/ops"
	"github.com/autovant/tradingcore/internal/persistence"
	"github.com/autovant/tradingcore/internal/reporter"
	"github.com/autovant/tradingcore/internal/risk"
	"github.com/autovant/tradingcore/internal/strategies/turtlebreakout"
	"github.com/autovant/tradingcore/internal/strategy"
	"github.com/autovant/tradingcore/internal/telemetry"
	"github.com/autovant/tradingcore/internal/walkforward"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tradingcore <backtest|walkforward|paper|live> [flags]")
		os.Exit(2)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var err error
	switch os.Args[1] {
	case "backtest":
		err = runBacktest(os.Args[2:], logger)
	case "walkforward":
		err = runWalkForward(os.Args[2:], logger)
	case "paper":
		err = runLive(os.Args[2:], domain.ModePaper, logger)
	case "live":
		err = runLive(os.Args[2:], domain.ModeLive, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q: use backtest, walkforward, paper, or live\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// commonFlags is the flag set shared by every subcommand.
type commonFlags struct {
	strategyName  string
	strategiesDir string
	market        string
	symbols       string
	start         string
	end           string
	capital       float64
	interval      string
	seed          int64
	dataPath      string
	configPath    string
}

func registerCommon(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVar(&f.strategyName, "strategy", "", "Strategy name or plugin path")
	fs.StringVar(&f.strategiesDir, "strategies-dir", "strategies", "Directory strategy plugins are resolved against")
	fs.StringVar(&f.market, "market", "crypto", "Market: crypto, kr, or us")
	fs.StringVar(&f.symbols, "symbols", "", "Comma-separated symbol list")
	fs.StringVar(&f.start, "start", "", "Start date (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "End date (YYYY-MM-DD)")
	fs.Float64Var(&f.capital, "capital", 100000, "Initial capital")
	fs.StringVar(&f.interval, "interval", "1d", "Bar interval: 1m, 5m, 15m, 1h, or 1d")
	fs.Int64Var(&f.seed, "seed", 42, "Deterministic fill simulator seed")
	fs.StringVar(&f.dataPath, "data", "", "Historical candle file (.csv or .parquet)")
	fs.StringVar(&f.configPath, "config", "", "Optional YAML config file")
}

func (f commonFlags) symbolList() []string {
	if f.symbols == "" {
		return nil
	}
	parts := strings.Split(f.symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (f commonFlags) parseDates() (start, end time.Time, err error) {
	if f.start != "" {
		start, err = time.Parse("2006-01-02", f.start)
		if err != nil {
			return start, end, coreerrors.Config(fmt.Sprintf("invalid -start %q", f.start), err)
		}
	}
	if f.end != "" {
		end, err = time.Parse("2006-01-02", f.end)
		if err != nil {
			return start, end, coreerrors.Config(fmt.Sprintf("invalid -end %q", f.end), err)
		}
	}
	return start, end, nil
}

func (f commonFlags) validate() error {
	if f.strategyName == "" {
		return coreerrors.Config("-strategy is required", nil)
	}
	if !domain.Market(f.market).Valid() {
		return coreerrors.Config(fmt.Sprintf("-market %q is not one of crypto|kr|us", f.market), nil)
	}
	if !strategy.Timeframe(f.interval).Valid() {
		return coreerrors.Config(fmt.Sprintf("-interval %q is not supported", f.interval), nil)
	}
	if f.capital <= 0 {
		return coreerrors.Config("-capital must be > 0", nil)
	}
	return nil
}

// builtinBundles maps first-party strategy names to their bundles; names
// not found here fall through to the sandboxed plugin loader.
func builtinBundles(logger zerolog.Logger) map[string]strategy.Bundle {
	return map[string]strategy.Bundle{
		"turtle_breakout": turtlebreakout.Bundle(logger),
	}
}

func resolveBundle(f commonFlags, logger zerolog.Logger) (strategy.Bundle, error) {
	if bundle, ok := builtinBundles(logger)[f.strategyName]; ok {
		return bundle, nil
	}
	return strategy.LoadStrategyBundle(strategy.LoaderConfig{StrategiesDir: f.strategiesDir}, f.strategyName)
}

func candleProvider(f commonFlags) (walkforward.CandleProvider, error) {
	if f.dataPath == "" {
		return nil, coreerrors.Config("-data is required for historical runs", nil)
	}
	switch filepath.Ext(f.dataPath) {
	case ".csv":
		p := data.CSVCandleProvider{Path: f.dataPath, Market: domain.Market(f.market), Interval: f.interval}
		return p.Load, nil
	case ".parquet":
		p := data.ParquetCandleProvider{Path: f.dataPath, Market: domain.Market(f.market)}
		return p.Load, nil
	default:
		return nil, coreerrors.Config(fmt.Sprintf("-data %q must be a .csv or .parquet file", f.dataPath), nil)
	}
}

func runBacktest(args []string, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	var f commonFlags
	registerCommon(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := f.validate(); err != nil {
		return err
	}

	bundle, err := resolveBundle(f, logger)
	if err != nil {
		return err
	}
	provider, err := candleProvider(f)
	if err != nil {
		return err
	}
	start, end, err := f.parseDates()
	if err != nil {
		return err
	}

	symbols := f.symbolList()
	if len(symbols) == 0 {
		symbols = bundle.Meta.Universe
	}

	bars, err := provider(start, end, symbols)
	if err != nil {
		return err
	}

	cfg := engine.Config{
		Market:         domain.Market(f.market),
		StrategyName:   bundle.Meta.Name,
		Symbols:        symbols,
		InitialCapital: decimal.NewFromFloat(f.capital),
		RandomSeed:     f.seed,
	}
	eng := engine.New(cfg, bundle.Build(), logger)
	result := eng.Run(bars)

	fmt.Print(reporter.RenderBacktest(result))
	return nil
}

func runWalkForward(args []string, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("walkforward", flag.ExitOnError)
	var f commonFlags
	var isDays, oosDays, stepDays int
	registerCommon(fs, &f)
	fs.IntVar(&isDays, "is-days", 252, "In-sample window length in days")
	fs.IntVar(&oosDays, "oos-days", 63, "Out-of-sample window length in days")
	fs.IntVar(&stepDays, "step-days", 63, "Step between windows in days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := f.validate(); err != nil {
		return err
	}
	if f.start == "" || f.end == "" {
		return coreerrors.Config("-start and -end are required for walkforward", nil)
	}

	bundle, err := resolveBundle(f, logger)
	if err != nil {
		return err
	}
	provider, err := candleProvider(f)
	if err != nil {
		return err
	}
	start, end, err := f.parseDates()
	if err != nil {
		return err
	}

	symbols := f.symbolList()
	if len(symbols) == 0 {
		symbols = bundle.Meta.Universe
	}

	cfg := walkforward.Config{
		Market:          domain.Market(f.market),
		StrategyName:    bundle.Meta.Name,
		Symbols:         symbols,
		StartDate:       start,
		EndDate:         end,
		InSampleDays:    isDays,
		OutOfSampleDays: oosDays,
		StepDays:        stepDays,
		InitialCapital:  decimal.NewFromFloat(f.capital),
		RandomSeed:      f.seed,
	}
	validator := walkforward.New(cfg, provider, bundle.Build, logger)
	result, err := validator.Run()
	if err != nil {
		return err
	}

	fmt.Print(walkforward.Report(result))
	return nil
}

// runLive drives the paper or live runtime: same pipeline, different
// broker adapter.
func runLive(args []string, mode domain.TradingMode, logger zerolog.Logger) error {
	fs := flag.NewFlagSet(string(mode), flag.ExitOnError)
	var f commonFlags
	registerCommon(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := f.validate(); err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	cfg.Market = f.market
	cfg.Mode = string(mode)
	cfg.Strategy.Name = f.strategyName
	if symbols := f.symbolList(); len(symbols) > 0 {
		cfg.Strategy.Symbols = symbols
	}
	cfg.Strategy.Interval = f.interval
	cfg.Strategy.Seed = f.seed
	cfg.Strategy.InitialCapital = f.capital
	if err := cfg.Validate(); err != nil {
		return err
	}

	bundle, err := resolveBundle(f, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	eventBus, err := bus.Connect(cfg.Bus.URL)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	metrics := telemetry.New(prometheus.DefaultRegisterer)
	metrics.SetMode(string(mode))

	market := domain.Market(cfg.Market)
	fillCfg := fillsim.Config{
		MinLatencyMs:          cfg.Cost.MinLatencyMs,
		Seed:                  cfg.Strategy.Seed,
		SlippageBpsOverride:   decimalMarketMap(cfg.Cost.SlippageBpsOverride),
		CommissionBpsOverride: decimalMarketMap(cfg.Cost.CommissionBpsOverride),
	}

	var broker live.Broker
	switch mode {
	case domain.ModePaper:
		broker = paperbroker.New(market, mode, paperbroker.Config{
			InitialBalance: decimal.NewFromFloat(cfg.Strategy.InitialCapital),
			Fill:           fillCfg,
			PartialFill:    paperbroker.PartialFillConfig{Enabled: true, MaxSlices: 3, MinSlicePct: decimal.NewFromFloat(0.1)},
		}, metrics, logger)
	default:
		broker = livebroker.New(livebroker.Config{
			BaseURL:   os.Getenv("TRADINGCORE_BROKER_URL"),
			APIKey:    os.Getenv("TRADINGCORE_BROKER_API_KEY"),
			APISecret: os.Getenv("TRADINGCORE_BROKER_API_SECRET"),
		}, logger)
	}

	feed := wsfeed.New(wsfeed.Config{
		Market:      market,
		WSBaseURL:   os.Getenv("TRADINGCORE_FEED_WS_URL"),
		RESTBaseURL: os.Getenv("TRADINGCORE_FEED_REST_URL"),
	}, logger)

	var sink live.PersistenceSink
	if cfg.Store.PostgresURL != "" {
		store, err := persistence.Open(ctx, cfg.Store.PostgresURL, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sink = store
	}

	runtimeCfg := live.RuntimeConfig{
		Market:         market,
		Mode:           mode,
		Symbols:        cfg.Strategy.Symbols,
		Interval:       cfg.Strategy.Interval,
		InitialCapital: decimal.NewFromFloat(cfg.Strategy.InitialCapital),
		OrderManager:   live.OrderManagerConfig{PositionSizePct: decimal.NewFromFloat(cfg.Sizing.PositionSizePct)},
		Risk: risk.ManagerConfig{
			MaxDrawdownPct:    decimal.NewFromFloat(cfg.Risk.MaxDrawdownPct),
			DailyLossLimitPct: decimal.NewFromFloat(cfg.Risk.DailyLossLimitPct),
		},
	}
	runtime := live.New(runtimeCfg, bundle.Build(), feed, broker, eventBus, sink, logger)

	perf := reporter.New(market, mode, eventBus, logger)
	if err := perf.Start(); err != nil {
		return err
	}
	defer perf.Stop()
	go func() {
		if err := perf.Run(ctx, time.Minute); err != nil {
			logger.Error().Err(err).Msg("reporter stopped")
		}
	}()

	opsServer := ops.New(cfg.Ops.Addr, market, mode, runtime, metrics, logger)
	go func() {
		if err := opsServer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("ops server stopped")
			cancel()
		}
	}()

	return runtime.Run(ctx)
}

func decimalMarketMap(in map[string]float64) map[domain.Market]decimal.Decimal {
	if len(in) == 0 {
		return nil
	}
	out := make(map[domain.Market]decimal.Decimal, len(in))
	for k, v := range in {
		out[domain.Market(k)] = decimal.NewFromFloat(v)
	}
	return out
}
