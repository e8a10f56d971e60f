// Package walkforward splits historical data into rolling in-sample /
// out-of-sample windows and aggregates out-of-sample performance to
// detect overfitting.
package walkforward

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/engine"
	"github.com/autovant/tradingcore/internal/strategy"
)

// Window is one in-sample/out-of-sample pair.
type Window struct {
	WindowID         int
	InSampleStart    time.Time
	InSampleEnd      time.Time
	OutOfSampleStart time.Time
	OutOfSampleEnd   time.Time
}

// Config controls window sizing and per-window backtest behavior.
type Config struct {
	Market       domain.Market
	StrategyName string
	Symbols      []string
	StartDate    time.Time
	EndDate      time.Time

	InSampleDays    int
	OutOfSampleDays int
	StepDays        int

	InitialCapital decimal.Decimal
	RandomSeed     int64
}

func (c Config) withDefaults() Config {
	if c.InSampleDays <= 0 {
		c.InSampleDays = 252
	}
	if c.OutOfSampleDays <= 0 {
		c.OutOfSampleDays = 63
	}
	if c.StepDays <= 0 {
		c.StepDays = 63
	}
	if c.InitialCapital.IsZero() {
		c.InitialCapital = decimal.NewFromInt(100000)
	}
	return c
}

// Result holds per-window and aggregated walk-forward outcomes.
type Result struct {
	Config  Config
	Windows []Window

	InSampleResults    []engine.Result
	OutOfSampleResults []engine.Result

	AvgOOSReturnPct  float64
	AvgOOSSharpe     float64
	AvgOOSWinRatePct float64
	OOSEquityCurve   []engine.EquityPoint

	ReturnDegradation float64
	SharpeDegradation float64
}

// CandleProvider returns bars for [start, end) restricted to symbols.
type CandleProvider func(start, end time.Time, symbols []string) ([]domain.Bar, error)

// Validator runs walk-forward validation. Per-window strategy instances are
// constructed fresh via newStrategy for both the IS and OOS leg, so no
// strategy state leaks across windows or across IS/OOS within a window.
type Validator struct {
	cfg         Config
	provider    CandleProvider
	newStrategy func() strategy.BarStrategy
	logger      zerolog.Logger
}

// New constructs a Validator. newStrategy must return a freshly constructed,
// uninitialized BarStrategy every time it is called.
func New(cfg Config, provider CandleProvider, newStrategy func() strategy.BarStrategy, logger zerolog.Logger) *Validator {
	return &Validator{cfg: cfg.withDefaults(), provider: provider, newStrategy: newStrategy, logger: logger}
}

// GenerateWindows produces the rolling IS/OOS window schedule.
func (v *Validator) GenerateWindows() []Window {
	var windows []Window
	windowID := 0
	currentISStart := v.cfg.StartDate

	for {
		isEnd := currentISStart.AddDate(0, 0, v.cfg.InSampleDays)
		oosStart := isEnd
		oosEnd := oosStart.AddDate(0, 0, v.cfg.OutOfSampleDays)

		if oosEnd.After(v.cfg.EndDate) {
			break
		}

		windows = append(windows, Window{
			WindowID:         windowID,
			InSampleStart:    currentISStart,
			InSampleEnd:      isEnd,
			OutOfSampleStart: oosStart,
			OutOfSampleEnd:   oosEnd,
		})

		windowID++
		currentISStart = currentISStart.AddDate(0, 0, v.cfg.StepDays)
	}

	v.logger.Info().Int("windows", len(windows)).Msg("generated walk-forward windows")
	return windows
}

// Run executes walk-forward validation over all generated windows.
func (v *Validator) Run() (Result, error) {
	v.logger.Info().Str("strategy", v.cfg.StrategyName).Msg("starting walk-forward validation")

	result := Result{Config: v.cfg, Windows: v.GenerateWindows()}
	if len(result.Windows) == 0 {
		v.logger.Warn().Msg("no valid walk-forward windows generated")
		return result, nil
	}

	for _, window := range result.Windows {
		v.logger.Info().
			Int("window_id", window.WindowID).
			Time("is_start", window.InSampleStart).
			Time("is_end", window.InSampleEnd).
			Msg("running walk-forward window")

		isResult, err := v.runWindow(window.InSampleStart, window.InSampleEnd)
		if err != nil {
			return Result{}, err
		}
		result.InSampleResults = append(result.InSampleResults, isResult)

		oosResult, err := v.runWindow(window.OutOfSampleStart, window.OutOfSampleEnd)
		if err != nil {
			return Result{}, err
		}
		result.OutOfSampleResults = append(result.OutOfSampleResults, oosResult)

		result.OOSEquityCurve = append(result.OOSEquityCurve, oosResult.EquityCurve...)
	}

	calculateAggregates(&result)

	v.logger.Info().
		Int("windows", len(result.Windows)).
		Float64("oos_return_pct", result.AvgOOSReturnPct).
		Float64("degradation_pct", result.ReturnDegradation).
		Msg("walk-forward validation complete")

	return result, nil
}

func (v *Validator) runWindow(start, end time.Time) (engine.Result, error) {
	bars, err := v.provider(start, end, v.cfg.Symbols)
	if err != nil {
		return engine.Result{}, err
	}

	engCfg := engine.Config{
		Market:         v.cfg.Market,
		StrategyName:   v.cfg.StrategyName,
		Symbols:        v.cfg.Symbols,
		InitialCapital: v.cfg.InitialCapital,
		RandomSeed:     v.cfg.RandomSeed,
	}

	eng := engine.New(engCfg, v.newStrategy(), v.logger)
	return eng.Run(bars), nil
}

func calculateAggregates(result *Result) {
	if len(result.OutOfSampleResults) == 0 {
		return
	}

	result.AvgOOSReturnPct = average(mapReturn(result.OutOfSampleResults))
	result.AvgOOSSharpe = average(mapSharpe(result.OutOfSampleResults))
	result.AvgOOSWinRatePct = average(mapWinRate(result.OutOfSampleResults))

	avgISReturn := average(mapReturn(result.InSampleResults))
	avgISSharpe := average(mapSharpe(result.InSampleResults))

	result.ReturnDegradation = avgISReturn - result.AvgOOSReturnPct
	result.SharpeDegradation = avgISSharpe - result.AvgOOSSharpe
}

func mapReturn(results []engine.Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.TotalReturnPct
	}
	return out
}

func mapSharpe(results []engine.Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.SharpeRatio
	}
	return out
}

func mapWinRate(results []engine.Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.WinRatePct
	}
	return out
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Report renders a human-readable walk-forward summary.
func Report(result Result) string {
	var b strings.Builder
	divider := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "WALK-FORWARD VALIDATION REPORT")
	fmt.Fprintln(&b, divider)
	fmt.Fprintf(&b, "Strategy: %s\n", result.Config.StrategyName)
	fmt.Fprintf(&b, "Period: %s to %s\n", result.Config.StartDate.Format("2006-01-02"), result.Config.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Windows: %d\n", len(result.Windows))
	fmt.Fprintf(&b, "IS Period: %d days\n", result.Config.InSampleDays)
	fmt.Fprintf(&b, "OOS Period: %d days\n", result.Config.OutOfSampleDays)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, thin)
	fmt.Fprintln(&b, "OUT-OF-SAMPLE PERFORMANCE")
	fmt.Fprintln(&b, thin)
	fmt.Fprintf(&b, "Average Return: %.2f%%\n", result.AvgOOSReturnPct)
	fmt.Fprintf(&b, "Average Sharpe: %.2f\n", result.AvgOOSSharpe)
	fmt.Fprintf(&b, "Average Win Rate: %.1f%%\n", result.AvgOOSWinRatePct)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, thin)
	fmt.Fprintln(&b, "OVERFITTING ANALYSIS")
	fmt.Fprintln(&b, thin)
	fmt.Fprintf(&b, "Return Degradation (IS - OOS): %.2f%%\n", result.ReturnDegradation)
	fmt.Fprintf(&b, "Sharpe Degradation (IS - OOS): %.2f\n", result.SharpeDegradation)
	fmt.Fprintln(&b)

	if result.ReturnDegradation > 10 {
		fmt.Fprintln(&b, "WARNING: significant return degradation - potential overfitting")
	}
	if result.SharpeDegradation > 0.5 {
		fmt.Fprintln(&b, "WARNING: significant Sharpe degradation - potential overfitting")
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, thin)
	fmt.Fprintln(&b, "PER-WINDOW RESULTS")
	fmt.Fprintln(&b, thin)

	for i := range result.Windows {
		if i >= len(result.InSampleResults) || i >= len(result.OutOfSampleResults) {
			break
		}
		isRes := result.InSampleResults[i]
		oosRes := result.OutOfSampleResults[i]
		fmt.Fprintf(&b, "Window %d: IS=%+.2f%% | OOS=%+.2f%% | Trades=%d\n", i, isRes.TotalReturnPct, oosRes.TotalReturnPct, oosRes.TotalTrades)
	}

	fmt.Fprintln(&b, divider)

	return b.String()
}
