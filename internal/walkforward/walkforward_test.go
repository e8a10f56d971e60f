package walkforward

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/engine"
	"github.com/autovant/tradingcore/internal/strategies/turtlebreakout"
	"github.com/autovant/tradingcore/internal/strategy"
)

func TestGenerateWindows_RollsForwardUntilExhausted(t *testing.T) {
	cfg := Config{
		StartDate:       time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		InSampleDays:    252,
		OutOfSampleDays: 63,
		StepDays:        63,
	}
	v := New(cfg, nil, nil, zerolog.Nop())
	windows := v.GenerateWindows()

	require.NotEmpty(t, windows)
	for i, w := range windows {
		assert.Equal(t, i, w.WindowID)
		assert.True(t, w.InSampleEnd.Equal(w.OutOfSampleStart))
		assert.False(t, w.OutOfSampleEnd.After(cfg.EndDate))
	}
}

func TestGenerateWindows_EmptyWhenRangeTooShort(t *testing.T) {
	cfg := Config{
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	v := New(cfg, nil, nil, zerolog.Nop())
	assert.Empty(t, v.GenerateWindows())
}

func flatBars(start, end time.Time, symbols []string) ([]domain.Bar, error) {
	var bars []domain.Bar
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		bars = append(bars, domain.Bar{
			Market:    domain.MarketCrypto,
			Symbol:    symbols[0],
			Timestamp: t,
			Open:      decimal.NewFromInt(100),
			High:      decimal.NewFromInt(100),
			Low:       decimal.NewFromInt(100),
			Close:     decimal.NewFromInt(100),
			Volume:    decimal.NewFromInt(1),
			IsClosed:  true,
		})
	}
	return bars, nil
}

func TestValidator_Run_AggregatesAcrossWindows(t *testing.T) {
	cfg := Config{
		Market:          domain.MarketCrypto,
		StrategyName:    "turtle_breakout",
		Symbols:         []string{"BTCUSDT"},
		StartDate:       time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		InSampleDays:    30,
		OutOfSampleDays: 10,
		StepDays:        10,
		InitialCapital:  decimal.NewFromInt(100000),
		RandomSeed:      42,
	}

	newStrategy := func() strategy.BarStrategy { return turtlebreakout.New(zerolog.Nop()) }
	v := New(cfg, flatBars, newStrategy, zerolog.Nop())

	result, err := v.Run()
	require.NoError(t, err)
	require.NotEmpty(t, result.Windows)
	assert.Len(t, result.InSampleResults, len(result.Windows))
	assert.Len(t, result.OutOfSampleResults, len(result.Windows))
	assert.Equal(t, 0.0, result.AvgOOSReturnPct)
}

func TestReport_IncludesHeaderAndWindows(t *testing.T) {
	cfg := Config{
		StrategyName:    "turtle_breakout",
		StartDate:       time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		InSampleDays:    30,
		OutOfSampleDays: 10,
	}
	result := Result{
		Config:             cfg,
		Windows:            []Window{{WindowID: 0}},
		InSampleResults:    []engine.Result{{TotalReturnPct: 5}},
		OutOfSampleResults: []engine.Result{{TotalReturnPct: 2, TotalTrades: 3}},
		AvgOOSReturnPct:    2,
		ReturnDegradation:  3,
	}

	report := Report(result)
	assert.Contains(t, report, "WALK-FORWARD VALIDATION REPORT")
	assert.Contains(t, report, "Window 0: IS=+5.00% | OOS=+2.00% | Trades=3")
}

// Two years (2022-01-01 to 2024-01-01) with 252/63/63 windows yields
// exactly 7 windows, each ending on or before the range end.
func TestGenerateWindows_TwoYearDefaultCount(t *testing.T) {
	cfg := Config{
		StartDate:       time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		InSampleDays:    252,
		OutOfSampleDays: 63,
		StepDays:        63,
	}
	windows := New(cfg, nil, nil, zerolog.Nop()).GenerateWindows()

	require.Len(t, windows, 7)
	for _, w := range windows {
		assert.Equal(t, w.InSampleStart.AddDate(0, 0, 252), w.InSampleEnd)
		assert.Equal(t, w.InSampleEnd, w.OutOfSampleStart)
		assert.Equal(t, w.OutOfSampleStart.AddDate(0, 0, 63), w.OutOfSampleEnd)
		assert.False(t, w.OutOfSampleEnd.After(cfg.EndDate))
	}
}
