package turtlebreakout

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovant/tradingcore/internal/domain"
)

func bar(i int, high, low, close string) domain.Bar {
	return domain.Bar{
		Market:    domain.MarketCrypto,
		Symbol:    "BTCUSDT",
		Timestamp: time.Unix(int64(i)*3600, 0).UTC(),
		Open:      decimal.RequireFromString(close),
		High:      decimal.RequireFromString(high),
		Low:       decimal.RequireFromString(low),
		Close:     decimal.RequireFromString(close),
		Volume:    decimal.NewFromInt(1),
		IsClosed:  true,
	}
}

func TestOnCandle_NoSignalBeforeLookbackFull(t *testing.T) {
	s := New(zerolog.Nop())
	s.Initialize()
	ctx := domain.StrategyContext{Mode: domain.ModeBacktest}

	for i := 0; i < lookbackEntry-1; i++ {
		result, err := s.OnCandle(bar(i, "100", "90", "95"), ctx)
		require.NoError(t, err)
		assert.Empty(t, result.Signals)
	}
}

func TestOnCandle_EntersLongOnBreakout(t *testing.T) {
	s := New(zerolog.Nop())
	s.Initialize()
	ctx := domain.StrategyContext{Mode: domain.ModeBacktest}

	for i := 0; i < lookbackEntry; i++ {
		_, err := s.OnCandle(bar(i, "100", "90", "95"), ctx)
		require.NoError(t, err)
	}

	result, err := s.OnCandle(bar(lookbackEntry, "105", "95", "101"), ctx)
	require.NoError(t, err)
	require.Len(t, result.Signals, 1)
	assert.Equal(t, domain.ActionEnterLong, result.Signals[0].Action)
}

func TestOnCandle_ExitsOnBreakdown(t *testing.T) {
	s := New(zerolog.Nop())
	s.Initialize()
	ctx := domain.StrategyContext{Mode: domain.ModeBacktest}

	for i := 0; i < lookbackEntry; i++ {
		_, err := s.OnCandle(bar(i, "100", "90", "95"), ctx)
		require.NoError(t, err)
	}
	result, err := s.OnCandle(bar(lookbackEntry, "105", "95", "101"), ctx)
	require.NoError(t, err)
	require.Len(t, result.Signals, 1)
	require.Equal(t, domain.ActionEnterLong, result.Signals[0].Action)

	var exited bool
	price := 101
	for i := lookbackEntry + 1; i < lookbackEntry+lookbackExit+2; i++ {
		price -= 5
		res, err := s.OnCandle(bar(i, "101", decimal.NewFromInt(int64(price)).String(), decimal.NewFromInt(int64(price)).String()), ctx)
		require.NoError(t, err)
		if len(res.Signals) == 1 {
			assert.Equal(t, domain.ActionExitLong, res.Signals[0].Action)
			exited = true
			break
		}
	}
	assert.True(t, exited, "expected an exit signal once price broke the 10-bar low")
}

func TestResetClearsState(t *testing.T) {
	s := New(zerolog.Nop())
	s.Initialize()
	ctx := domain.StrategyContext{Mode: domain.ModeBacktest}
	for i := 0; i < lookbackEntry; i++ {
		_, _ = s.OnCandle(bar(i, "100", "90", "95"), ctx)
	}
	s.Reset()
	assert.Empty(t, s.state)
}
