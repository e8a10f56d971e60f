package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovant/tradingcore/internal/domain"
)

// crossStrategy emits a sell intent on every bar with an even close and a
// buy intent on every bar with an odd close.
type crossStrategy struct {
	attached bool
}

func (s *crossStrategy) AttachPorts(ds DataSource, ex ExecutionPort, clock Clock, logger Logger) {
	s.attached = true
}

func (s *crossStrategy) OnBar(bar domain.Bar) []OrderIntent {
	side := domain.SideBuy
	if bar.Close.Mod(decimal.NewFromInt(2)).IsZero() {
		side = domain.SideSell
	}
	return []OrderIntent{{Symbol: bar.Symbol, Side: side, Quantity: 1}}
}

func testBar(close int64) domain.Bar {
	price := decimal.NewFromInt(close)
	return domain.Bar{
		Market:    domain.MarketCrypto,
		Symbol:    "BTCUSDT",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    decimal.NewFromInt(1),
		IsClosed:  true,
	}
}

func TestAdaptIntentStrategy_EntryWithoutPosition(t *testing.T) {
	adapted := AdaptIntentStrategy("cross", func() Strategy { return &crossStrategy{} })
	adapted.Initialize()

	result, err := adapted.OnCandle(testBar(101), domain.StrategyContext{Mode: domain.ModeBacktest})
	require.NoError(t, err)
	require.Len(t, result.Signals, 1)
	assert.Equal(t, domain.ActionEnterLong, result.Signals[0].Action)
	assert.Equal(t, "cross", result.Signals[0].StrategyName)
}

func TestAdaptIntentStrategy_ExitAgainstOpenPosition(t *testing.T) {
	adapted := AdaptIntentStrategy("cross", func() Strategy { return &crossStrategy{} })
	adapted.Initialize()

	position := &domain.Position{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Quantity: decimal.NewFromInt(1),
	}
	result, err := adapted.OnCandle(testBar(100), domain.StrategyContext{
		Mode:     domain.ModeBacktest,
		Position: position,
	})
	require.NoError(t, err)
	require.Len(t, result.Signals, 1)
	assert.Equal(t, domain.ActionExitLong, result.Signals[0].Action)
}

func TestAdaptIntentStrategy_RedundantIntentDropped(t *testing.T) {
	adapted := AdaptIntentStrategy("cross", func() Strategy { return &crossStrategy{} })
	adapted.Initialize()

	// Buy intent while already long: neither an entry nor an exit.
	position := &domain.Position{
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Quantity: decimal.NewFromInt(1),
	}
	result, err := adapted.OnCandle(testBar(101), domain.StrategyContext{
		Mode:     domain.ModeBacktest,
		Position: position,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Signals)
}

func TestAdaptIntentStrategy_ResetRebuilds(t *testing.T) {
	var built int
	adapted := AdaptIntentStrategy("cross", func() Strategy {
		built++
		return &crossStrategy{}
	})
	adapted.Initialize()
	adapted.Reset()
	assert.Equal(t, 2, built)
}
