package fillsim

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovant/tradingcore/internal/domain"
)

func marketOrder(side domain.OrderSide, qty string) domain.Order {
	return domain.Order{
		ID:       uuid.New(),
		Market:   domain.MarketCrypto,
		Mode:     domain.ModeBacktest,
		Symbol:   "BTCUSDT",
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Quantity: decimal.RequireFromString(qty),
	}
}

// With seed 42 on the crypto market (10 bps base slippage), a market buy
// of 0.1 at 50000 must land inside the [5, 15] bps adverse band and
// repeat bit-identically for the same seed.
func TestSimulateFill_DeterministicBuyWithinBand(t *testing.T) {
	order := marketOrder(domain.SideBuy, "0.1")
	marketPrice := decimal.NewFromInt(50000)

	sim := New(Config{Seed: 42, MinLatencyMs: 50})
	result := sim.SimulateFill(order, marketPrice, time.Time{})

	lower := marketPrice.Mul(decimal.NewFromFloat(1 + 5.0/10000))
	upper := marketPrice.Mul(decimal.NewFromFloat(1 + 15.0/10000))
	assert.True(t, result.ExecutedPrice.GreaterThanOrEqual(lower))
	assert.True(t, result.ExecutedPrice.LessThanOrEqual(upper))

	sim2 := New(Config{Seed: 42, MinLatencyMs: 50})
	result2 := sim2.SimulateFill(order, marketPrice, time.Time{})
	assert.True(t, result.ExecutedPrice.Equal(result2.ExecutedPrice))
	assert.Equal(t, result.LatencyMs, result2.LatencyMs)
	assert.True(t, result.Commission.Equal(result2.Commission))
}

// Buys never fill below the reference price; sells never above it.
func TestSimulateFill_Adverseness(t *testing.T) {
	marketPrice := decimal.NewFromInt(100)
	sim := New(Config{Seed: 7, MinLatencyMs: 10})

	buy := sim.SimulateFill(marketOrder(domain.SideBuy, "1"), marketPrice, time.Time{})
	assert.True(t, buy.ExecutedPrice.GreaterThanOrEqual(marketPrice))
	assert.GreaterOrEqual(t, buy.LatencyMs, int64(1))
	assert.True(t, buy.SlippageBps.GreaterThanOrEqual(decimal.Zero))

	sell := sim.SimulateFill(marketOrder(domain.SideSell, "1"), marketPrice, time.Time{})
	assert.True(t, sell.ExecutedPrice.LessThanOrEqual(marketPrice))
}

func TestSimulateFill_ZeroLatencyForbidden(t *testing.T) {
	sim := New(Config{Seed: 1, MinLatencyMs: 0})
	result := sim.SimulateFill(marketOrder(domain.SideBuy, "1"), decimal.NewFromInt(10), time.Time{})
	require.GreaterOrEqual(t, result.LatencyMs, int64(1))
}

func TestCanFillLimit(t *testing.T) {
	price := decimal.NewFromInt(100)
	order := domain.Order{Type: domain.OrderTypeLimit, Side: domain.SideBuy, Price: &price}

	assert.True(t, CanFillLimit(order, decimal.NewFromInt(99)))
	assert.False(t, CanFillLimit(order, decimal.NewFromInt(101)))

	order.Side = domain.SideSell
	assert.True(t, CanFillLimit(order, decimal.NewFromInt(101)))
	assert.False(t, CanFillLimit(order, decimal.NewFromInt(99)))
}

func TestCanTriggerStop(t *testing.T) {
	stop := decimal.NewFromInt(100)
	order := domain.Order{Type: domain.OrderTypeStop, Side: domain.SideBuy, StopPrice: &stop}

	assert.True(t, CanTriggerStop(order, decimal.NewFromInt(101)))
	assert.False(t, CanTriggerStop(order, decimal.NewFromInt(99)))

	order.Side = domain.SideSell
	assert.True(t, CanTriggerStop(order, decimal.NewFromInt(99)))
	assert.False(t, CanTriggerStop(order, decimal.NewFromInt(101)))
}

func TestSimulateFill_ResetRestoresDeterminism(t *testing.T) {
	order := marketOrder(domain.SideBuy, "1")
	price := decimal.NewFromInt(1000)

	sim := New(Config{Seed: 99, MinLatencyMs: 20})
	first := sim.SimulateFill(order, price, time.Time{})
	_ = sim.SimulateFill(order, price, time.Time{})
	sim.Reset()
	again := sim.SimulateFill(order, price, time.Time{})

	assert.True(t, first.ExecutedPrice.Equal(again.ExecutedPrice))
}
