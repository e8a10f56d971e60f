package paperbroker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/fillsim"
)

func newTestBroker() *Broker {
	return New(domain.MarketCrypto, domain.ModePaper, Config{
		InitialBalance: decimal.NewFromInt(100000),
		Fill:           fillsim.Config{Seed: 42, MinLatencyMs: 10},
	}, nil, zerolog.Nop())
}

func marketBuy(qty string) domain.Order {
	return domain.Order{
		ID:       uuid.New(),
		Market:   domain.MarketCrypto,
		Mode:     domain.ModePaper,
		Symbol:   "BTCUSDT",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeMarket,
		Quantity: decimal.RequireFromString(qty),
		Status:   domain.OrderPending,
	}
}

func TestSubmitOrder_MarketOrderFills(t *testing.T) {
	b := newTestBroker()
	b.UpdateQuote("BTCUSDT", decimal.NewFromInt(49990), decimal.NewFromInt(50010), decimal.NewFromInt(50000))

	fills := make(chan domain.Fill, 4)
	b.OnFill(func(f domain.Fill) { fills <- f })

	submitted, err := b.SubmitOrder(context.Background(), marketBuy("1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSubmitted, submitted.Status)

	select {
	case fill := <-fills:
		assert.True(t, fill.Price.IsPositive())
		assert.True(t, fill.Commission.IsPositive())
		assert.GreaterOrEqual(t, fill.LatencyMs, int64(1))
		assert.True(t, fill.Quantity.Equal(decimal.NewFromInt(1)))
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fill for a market order")
	}

	order, err := b.GetOrderStatus(context.Background(), submitted.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, order.Status)
}

func TestSubmitOrder_NoQuoteRejected(t *testing.T) {
	b := newTestBroker()
	_, err := b.SubmitOrder(context.Background(), marketBuy("1"))
	assert.Error(t, err)
}

func TestCancelOrder_TerminalIsNoop(t *testing.T) {
	b := newTestBroker()
	b.UpdateQuote("BTCUSDT", decimal.NewFromInt(49990), decimal.NewFromInt(50010), decimal.NewFromInt(50000))

	done := make(chan struct{})
	b.OnOrderUpdate(func(o domain.Order) {
		if o.Status == domain.OrderFilled {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})

	submitted, err := b.SubmitOrder(context.Background(), marketBuy("0.5"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("order never filled")
	}

	require.NoError(t, b.CancelOrder(context.Background(), submitted.ID.String()))
	order, err := b.GetOrderStatus(context.Background(), submitted.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, order.Status)
}

func TestGetOpenOrders_FiltersBySymbol(t *testing.T) {
	b := newTestBroker()
	b.UpdateQuote("BTCUSDT", decimal.NewFromInt(49990), decimal.NewFromInt(50010), decimal.NewFromInt(50000))

	price := decimal.NewFromInt(40000)
	limit := marketBuy("1")
	limit.Type = domain.OrderTypeLimit
	limit.Price = &price

	_, err := b.SubmitOrder(context.Background(), limit)
	require.NoError(t, err)

	open, err := b.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.NotEmpty(t, open)

	other, err := b.GetOpenOrders(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Empty(t, other)
}
