package live

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
	"github.com/autovant/tradingcore/internal/risk"
)

// stubBroker records submissions and cancellations in memory.
type stubBroker struct {
	submitted []domain.Order
	cancelled []string
	open      []domain.Order
}

func (s *stubBroker) Connect(ctx context.Context) error    { return nil }
func (s *stubBroker) Disconnect(ctx context.Context) error { return nil }

func (s *stubBroker) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	order.Status = domain.OrderSubmitted
	s.submitted = append(s.submitted, order)
	return order, nil
}

func (s *stubBroker) CancelOrder(ctx context.Context, orderID string) error {
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

func (s *stubBroker) GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubBroker) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	return s.open, nil
}

func (s *stubBroker) GetAccountBalance(ctx context.Context) (domain.AccountSnapshot, error) {
	return domain.AccountSnapshot{}, nil
}

func (s *stubBroker) OnFill(cb FillCallback)               {}
func (s *stubBroker) OnOrderUpdate(cb OrderUpdateCallback) {}

func testSignal(action domain.SignalAction) domain.Signal {
	return domain.Signal{
		ID:            uuid.New(),
		Timestamp:     time.Now().UTC(),
		Market:        domain.MarketCrypto,
		Mode:          domain.ModePaper,
		Symbol:        "BTCUSDT",
		Action:        action,
		Strength:      decimal.NewFromInt(1),
		PriceAtSignal: decimal.NewFromInt(50000),
		StrategyName:  "turtle_breakout",
	}
}

func TestHandleSignal_SizesOrderFromBalance(t *testing.T) {
	broker := &stubBroker{}
	ks := risk.NewKillSwitch(domain.MarketCrypto, domain.ModePaper, nil, zerolog.Nop())
	om := NewOrderManager(domain.MarketCrypto, domain.ModePaper,
		OrderManagerConfig{PositionSizePct: decimal.NewFromFloat(0.1)},
		broker, ks, nil, nil, zerolog.Nop())

	order, err := om.HandleSignal(context.Background(), testSignal(domain.ActionEnterLong), decimal.NewFromInt(100000))
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, domain.SideBuy, order.Side)
	assert.Equal(t, domain.OrderTypeMarket, order.Type)
	// 100000 * 0.1 / 50000 = 0.2
	assert.True(t, order.Quantity.Equal(decimal.NewFromFloat(0.2)))
	require.Len(t, broker.submitted, 1)
}

func TestHandleSignal_KillSwitchDropsSignal(t *testing.T) {
	broker := &stubBroker{}
	ks := risk.NewKillSwitch(domain.MarketCrypto, domain.ModePaper, nil, zerolog.Nop())
	om := NewOrderManager(domain.MarketCrypto, domain.ModePaper,
		OrderManagerConfig{PositionSizePct: decimal.NewFromFloat(0.1)},
		broker, ks, nil, nil, zerolog.Nop())

	ks.Trigger("drawdown breach", "drawdown")

	order, err := om.HandleSignal(context.Background(), testSignal(domain.ActionEnterLong), decimal.NewFromInt(100000))
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Empty(t, broker.submitted)

	ks.Reset()
	order, err = om.HandleSignal(context.Background(), testSignal(domain.ActionEnterLong), decimal.NewFromInt(100000))
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Len(t, broker.submitted, 1)
}

func TestCancelAllOpen_CancelsEveryOpenOrder(t *testing.T) {
	broker := &stubBroker{open: []domain.Order{
		{ID: uuid.New(), Symbol: "BTCUSDT", Status: domain.OrderSubmitted},
		{ID: uuid.New(), Symbol: "BTCUSDT", Status: domain.OrderPartial},
	}}
	ks := risk.NewKillSwitch(domain.MarketCrypto, domain.ModePaper, nil, zerolog.Nop())
	om := NewOrderManager(domain.MarketCrypto, domain.ModePaper,
		OrderManagerConfig{PositionSizePct: decimal.NewFromFloat(0.1)},
		broker, ks, nil, nil, zerolog.Nop())

	om.CancelAllOpen(context.Background(), "BTCUSDT")
	assert.Len(t, broker.cancelled, 2)
}

func TestSideForAction(t *testing.T) {
	cases := map[domain.SignalAction]domain.OrderSide{
		domain.ActionEnterLong:  domain.SideBuy,
		domain.ActionExitShort:  domain.SideBuy,
		domain.ActionEnterShort: domain.SideSell,
		domain.ActionExitLong:   domain.SideSell,
	}
	for action, want := range cases {
		side, ok := sideForAction(action)
		require.True(t, ok)
		assert.Equal(t, want, side)
	}
	_, ok := sideForAction(domain.SignalAction("hold"))
	assert.False(t, ok)
}
