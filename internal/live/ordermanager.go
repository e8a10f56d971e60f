package live

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/bus"
	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/risk"
)

// OrderManagerConfig controls position sizing; quantity is derived from
// the current account balance, unlike the backtest engine's
// non-compounding sizing off initial capital.
type OrderManagerConfig struct {
	PositionSizePct decimal.Decimal
}

// OrderManager translates a Signal into an Order, routes it through the
// Broker port, persists state, and emits order events to the bus.
type OrderManager struct {
	market domain.Market
	mode   domain.TradingMode
	cfg    OrderManagerConfig

	broker Broker
	ks     *risk.KillSwitch
	sink   PersistenceSink
	bus    *bus.Bus
	logger zerolog.Logger
}

// NewOrderManager constructs an OrderManager. sink and b may be nil in
// tests; both are treated as optional best-effort side channels.
func NewOrderManager(market domain.Market, mode domain.TradingMode, cfg OrderManagerConfig, broker Broker, ks *risk.KillSwitch, sink PersistenceSink, b *bus.Bus, logger zerolog.Logger) *OrderManager {
	return &OrderManager{market: market, mode: mode, cfg: cfg, broker: broker, ks: ks, sink: sink, bus: b, logger: logger}
}

// HandleSignal converts a signal into an order and submits it, unless
// the kill switch is triggered, in which case the signal is dropped and
// zero orders are produced.
func (om *OrderManager) HandleSignal(ctx context.Context, signal domain.Signal, accountBalance decimal.Decimal) (*domain.Order, error) {
	if om.ks != nil && om.ks.IsTriggered() {
		om.logger.Warn().Str("symbol", signal.Symbol).Msg("kill switch triggered, dropping signal")
		return nil, nil
	}

	side, ok := sideForAction(signal.Action)
	if !ok {
		om.logger.Debug().Str("action", string(signal.Action)).Msg("signal action has no order translation, ignoring")
		return nil, nil
	}

	if signal.PriceAtSignal.IsZero() {
		return nil, coreerrors.Order("signal price_at_signal must be nonzero to size an order", nil)
	}

	notional := accountBalance.Mul(om.cfg.PositionSizePct)
	quantity := notional.Div(signal.PriceAtSignal)

	order := domain.Order{
		ID:           uuid.New(),
		Market:       om.market,
		Mode:         om.mode,
		Symbol:       signal.Symbol,
		Side:         side,
		Type:         domain.OrderTypeMarket,
		Quantity:     quantity,
		Status:       domain.OrderPending,
		StrategyName: signal.StrategyName,
		SignalID:     &signal.ID,
	}

	submitted, err := om.submit(ctx, order)
	if err != nil {
		return nil, err
	}
	return &submitted, nil
}

func (om *OrderManager) submit(ctx context.Context, order domain.Order) (domain.Order, error) {
	result, err := om.broker.SubmitOrder(ctx, order)
	if err != nil {
		order.Status = domain.OrderRejected
		order.ErrorMessage = err.Error()
		om.logger.Error().Err(err).Str("symbol", order.Symbol).Msg("order submission failed")
		if om.sink != nil {
			if persistErr := om.sink.UpsertOrder(ctx, order); persistErr != nil {
				om.logger.Error().Err(persistErr).Msg("failed to persist rejected order")
			}
		}
		om.publish(order)
		return order, coreerrors.Order(fmt.Sprintf("submit order for %s", order.Symbol), err)
	}

	om.logger.Info().Str("symbol", result.Symbol).Str("side", string(result.Side)).Str("quantity", result.Quantity.String()).Msg("order submitted")
	if om.sink != nil {
		if err := om.sink.UpsertOrder(ctx, result); err != nil {
			om.logger.Error().Err(err).Msg("failed to persist submitted order")
		}
	}
	om.publish(result)
	return result, nil
}

func (om *OrderManager) publish(order domain.Order) {
	if om.bus == nil {
		return
	}
	subject := bus.Scoped(bus.SubjectOrdersPrefix, string(om.market))
	if err := om.bus.Publish(subject, order); err != nil {
		om.logger.Error().Err(err).Msg("failed to publish order event")
	}
}

// CancelAllOpen cancels every currently open order for symbol (or every
// market-scoped open order when symbol is empty) through the broker
// port, best-effort.
func (om *OrderManager) CancelAllOpen(ctx context.Context, symbol string) {
	orders, err := om.broker.GetOpenOrders(ctx, symbol)
	if err != nil {
		om.logger.Error().Err(err).Msg("failed to list open orders for cancellation")
		return
	}
	for _, order := range orders {
		orderID := order.ID.String()
		if order.ExternalID != "" {
			orderID = order.ExternalID
		}
		if err := om.broker.CancelOrder(ctx, orderID); err != nil {
			om.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to cancel open order")
		}
	}
}

func sideForAction(action domain.SignalAction) (domain.OrderSide, bool) {
	switch action {
	case domain.ActionEnterLong, domain.ActionExitShort:
		return domain.SideBuy, true
	case domain.ActionEnterShort, domain.ActionExitLong:
		return domain.SideSell, true
	default:
		return "", false
	}
}
