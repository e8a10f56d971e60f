package risk

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/domain"
)

// PositionTracker aggregates fills into positions and calculates average
// entry price, realized and unrealized P&L.
type PositionTracker struct {
	mu         sync.Mutex
	market     domain.Market
	mode       domain.TradingMode
	logger     zerolog.Logger
	positions  map[string]*domain.Position
	lastPrices map[string]decimal.Decimal
}

// NewPositionTracker constructs an empty tracker scoped to market/mode.
func NewPositionTracker(market domain.Market, mode domain.TradingMode, logger zerolog.Logger) *PositionTracker {
	return &PositionTracker{
		market:     market,
		mode:       mode,
		logger:     logger,
		positions:  make(map[string]*domain.Position),
		lastPrices: make(map[string]decimal.Decimal),
	}
}

// Positions returns a snapshot copy of currently open positions.
func (t *PositionTracker) Positions() map[string]domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]domain.Position, len(t.positions))
	for symbol, pos := range t.positions {
		out[symbol] = *pos
	}
	return out
}

// ProcessFill applies a fill to the tracked position for its symbol,
// opening, adding to, partially closing, or fully closing it as
// appropriate. A fill for a symbol with no tracked (or already-closed)
// position opens a fresh position, so a late-arriving fill after a close
// re-opens rather than being dropped.
func (t *PositionTracker) ProcessFill(fill domain.Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.positions[fill.Symbol]
	if !ok {
		t.positions[fill.Symbol] = &domain.Position{
			ID:            uuid.New(),
			Market:        t.market,
			Mode:          t.mode,
			Symbol:        fill.Symbol,
			Side:          fill.Side,
			Quantity:      fill.Quantity,
			AvgEntryPrice: fill.Price,
			CurrentPrice:  &fill.Price,
			StrategyName:  fill.Metadata["strategy_name"],
			OpenedAt:      fill.Timestamp,
			UpdatedAt:     fill.Timestamp,
		}
		t.logger.Info().Str("symbol", fill.Symbol).Msg("position opened")
		return
	}

	if fill.Side == existing.Side {
		totalCost := existing.Quantity.Mul(existing.AvgEntryPrice).Add(fill.Quantity.Mul(fill.Price))
		newQuantity := existing.Quantity.Add(fill.Quantity)
		existing.AvgEntryPrice = totalCost.Div(newQuantity)
		existing.Quantity = newQuantity
	} else if fill.Quantity.GreaterThanOrEqual(existing.Quantity) {
		realized := realizedPnL(existing, fill.Price, existing.Quantity)
		existing.RealizedPnL = existing.RealizedPnL.Add(realized)
		existing.Quantity = decimal.Zero
		closedAt := fill.Timestamp
		existing.ClosedAt = &closedAt
		delete(t.positions, fill.Symbol)
		t.logger.Info().Str("symbol", fill.Symbol).Str("realized_pnl", realized.String()).Msg("position closed")
		return
	} else {
		realized := realizedPnL(existing, fill.Price, fill.Quantity)
		existing.RealizedPnL = existing.RealizedPnL.Add(realized)
		existing.Quantity = existing.Quantity.Sub(fill.Quantity)
	}

	price := fill.Price
	existing.CurrentPrice = &price
	existing.UpdatedAt = fill.Timestamp
	t.logger.Info().Str("symbol", fill.Symbol).Str("quantity", existing.Quantity.String()).Msg("position updated")
}

func realizedPnL(position *domain.Position, exitPrice, quantity decimal.Decimal) decimal.Decimal {
	if position.Side == domain.SideBuy {
		return exitPrice.Sub(position.AvgEntryPrice).Mul(quantity)
	}
	return position.AvgEntryPrice.Sub(exitPrice).Mul(quantity)
}

// UpdatePrice marks-to-market an open position's unrealized P&L.
func (t *PositionTracker) UpdatePrice(symbol string, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastPrices[symbol] = price
	position, ok := t.positions[symbol]
	if !ok {
		return
	}
	position.CurrentPrice = &price
	if position.Side == domain.SideBuy {
		position.UnrealizedPnL = price.Sub(position.AvgEntryPrice).Mul(position.Quantity)
	} else {
		position.UnrealizedPnL = position.AvgEntryPrice.Sub(price).Mul(position.Quantity)
	}
}

// TotalEquity adds outstanding unrealized P&L to a cash balance.
func (t *PositionTracker) TotalEquity(balance decimal.Decimal) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := balance
	for _, pos := range t.positions {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}

// TotalUnrealizedPnL sums unrealized P&L across all open positions.
func (t *PositionTracker) TotalUnrealizedPnL() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := decimal.Zero
	for _, pos := range t.positions {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}
