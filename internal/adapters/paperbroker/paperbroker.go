// Package paperbroker implements the live.Broker port by simulating
// fills against streamed quotes instead of a real exchange. Maker orders
// may be sliced into partial fills and complete asynchronously; the
// price/slippage/commission numbers are delegated to internal/fillsim so
// backtest and paper fills never diverge.
package paperbroker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/fillsim"
	"github.com/autovant/tradingcore/internal/live"
	"github.com/autovant/tradingcore/internal/telemetry"
)

// PartialFillConfig controls maker-order slicing.
type PartialFillConfig struct {
	Enabled     bool
	MinSlicePct decimal.Decimal
	MaxSlices   int
}

// Config controls the paper broker's simulated market microstructure.
type Config struct {
	InitialBalance decimal.Decimal
	PartialFill    PartialFillConfig
	Fill           fillsim.Config
}

type quote struct {
	bestBid decimal.Decimal
	bestAsk decimal.Decimal
	last    decimal.Decimal
}

func (q quote) mid() decimal.Decimal {
	if q.bestBid.IsPositive() && q.bestAsk.IsPositive() {
		return q.bestBid.Add(q.bestAsk).Div(decimal.NewFromInt(2))
	}
	return q.last
}

// Broker is a live.Broker implementation that never touches a real
// exchange; it fills orders against whatever quote was last pushed via
// UpdateQuote.
type Broker struct {
	mu      sync.Mutex
	market  domain.Market
	mode    domain.TradingMode
	cfg     Config
	sim     *fillsim.Simulator
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	quotes map[string]quote
	orders map[string]domain.Order
	random *rand.Rand

	fillCB  live.FillCallback
	orderCB live.OrderUpdateCallback
}

// New constructs a paper Broker scoped to one market/mode.
func New(market domain.Market, mode domain.TradingMode, cfg Config, metrics *telemetry.Metrics, logger zerolog.Logger) *Broker {
	seed := cfg.Fill.Seed
	return &Broker{
		market:  market,
		mode:    mode,
		cfg:     cfg,
		sim:     fillsim.New(cfg.Fill),
		metrics: metrics,
		logger:  logger,
		quotes:  make(map[string]quote),
		orders:  make(map[string]domain.Order),
		random:  rand.New(rand.NewSource(seed)),
	}
}

// UpdateQuote feeds the broker a fresh best-bid/ask/last snapshot; the
// live runtime drives this on every bar, passing the bar close as last.
func (b *Broker) UpdateQuote(symbol string, bestBid, bestAsk, last decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[symbol] = quote{bestBid: bestBid, bestAsk: bestAsk, last: last}
}

func (b *Broker) Connect(ctx context.Context) error    { return nil }
func (b *Broker) Disconnect(ctx context.Context) error { return nil }

func (b *Broker) OnFill(cb live.FillCallback)               { b.fillCB = cb }
func (b *Broker) OnOrderUpdate(cb live.OrderUpdateCallback) { b.orderCB = cb }

// SubmitOrder records the order as submitted and schedules its fill
// slice(s) asynchronously.
func (b *Broker) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := order.Validate(); err != nil {
		return order, coreerrors.Order("invalid order submitted to paper broker", err)
	}

	b.mu.Lock()
	q, ok := b.quotes[order.Symbol]
	b.mu.Unlock()
	if !ok {
		return order, coreerrors.Order(fmt.Sprintf("no quote available for %s", order.Symbol), nil)
	}

	maker := order.Type == domain.OrderTypeLimit && !b.crossesSpread(order, q)

	order.Status = domain.OrderSubmitted
	now := time.Now().UTC()
	order.SubmittedAt = &now

	b.mu.Lock()
	b.orders[order.ID.String()] = order
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.OrdersSubmitted.WithLabelValues(string(b.market), string(b.mode), order.Symbol, string(order.Side)).Inc()
	}
	if b.orderCB != nil {
		b.orderCB(order)
	}

	go b.fillOrder(order, q, maker)

	return order, nil
}

func (b *Broker) crossesSpread(order domain.Order, q quote) bool {
	if order.Type != domain.OrderTypeLimit || order.Price == nil {
		return true
	}
	mid := q.mid()
	if order.Side == domain.SideBuy {
		if q.bestAsk.IsPositive() && order.Price.GreaterThanOrEqual(q.bestAsk) {
			return true
		}
		return order.Price.GreaterThanOrEqual(mid)
	}
	if q.bestBid.IsPositive() && order.Price.LessThanOrEqual(q.bestBid) {
		return true
	}
	return order.Price.LessThanOrEqual(mid)
}

// fillOrder slices the order into one or more partial fills when the
// partial-fill policy is enabled and the order rests as a maker order,
// otherwise produces a single immediate fill. Each slice is simulated
// through fillsim.Simulator so slippage/commission stay consistent with the
// backtest engine.
func (b *Broker) fillOrder(order domain.Order, q quote, maker bool) {
	reference := q.mid()
	if !fillsim.CanFillLimit(order, reference) {
		return
	}
	slices := b.planSlices(order, maker)

	remaining := order
	for i, qty := range slices {
		delay := time.Duration(50+i*75) * time.Millisecond
		time.Sleep(delay)

		sliceOrder := remaining
		sliceOrder.Quantity = qty
		sliceOrder.FilledQuantity = decimal.Zero

		result := b.sim.SimulateFill(sliceOrder, reference, time.Now().UTC())
		fill := result.Fill

		b.mu.Lock()
		stored, ok := b.orders[order.ID.String()]
		if ok {
			stored.FilledQuantity = stored.FilledQuantity.Add(fill.Quantity)
			if stored.FilledQuantity.GreaterThanOrEqual(stored.Quantity) {
				stored.Status = domain.OrderFilled
				filledAt := fill.Timestamp
				stored.FilledAt = &filledAt
			} else {
				stored.Status = domain.OrderPartial
			}
			b.orders[order.ID.String()] = stored
		}
		b.mu.Unlock()

		if b.metrics != nil {
			b.metrics.FillsTotal.WithLabelValues(string(b.market), string(b.mode), fill.Symbol, string(fill.Side)).Inc()
			b.metrics.FillLatency.WithLabelValues(string(b.market), string(b.mode)).Observe(float64(fill.LatencyMs))
			b.metrics.SlippageBps.WithLabelValues(string(b.market), string(b.mode)).Observe(fill.SlippageBps.InexactFloat64())
		}
		if b.fillCB != nil {
			b.fillCB(fill)
		}
		if ok && b.orderCB != nil {
			b.orderCB(b.orders[order.ID.String()])
		}
	}
}

// planSlices slices a maker order with partial fill enabled into a
// random number of pieces bounded by MaxSlices, each at least MinSlicePct
// of the total; everything else fills in one slice.
func (b *Broker) planSlices(order domain.Order, maker bool) []decimal.Decimal {
	if !maker || !b.cfg.PartialFill.Enabled || b.cfg.PartialFill.MaxSlices <= 1 {
		return []decimal.Decimal{order.Quantity}
	}

	b.mu.Lock()
	numSlices := b.random.Intn(b.cfg.PartialFill.MaxSlices-1) + 1
	b.mu.Unlock()
	if numSlices < 1 {
		numSlices = 1
	}

	minPct := b.cfg.PartialFill.MinSlicePct
	if !minPct.IsPositive() {
		minPct = decimal.NewFromFloat(0.05)
	}

	remaining := order.Quantity
	slices := make([]decimal.Decimal, 0, numSlices)
	for i := 0; i < numSlices; i++ {
		if i == numSlices-1 {
			slices = append(slices, remaining)
			break
		}
		minQty := order.Quantity.Mul(minPct)
		if minQty.GreaterThan(remaining) {
			minQty = remaining
		}
		b.mu.Lock()
		jitter := b.random.Float64()
		b.mu.Unlock()
		extra := remaining.Sub(minQty).Mul(decimal.NewFromFloat(jitter * 0.5))
		sliceQty := minQty.Add(extra)
		if sliceQty.GreaterThan(remaining) {
			sliceQty = remaining
		}
		slices = append(slices, sliceQty)
		remaining = remaining.Sub(sliceQty)
	}
	return slices
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return coreerrors.Order(fmt.Sprintf("unknown order %s", orderID), nil)
	}
	if order.Status.IsTerminal() {
		return nil
	}
	order.Status = domain.OrderCancelled
	now := time.Now().UTC()
	order.CancelledAt = &now
	b.orders[orderID] = order
	if b.orderCB != nil {
		b.orderCB(order)
	}
	return nil
}

func (b *Broker) GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return domain.Order{}, coreerrors.Order(fmt.Sprintf("unknown order %s", orderID), nil)
	}
	return order, nil
}

func (b *Broker) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var open []domain.Order
	for _, order := range b.orders {
		if order.Status.IsTerminal() {
			continue
		}
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		open = append(open, order)
	}
	return open, nil
}

// GetAccountBalance returns a snapshot with the configured initial balance;
// the paper broker itself holds no cash ledger — internal/live.Runtime's
// position tracker is the source of truth for realized/unrealized P&L.
func (b *Broker) GetAccountBalance(ctx context.Context) (domain.AccountSnapshot, error) {
	return domain.AccountSnapshot{
		Timestamp: time.Now().UTC(),
		Mode:      b.mode,
		Market:    b.market,
		Balance:   b.cfg.InitialBalance,
		Equity:    b.cfg.InitialBalance,
	}, nil
}

var _ live.Broker = (*Broker)(nil)
