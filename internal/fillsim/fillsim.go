// Package fillsim is the single source of truth for slippage, latency,
// commission, and limit/stop trigger tests, shared bit-for-bit by the
// backtest engine and the paper broker.
package fillsim

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/domain"
)

// Per-market base slippage and commission rates, overridable via Config.
var defaultSlippageBps = map[domain.Market]decimal.Decimal{
	domain.MarketCrypto: decimal.NewFromInt(10),
	domain.MarketKR:     decimal.NewFromInt(5),
	domain.MarketUS:     decimal.NewFromInt(3),
}

var defaultCommissionBps = map[domain.Market]decimal.Decimal{
	domain.MarketCrypto: decimal.NewFromInt(10),
	domain.MarketKR:     decimal.NewFromFloat(1.5),
	domain.MarketUS:     decimal.NewFromInt(1),
}

var commissionAsset = map[domain.Market]string{
	domain.MarketCrypto: "USDT",
	domain.MarketKR:     "KRW",
	domain.MarketUS:     "USD",
}

const bpsDenominator = 10000

// Config overrides the per-market defaults and sets the minimum latency
// floor and PRNG seed. A zero Config uses the built-in defaults.
type Config struct {
	SlippageBpsOverride   map[domain.Market]decimal.Decimal
	CommissionBpsOverride map[domain.Market]decimal.Decimal
	MinLatencyMs          int64
	Seed                  int64
}

// Result is the outcome of SimulateFill: the Fill plus the measured deltas
// broken out for direct assertion in tests.
type Result struct {
	Fill          domain.Fill
	ExecutedPrice decimal.Decimal
	SlippageBps   decimal.Decimal
	LatencyMs     int64
	Commission    decimal.Decimal
}

// Simulator is an owned per-engine resource; its PRNG must never be
// shared across markets or engines. Reset reseeds it deterministically.
type Simulator struct {
	cfg    Config
	random *rand.Rand
	seed   int64
}

// New constructs a Simulator seeded from cfg.Seed (0 is a valid, deterministic
// seed — callers wanting nondeterministic seeds must supply a nonzero one
// derived from a clock themselves).
func New(cfg Config) *Simulator {
	if cfg.MinLatencyMs <= 0 {
		cfg.MinLatencyMs = 1
	}
	return &Simulator{
		cfg:    cfg,
		random: rand.New(rand.NewSource(cfg.Seed)),
		seed:   cfg.Seed,
	}
}

// Reset reseeds the PRNG to the simulator's configured seed, restoring
// determinism for a fresh backtest/walk-forward window run.
func (s *Simulator) Reset() {
	s.random = rand.New(rand.NewSource(s.seed))
}

func (s *Simulator) slippageBps(market domain.Market) decimal.Decimal {
	if v, ok := s.cfg.SlippageBpsOverride[market]; ok {
		return v
	}
	if v, ok := defaultSlippageBps[market]; ok {
		return v
	}
	return defaultSlippageBps[domain.MarketCrypto]
}

func (s *Simulator) commissionBps(market domain.Market) decimal.Decimal {
	if v, ok := s.cfg.CommissionBpsOverride[market]; ok {
		return v
	}
	if v, ok := defaultCommissionBps[market]; ok {
		return v
	}
	return defaultCommissionBps[domain.MarketCrypto]
}

// baseFillPrice resolves the pre-slippage price: reference for market
// orders, best-of limit/reference for limit orders. Stop/stop-limit orders
// are assumed pre-triggered by the caller (CanTriggerStop must have been
// checked already).
func baseFillPrice(order domain.Order, referencePrice decimal.Decimal) decimal.Decimal {
	switch order.Type {
	case domain.OrderTypeLimit, domain.OrderTypeStopLimit:
		if order.Price == nil {
			return referencePrice
		}
		if order.Side == domain.SideBuy {
			return decimal.Min(*order.Price, referencePrice)
		}
		return decimal.Max(*order.Price, referencePrice)
	default:
		return referencePrice
	}
}

// SimulateFill prices an order fill with adverse slippage, latency, and
// commission. Determinism contract: for a fixed seed, identical call
// sequences produce bit-identical slippage/latency/commission.
func (s *Simulator) SimulateFill(order domain.Order, referencePrice decimal.Decimal, now time.Time) Result {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	base := baseFillPrice(order, referencePrice)

	baseBps := s.slippageBps(order.Market)
	variation := decimal.NewFromFloat(0.5 + s.random.Float64())
	actualBps := baseBps.Mul(variation)
	adjustment := base.Mul(actualBps).Div(decimal.NewFromInt(bpsDenominator))

	var executedPrice decimal.Decimal
	if order.Side == domain.SideBuy {
		executedPrice = base.Add(adjustment)
	} else {
		executedPrice = base.Sub(adjustment)
	}

	minLatency := s.cfg.MinLatencyMs
	jitter := s.random.Float64()
	latencyMs := int64(float64(minLatency) * (1 + jitter))
	if latencyMs < 1 {
		latencyMs = 1
	}

	quantity := order.Remaining()
	notional := quantity.Mul(executedPrice)
	commission := notional.Mul(s.commissionBps(order.Market)).Div(decimal.NewFromInt(bpsDenominator))

	fill := domain.Fill{
		ID:              uuid.New(),
		Timestamp:       now,
		OrderID:         order.ID,
		Market:          order.Market,
		Mode:            order.Mode,
		Symbol:          order.Symbol,
		Side:            order.Side,
		Quantity:        quantity,
		Price:           executedPrice,
		Commission:      commission,
		CommissionAsset: commissionAsset[order.Market],
		SlippageBps:     actualBps,
		LatencyMs:       latencyMs,
		Metadata: map[string]string{
			"reference_price": referencePrice.String(),
			"order_type":      string(order.Type),
		},
	}

	return Result{
		Fill:          fill,
		ExecutedPrice: executedPrice,
		SlippageBps:   actualBps,
		LatencyMs:     latencyMs,
		Commission:    commission,
	}
}

// CanFillLimit: buy iff market <= limit; sell iff market >= limit.
func CanFillLimit(order domain.Order, marketPrice decimal.Decimal) bool {
	if order.Type != domain.OrderTypeLimit || order.Price == nil {
		return true
	}
	if order.Side == domain.SideBuy {
		return marketPrice.LessThanOrEqual(*order.Price)
	}
	return marketPrice.GreaterThanOrEqual(*order.Price)
}

// CanTriggerStop: buy iff market >= stop; sell iff market <= stop.
func CanTriggerStop(order domain.Order, marketPrice decimal.Decimal) bool {
	if order.Type != domain.OrderTypeStop && order.Type != domain.OrderTypeStopLimit {
		return false
	}
	if order.StopPrice == nil {
		return false
	}
	if order.Side == domain.SideBuy {
		return marketPrice.GreaterThanOrEqual(*order.StopPrice)
	}
	return marketPrice.LessThanOrEqual(*order.StopPrice)
}
