// Package domain holds the strict sum types and immutable/mutable record
// types shared by every runtime mode (backtest, paper, live). It is the
// single source of truth for the schema every other package consumes.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Market is a first-class execution scope. Exhaustive switches over Market
// must handle all three values; add a case here before anywhere else.
type Market string

const (
	MarketCrypto Market = "crypto"
	MarketKR     Market = "kr"
	MarketUS     Market = "us"
)

func (m Market) Valid() bool {
	switch m {
	case MarketCrypto, MarketKR, MarketUS:
		return true
	default:
		return false
	}
}

// TradingMode distinguishes backtest/paper/live; the core engine is mode
// agnostic but carries the tag through every event for observability.
type TradingMode string

const (
	ModeBacktest TradingMode = "backtest"
	ModePaper    TradingMode = "paper"
	ModeLive     TradingMode = "live"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Sign returns +1 for buy, -1 for sell. Used throughout position
// arithmetic and P&L calculation.
func (s OrderSide) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// IsTerminal reports whether status will never transition again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	default:
		return false
	}
}

type SignalAction string

const (
	ActionEnterLong  SignalAction = "enter_long"
	ActionExitLong   SignalAction = "exit_long"
	ActionEnterShort SignalAction = "enter_short"
	ActionExitShort  SignalAction = "exit_short"
)

// Bar is an immutable OHLCV candle. Only bars with IsClosed=true are
// persisted or fed to the backtest engine.
type Bar struct {
	Market      Market
	Symbol      string
	Timestamp   time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	QuoteVolume *decimal.Decimal
	TradeCount  *int64
	Interval    string
	IsClosed    bool
}

// Validate enforces the bar price/volume invariants.
func (b Bar) Validate() error {
	if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
		return errInvalidBar("low must be <= open and close")
	}
	if b.Open.GreaterThan(b.High) || b.Close.GreaterThan(b.High) {
		return errInvalidBar("open and close must be <= high")
	}
	if b.Low.GreaterThan(b.High) {
		return errInvalidBar("low must be <= high")
	}
	if b.Volume.IsNegative() {
		return errInvalidBar("volume must be >= 0")
	}
	return nil
}

// Signal is an immutable event emitted by a strategy.
type Signal struct {
	ID            uuid.UUID
	Timestamp     time.Time
	Market        Market
	Mode          TradingMode
	Symbol        string
	Action        SignalAction
	Strength      decimal.Decimal
	PriceAtSignal decimal.Decimal
	StrategyName  string
	Metadata      map[string]string
}

func (s Signal) Validate() error {
	if s.Strength.LessThan(decimal.Zero) || s.Strength.GreaterThan(decimal.NewFromInt(1)) {
		return errInvalidSignal("strength must be within [0,1]")
	}
	return nil
}

// Order is mutable during its lifecycle; owned by the bar engine or order
// manager and never shared mutably outside it.
type Order struct {
	ID             uuid.UUID
	ExternalID     string
	Market         Market
	Mode           TradingMode
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Price          *decimal.Decimal
	StopPrice      *decimal.Decimal
	Status         OrderStatus
	StrategyName   string
	SignalID       *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SubmittedAt    *time.Time
	FilledAt       *time.Time
	CancelledAt    *time.Time
	ErrorMessage   string
}

// Remaining returns quantity not yet filled.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Validate enforces the order quantity/price invariants.
func (o Order) Validate() error {
	if o.FilledQuantity.IsNegative() || o.FilledQuantity.GreaterThan(o.Quantity) {
		return errInvalidOrder("0 <= filled_quantity <= quantity violated")
	}
	if (o.Type == OrderTypeLimit || o.Type == OrderTypeStopLimit) && (o.Price == nil || !o.Price.IsPositive()) {
		return errInvalidOrder("limit/stop-limit orders require price > 0")
	}
	if (o.Type == OrderTypeStop || o.Type == OrderTypeStopLimit) && (o.StopPrice == nil || !o.StopPrice.IsPositive()) {
		return errInvalidOrder("stop/stop-limit orders require stop_price > 0")
	}
	return nil
}

// Fill is an immutable execution record.
type Fill struct {
	ID              uuid.UUID
	Timestamp       time.Time
	OrderID         uuid.UUID
	Market          Market
	Mode            TradingMode
	Symbol          string
	Side            OrderSide
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	SlippageBps     decimal.Decimal
	LatencyMs       int64
	Metadata        map[string]string
}

func (f Fill) Validate() error {
	if f.LatencyMs < 1 {
		return errInvalidFill("latency_ms must be >= 1")
	}
	if f.SlippageBps.IsNegative() {
		return errInvalidFill("slippage_bps must be >= 0")
	}
	if f.Commission.IsNegative() {
		return errInvalidFill("commission must be >= 0")
	}
	return nil
}

// Position is mutable and owned by the bar engine (backtest) or the
// position tracker (live/paper).
type Position struct {
	ID            uuid.UUID
	Market        Market
	Mode          TradingMode
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  *decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	StrategyName  string
	OpenedAt      time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// IsOpen reports whether the position has not been closed.
func (p Position) IsOpen() bool {
	return p.ClosedAt == nil
}

// Notional returns quantity * (current price, falling back to entry price).
func (p Position) Notional() decimal.Decimal {
	price := p.AvgEntryPrice
	if p.CurrentPrice != nil {
		price = *p.CurrentPrice
	}
	return p.Quantity.Mul(price)
}

// StrategyContext is the read-only value passed to a strategy's on-bar
// hook; it never exposes a mutable position reference.
type StrategyContext struct {
	Market       Market
	Mode         TradingMode
	Symbol       string
	CurrentTime  time.Time
	CurrentPrice decimal.Decimal
	Position     *Position
}

// AccountSnapshot is the payload the risk manager emits on every equity
// update; the persistence sink and ops health endpoint consume it.
type AccountSnapshot struct {
	Timestamp     time.Time
	Mode          TradingMode
	Market        Market
	Balance       decimal.Decimal
	Equity        decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	DailyPnL      decimal.Decimal
	DrawdownPct   decimal.Decimal
	PeakEquity    decimal.Decimal
}

// RiskAlert is published when the risk manager observes a breach.
type RiskAlert struct {
	ID        uuid.UUID
	Timestamp time.Time
	Market    Market
	Mode      TradingMode
	EventType string
	Severity  string
	Message   string
}

// KillSwitchEvent is broadcast when the kill switch is triggered; Reset
// re-arms the switch without broadcasting an event.
type KillSwitchEvent struct {
	Timestamp   time.Time
	Market      Market
	Mode        TradingMode
	Triggered   bool
	Reason      string
	TriggeredBy string
}
