// Package strategy defines the plugin boundary: the minimal Strategy
// contract, the bundle schema strategies export, and the merged policy
// set used to configure cost/risk/sizing behaviour.
package strategy

import (
	"time"

	"github.com/autovant/tradingcore/internal/domain"
)

// DataSource exposes read-only historical bars to a strategy instance.
type DataSource interface {
	Bars(symbol string) ([]domain.Bar, error)
}

// ExecutionPort lets a strategy submit order intents directly; the bar
// engine and live runtime normally mediate this instead.
type ExecutionPort interface {
	Execute(intent OrderIntent) (domain.Fill, error)
}

// Clock abstracts "now" so strategies stay deterministic under replay.
type Clock interface {
	Now() time.Time
}

// Logger is the minimal capability a strategy may use to emit diagnostics.
type Logger interface {
	Info(message string)
}

// OrderIntent is what a bundle-style strategy emits from OnBar, distinct
// from the signal/order types the bar engine resolves positions with.
type OrderIntent struct {
	Symbol   string
	Side     domain.OrderSide
	Quantity float64
}

// Strategy is the bundle-style contract: ports are attached once, then
// OnBar turns each closed bar into zero or more order intents.
type Strategy interface {
	AttachPorts(dataSource DataSource, execution ExecutionPort, clock Clock, logger Logger)
	OnBar(bar domain.Bar) []OrderIntent
}

// OnFillHandler and Finalizer are optional capabilities a Strategy may
// additionally implement.
type OnFillHandler interface {
	OnFill(fill domain.Fill)
}

type Finalizer interface {
	Finalize()
}

// BarStrategy is the contract the bar engine actually drives: OnCandle
// takes the full StrategyContext and returns domain Signals directly.
// First-party strategies implement this shape natively; bundle-style
// strategies are adapted onto it via AdaptIntentStrategy.
type BarStrategy interface {
	Name() string
	Initialize()
	Reset()
	OnCandle(bar domain.Bar, ctx domain.StrategyContext) (Result, error)
}

// Result wraps the signals (and optional metadata) a BarStrategy emits
// for one bar.
type Result struct {
	Signals  []domain.Signal
	Metadata map[string]string
}
