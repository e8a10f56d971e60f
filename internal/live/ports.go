// Package live wires a data-feed port, a broker port, the order manager,
// and the risk engine into the same bias-safe bar pipeline the backtest
// engine drives, for paper and live trading modes. Everything is an
// explicitly injected port on the runtime value; there is no package
// level mutable state.
package live

import (
	"context"
	"time"

	"github.com/autovant/tradingcore/internal/domain"
)

// DataFeed is the port a live/paper runtime consumes bars from.
// Implementations (internal/adapters/wsfeed) own their own
// reconnect/backoff policy. Runtime.Run stops on the first error it
// receives from StreamBars. wsfeed sends the error of every failed
// connect or read attempt and keeps retrying after a fixed wait; it puts
// no bound on the number of attempts.
type DataFeed interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SubscribeCandles(ctx context.Context, symbols []string, interval string) error
	Unsubscribe(ctx context.Context, symbols []string) error

	// StreamBars delivers closed bars in non-decreasing timestamp order.
	// wsfeed never closes the returned channels, on disconnect or
	// otherwise; Runtime.Run stops when ctx is done.
	StreamBars(ctx context.Context) (<-chan domain.Bar, <-chan error)

	GetHistorical(ctx context.Context, symbol, interval string, start time.Time, end *time.Time, limit int) ([]domain.Bar, error)
}

// FillCallback and OrderUpdateCallback are the capability interface a
// Broker port exposes for fill and order-update delivery; implementers
// register handlers at construction.
type FillCallback func(domain.Fill)
type OrderUpdateCallback func(domain.Order)

// Broker is the execution port for paper/live modes.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error)
	GetAccountBalance(ctx context.Context) (domain.AccountSnapshot, error)

	OnFill(cb FillCallback)
	OnOrderUpdate(cb OrderUpdateCallback)
}

// Clock abstracts "now" so a live runtime's timestamps are injectable in
// tests, mirroring the strategy.Clock port used by bundle-style strategies.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// PersistenceSink is the sink orders/fills/positions/snapshots are
// idempotently upserted to. internal/persistence provides a pgx-backed
// implementation; tests use an in-memory stub.
type PersistenceSink interface {
	UpsertOrder(ctx context.Context, order domain.Order) error
	UpsertFill(ctx context.Context, fill domain.Fill) error
	UpsertPosition(ctx context.Context, position domain.Position) error
	RecordSnapshot(ctx context.Context, snapshot domain.AccountSnapshot) error
}

// EventBus is the minimal publish capability the live runtime needs for
// bars/signals/orders/fills/risk-alerts/kill-switch/health;
// internal/bus.Bus satisfies it.
type EventBus interface {
	Publish(subject string, payload any) error
}
