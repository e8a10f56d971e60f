package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/bus"
	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/risk"
	"github.com/autovant/tradingcore/internal/strategy"
)

// RuntimeConfig carries everything the live runtime needs besides the
// injected ports.
type RuntimeConfig struct {
	Market         domain.Market
	Mode           domain.TradingMode
	Symbols        []string
	Interval       string
	InitialCapital decimal.Decimal
	OrderManager   OrderManagerConfig
	Risk           risk.ManagerConfig
}

// Runtime drives one strategy instance against a DataFeed and Broker
// port. The bar pipeline is serialized: there is no strategy parallelism
// inside a single market runtime. Multiple markets run in independent
// Runtimes that share nothing mutable.
type Runtime struct {
	cfg      RuntimeConfig
	strategy strategy.BarStrategy
	feed     DataFeed
	broker   Broker
	clock    Clock
	bus      *bus.Bus
	sink     PersistenceSink
	logger   zerolog.Logger

	tracker *risk.PositionTracker
	manager *risk.Manager
	ks      *risk.KillSwitch
	om      *OrderManager

	mu              sync.Mutex
	lastBarTimeUnix map[string]int64
	balance         decimal.Decimal
}

// New constructs a Runtime. Run calls strat.Initialize before the first
// bar, matching the bar engine's explicit Initialize/Reset lifecycle.
func New(cfg RuntimeConfig, strat strategy.BarStrategy, feed DataFeed, broker Broker, b *bus.Bus, sink PersistenceSink, logger zerolog.Logger) *Runtime {
	ks := risk.NewKillSwitch(cfg.Market, cfg.Mode, b, logger)
	manager := risk.NewManager(cfg.Market, cfg.Mode, cfg.Risk, ks, b, logger)
	tracker := risk.NewPositionTracker(cfg.Market, cfg.Mode, logger)
	om := NewOrderManager(cfg.Market, cfg.Mode, cfg.OrderManager, broker, ks, sink, b, logger)

	r := &Runtime{
		cfg:             cfg,
		strategy:        strat,
		feed:            feed,
		broker:          broker,
		clock:           SystemClock{},
		bus:             b,
		sink:            sink,
		logger:          logger,
		tracker:         tracker,
		manager:         manager,
		ks:              ks,
		om:              om,
		lastBarTimeUnix: make(map[string]int64),
		balance:         cfg.InitialCapital,
	}
	broker.OnFill(r.handleFill)
	return r
}

// KillSwitch exposes the runtime's kill switch for external manual
// trigger/reset commands; reset is manual only.
func (r *Runtime) KillSwitch() *risk.KillSwitch { return r.ks }

// RiskManager exposes the runtime's risk manager, e.g. so a session-start
// hook can call ResetDaily.
func (r *Runtime) RiskManager() *risk.Manager { return r.manager }

// Run connects the feed and broker, drives the bar pipeline until ctx is
// cancelled or the feed closes, then performs the ordered cancellation
// sequence: unsubscribe feed, cancel outstanding orders, disconnect.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.feed.Connect(ctx); err != nil {
		return coreerrors.DataFeed("connect data feed", err)
	}
	if err := r.broker.Connect(ctx); err != nil {
		return coreerrors.DataFeed("connect broker", err)
	}
	if err := r.feed.SubscribeCandles(ctx, r.cfg.Symbols, r.cfg.Interval); err != nil {
		return coreerrors.DataFeed("subscribe candles", err)
	}

	r.manager.Start(r.cfg.InitialCapital)
	r.strategy.Initialize()

	bars, errs := r.feed.StreamBars(ctx)
	defer r.shutdown(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			if err != nil {
				return coreerrors.DataFeed("data feed stream error", err)
			}
		case bar, ok := <-bars:
			if !ok {
				return nil
			}
			if err := r.processBar(ctx, bar); err != nil {
				return err
			}
		}
	}
}

func (r *Runtime) shutdown(ctx context.Context) {
	if err := r.feed.Unsubscribe(ctx, r.cfg.Symbols); err != nil {
		r.logger.Error().Err(err).Msg("failed to unsubscribe data feed during shutdown")
	}
	r.om.CancelAllOpen(ctx, "")
	if err := r.feed.Disconnect(ctx); err != nil {
		r.logger.Error().Err(err).Msg("failed to disconnect data feed during shutdown")
	}
	if err := r.broker.Disconnect(ctx); err != nil {
		r.logger.Error().Err(err).Msg("failed to disconnect broker during shutdown")
	}
}

// processBar implements the serialized bar -> strategy -> signal ->
// order -> fill -> position-update pipeline, enforcing the monotonic
// timestamp ordering guarantee per symbol.
func (r *Runtime) processBar(ctx context.Context, bar domain.Bar) error {
	r.mu.Lock()
	last, seen := r.lastBarTimeUnix[bar.Symbol]
	if seen && bar.Timestamp.Unix() < last {
		r.mu.Unlock()
		return coreerrors.MonotonicTimestamp(fmt.Sprintf("bar for %s at %s precedes last seen bar at unix %d", bar.Symbol, bar.Timestamp, last), nil)
	}
	r.lastBarTimeUnix[bar.Symbol] = bar.Timestamp.Unix()
	r.mu.Unlock()

	r.tracker.UpdatePrice(bar.Symbol, bar.Close)
	if quoter, ok := r.broker.(interface {
		UpdateQuote(symbol string, bestBid, bestAsk, last decimal.Decimal)
	}); ok {
		quoter.UpdateQuote(bar.Symbol, decimal.Zero, decimal.Zero, bar.Close)
	}

	positions := r.tracker.Positions()
	var positionPtr *domain.Position
	if pos, ok := positions[bar.Symbol]; ok {
		positionPtr = &pos
	}

	stratCtx := domain.StrategyContext{
		Market:       r.cfg.Market,
		Mode:         r.cfg.Mode,
		Symbol:       bar.Symbol,
		CurrentTime:  bar.Timestamp,
		CurrentPrice: bar.Close,
		Position:     positionPtr,
	}

	result, err := r.strategy.OnCandle(bar, stratCtx)
	if err != nil {
		r.logger.Error().Err(err).Str("symbol", bar.Symbol).Msg("strategy error on bar")
	} else {
		for _, signal := range result.Signals {
			if err := signal.Validate(); err != nil {
				r.logger.Error().Err(err).Msg("strategy emitted invalid signal, dropping")
				continue
			}
			r.mu.Lock()
			balance := r.balance
			r.mu.Unlock()
			if _, err := r.om.HandleSignal(ctx, signal, balance); err != nil {
				r.logger.Error().Err(err).Str("symbol", signal.Symbol).Msg("order manager failed to handle signal")
			}
		}
	}

	equity := r.currentEquity()
	alerts := r.manager.UpdateEquity(equity)
	for _, alert := range alerts {
		r.logger.Warn().Str("event_type", alert.EventType).Msg("risk alert raised")
	}
	if r.ks.IsTriggered() {
		r.om.CancelAllOpen(ctx, bar.Symbol)
	}

	if r.sink != nil {
		snapshot := r.manager.AccountSnapshot(bar.Timestamp, r.balance, r.tracker.TotalUnrealizedPnL())
		if err := r.sink.RecordSnapshot(ctx, snapshot); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist account snapshot")
		}
	}

	return nil
}

func (r *Runtime) currentEquity() decimal.Decimal {
	return r.tracker.TotalEquity(r.balance)
}

// handleFill is the Broker port's fill callback: it updates the position
// tracker, adjusts the cash balance, and persists/publishes the fill.
func (r *Runtime) handleFill(fill domain.Fill) {
	r.mu.Lock()
	r.tracker.ProcessFill(fill)
	notional := fill.Quantity.Mul(fill.Price)
	if fill.Side == domain.SideBuy {
		r.balance = r.balance.Sub(notional).Sub(fill.Commission)
	} else {
		r.balance = r.balance.Add(notional).Sub(fill.Commission)
	}
	r.mu.Unlock()

	r.logger.Info().Str("symbol", fill.Symbol).Str("price", fill.Price.String()).Str("quantity", fill.Quantity.String()).Msg("fill received")

	ctx := context.Background()
	if r.sink != nil {
		if err := r.sink.UpsertFill(ctx, fill); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist fill")
		}
	}
	if r.bus != nil {
		subject := bus.Scoped(bus.SubjectFillsPrefix, string(r.cfg.Market))
		if err := r.bus.Publish(subject, fill); err != nil {
			r.logger.Error().Err(err).Msg("failed to publish fill event")
		}
	}
}
