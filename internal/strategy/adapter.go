package strategy

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/domain"
)

// intentStrategy adapts a bundle-style Strategy onto the BarStrategy
// surface the bar engine and live runtime drive. Order intents are mapped
// to signals against the position snapshot in the bar context: a buy
// intent with no open position becomes an entry, a sell intent against an
// open long becomes an exit, and vice versa for shorts.
type intentStrategy struct {
	name  string
	build func() Strategy
	inner Strategy
}

// AdaptIntentStrategy wraps a bundle-style Strategy constructor so it can
// be driven as a BarStrategy. build is re-invoked on Initialize/Reset,
// which is what gives the adapted strategy a clean Initialised state.
func AdaptIntentStrategy(name string, build func() Strategy) BarStrategy {
	return &intentStrategy{name: name, build: build}
}

func (a *intentStrategy) Name() string { return a.name }

func (a *intentStrategy) Initialize() {
	a.inner = a.build()
}

func (a *intentStrategy) Reset() {
	if final, ok := a.inner.(Finalizer); ok && final != nil {
		final.Finalize()
	}
	a.inner = a.build()
}

func (a *intentStrategy) OnCandle(bar domain.Bar, ctx domain.StrategyContext) (Result, error) {
	if a.inner == nil {
		a.inner = a.build()
	}

	intents := a.inner.OnBar(bar)
	if len(intents) == 0 {
		return Result{}, nil
	}

	signals := make([]domain.Signal, 0, len(intents))
	for _, intent := range intents {
		action, ok := actionForIntent(intent, ctx.Position)
		if !ok {
			continue
		}
		signals = append(signals, domain.Signal{
			ID:            uuid.New(),
			Timestamp:     bar.Timestamp,
			Market:        bar.Market,
			Mode:          ctx.Mode,
			Symbol:        intent.Symbol,
			Action:        action,
			Strength:      decimal.NewFromInt(1),
			PriceAtSignal: bar.Close,
			StrategyName:  a.name,
		})
	}
	return Result{Signals: signals}, nil
}

// actionForIntent resolves a raw buy/sell intent into a signal action
// using the open position, if any: crossing intents close before they
// would flip, and flips are not synthesized.
func actionForIntent(intent OrderIntent, position *domain.Position) (domain.SignalAction, bool) {
	hasPosition := position != nil && position.IsOpen()
	switch intent.Side {
	case domain.SideBuy:
		if hasPosition && position.Side == domain.SideSell {
			return domain.ActionExitShort, true
		}
		if !hasPosition {
			return domain.ActionEnterLong, true
		}
	case domain.SideSell:
		if hasPosition && position.Side == domain.SideBuy {
			return domain.ActionExitLong, true
		}
		if !hasPosition {
			return domain.ActionEnterShort, true
		}
	}
	return "", false
}
