// Package turtlebreakout is the reference trend-following strategy used
// to validate the trading core end to end: long entry on a 20-bar high
// breakout, exit on a 10-bar low breakdown.
package turtlebreakout

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/strategy"
)

const (
	lookbackEntry = 20
	lookbackExit  = 10
	strategyName  = "turtle_breakout"
)

type symbolState struct {
	highs      []decimal.Decimal
	lows       []decimal.Decimal
	inPosition bool
	entryPrice decimal.Decimal
}

// The windows hold one extra element so the channel levels can be
// computed over the bars strictly before the current one.
func (s *symbolState) pushHigh(v decimal.Decimal) {
	s.highs = append(s.highs, v)
	if len(s.highs) > lookbackEntry+1 {
		s.highs = s.highs[len(s.highs)-lookbackEntry-1:]
	}
}

func (s *symbolState) pushLow(v decimal.Decimal) {
	s.lows = append(s.lows, v)
	if len(s.lows) > lookbackExit+1 {
		s.lows = s.lows[len(s.lows)-lookbackExit-1:]
	}
}

func maxExcludingLast(values []decimal.Decimal) decimal.Decimal {
	if len(values) <= 1 {
		return values[len(values)-1]
	}
	best := values[0]
	for _, v := range values[1 : len(values)-1] {
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

func minExcludingLast(values []decimal.Decimal) decimal.Decimal {
	if len(values) <= 1 {
		return values[len(values)-1]
	}
	best := values[0]
	for _, v := range values[1 : len(values)-1] {
		if v.LessThan(best) {
			best = v
		}
	}
	return best
}

// Strategy is the turtle_breakout implementation of strategy.BarStrategy.
type Strategy struct {
	state  map[string]*symbolState
	logger zerolog.Logger
}

// New constructs a fresh, uninitialized Strategy.
func New(logger zerolog.Logger) *Strategy {
	return &Strategy{state: make(map[string]*symbolState), logger: logger}
}

// Bundle exposes the strategy under the bundle contract so it can be
// resolved by name alongside sandboxed plugins.
func Bundle(logger zerolog.Logger) strategy.Bundle {
	return strategy.Bundle{
		Meta: strategy.Meta{
			Name:           strategyName,
			Universe:       []string{"BTCUSDT"},
			Timeframe:      strategy.Timeframe1d,
			RequiredFields: []string{"close", "high", "low"},
		},
		Build: func() strategy.BarStrategy { return New(logger) },
	}
}

func (s *Strategy) Name() string { return strategyName }

func (s *Strategy) Initialize() {
	s.state = make(map[string]*symbolState)
	s.logger.Info().Str("strategy", strategyName).Msg("strategy initialized")
}

func (s *Strategy) Reset() {
	s.state = make(map[string]*symbolState)
	s.logger.Debug().Str("strategy", strategyName).Msg("strategy reset")
}

func (s *Strategy) getState(symbol string) *symbolState {
	st, ok := s.state[symbol]
	if !ok {
		st = &symbolState{}
		s.state[symbol] = st
	}
	return st
}

// OnCandle implements strategy.BarStrategy. The breakout levels exclude
// the current bar to prevent look-ahead.
func (s *Strategy) OnCandle(bar domain.Bar, ctx domain.StrategyContext) (strategy.Result, error) {
	state := s.getState(bar.Symbol)

	state.pushHigh(bar.High)
	state.pushLow(bar.Low)

	if len(state.highs) <= lookbackEntry {
		return strategy.Result{}, nil
	}

	entryHigh := maxExcludingLast(state.highs)
	exitLow := minExcludingLast(state.lows)

	var signals []domain.Signal

	if !state.inPosition {
		if bar.Close.GreaterThan(entryHigh) {
			signals = append(signals, domain.Signal{
				ID:            uuid.New(),
				Timestamp:     bar.Timestamp,
				Market:        bar.Market,
				Mode:          ctx.Mode,
				Symbol:        bar.Symbol,
				Action:        domain.ActionEnterLong,
				Strength:      decimal.NewFromInt(1),
				PriceAtSignal: bar.Close,
				StrategyName:  strategyName,
				Metadata: map[string]string{
					"entry_level": entryHigh.String(),
					"trigger":     "20_day_high_breakout",
				},
			})
			state.inPosition = true
			state.entryPrice = bar.Close
			s.logger.Debug().Str("symbol", bar.Symbol).Str("price", bar.Close.String()).Msg("enter_long")
		}
	} else {
		if bar.Close.LessThan(exitLow) {
			signals = append(signals, domain.Signal{
				ID:            uuid.New(),
				Timestamp:     bar.Timestamp,
				Market:        bar.Market,
				Mode:          ctx.Mode,
				Symbol:        bar.Symbol,
				Action:        domain.ActionExitLong,
				Strength:      decimal.NewFromInt(1),
				PriceAtSignal: bar.Close,
				StrategyName:  strategyName,
				Metadata: map[string]string{
					"exit_level":  exitLow.String(),
					"entry_price": state.entryPrice.String(),
					"trigger":     "10_day_low_breakdown",
				},
			})
			state.inPosition = false
			s.logger.Debug().Str("symbol", bar.Symbol).Str("price", bar.Close.String()).Msg("exit_long")
		}
	}

	return strategy.Result{Signals: signals}, nil
}
