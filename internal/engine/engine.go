// Package engine is the bias-safe, event-driven backtest core. It
// processes bars strictly in timestamp order, feeds only already-closed
// bars to the strategy, and fills orders through the same
// fillsim.Simulator the live runtime uses.
package engine

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/fillsim"
	"github.com/autovant/tradingcore/internal/strategy"
)

var (
	positionSizePct = decimal.NewFromFloat(0.1)
	hundred         = decimal.NewFromInt(100)
	minGrossLoss    = decimal.NewFromFloat(0.01)
)

// Config configures one backtest run.
type Config struct {
	Market          domain.Market
	StrategyName    string
	Symbols         []string
	InitialCapital  decimal.Decimal
	RandomSeed      int64
	FillSimConfig   fillsim.Config
	PositionSizePct decimal.Decimal // fraction of initial capital risked per position; defaults to 0.1
}

func (c Config) positionSizeFraction() decimal.Decimal {
	if c.PositionSizePct.IsZero() {
		return positionSizePct
	}
	return c.PositionSizePct
}

// TradeRecord is a completed round-trip trade.
type TradeRecord struct {
	Symbol             string
	Side               domain.OrderSide
	EntryTime          int64
	ExitTime           int64
	EntryPrice         decimal.Decimal
	ExitPrice          decimal.Decimal
	Quantity           decimal.Decimal
	PnL                decimal.Decimal
	PnLPct             decimal.Decimal
	HoldingPeriodHours int64
}

// Result is the outcome of a completed backtest.
type Result struct {
	Config Config

	TotalReturnPct float64
	SharpeRatio    float64
	MaxDrawdownPct float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRatePct    float64
	AvgWinPct     float64
	AvgLossPct    float64
	ProfitFactor  float64

	Trades       []TradeRecord
	EquityCurve  []EquityPoint
	DailyReturns []float64
}

// EquityPoint is one sample on the equity curve.
type EquityPoint struct {
	TimestampUnix int64
	Equity        decimal.Decimal
}

// Engine drives a BarStrategy over a closed sequence of bars.
type Engine struct {
	cfg       Config
	strategy  strategy.BarStrategy
	simulator *fillsim.Simulator
	logger    zerolog.Logger

	currentTimeUnix int64
	lastPrices      map[string]decimal.Decimal
	positions       map[string]*domain.Position
	trades          []TradeRecord
	equityCurve     []EquityPoint
	peakEquity      decimal.Decimal
	maxDrawdown     decimal.Decimal
}

// New constructs an Engine bound to a concrete strategy instance. Callers
// building from a Bundle pass bundle.Build() as strat.
func New(cfg Config, strat strategy.BarStrategy, logger zerolog.Logger) *Engine {
	simCfg := cfg.FillSimConfig
	simCfg.Seed = cfg.RandomSeed
	return &Engine{
		cfg:       cfg,
		strategy:  strat,
		simulator: fillsim.New(simCfg),
		logger:    logger,
	}
}

func (e *Engine) reset() {
	e.strategy.Reset()
	e.simulator.Reset()
	e.currentTimeUnix = 0
	e.lastPrices = make(map[string]decimal.Decimal)
	e.positions = make(map[string]*domain.Position)
	e.trades = nil
	e.equityCurve = nil
	e.peakEquity = e.cfg.InitialCapital
	e.maxDrawdown = decimal.Zero
}

// Run processes bars in the order given. Bars MUST already be sorted
// ascending by timestamp and IsClosed; the caller (data loader or replay
// feed) owns that guarantee.
func (e *Engine) Run(bars []domain.Bar) Result {
	e.logger.Info().Str("strategy", e.cfg.StrategyName).Msg("starting backtest")
	e.reset()
	e.strategy.Initialize()

	for i, bar := range bars {
		e.processBar(bar)
		if (i+1)%10000 == 0 {
			e.logger.Info().Int("count", i+1).Msg("processed bars")
		}
	}

	e.closeAllPositions()
	result := e.calculateResult()

	e.logger.Info().
		Int("total_trades", result.TotalTrades).
		Float64("return_pct", result.TotalReturnPct).
		Float64("sharpe", result.SharpeRatio).
		Msg("backtest complete")

	return result
}

func (e *Engine) processBar(bar domain.Bar) {
	e.currentTimeUnix = bar.Timestamp.Unix()
	e.lastPrices[bar.Symbol] = bar.Close

	if pos, ok := e.positions[bar.Symbol]; ok {
		price := bar.Close
		pos.CurrentPrice = &price
		e.updateUnrealizedPnL(pos)
	}

	ctx := domain.StrategyContext{
		Market:       bar.Market,
		Mode:         domain.ModeBacktest,
		Symbol:       bar.Symbol,
		CurrentTime:  bar.Timestamp,
		CurrentPrice: bar.Close,
		Position:     e.positions[bar.Symbol],
	}

	result, err := e.strategy.OnCandle(bar, ctx)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", bar.Symbol).Msg("strategy error on bar")
	} else {
		for _, signal := range result.Signals {
			e.processSignal(signal, bar)
		}
	}

	equity := e.calculateEquity()
	e.equityCurve = append(e.equityCurve, EquityPoint{TimestampUnix: bar.Timestamp.Unix(), Equity: equity})

	if equity.GreaterThan(e.peakEquity) {
		e.peakEquity = equity
	}
	if e.peakEquity.GreaterThan(decimal.Zero) {
		drawdown := e.peakEquity.Sub(equity).Div(e.peakEquity).Mul(hundred)
		if drawdown.GreaterThan(e.maxDrawdown) {
			e.maxDrawdown = drawdown
		}
	}
}

func (e *Engine) processSignal(signal domain.Signal, bar domain.Bar) {
	existing, hasPosition := e.positions[signal.Symbol]

	switch signal.Action {
	case domain.ActionEnterLong:
		if !hasPosition {
			e.openPosition(signal, bar, domain.SideBuy)
		}
	case domain.ActionExitLong:
		if hasPosition && existing.Side == domain.SideBuy {
			e.closePosition(existing, bar)
		}
	case domain.ActionEnterShort:
		if !hasPosition {
			e.openPosition(signal, bar, domain.SideSell)
		}
	case domain.ActionExitShort:
		if hasPosition && existing.Side == domain.SideSell {
			e.closePosition(existing, bar)
		}
	}
}

func (e *Engine) openPosition(signal domain.Signal, bar domain.Bar, side domain.OrderSide) {
	positionValue := e.cfg.InitialCapital.Mul(e.cfg.positionSizeFraction())
	quantity := positionValue.Div(bar.Close)

	order := domain.Order{
		ID:           uuid.New(),
		Market:       e.cfg.Market,
		Mode:         domain.ModeBacktest,
		Symbol:       signal.Symbol,
		Side:         side,
		Type:         domain.OrderTypeMarket,
		Quantity:     quantity,
		StrategyName: e.cfg.StrategyName,
		Status:       domain.OrderFilled,
	}

	fillResult := e.simulator.SimulateFill(order, bar.Close, bar.Timestamp)

	price := fillResult.ExecutedPrice
	position := &domain.Position{
		ID:            uuid.New(),
		Market:        e.cfg.Market,
		Mode:          domain.ModeBacktest,
		Symbol:        signal.Symbol,
		Side:          side,
		Quantity:      quantity,
		AvgEntryPrice: fillResult.ExecutedPrice,
		CurrentPrice:  &price,
		StrategyName:  e.cfg.StrategyName,
		OpenedAt:      bar.Timestamp,
		UpdatedAt:     bar.Timestamp,
	}

	e.positions[signal.Symbol] = position
}

func (e *Engine) closePosition(position *domain.Position, bar domain.Bar) {
	exitSide := position.Side.Opposite()

	order := domain.Order{
		ID:           uuid.New(),
		Market:       e.cfg.Market,
		Mode:         domain.ModeBacktest,
		Symbol:       position.Symbol,
		Side:         exitSide,
		Type:         domain.OrderTypeMarket,
		Quantity:     position.Quantity,
		StrategyName: e.cfg.StrategyName,
		Status:       domain.OrderFilled,
	}

	fillResult := e.simulator.SimulateFill(order, bar.Close, bar.Timestamp)
	exitPrice := fillResult.ExecutedPrice

	var pnl decimal.Decimal
	if position.Side == domain.SideBuy {
		pnl = exitPrice.Sub(position.AvgEntryPrice).Mul(position.Quantity)
	} else {
		pnl = position.AvgEntryPrice.Sub(exitPrice).Mul(position.Quantity)
	}
	pnl = pnl.Sub(fillResult.Commission)

	denom := position.AvgEntryPrice.Mul(position.Quantity)
	var pnlPct decimal.Decimal
	if denom.GreaterThan(decimal.Zero) {
		pnlPct = pnl.Div(denom).Mul(hundred)
	}

	holdingHours := int64(bar.Timestamp.Sub(position.OpenedAt).Hours())
	if holdingHours < 1 {
		holdingHours = 1
	}

	e.trades = append(e.trades, TradeRecord{
		Symbol:             position.Symbol,
		Side:               position.Side,
		EntryTime:          position.OpenedAt.Unix(),
		ExitTime:           bar.Timestamp.Unix(),
		EntryPrice:         position.AvgEntryPrice,
		ExitPrice:          exitPrice,
		Quantity:           position.Quantity,
		PnL:                pnl,
		PnLPct:             pnlPct,
		HoldingPeriodHours: holdingHours,
	})

	delete(e.positions, position.Symbol)
}

func (e *Engine) closeAllPositions() {
	symbols := make([]string, 0, len(e.positions))
	for symbol := range e.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		position := e.positions[symbol]
		price := position.AvgEntryPrice
		if position.CurrentPrice != nil {
			price = *position.CurrentPrice
		}

		var pnl decimal.Decimal
		if position.Side == domain.SideBuy {
			pnl = price.Sub(position.AvgEntryPrice).Mul(position.Quantity)
		} else {
			pnl = position.AvgEntryPrice.Sub(price).Mul(position.Quantity)
		}

		denom := position.AvgEntryPrice.Mul(position.Quantity)
		var pnlPct decimal.Decimal
		if denom.GreaterThan(decimal.Zero) {
			pnlPct = pnl.Div(denom).Mul(hundred)
		}

		e.trades = append(e.trades, TradeRecord{
			Symbol:             symbol,
			Side:               position.Side,
			EntryTime:          position.OpenedAt.Unix(),
			ExitTime:           e.currentTimeUnix,
			EntryPrice:         position.AvgEntryPrice,
			ExitPrice:          price,
			Quantity:           position.Quantity,
			PnL:                pnl,
			PnLPct:             pnlPct,
			HoldingPeriodHours: 1,
		})
	}
	e.positions = make(map[string]*domain.Position)
}

func (e *Engine) updateUnrealizedPnL(position *domain.Position) {
	if position.CurrentPrice == nil {
		return
	}
	if position.Side == domain.SideBuy {
		position.UnrealizedPnL = position.CurrentPrice.Sub(position.AvgEntryPrice).Mul(position.Quantity)
	} else {
		position.UnrealizedPnL = position.AvgEntryPrice.Sub(*position.CurrentPrice).Mul(position.Quantity)
	}
}

func (e *Engine) calculateEquity() decimal.Decimal {
	balance := e.cfg.InitialCapital
	for _, trade := range e.trades {
		balance = balance.Add(trade.PnL)
	}
	for _, position := range e.positions {
		balance = balance.Add(position.UnrealizedPnL)
	}
	return balance
}

func (e *Engine) calculateResult() Result {
	result := Result{
		Config:         e.cfg,
		Trades:         e.trades,
		EquityCurve:    e.equityCurve,
		MaxDrawdownPct: e.maxDrawdown.InexactFloat64(),
		TotalTrades:    len(e.trades),
	}
	if result.TotalTrades == 0 {
		return result
	}

	var winners, losers []TradeRecord
	for _, t := range e.trades {
		if t.PnL.GreaterThan(decimal.Zero) {
			winners = append(winners, t)
		} else {
			losers = append(losers, t)
		}
	}
	result.WinningTrades = len(winners)
	result.LosingTrades = len(losers)
	result.WinRatePct = float64(len(winners)) / float64(len(e.trades)) * 100

	if len(winners) > 0 {
		sum := decimal.Zero
		for _, t := range winners {
			sum = sum.Add(t.PnLPct)
		}
		result.AvgWinPct = sum.Div(decimal.NewFromInt(int64(len(winners)))).InexactFloat64()
	}
	if len(losers) > 0 {
		sum := decimal.Zero
		for _, t := range losers {
			sum = sum.Add(t.PnLPct)
		}
		result.AvgLossPct = math.Abs(sum.Div(decimal.NewFromInt(int64(len(losers)))).InexactFloat64())
	}

	grossProfit := decimal.Zero
	for _, t := range winners {
		grossProfit = grossProfit.Add(t.PnL)
	}
	grossLoss := minGrossLoss
	if len(losers) > 0 {
		sum := decimal.Zero
		for _, t := range losers {
			sum = sum.Add(t.PnL)
		}
		grossLoss = sum.Abs()
		if grossLoss.IsZero() {
			grossLoss = minGrossLoss
		}
	}
	result.ProfitFactor = grossProfit.Div(grossLoss).InexactFloat64()

	finalEquity := e.calculateEquity()
	result.TotalReturnPct = finalEquity.Sub(e.cfg.InitialCapital).Div(e.cfg.InitialCapital).Mul(hundred).InexactFloat64()

	result.SharpeRatio, result.DailyReturns = computeSharpe(e.equityCurve)

	return result
}

// computeSharpe computes the sqrt(252)-annualized Sharpe ratio from the
// equity curve's period returns. Returns 0 when there are fewer than two
// returns or the return series has zero variance.
func computeSharpe(curve []EquityPoint) (float64, []float64) {
	if len(curve) < 2 {
		return 0, nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		curr := curve[i].Equity
		if prev.GreaterThan(decimal.Zero) {
			ret := curr.Sub(prev).Div(prev).InexactFloat64()
			returns = append(returns, ret)
		}
	}
	if len(returns) < 2 {
		return 0, returns
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	stdev := 1.0
	if len(returns) > 1 {
		var sumSq float64
		for _, r := range returns {
			d := r - mean
			sumSq += d * d
		}
		stdev = math.Sqrt(sumSq / float64(len(returns)-1))
	}
	if stdev == 0 {
		return 0, returns
	}
	return (mean * math.Sqrt(252)) / stdev, returns
}
