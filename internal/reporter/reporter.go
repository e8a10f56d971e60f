// Package reporter aggregates fills and risk alerts from the event bus
// into rolling performance metrics and publishes a periodic performance
// report. It also renders the final backtest summary the CLI prints.
package reporter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/bus"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/engine"
)

// PerformanceReport is the periodic summary published on the reports
// subject.
type PerformanceReport struct {
	Market      string    `json:"market"`
	Mode        string    `json:"mode"`
	TotalFills  int       `json:"total_fills"`
	BuyFills    int       `json:"buy_fills"`
	SellFills   int       `json:"sell_fills"`
	GrossVolume string    `json:"gross_volume"`
	Commission  string    `json:"commission_paid"`
	RiskAlerts  int       `json:"risk_alerts"`
	Timestamp   time.Time `json:"timestamp"`
}

// SubjectReports is where periodic performance reports are published.
const SubjectReports = "reports.performance"

// Reporter consumes fill and risk-alert events for one market/mode and
// periodically publishes a PerformanceReport.
type Reporter struct {
	market domain.Market
	mode   domain.TradingMode
	bus    *bus.Bus
	logger zerolog.Logger

	mu          sync.Mutex
	totalFills  int
	buyFills    int
	sellFills   int
	grossVolume decimal.Decimal
	commission  decimal.Decimal
	riskAlerts  int

	subs []*nats.Subscription
}

// New constructs a Reporter bound to one market/mode scope on the bus.
func New(market domain.Market, mode domain.TradingMode, b *bus.Bus, logger zerolog.Logger) *Reporter {
	return &Reporter{market: market, mode: mode, bus: b, logger: logger}
}

// Start subscribes to the fills and risk-alert subjects for the
// reporter's market. Call Stop to unsubscribe.
func (r *Reporter) Start() error {
	fillSub, err := bus.Subscribe(r.bus, bus.Scoped(bus.SubjectFillsPrefix, string(r.market)), r.onFill)
	if err != nil {
		return fmt.Errorf("subscribe fills: %w", err)
	}
	r.subs = append(r.subs, fillSub)

	alertSub, err := bus.Subscribe(r.bus, bus.Scoped(bus.SubjectRiskAlertsPrefix, string(r.market)), r.onRiskAlert)
	if err != nil {
		return fmt.Errorf("subscribe risk alerts: %w", err)
	}
	r.subs = append(r.subs, alertSub)
	return nil
}

// Stop unsubscribes all bus subscriptions.
func (r *Reporter) Stop() {
	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to unsubscribe reporter")
		}
	}
	r.subs = nil
}

func (r *Reporter) onFill(fill domain.Fill, err error) {
	if err != nil {
		r.logger.Warn().Err(err).Msg("undecodable fill event")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalFills++
	if fill.Side == domain.SideBuy {
		r.buyFills++
	} else {
		r.sellFills++
	}
	r.grossVolume = r.grossVolume.Add(fill.Quantity.Mul(fill.Price))
	r.commission = r.commission.Add(fill.Commission)
}

func (r *Reporter) onRiskAlert(alert domain.RiskAlert, err error) {
	if err != nil {
		r.logger.Warn().Err(err).Msg("undecodable risk alert event")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.riskAlerts++
}

// Snapshot returns the current aggregate state as a report.
func (r *Reporter) Snapshot(now time.Time) PerformanceReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PerformanceReport{
		Market:      string(r.market),
		Mode:        string(r.mode),
		TotalFills:  r.totalFills,
		BuyFills:    r.buyFills,
		SellFills:   r.sellFills,
		GrossVolume: r.grossVolume.String(),
		Commission:  r.commission.String(),
		RiskAlerts:  r.riskAlerts,
		Timestamp:   now,
	}
}

// Run publishes a report every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			report := r.Snapshot(now.UTC())
			if err := r.bus.Publish(SubjectReports, report); err != nil {
				r.logger.Error().Err(err).Msg("failed to publish performance report")
				continue
			}
			r.logger.Info().
				Int("fills", report.TotalFills).
				Str("gross_volume", report.GrossVolume).
				Int("risk_alerts", report.RiskAlerts).
				Msg("published performance report")
		}
	}
}

// RenderBacktest renders a backtest result as the text summary the CLI
// prints on completion.
func RenderBacktest(result engine.Result) string {
	var b strings.Builder
	divider := strings.Repeat("=", 60)

	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "BACKTEST RESULT")
	fmt.Fprintln(&b, divider)
	fmt.Fprintf(&b, "Strategy: %s\n", result.Config.StrategyName)
	fmt.Fprintf(&b, "Market: %s\n", result.Config.Market)
	fmt.Fprintf(&b, "Symbols: %s\n", strings.Join(result.Config.Symbols, ","))
	fmt.Fprintf(&b, "Initial Capital: %s\n", result.Config.InitialCapital.StringFixed(2))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Total Return: %+.2f%%\n", result.TotalReturnPct)
	fmt.Fprintf(&b, "Sharpe Ratio: %.2f\n", result.SharpeRatio)
	fmt.Fprintf(&b, "Max Drawdown: %.2f%%\n", result.MaxDrawdownPct)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Trades: %d (W:%d / L:%d, win rate %.1f%%)\n",
		result.TotalTrades, result.WinningTrades, result.LosingTrades, result.WinRatePct)
	fmt.Fprintf(&b, "Avg Win: %.2f%%  Avg Loss: %.2f%%  Profit Factor: %.2f\n",
		result.AvgWinPct, result.AvgLossPct, result.ProfitFactor)
	fmt.Fprintln(&b, divider)
	return b.String()
}
