// Package telemetry centralizes the Prometheus metrics every runtime mode
// exports into one registered set shared by the whole process, so no two
// components ever declare the same gauge twice.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the full set of gauges/counters/histograms the trading core
// exports. A single instance is constructed per process and threaded
// through every component that needs to record an observation.
type Metrics struct {
	TradingMode *prometheus.GaugeVec

	BarsProcessed   *prometheus.CounterVec
	SignalsEmitted  *prometheus.CounterVec
	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	FillsTotal      *prometheus.CounterVec

	FillLatency  *prometheus.HistogramVec
	SlippageBps  *prometheus.HistogramVec
	SignalToFill *prometheus.HistogramVec

	Equity            *prometheus.GaugeVec
	DrawdownPct       *prometheus.GaugeVec
	RiskAlerts        *prometheus.CounterVec
	KillSwitchTripped *prometheus.GaugeVec

	OpenPositions *prometheus.GaugeVec
}

// New constructs and registers the full metric set against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests, multiple
// runtimes in one process) or prometheus.DefaultRegisterer for a normal
// single-process binary.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TradingMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trading_mode",
			Help: "Current trading mode (1 = active)",
		}, []string{"mode"}),

		BarsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_bars_processed_total",
			Help: "Total number of closed bars processed by the engine or live runtime",
		}, []string{"market", "mode", "symbol"}),

		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_signals_emitted_total",
			Help: "Total number of signals emitted by a strategy",
		}, []string{"market", "mode", "symbol", "action"}),

		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_orders_submitted_total",
			Help: "Total number of orders submitted to an execution port",
		}, []string{"market", "mode", "symbol", "side"}),

		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_orders_rejected_total",
			Help: "Total number of orders rejected by an execution port",
		}, []string{"market", "mode", "symbol"}),

		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_fills_total",
			Help: "Total number of fills recorded",
		}, []string{"market", "mode", "symbol", "side"}),

		FillLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradingcore_fill_latency_ms",
			Help:    "Measured latency in milliseconds from the fill simulator or broker port",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"market", "mode"}),

		SlippageBps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradingcore_slippage_bps",
			Help:    "Observed slippage in basis points",
			Buckets: []float64{0, 1, 2.5, 5, 7.5, 10, 15, 20, 30, 50},
		}, []string{"market", "mode"}),

		SignalToFill: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradingcore_signal_to_fill_seconds",
			Help:    "Wall-clock time between a signal and its resulting fill in live/paper mode",
			Buckets: prometheus.DefBuckets,
		}, []string{"market", "mode"}),

		Equity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradingcore_equity",
			Help: "Current account equity",
		}, []string{"market", "mode"}),

		DrawdownPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradingcore_drawdown_pct",
			Help: "Current peak-to-trough drawdown percentage",
		}, []string{"market", "mode"}),

		RiskAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_risk_alerts_total",
			Help: "Total number of risk alerts raised",
		}, []string{"market", "mode", "event_type"}),

		KillSwitchTripped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradingcore_kill_switch_tripped",
			Help: "1 if the kill switch is currently triggered for this market, else 0",
		}, []string{"market", "mode"}),

		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradingcore_open_positions",
			Help: "Number of currently open positions",
		}, []string{"market", "mode"}),
	}

	reg.MustRegister(
		m.TradingMode,
		m.BarsProcessed,
		m.SignalsEmitted,
		m.OrdersSubmitted,
		m.OrdersRejected,
		m.FillsTotal,
		m.FillLatency,
		m.SlippageBps,
		m.SignalToFill,
		m.Equity,
		m.DrawdownPct,
		m.RiskAlerts,
		m.KillSwitchTripped,
		m.OpenPositions,
	)
	return m
}

// SetMode records the active trading mode, resetting any prior mode gauge
// to zero first so only one mode ever reads 1 at a time.
func (m *Metrics) SetMode(mode string) {
	m.TradingMode.Reset()
	m.TradingMode.WithLabelValues(mode).Set(1)
}
