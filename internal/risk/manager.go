package risk

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/bus"
	"github.com/autovant/tradingcore/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ManagerConfig carries the drawdown and daily-loss thresholds.
type ManagerConfig struct {
	MaxDrawdownPct    decimal.Decimal
	DailyLossLimitPct decimal.Decimal
}

// Manager monitors account-level drawdown and daily loss, triggering the
// kill switch on breach.
type Manager struct {
	market domain.Market
	mode   domain.TradingMode
	cfg    ManagerConfig
	ks     *KillSwitch
	bus    *bus.Bus
	logger zerolog.Logger

	initialEquity    decimal.Decimal
	peakEquity       decimal.Decimal
	dailyStartEquity decimal.Decimal
	currentEquity    decimal.Decimal
	started          bool
}

// NewManager constructs a Manager bound to an existing KillSwitch.
func NewManager(market domain.Market, mode domain.TradingMode, cfg ManagerConfig, ks *KillSwitch, b *bus.Bus, logger zerolog.Logger) *Manager {
	return &Manager{market: market, mode: mode, cfg: cfg, ks: ks, bus: b, logger: logger}
}

// Start seeds equity tracking from the account's opening equity.
func (m *Manager) Start(initialEquity decimal.Decimal) {
	m.initialEquity = initialEquity
	m.peakEquity = initialEquity
	m.dailyStartEquity = initialEquity
	m.currentEquity = initialEquity
	m.started = true
	m.logger.Info().Str("market", string(m.market)).Str("equity", initialEquity.String()).Msg("risk manager started")
}

// AccountSnapshot returns the current account state for persistence and
// health reporting.
func (m *Manager) AccountSnapshot(now time.Time, balance, unrealizedPnL decimal.Decimal) domain.AccountSnapshot {
	drawdownPct := decimal.Zero
	if m.peakEquity.GreaterThan(decimal.Zero) {
		drawdownPct = m.peakEquity.Sub(m.currentEquity).Div(m.peakEquity).Mul(hundred)
	}
	return domain.AccountSnapshot{
		Timestamp:     now,
		Mode:          m.mode,
		Market:        m.market,
		Balance:       balance,
		Equity:        m.currentEquity,
		UnrealizedPnL: unrealizedPnL,
		RealizedPnL:   m.currentEquity.Sub(m.initialEquity).Sub(unrealizedPnL),
		DailyPnL:      m.currentEquity.Sub(m.dailyStartEquity),
		DrawdownPct:   drawdownPct,
		PeakEquity:    m.peakEquity,
	}
}

// UpdateEquity records new equity and checks the drawdown limit, then the
// daily-loss limit.
func (m *Manager) UpdateEquity(equity decimal.Decimal) []domain.RiskAlert {
	m.currentEquity = equity
	if equity.GreaterThan(m.peakEquity) {
		m.peakEquity = equity
	}

	var alerts []domain.RiskAlert
	if alert := m.checkDrawdown(); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := m.checkDailyLoss(); alert != nil {
		alerts = append(alerts, *alert)
	}
	return alerts
}

func (m *Manager) checkDrawdown() *domain.RiskAlert {
	if m.peakEquity.IsZero() {
		return nil
	}
	drawdownPct := m.peakEquity.Sub(m.currentEquity).Div(m.peakEquity).Mul(hundred)
	if drawdownPct.LessThanOrEqual(m.cfg.MaxDrawdownPct) {
		return nil
	}

	alert := m.triggerAlert("drawdown_breach", "critical", drawdownPct, m.cfg.MaxDrawdownPct)
	m.ks.Trigger("drawdown breach: "+drawdownPct.StringFixed(2)+"%", "drawdown")
	return &alert
}

func (m *Manager) checkDailyLoss() *domain.RiskAlert {
	if m.dailyStartEquity.IsZero() {
		return nil
	}
	dailyLossPct := m.dailyStartEquity.Sub(m.currentEquity).Div(m.dailyStartEquity).Mul(hundred)
	if dailyLossPct.LessThan(m.cfg.DailyLossLimitPct) {
		return nil
	}

	alert := m.triggerAlert("daily_loss_breach", "critical", dailyLossPct, m.cfg.DailyLossLimitPct)
	m.ks.Trigger("daily loss breach: "+dailyLossPct.StringFixed(2)+"%", "daily_loss")
	return &alert
}

func (m *Manager) triggerAlert(eventType, severity string, triggered, threshold decimal.Decimal) domain.RiskAlert {
	alert := domain.RiskAlert{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Market:    m.market,
		Mode:      m.mode,
		EventType: eventType,
		Severity:  severity,
		Message:   eventType + ": " + triggered.StringFixed(2) + "% exceeds limit " + threshold.StringFixed(2) + "%",
	}
	m.logger.Warn().Str("event_type", eventType).Str("message", alert.Message).Msg("risk alert")
	if m.bus != nil {
		subject := bus.Scoped(bus.SubjectRiskAlertsPrefix, string(m.market))
		if err := m.bus.Publish(subject, alert); err != nil {
			m.logger.Error().Err(err).Msg("failed to publish risk alert")
		}
	}
	return alert
}

// ResetDaily resets the daily-loss baseline to current equity; call at
// the start of each trading day.
func (m *Manager) ResetDaily() {
	m.dailyStartEquity = m.currentEquity
	m.logger.Info().Str("daily_start_equity", m.dailyStartEquity.String()).Msg("daily equity reset")
}
