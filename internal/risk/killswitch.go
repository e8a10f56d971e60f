// Package risk implements the account-level risk controls: kill switch,
// risk manager (drawdown/daily-loss breach detection), and position
// tracker (fill aggregation into positions with realized/unrealized P&L).
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autovant/tradingcore/internal/bus"
	"github.com/autovant/tradingcore/internal/domain"
)

// KillSwitch is an emergency halt mechanism: Armed -> Triggered, requiring
// an explicit Reset before it can trigger again.
type KillSwitch struct {
	mu     sync.Mutex
	market domain.Market
	mode   domain.TradingMode
	bus    *bus.Bus
	logger zerolog.Logger

	triggered       bool
	triggeredAt     time.Time
	triggeredReason string
}

// NewKillSwitch constructs an Armed kill switch scoped to market/mode. bus
// may be nil, in which case trigger events are logged but not broadcast.
func NewKillSwitch(market domain.Market, mode domain.TradingMode, b *bus.Bus, logger zerolog.Logger) *KillSwitch {
	return &KillSwitch{market: market, mode: mode, bus: b, logger: logger}
}

// IsTriggered reports whether the switch is currently tripped.
func (k *KillSwitch) IsTriggered() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.triggered
}

// TriggeredReason returns the reason the switch was last tripped, or "" if armed.
func (k *KillSwitch) TriggeredReason() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.triggeredReason
}

// Trigger trips the switch and broadcasts a KillSwitchEvent. A second
// trigger while already tripped is a no-op.
func (k *KillSwitch) Trigger(reason, triggeredBy string) {
	k.mu.Lock()
	if k.triggered {
		k.mu.Unlock()
		k.logger.Warn().Msg("kill switch already triggered")
		return
	}
	k.triggered = true
	k.triggeredAt = time.Now().UTC()
	k.triggeredReason = reason
	k.mu.Unlock()

	k.logger.Error().Str("reason", reason).Str("triggered_by", triggeredBy).Msg("kill switch triggered")

	if k.bus == nil {
		return
	}
	event := domain.KillSwitchEvent{
		Timestamp:   k.triggeredAt,
		Market:      k.market,
		Mode:        k.mode,
		Triggered:   true,
		Reason:      reason,
		TriggeredBy: triggeredBy,
	}
	if err := k.bus.Publish(bus.SubjectKillSwitch, event); err != nil {
		k.logger.Error().Err(err).Msg("failed to broadcast kill switch event")
		return
	}
	k.logger.Info().Msg("kill switch broadcast sent")
}

// Reset re-arms the switch. Callers must only invoke this after manual
// review.
func (k *KillSwitch) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.triggered {
		return
	}
	k.logger.Warn().Msg("kill switch reset - trading will resume")
	k.triggered = false
	k.triggeredReason = ""
}
