package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovant/tradingcore/internal/domain"
)

func TestKillSwitch_TriggerThenResetThenTriggerAgain(t *testing.T) {
	ks := NewKillSwitch(domain.MarketCrypto, domain.ModePaper, nil, zerolog.Nop())
	assert.False(t, ks.IsTriggered())

	ks.Trigger("drawdown breach", "drawdown")
	assert.True(t, ks.IsTriggered())
	assert.Equal(t, "drawdown breach", ks.TriggeredReason())

	ks.Trigger("ignored while tripped", "manual")
	assert.Equal(t, "drawdown breach", ks.TriggeredReason())

	ks.Reset()
	assert.False(t, ks.IsTriggered())

	ks.Trigger("daily loss breach", "daily_loss")
	assert.True(t, ks.IsTriggered())
	assert.Equal(t, "daily loss breach", ks.TriggeredReason())
}

func TestManager_UpdateEquity_TriggersOnDrawdownBreach(t *testing.T) {
	ks := NewKillSwitch(domain.MarketCrypto, domain.ModePaper, nil, zerolog.Nop())
	cfg := ManagerConfig{
		MaxDrawdownPct:    decimal.NewFromInt(20),
		DailyLossLimitPct: decimal.NewFromInt(50),
	}
	m := NewManager(domain.MarketCrypto, domain.ModePaper, cfg, ks, nil, zerolog.Nop())
	m.Start(decimal.NewFromInt(100000))

	alerts := m.UpdateEquity(decimal.NewFromInt(100000))
	assert.Empty(t, alerts)
	assert.False(t, ks.IsTriggered())

	alerts = m.UpdateEquity(decimal.NewFromInt(75000))
	require.NotEmpty(t, alerts)
	assert.Equal(t, "drawdown_breach", alerts[0].EventType)
	assert.True(t, ks.IsTriggered())
}

func TestManager_ResetDaily(t *testing.T) {
	ks := NewKillSwitch(domain.MarketCrypto, domain.ModePaper, nil, zerolog.Nop())
	m := NewManager(domain.MarketCrypto, domain.ModePaper, ManagerConfig{
		MaxDrawdownPct:    decimal.NewFromInt(90),
		DailyLossLimitPct: decimal.NewFromInt(90),
	}, ks, nil, zerolog.Nop())
	m.Start(decimal.NewFromInt(100000))
	m.UpdateEquity(decimal.NewFromInt(95000))
	m.ResetDaily()
	assert.True(t, m.dailyStartEquity.Equal(decimal.NewFromInt(95000)))
}

func TestPositionTracker_OpensPositionOnFirstFill(t *testing.T) {
	pt := NewPositionTracker(domain.MarketCrypto, domain.ModeBacktest, zerolog.Nop())
	fill := domain.Fill{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Symbol:    "BTCUSDT",
		Side:      domain.SideBuy,
		Quantity:  decimal.NewFromInt(1),
		Price:     decimal.NewFromInt(100),
	}
	pt.ProcessFill(fill)

	positions := pt.Positions()
	require.Contains(t, positions, "BTCUSDT")
	assert.True(t, positions["BTCUSDT"].Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, positions["BTCUSDT"].AvgEntryPrice.Equal(decimal.NewFromInt(100)))
}

func TestPositionTracker_WeightedAverageOnSameSideAdd(t *testing.T) {
	pt := NewPositionTracker(domain.MarketCrypto, domain.ModeBacktest, zerolog.Nop())
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(200)})

	positions := pt.Positions()
	assert.True(t, positions["BTCUSDT"].AvgEntryPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, positions["BTCUSDT"].Quantity.Equal(decimal.NewFromInt(2)))
}

func TestPositionTracker_FullCloseRemovesPosition(t *testing.T) {
	pt := NewPositionTracker(domain.MarketCrypto, domain.ModeBacktest, zerolog.Nop())
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideSell, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(120)})

	positions := pt.Positions()
	assert.NotContains(t, positions, "BTCUSDT")
}

func TestPositionTracker_PartialCloseReducesQuantity(t *testing.T) {
	pt := NewPositionTracker(domain.MarketCrypto, domain.ModeBacktest, zerolog.Nop())
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(100)})
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideSell, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(120)})

	positions := pt.Positions()
	require.Contains(t, positions, "BTCUSDT")
	assert.True(t, positions["BTCUSDT"].Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, positions["BTCUSDT"].RealizedPnL.Equal(decimal.NewFromInt(20)))
}

func TestPositionTracker_LateFillReopensPosition(t *testing.T) {
	pt := NewPositionTracker(domain.MarketCrypto, domain.ModeBacktest, zerolog.Nop())
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideSell, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(120)})

	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(90)})
	positions := pt.Positions()
	require.Contains(t, positions, "BTCUSDT")
	assert.True(t, positions["BTCUSDT"].AvgEntryPrice.Equal(decimal.NewFromInt(90)))
}

func TestPositionTracker_UpdatePrice_UpdatesUnrealizedPnL(t *testing.T) {
	pt := NewPositionTracker(domain.MarketCrypto, domain.ModeBacktest, zerolog.Nop())
	pt.ProcessFill(domain.Fill{ID: uuid.New(), Timestamp: time.Now(), Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	pt.UpdatePrice("BTCUSDT", decimal.NewFromInt(150))

	assert.True(t, pt.TotalUnrealizedPnL().Equal(decimal.NewFromInt(50)))
	assert.True(t, pt.TotalEquity(decimal.NewFromInt(1000)).Equal(decimal.NewFromInt(1050)))
}

// Equity path 100000 -> 95000 -> 90000 -> 89999.99 with a 10% drawdown
// limit: the switch must trip only on the final update.
func TestManager_DrawdownKillSequence(t *testing.T) {
	ks := NewKillSwitch(domain.MarketCrypto, domain.ModePaper, nil, zerolog.Nop())
	m := NewManager(domain.MarketCrypto, domain.ModePaper, ManagerConfig{
		MaxDrawdownPct:    decimal.NewFromInt(10),
		DailyLossLimitPct: decimal.NewFromInt(50),
	}, ks, nil, zerolog.Nop())
	m.Start(decimal.NewFromInt(100000))

	assert.Empty(t, m.UpdateEquity(decimal.NewFromInt(100000)))
	assert.Empty(t, m.UpdateEquity(decimal.NewFromInt(95000)))
	assert.Empty(t, m.UpdateEquity(decimal.NewFromInt(90000)))
	assert.False(t, ks.IsTriggered())

	alerts := m.UpdateEquity(decimal.RequireFromString("89999.99"))
	require.NotEmpty(t, alerts)
	assert.Equal(t, "drawdown_breach", alerts[0].EventType)
	assert.True(t, ks.IsTriggered())
}
