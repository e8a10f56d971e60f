package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovant/tradingcore/internal/coreerrors"
)

func validBundle() Bundle {
	return Bundle{
		Meta: Meta{
			Name:           "rsi_revert",
			Universe:       []string{"BTCUSDT"},
			Timeframe:      Timeframe1h,
			RequiredFields: []string{"close"},
		},
		Build: func() BarStrategy { return nil },
	}
}

func TestValidateBundle_AcceptsWellFormed(t *testing.T) {
	assert.NoError(t, validateBundle(validBundle()))
}

func TestValidateBundle_RejectsEmptyUniverse(t *testing.T) {
	b := validBundle()
	b.Meta.Universe = nil
	err := validateBundle(b)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategySchema))
}

func TestValidateBundle_RejectsEmptyRequiredFields(t *testing.T) {
	b := validBundle()
	b.Meta.RequiredFields = nil
	err := validateBundle(b)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategySchema))
}

func TestValidateBundle_RejectsUnknownTimeframe(t *testing.T) {
	b := validBundle()
	b.Meta.Timeframe = "3m"
	err := validateBundle(b)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategySchema))
}

func TestValidateBundle_RejectsMissingBuilder(t *testing.T) {
	b := validBundle()
	b.Build = nil
	err := validateBundle(b)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategyValidation))
}

func TestMergePolicyOverrides_NilInheritsEverything(t *testing.T) {
	defaults := DefaultPolicySet()
	assert.Equal(t, defaults, MergePolicyOverrides(defaults, nil))
}

func TestMergePolicyOverrides_PerFieldMerge(t *testing.T) {
	defaults := DefaultPolicySet()
	commission := 12.0
	maxDD := 0.10
	merged := MergePolicyOverrides(defaults, &PolicyOverrides{
		Cost: &CostOverride{CommissionBps: &commission},
		Risk: &RiskOverride{MaxDrawdown: &maxDD},
	})

	assert.Equal(t, 12.0, merged.Cost.CommissionBps)
	assert.Equal(t, defaults.Cost.SlippageBps, merged.Cost.SlippageBps)
	assert.Equal(t, 0.10, merged.Risk.MaxDrawdown)
	assert.Equal(t, defaults.Risk.KillSwitchDD, merged.Risk.KillSwitchDD)
	assert.Equal(t, defaults.Sizing, merged.Sizing)
}
