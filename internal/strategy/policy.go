package strategy

// CostPolicy, RiskPolicy and SizingPolicy carry the resolved cost/risk/
// sizing knobs a loaded strategy runs under.
type CostPolicy struct {
	CommissionBps float64
	SlippageBps   float64
	MinFee        float64
}

type RiskPolicy struct {
	MaxLeverage         float64
	MaxPositionNotional float64
	MaxDrawdown         float64
	KillSwitchDD        float64
}

type SizingPolicy struct {
	TargetVol        float64
	MaxGrossExposure float64
	PerTradeRisk     float64
}

// PolicySet is the fully-resolved policy composed at load time.
type PolicySet struct {
	Cost   CostPolicy
	Risk   RiskPolicy
	Sizing SizingPolicy
}

// DefaultPolicySet returns the built-in defaults.
func DefaultPolicySet() PolicySet {
	return PolicySet{
		Cost: CostPolicy{
			CommissionBps: 5.0,
			SlippageBps:   1.0,
			MinFee:        0.0,
		},
		Risk: RiskPolicy{
			MaxLeverage:         1.0,
			MaxPositionNotional: 100_000.0,
			MaxDrawdown:         0.20,
			KillSwitchDD:        0.30,
		},
		Sizing: SizingPolicy{
			TargetVol:        0.15,
			MaxGrossExposure: 1.0,
			PerTradeRisk:     0.01,
		},
	}
}

// MergePolicyOverrides applies a bundle's partial overrides over
// defaults, field by field; nil means "inherit default".
func MergePolicyOverrides(defaults PolicySet, overrides *PolicyOverrides) PolicySet {
	if overrides == nil {
		return defaults
	}
	result := defaults
	if overrides.Cost != nil {
		if overrides.Cost.CommissionBps != nil {
			result.Cost.CommissionBps = *overrides.Cost.CommissionBps
		}
		if overrides.Cost.SlippageBps != nil {
			result.Cost.SlippageBps = *overrides.Cost.SlippageBps
		}
		if overrides.Cost.MinFee != nil {
			result.Cost.MinFee = *overrides.Cost.MinFee
		}
	}
	if overrides.Risk != nil {
		if overrides.Risk.MaxLeverage != nil {
			result.Risk.MaxLeverage = *overrides.Risk.MaxLeverage
		}
		if overrides.Risk.MaxPositionNotional != nil {
			result.Risk.MaxPositionNotional = *overrides.Risk.MaxPositionNotional
		}
		if overrides.Risk.MaxDrawdown != nil {
			result.Risk.MaxDrawdown = *overrides.Risk.MaxDrawdown
		}
		if overrides.Risk.KillSwitchDD != nil {
			result.Risk.KillSwitchDD = *overrides.Risk.KillSwitchDD
		}
	}
	if overrides.Sizing != nil {
		if overrides.Sizing.TargetVol != nil {
			result.Sizing.TargetVol = *overrides.Sizing.TargetVol
		}
		if overrides.Sizing.MaxGrossExposure != nil {
			result.Sizing.MaxGrossExposure = *overrides.Sizing.MaxGrossExposure
		}
		if overrides.Sizing.PerTradeRisk != nil {
			result.Sizing.PerTradeRisk = *overrides.Sizing.PerTradeRisk
		}
	}
	return result
}
