package regime

import "github.com/athang/pixiu/internal/domain"

// Allocation is the target asset mix and strategy weighting for one
// market regime. Weights are fractions of total portfolio value.
type Allocation struct {
	Equity float64
	Bond   float64
	Cash   float64
	// StrategyWeights are the default fusion weights by strategy
	// name, before any learned adjustment.
	StrategyWeights map[string]float64
}

var allocations = map[domain.Regime]Allocation{
	domain.RegimeBullStrong: {
		Equity: 0.60, Bond: 0.15, Cash: 0.25,
		StrategyWeights: map[string]float64{
			"trend_following": 0.30, "momentum": 0.25, "mean_reversion": 0.10,
			"valuation": 0.15, "macro_cycle": 0.10, "manager_alpha": 0.10,
		},
	},
	domain.RegimeBullWeak: {
		Equity: 0.55, Bond: 0.20, Cash: 0.25,
		StrategyWeights: map[string]float64{
			"trend_following": 0.25, "momentum": 0.20, "mean_reversion": 0.20,
			"valuation": 0.15, "macro_cycle": 0.10, "manager_alpha": 0.10,
		},
	},
	domain.RegimeRanging: {
		Equity: 0.45, Bond: 0.25, Cash: 0.30,
		StrategyWeights: map[string]float64{
			"trend_following": 0.15, "momentum": 0.15, "mean_reversion": 0.30,
			"valuation": 0.20, "macro_cycle": 0.10, "manager_alpha": 0.10,
		},
	},
	domain.RegimeBearWeak: {
		Equity: 0.35, Bond: 0.30, Cash: 0.35,
		StrategyWeights: map[string]float64{
			"trend_following": 0.15, "momentum": 0.10, "mean_reversion": 0.25,
			"valuation": 0.25, "macro_cycle": 0.15, "manager_alpha": 0.10,
		},
	},
	domain.RegimeBearStrong: {
		Equity: 0.25, Bond: 0.35, Cash: 0.40,
		StrategyWeights: map[string]float64{
			"trend_following": 0.15, "momentum": 0.05, "mean_reversion": 0.25,
			"valuation": 0.30, "macro_cycle": 0.15, "manager_alpha": 0.10,
		},
	},
}

// AllocationFor returns the target allocation for a regime, falling
// back to the ranging profile for unknown values.
func AllocationFor(r domain.Regime) Allocation {
	if a, ok := allocations[r]; ok {
		return a
	}
	return allocations[domain.RegimeRanging]
}

// StrategyWeightsFor returns a copy of the default strategy weights
// for a regime so callers can override entries safely.
func StrategyWeightsFor(r domain.Regime) map[string]float64 {
	src := AllocationFor(r).StrategyWeights
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
