// Package risk enforces the survival rules: position sizing, asset
// allocation floors, correlation penalties, volatility-aware stops and
// the progressive drawdown ladder. Everything here is pure
// computation; callers supply the series and snapshots.
package risk

import (
	"fmt"
	"math"

	"github.com/athang/pixiu/internal/domain"
)

// Hard allocation floors. These are never crossed, regardless of how
// bullish the signals get.
const (
	EquityMax = 0.70
	CashMin   = 0.20
	BondMin   = 0.10
)

// Allocation is an equity/bond/cash split summing to 1.
type Allocation struct {
	Equity float64 `json:"equity"`
	Bond   float64 `json:"bond"`
	Cash   float64 `json:"cash"`
}

var regimeAllocations = map[domain.Regime]Allocation{
	domain.RegimeBullStrong: {Equity: 0.60, Bond: 0.15, Cash: 0.25},
	domain.RegimeBullWeak:   {Equity: 0.55, Bond: 0.20, Cash: 0.25},
	domain.RegimeRanging:    {Equity: 0.45, Bond: 0.25, Cash: 0.30},
	domain.RegimeBearWeak:   {Equity: 0.35, Bond: 0.30, Cash: 0.35},
	domain.RegimeBearStrong: {Equity: 0.25, Bond: 0.35, Cash: 0.40},
}

type valuationAdjustment struct {
	low, high          float64
	equity, bond, cash float64
}

var valuationAdjustments = []valuationAdjustment{
	{0, 20, +0.10, -0.05, -0.05},
	{20, 30, +0.05, -0.03, -0.02},
	{70, 80, -0.05, +0.03, +0.02},
	{80, 100, -0.10, +0.05, +0.05},
}

// TargetAllocation combines the regime profile with the valuation
// overlay, then clamps to the hard floors and renormalizes.
func TargetAllocation(regime domain.Regime, pePercentile float64) Allocation {
	base, ok := regimeAllocations[regime]
	if !ok {
		base = regimeAllocations[domain.RegimeRanging]
	}

	for _, adj := range valuationAdjustments {
		if pePercentile >= adj.low && pePercentile < adj.high {
			base.Equity += adj.equity
			base.Bond += adj.bond
			base.Cash += adj.cash
			break
		}
	}

	base.Equity = math.Min(base.Equity, EquityMax)
	base.Cash = math.Max(base.Cash, CashMin)
	base.Bond = math.Max(base.Bond, BondMin)

	total := base.Equity + base.Bond + base.Cash
	if total != 1.0 {
		base.Equity = round3(base.Equity / total)
		base.Bond = round3(base.Bond / total)
		base.Cash = round3(1.0 - base.Equity - base.Bond)
	}
	return base
}

// MaxEquityAmount is the headroom left for new equity-fund purchases:
// target equity share plus a 5pp tolerance band, hard-capped at 70%.
func MaxEquityAmount(totalValue, currentEquityValue float64, regime domain.Regime, pePercentile float64) float64 {
	target := TargetAllocation(regime, pePercentile)
	maxPct := math.Min(target.Equity+0.05, EquityMax)
	available := totalValue*maxPct - currentEquityValue
	if available < 0 {
		return 0
	}
	return math.Round(available*100) / 100
}

// Compliance is the verdict of an allocation audit.
type Compliance struct {
	Compliant   bool
	Target      Allocation
	Current     Allocation
	Deviations  Allocation
	Violations  []string
	Suggestions []string
}

// CheckCompliance audits the current split against the target and the
// hard floors. Deviations beyond 10pp earn a rebalancing suggestion.
func CheckCompliance(current Allocation, regime domain.Regime, pePercentile float64) Compliance {
	target := TargetAllocation(regime, pePercentile)

	c := Compliance{
		Target:  target,
		Current: current,
		Deviations: Allocation{
			Equity: round3(current.Equity - target.Equity),
			Bond:   round3(current.Bond - target.Bond),
			Cash:   round3(current.Cash - target.Cash),
		},
	}

	if current.Equity > EquityMax {
		c.Violations = append(c.Violations,
			fmt.Sprintf("股票仓位 %.0f%% 超过上限 %.0f%%", current.Equity*100, EquityMax*100))
		c.Suggestions = append(c.Suggestions,
			fmt.Sprintf("减少股票基金仓位至 %.0f%% 以下", EquityMax*100))
	}
	if current.Cash < CashMin {
		c.Violations = append(c.Violations,
			fmt.Sprintf("现金比例 %.0f%% 低于底线 %.0f%%", current.Cash*100, CashMin*100))
		c.Suggestions = append(c.Suggestions,
			fmt.Sprintf("增加现金储备至 %.0f%% 以上", CashMin*100))
	}
	if current.Bond < BondMin {
		c.Violations = append(c.Violations,
			fmt.Sprintf("债券比例 %.0f%% 低于底线 %.0f%%", current.Bond*100, BondMin*100))
		c.Suggestions = append(c.Suggestions, "配置债券基金作为组合压舱石")
	}

	for _, d := range []struct {
		name         string
		dev, tgt, cur float64
	}{
		{"equity", c.Deviations.Equity, target.Equity, current.Equity},
		{"bond", c.Deviations.Bond, target.Bond, current.Bond},
		{"cash", c.Deviations.Cash, target.Cash, current.Cash},
	} {
		if math.Abs(d.dev) > 0.10 {
			direction := "偏低"
			if d.dev > 0 {
				direction = "偏高"
			}
			c.Suggestions = append(c.Suggestions,
				fmt.Sprintf("%s 配置%s %.0f%%，目标 %.0f%%，当前 %.0f%%",
					d.name, direction, math.Abs(d.dev)*100, d.tgt*100, d.cur*100))
		}
	}

	c.Compliant = len(c.Violations) == 0
	return c
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
