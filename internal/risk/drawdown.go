package risk

import (
	"math"

	"github.com/athang/pixiu/internal/config"
)

// AlertLevel grades portfolio drawdown against the configured limits.
type AlertLevel string

const (
	AlertNormal   AlertLevel = "normal"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// DrawdownReport summarizes the portfolio's drawdown state from its
// equity curve.
type DrawdownReport struct {
	CurrentDrawdown float64    `json:"current_drawdown"`
	MaxDrawdown     float64    `json:"max_drawdown"`
	PeakValue       float64    `json:"peak_value"`
	CurrentValue    float64    `json:"current_value"`
	AlertLevel      AlertLevel `json:"alert_level"`
}

// MeasureDrawdown computes drawdown statistics over an equity curve
// ordered oldest first (typically the last 250 daily snapshots).
// Values are negative fractions: -0.06 is a 6% drawdown.
func MeasureDrawdown(values []float64, cfg config.RiskConfig, initialCapital float64) DrawdownReport {
	if len(values) == 0 {
		return DrawdownReport{
			PeakValue:    initialCapital,
			CurrentValue: initialCapital,
			AlertLevel:   AlertNormal,
		}
	}

	current := values[len(values)-1]
	peak := values[0]
	runningMax := 0.0
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if v > runningMax {
			runningMax = v
		}
		if runningMax > 0 {
			dd := (v - runningMax) / runningMax
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	currentDD := 0.0
	if peak > 0 {
		currentDD = (current - peak) / peak
	}

	level := AlertNormal
	switch absDD := math.Abs(currentDD); {
	case absDD >= cfg.MaxDrawdownHard:
		level = AlertCritical
	case absDD >= cfg.MaxDrawdownSoft:
		level = AlertWarning
	}

	return DrawdownReport{
		CurrentDrawdown: round4(currentDD),
		MaxDrawdown:     round4(maxDD),
		PeakValue:       round2(peak),
		CurrentValue:    round2(current),
		AlertLevel:      level,
	}
}

// DrawdownActions suggests next steps for an alert level. Used by the
// daily report renderer.
func DrawdownActions(level AlertLevel) []string {
	switch level {
	case AlertCritical:
		return []string{
			"立即减仓至 50% 以下",
			"优先卖出亏损最大的持仓",
			"暂停新的买入操作",
			"等待市场企稳后再考虑加仓",
		}
	case AlertWarning:
		return []string{
			"谨慎操作，不建议加仓",
			"检查各持仓止损线",
			"准备减仓计划",
		}
	default:
		return []string{"组合回撤正常，可正常操作"}
	}
}
