package risk

import (
	"fmt"
	"math"
)

// ATR approximates Average True Range for funds. NAV series carry no
// intraday high/low, so the mean absolute daily change stands in for
// the true range.
func ATR(navs []float64, period int) float64 {
	if len(navs) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(navs) - period; i < len(navs); i++ {
		sum += math.Abs(navs[i] - navs[i-1])
	}
	return sum / float64(period)
}

// StopLevel is one computed stop line.
type StopLevel struct {
	Price  float64 `json:"price"`
	Pct    float64 `json:"pct"`
	ATR    float64 `json:"atr"`
	ATRPct float64 `json:"atr_pct"`
	Method string  `json:"method"` // "atr_dynamic" or "fixed_fallback"
}

// StopLoss places the stop 2 ATR under the cost price, clamped to
// [-15%, -3%]. Volatile funds get room to breathe; bond funds get a
// tight leash. Under 25 observations it falls back to the configured
// fixed stop (fallbackPct as a fraction, e.g. 0.08; <=0 means 8%).
func StopLoss(navs []float64, costPrice, fallbackPct float64) StopLevel {
	if fallbackPct <= 0 {
		fallbackPct = 0.08
	}
	fallback := StopLevel{
		Price:  round4(costPrice * (1 - fallbackPct)),
		Pct:    round2(-fallbackPct * 100),
		Method: "fixed_fallback",
	}
	if len(navs) < 25 || costPrice <= 0 {
		return fallback
	}
	atr := ATR(navs, 20)
	if atr <= 0 {
		return fallback
	}

	price := costPrice - atr*2.0
	pct := (price - costPrice) / costPrice * 100
	if pct < -15 {
		pct = -15.0
		price = costPrice * 0.85
	} else if pct > -3 {
		pct = -3.0
		price = costPrice * 0.97
	}

	return StopLevel{
		Price:  round4(price),
		Pct:    round2(pct),
		ATR:    round4(atr),
		ATRPct: round2(atr / costPrice * 100),
		Method: "atr_dynamic",
	}
}

// TrailingStop places the take-profit line 2.5 ATR under the holding
// period's peak NAV, clamped to [-20%, -5%]. Fixed -10% fallback with
// thin history.
func TrailingStop(navs []float64, peakNAV float64) StopLevel {
	fallback := StopLevel{
		Price:  round4(peakNAV * 0.90),
		Pct:    -10.0,
		Method: "fixed_fallback",
	}
	if len(navs) < 25 || peakNAV <= 0 {
		return fallback
	}
	atr := ATR(navs, 20)
	if atr <= 0 {
		return fallback
	}

	price := peakNAV - atr*2.5
	pct := (price - peakNAV) / peakNAV * 100
	pct = math.Max(-20.0, math.Min(-5.0, pct))
	price = peakNAV * (1 + pct/100)

	return StopLevel{
		Price:  round4(price),
		Pct:    round2(pct),
		ATR:    round4(atr),
		ATRPct: round2(atr / peakNAV * 100),
		Method: "atr_dynamic",
	}
}

// DrawdownLevel names a rung of the progressive response ladder.
type DrawdownLevel string

const (
	DrawdownNormal   DrawdownLevel = "normal"
	DrawdownCaution  DrawdownLevel = "caution"
	DrawdownWarning  DrawdownLevel = "warning"
	DrawdownDanger   DrawdownLevel = "danger"
	DrawdownCritical DrawdownLevel = "critical"
)

// DrawdownResponse is the action prescribed for a drawdown depth.
type DrawdownResponse struct {
	Level     DrawdownLevel `json:"level"`
	Action    string        `json:"action"`
	ReducePct int           `json:"reduce_pct"`
	Narrative string        `json:"narrative"`
}

// BlocksBuying reports whether new purchases are off the table.
func (r DrawdownResponse) BlocksBuying() bool {
	return r.Level != DrawdownNormal
}

// ProgressiveDrawdown maps the current drawdown (sign ignored) to a
// graded response instead of an all-or-nothing cutoff: pause buys at
// 3%, trim 20% at 5%, trim half at 8%, liquidate at 10%.
func ProgressiveDrawdown(currentDrawdown float64) DrawdownResponse {
	dd := math.Abs(currentDrawdown)
	switch {
	case dd < 0.03:
		return DrawdownResponse{
			Level:     DrawdownNormal,
			Action:    "正常操作",
			Narrative: fmt.Sprintf("回撤 %.1f%%，组合健康", dd*100),
		}
	case dd < 0.05:
		return DrawdownResponse{
			Level:     DrawdownCaution,
			Action:    "警惕，不加仓",
			Narrative: fmt.Sprintf("回撤 %.1f%%，进入警戒区，暂停新买入", dd*100),
		}
	case dd < 0.08:
		return DrawdownResponse{
			Level:     DrawdownWarning,
			Action:    "减仓 20%",
			ReducePct: 20,
			Narrative: fmt.Sprintf("回撤 %.1f%%，执行第一阶减仓 20%%", dd*100),
		}
	case dd < 0.10:
		return DrawdownResponse{
			Level:     DrawdownDanger,
			Action:    "减仓 50%",
			ReducePct: 50,
			Narrative: fmt.Sprintf("回撤 %.1f%%，执行第二阶减仓至半仓", dd*100),
		}
	default:
		return DrawdownResponse{
			Level:     DrawdownCritical,
			Action:    "清仓",
			ReducePct: 100,
			Narrative: fmt.Sprintf("回撤 %.1f%%，触发硬止损，清仓保护本金", dd*100),
		}
	}
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
