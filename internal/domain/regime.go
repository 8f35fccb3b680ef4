package domain

// Regime labels the prevailing market condition for a category.
type Regime string

const (
	RegimeBullStrong Regime = "bull_strong"
	RegimeBullWeak   Regime = "bull_weak"
	RegimeRanging    Regime = "ranging"
	RegimeBearWeak   Regime = "bear_weak"
	RegimeBearStrong Regime = "bear_strong"
)

// RegimeState is the detector output for one category.
type RegimeState struct {
	Regime     Regime  `json:"regime"`
	Score      float64 `json:"score"`
	Volatility float64 `json:"volatility"`
}

// DisplayName returns the Chinese label used in reports.
func (r Regime) DisplayName() string {
	switch r {
	case RegimeBullStrong:
		return "强势上涨"
	case RegimeBullWeak:
		return "温和上涨"
	case RegimeRanging:
		return "震荡整理"
	case RegimeBearWeak:
		return "温和下跌"
	case RegimeBearStrong:
		return "深度下跌"
	}
	return string(r)
}
