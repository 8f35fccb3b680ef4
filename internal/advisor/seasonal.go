package advisor

import (
	"math"
	"strings"
	"time"
)

// SeasonalModifier returns a confidence adjustment in [-0.2, +0.2] for
// A-share calendar effects, with the reasons that applied. Positive
// values favor buying. Effects stack before clamping.
func SeasonalModifier(t time.Time) (float64, string) {
	month := int(t.Month())
	day := t.Day()

	modifier := 0.0
	var reasons []string

	// 春节红包行情 (公历1月下旬~2月初)
	if (month == 1 && day >= 20) || (month == 2 && day <= 10) {
		modifier += 0.1
		reasons = append(reasons, "春节红包行情")
	}
	// 两会维稳期
	if month == 3 && day <= 15 {
		modifier += 0.05
		reasons = append(reasons, "两会维稳期")
	}
	// 财报季波动 (4月/8月/10月公布季报)
	if (month == 4 || month == 8 || month == 10) && day >= 10 && day <= 30 {
		modifier -= 0.1
		reasons = append(reasons, "财报季波动")
	}
	// 年末基金粉饰
	if month == 12 && day >= 15 {
		modifier += 0.05
		reasons = append(reasons, "年末基金粉饰")
	}
	// 月末资金面紧张
	if day >= 28 {
		modifier -= 0.05
		reasons = append(reasons, "月末资金面紧张")
	}
	// 开门红效应
	if month == 1 && day <= 7 {
		modifier += 0.05
		reasons = append(reasons, "开门红效应")
	}
	// 国庆后效应
	if month == 10 && day <= 12 {
		modifier += 0.05
		reasons = append(reasons, "国庆后效应")
	}
	// 五穷六绝
	if month == 5 || month == 6 {
		modifier -= 0.05
		reasons = append(reasons, "五穷六绝")
	}

	reason := "无季节性因素"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}
	modifier = math.Max(-0.2, math.Min(0.2, modifier))
	return math.Round(modifier*100) / 100, reason
}
