package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

// TrendFollowing is the primary strategy: buy when the NAV stands
// above a bullish MA stack, sell when the stack turns bearish, with
// MACD and RSI as secondary confirmation and a weekly-timeframe
// cross-check.
type TrendFollowing struct{}

func NewTrendFollowing() *TrendFollowing { return &TrendFollowing{} }

func (s *TrendFollowing) Name() string    { return "trend_following" }
func (s *TrendFollowing) Weight() float64 { return 0.30 }

func (s *TrendFollowing) Analyze(ctx context.Context, funds []*domain.FundData, market *domain.MarketData) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, fund := range funds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(fund.NAVHistory) < 60 {
			continue
		}
		navs := fund.NAVs()
		tech := indicators.Summarize(navs)
		if tech == nil {
			continue
		}

		regime := market.RegimeFor(fund.Category)
		sigType, confidence, reasons := s.Evaluate(tech, regime)

		// 多时间框架确认: 周线趋势与日线信号比对。
		weekly := weeklyTrend(navs)
		switch {
		case sigType.IsBuy():
			if weekly > 0 {
				confidence = math.Min(confidence*1.2, 0.95)
				reasons = append(reasons, "周线趋势确认")
			} else if weekly < 0 {
				confidence *= 0.6
				reasons = append(reasons, "周线趋势不一致")
			}
		case sigType.IsSell():
			if weekly < 0 {
				confidence = math.Min(confidence*1.2, 0.95)
				reasons = append(reasons, "周线趋势确认")
			} else if weekly > 0 {
				confidence *= 0.6
				reasons = append(reasons, "周线趋势不一致")
			}
		}

		if sigType == domain.SignalHold {
			continue
		}
		signals = append(signals, domain.Signal{
			FundCode:     fund.FundCode,
			Type:         sigType,
			Confidence:   round2(confidence),
			Reason:       strings.Join(reasons, "; "),
			StrategyName: s.Name(),
			Metadata: map[string]interface{}{
				"weekly_factor": weekly,
			},
		})
	}
	return signals, nil
}

// Evaluate scores one indicator snapshot under a regime. Exported so
// the backtester can replay the same decision rule over rolling
// windows.
func (s *TrendFollowing) Evaluate(tech *indicators.TechnicalSummary, regime domain.Regime) (domain.SignalType, float64, []string) {
	buyScore, sellScore := 0, 0
	var reasons []string

	alignment := tech.MAAlignment
	switch alignment {
	case indicators.MABullish:
		buyScore += 3
		reasons = append(reasons, "均线多头排列")
	case indicators.MABearish:
		sellScore += 3
		reasons = append(reasons, "均线空头排列")
	}

	switch tech.MACDSignal {
	case indicators.MACDGoldenCross:
		buyScore += 2
		reasons = append(reasons, "MACD金叉")
	case indicators.MACDDeathCross:
		sellScore += 2
		reasons = append(reasons, "MACD死叉")
	case indicators.MACDBullish:
		buyScore++
	case indicators.MACDBearish:
		sellScore++
	}

	rsi := 50.0
	if tech.RSI != nil {
		rsi = *tech.RSI
	}
	if rsi < 30 {
		buyScore++
		reasons = append(reasons, fmt.Sprintf("RSI超卖(%.0f)", rsi))
	} else if rsi > 70 {
		sellScore++
		reasons = append(reasons, fmt.Sprintf("RSI超买(%.0f)", rsi))
	}

	current := tech.CurrentPrice
	if ma20, ok := tech.MA["MA20"]; ok && ma20 > 0 {
		if current > ma20 {
			buyScore++
		} else if current < ma20 {
			sellScore++
		}
	}
	if ma60, ok := tech.MA["MA60"]; ok && ma60 > 0 {
		if current > ma60 {
			buyScore++
		} else if current < ma60 {
			sellScore++
		}
	}

	switch regime {
	case domain.RegimeBearStrong, domain.RegimeBearWeak:
		sellScore++
		if buyScore > 0 {
			buyScore--
		}
	case domain.RegimeBullStrong, domain.RegimeBullWeak:
		buyScore++
		if sellScore > 0 {
			sellScore--
		}
	}

	netScore := buyScore - sellScore
	maxPossible := buyScore + sellScore
	if maxPossible < 1 {
		maxPossible = 1
	}
	confidence := math.Abs(float64(netScore)) / float64(maxPossible) * 0.8

	// 单靠均线排列不够: 普通信号还需要 MACD 交叉或 RSI 极值确认。
	hasMAConfirm := alignment == indicators.MABullish || alignment == indicators.MABearish
	hasSecondary := tech.MACDSignal == indicators.MACDGoldenCross ||
		tech.MACDSignal == indicators.MACDDeathCross ||
		rsi < 30 || rsi > 70

	switch {
	case netScore >= 6 && hasMAConfirm:
		return domain.SignalStrongBuy, math.Min(confidence, 0.9), reasons
	case netScore >= 4 && hasMAConfirm && hasSecondary:
		return domain.SignalBuy, math.Min(confidence, 0.7), reasons
	case netScore <= -6 && hasMAConfirm:
		return domain.SignalStrongSell, math.Min(confidence, 0.9), reasons
	case netScore <= -4 && hasMAConfirm && hasSecondary:
		return domain.SignalSell, math.Min(confidence, 0.7), reasons
	default:
		return domain.SignalHold, 0, reasons
	}
}

// weeklyTrend samples every fifth NAV as a weekly close and compares
// it against the weekly MA4/MA8 stack. Returns +1 bullish, -1
// bearish, 0 neutral or insufficient data.
func weeklyTrend(navs []float64) int {
	if len(navs) < 40 {
		return 0
	}
	weekly := make([]float64, 0, len(navs)/5+1)
	for i := 0; i < len(navs); i += 5 {
		weekly = append(weekly, navs[i])
	}
	if len(weekly) < 8 {
		return 0
	}
	n := len(weekly)
	ma4 := lastValid(indicators.MA(weekly, 4), n)
	ma8 := lastValid(indicators.MA(weekly, 8), n)
	if ma4 == 0 || ma8 == 0 {
		return 0
	}
	current := weekly[n-1]
	switch {
	case current > ma4 && ma4 > ma8:
		return 1
	case current < ma4 && ma4 < ma8:
		return -1
	default:
		return 0
	}
}

func lastValid(series []float64, n int) float64 {
	if len(series) < n {
		return 0
	}
	v := series[n-1]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
