package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

// MeanReversion fades overextended moves: deep RSI extremes,
// Bollinger band breaks and large deviations from MA20. It sits out
// strong trends, where fading is how accounts die.
type MeanReversion struct{}

func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

func (s *MeanReversion) Name() string    { return "mean_reversion" }
func (s *MeanReversion) Weight() float64 { return 0.30 }

func (s *MeanReversion) Analyze(ctx context.Context, funds []*domain.FundData, market *domain.MarketData) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, fund := range funds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		regime := market.RegimeFor(fund.Category)
		if regime == domain.RegimeBullStrong || regime == domain.RegimeBearStrong {
			continue
		}
		if len(fund.NAVHistory) < 30 {
			continue
		}
		tech := indicators.Summarize(fund.NAVs())
		if tech == nil {
			continue
		}

		sigType, confidence, reasons := evaluateReversion(tech)
		if sigType == domain.SignalHold {
			continue
		}
		signals = append(signals, domain.Signal{
			FundCode:     fund.FundCode,
			Type:         sigType,
			Confidence:   confidence,
			Reason:       strings.Join(reasons, "; "),
			StrategyName: s.Name(),
		})
	}
	return signals, nil
}

func evaluateReversion(tech *indicators.TechnicalSummary) (domain.SignalType, float64, []string) {
	buyScore, sellScore := 0, 0
	var reasons []string

	rsi := 50.0
	if tech.RSI != nil {
		rsi = *tech.RSI
	}
	switch {
	case rsi < 25:
		buyScore += 3
		reasons = append(reasons, fmt.Sprintf("RSI 深度超卖(%.0f)", rsi))
	case rsi < 35:
		buyScore++
		reasons = append(reasons, fmt.Sprintf("RSI 超卖(%.0f)", rsi))
	case rsi > 75:
		sellScore += 3
		reasons = append(reasons, fmt.Sprintf("RSI 深度超买(%.0f)", rsi))
	case rsi > 65:
		sellScore++
		reasons = append(reasons, fmt.Sprintf("RSI 超买(%.0f)", rsi))
	}

	bbPosition := 0.5
	if tech.BBPosition != nil {
		bbPosition = *tech.BBPosition
	}
	switch {
	case tech.BBSignal == indicators.BBBreakLower:
		buyScore += 2
		reasons = append(reasons, "跌破布林下轨")
	case bbPosition < 0.2:
		buyScore++
		reasons = append(reasons, fmt.Sprintf("接近布林下轨(位置%.0f%%)", bbPosition*100))
	case tech.BBSignal == indicators.BBBreakUpper:
		sellScore += 2
		reasons = append(reasons, "突破布林上轨")
	case bbPosition > 0.8:
		sellScore++
		reasons = append(reasons, fmt.Sprintf("接近布林上轨(位置%.0f%%)", bbPosition*100))
	}

	if ma20, ok := tech.MA["MA20"]; ok && ma20 > 0 {
		deviation := (tech.CurrentPrice - ma20) / ma20
		if deviation < -0.05 {
			buyScore += 2
			reasons = append(reasons, fmt.Sprintf("偏离MA20 %.1f%%", deviation*100))
		} else if deviation > 0.05 {
			sellScore += 2
			reasons = append(reasons, fmt.Sprintf("偏离MA20 %+.1f%%", deviation*100))
		}
	}

	netScore := buyScore - sellScore
	maxPossible := buyScore + sellScore
	if maxPossible < 1 {
		maxPossible = 1
	}
	confidence := math.Abs(float64(netScore)) / float64(maxPossible) * 0.7

	switch {
	case netScore >= 4:
		return domain.SignalStrongBuy, math.Min(confidence, 0.8), reasons
	case netScore >= 2:
		return domain.SignalBuy, math.Min(confidence, 0.6), reasons
	case netScore <= -4:
		return domain.SignalStrongSell, math.Min(confidence, 0.8), reasons
	case netScore <= -2:
		return domain.SignalSell, math.Min(confidence, 0.6), reasons
	default:
		return domain.SignalHold, 0, reasons
	}
}
