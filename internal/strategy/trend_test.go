package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

func fp(v float64) *float64 { return &v }

func bullishSummary() *indicators.TechnicalSummary {
	return &indicators.TechnicalSummary{
		CurrentPrice: 2.10,
		RSI:          fp(28),
		RSISignal:    indicators.RSIOversold,
		MACDSignal:   indicators.MACDGoldenCross,
		MA:           map[string]float64{"MA5": 2.08, "MA10": 2.05, "MA20": 2.00, "MA60": 1.90},
		MAAlignment:  indicators.MABullish,
	}
}

func TestTrendEvaluateStrongBuy(t *testing.T) {
	s := NewTrendFollowing()
	// Alignment +3, golden cross +2, RSI oversold +1, above MA20 +1,
	// above MA60 +1 is net 8 before the regime adjustment.
	sigType, conf, reasons := s.Evaluate(bullishSummary(), domain.RegimeBullWeak)

	assert.Equal(t, domain.SignalStrongBuy, sigType)
	assert.InDelta(t, 0.8, conf, 0.001) // 9/9*0.8
	assert.Contains(t, reasons, "均线多头排列")
	assert.Contains(t, reasons, "MACD金叉")
}

func TestTrendEvaluateRequiresMAConfirm(t *testing.T) {
	s := NewTrendFollowing()
	tech := bullishSummary()
	tech.MAAlignment = indicators.MACrossed

	sigType, conf, _ := s.Evaluate(tech, domain.RegimeRanging)
	assert.Equal(t, domain.SignalHold, sigType)
	assert.Equal(t, 0.0, conf)
}

func TestTrendEvaluateBuyNeedsSecondaryConfirm(t *testing.T) {
	s := NewTrendFollowing()
	// MA stack is bullish but MACD and RSI are both unremarkable.
	tech := &indicators.TechnicalSummary{
		CurrentPrice: 2.10,
		RSI:          fp(55),
		MACDSignal:   indicators.MACDBearish,
		MA:           map[string]float64{"MA5": 2.08, "MA10": 2.05, "MA20": 2.00, "MA60": 1.90},
		MAAlignment:  indicators.MABullish,
	}
	sigType, _, _ := s.Evaluate(tech, domain.RegimeRanging)
	assert.Equal(t, domain.SignalHold, sigType)
}

func TestTrendEvaluateBearRegimeDampensBuys(t *testing.T) {
	s := NewTrendFollowing()
	tech := bullishSummary()
	tech.RSI = fp(55) // golden cross stays the only secondary confirm

	bull, _, _ := s.Evaluate(tech, domain.RegimeBullStrong)
	bear, _, _ := s.Evaluate(tech, domain.RegimeBearStrong)

	assert.Equal(t, domain.SignalStrongBuy, bull)
	// Same indicators, one tier weaker in a bear tape.
	assert.Equal(t, domain.SignalBuy, bear)
}

func TestTrendEvaluateStrongSell(t *testing.T) {
	s := NewTrendFollowing()
	tech := &indicators.TechnicalSummary{
		CurrentPrice: 1.70,
		RSI:          fp(75),
		MACDSignal:   indicators.MACDDeathCross,
		MA:           map[string]float64{"MA5": 1.72, "MA10": 1.75, "MA20": 1.80, "MA60": 1.90},
		MAAlignment:  indicators.MABearish,
	}
	sigType, conf, reasons := s.Evaluate(tech, domain.RegimeBearWeak)

	assert.Equal(t, domain.SignalStrongSell, sigType)
	assert.LessOrEqual(t, conf, 0.9)
	assert.Contains(t, reasons, "均线空头排列")
	assert.Contains(t, reasons, "MACD死叉")
}

func TestWeeklyTrend(t *testing.T) {
	up := make([]float64, 60)
	down := make([]float64, 60)
	for i := range up {
		up[i] = 1.0 + float64(i)*0.01
		down[i] = 2.0 - float64(i)*0.01
	}

	assert.Equal(t, 1, weeklyTrend(up))
	assert.Equal(t, -1, weeklyTrend(down))
	assert.Equal(t, 0, weeklyTrend(up[:39]), "short series is neutral")

	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 1.5
	}
	assert.Equal(t, 0, weeklyTrend(flat))
}

func TestMeanReversionOversoldBuy(t *testing.T) {
	tech := &indicators.TechnicalSummary{
		CurrentPrice: 1.80,
		RSI:          fp(22),
		BBSignal:     indicators.BBBreakLower,
		BBPosition:   fp(-0.05),
		MA:           map[string]float64{"MA20": 1.95},
	}
	// RSI deep oversold +3, band break +2, -7.7% off MA20 +2.
	sigType, conf, reasons := evaluateReversion(tech)

	assert.Equal(t, domain.SignalStrongBuy, sigType)
	assert.InDelta(t, 0.7, conf, 0.001)
	assert.Contains(t, reasons[0], "RSI 深度超卖")
	assert.Contains(t, reasons, "跌破布林下轨")
}

func TestMeanReversionOverboughtSell(t *testing.T) {
	tech := &indicators.TechnicalSummary{
		CurrentPrice: 2.20,
		RSI:          fp(68),
		BBSignal:     indicators.BBInChannel,
		BBPosition:   fp(0.85),
		MA:           map[string]float64{"MA20": 2.15},
	}
	// RSI overbought +1, near upper band +1 is a plain sell.
	sigType, _, reasons := evaluateReversion(tech)

	assert.Equal(t, domain.SignalSell, sigType)
	assert.Contains(t, reasons[0], "RSI 超买")
}

func TestMeanReversionSkipsStrongTrends(t *testing.T) {
	navs := make([]float64, 60)
	for i := range navs {
		navs[i] = 1.0 + float64(i)*0.02
	}
	funds := []*domain.FundData{equityFund("110011", navs)}

	for _, regime := range []domain.Regime{domain.RegimeBullStrong, domain.RegimeBearStrong} {
		signals, err := NewMeanReversion().Analyze(context.Background(), funds, marketWith(regime))
		assert.NoError(t, err)
		assert.Empty(t, signals, "regime %s", regime)
	}
}
