package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyByName(t *testing.T) {
	cases := map[string]Category{
		"易方达蓝筹精选混合":     CategoryEquity,
		"招商中证白酒指数":      CategoryIndex,
		"天弘余额宝货币":       CategoryEquity,
		"博时信用债券A":       CategoryBond,
		"华安黄金易ETF联接C":   CategoryGold,
		"易方达中短债债券":      CategoryBond,
		"广发纳斯达克100ETF联接": CategoryQDII,
		"华夏恒生ETF联接A":    CategoryQDII,
	}
	for name, want := range cases {
		assert.Equal(t, want, ClassifyByName(name), name)
	}
}

func TestCategoryDisplayNames(t *testing.T) {
	for _, c := range Categories() {
		assert.NotEqual(t, string(c), c.DisplayName(), "category %s should have a Chinese label", c)
	}
}

func TestSignalTypeDirection(t *testing.T) {
	assert.True(t, SignalStrongBuy.IsBuy())
	assert.True(t, SignalBuy.IsBuy())
	assert.False(t, SignalHold.IsBuy())
	assert.False(t, SignalHold.IsSell())
	assert.True(t, SignalSell.IsSell())
	assert.True(t, SignalStrongSell.IsSell())

	assert.True(t, SignalHold.Valid())
	assert.False(t, SignalType("exit").Valid())
}

func TestMarketDataRegimeFallback(t *testing.T) {
	m := &MarketData{
		GlobalRegime:    RegimeRanging,
		CategoryRegimes: map[Category]Regime{CategoryBond: RegimeBullWeak},
	}
	assert.Equal(t, RegimeBullWeak, m.RegimeFor(CategoryBond))
	assert.Equal(t, RegimeRanging, m.RegimeFor(CategoryGold))
}

func TestHoldingValueHelpers(t *testing.T) {
	h := Holding{Shares: 1000, CostPrice: 1.2, CurrentNAV: 1.5}
	assert.InDelta(t, 1500.0, h.MarketValue(), 1e-9)
	assert.InDelta(t, 1200.0, h.CostBasis(), 1e-9)
}
