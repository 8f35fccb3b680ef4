package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/domain"
)

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewTrendFollowing()))

	err := r.Register(NewTrendFollowing())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trend_following")

	assert.Len(t, r.All(), 1)
}

func TestRegistryLookupAndOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewValuation())
	r.MustRegister(NewTrendFollowing())
	r.MustRegister(NewMomentum())

	s, ok := r.Get("valuation")
	require.True(t, ok)
	assert.Equal(t, 0.25, s.Weight())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	// All preserves registration order, Names sorts.
	all := r.All()
	assert.Equal(t, "valuation", all[0].Name())
	assert.Equal(t, "trend_following", all[1].Name())
	assert.Equal(t, []string{"momentum", "trend_following", "valuation"}, r.Names())
}

func equityFund(code string, navs []float64) *domain.FundData {
	history := make([]domain.FundNAV, len(navs))
	for i, v := range navs {
		history[i] = domain.FundNAV{FundCode: code, NAV: v}
	}
	return &domain.FundData{
		FundCode:   code,
		Name:       code,
		Category:   domain.CategoryEquity,
		NAVHistory: history,
	}
}

func marketWith(regime domain.Regime) *domain.MarketData {
	return &domain.MarketData{
		GlobalRegime: regime,
		CategoryRegimes: map[domain.Category]domain.Regime{
			domain.CategoryEquity: regime,
		},
	}
}

func TestValuationBands(t *testing.T) {
	funds := []*domain.FundData{
		equityFund("110011", nil),
		{FundCode: "217022", Category: domain.CategoryBond},
	}

	tests := []struct {
		pePct    float64
		want     domain.SignalType
		wantConf float64
		wantPrio int
	}{
		{15, domain.SignalStrongBuy, 0.85, 90},
		{25, domain.SignalBuy, 0.70, 70},
		{90, domain.SignalStrongSell, 0.80, 85},
		{80, domain.SignalSell, 0.60, 60},
	}
	for _, tt := range tests {
		market := marketWith(domain.RegimeRanging)
		market.Valuation = &domain.ValuationSignal{PEPercentile: tt.pePct, Narrative: "测试"}

		signals, err := NewValuation().Analyze(context.Background(), funds, market)
		require.NoError(t, err)
		require.Len(t, signals, 1, "pe percentile %.0f", tt.pePct)

		sig := signals[0]
		assert.Equal(t, "110011", sig.FundCode, "bond funds never get valuation signals")
		assert.Equal(t, tt.want, sig.Type)
		assert.Equal(t, tt.wantConf, sig.Confidence)
		assert.Equal(t, tt.wantPrio, sig.Priority)
		assert.Contains(t, sig.Reason, "测试")
	}
}

func TestValuationSilentInMiddleBand(t *testing.T) {
	market := marketWith(domain.RegimeRanging)
	market.Valuation = &domain.ValuationSignal{PEPercentile: 50}

	signals, err := NewValuation().Analyze(context.Background(),
		[]*domain.FundData{equityFund("110011", nil)}, market)
	require.NoError(t, err)
	assert.Empty(t, signals)

	// No valuation enrichment at all is also silence, not an error.
	signals, err = NewValuation().Analyze(context.Background(),
		[]*domain.FundData{equityFund("110011", nil)}, marketWith(domain.RegimeRanging))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMacroCycleSignals(t *testing.T) {
	funds := []*domain.FundData{equityFund("110011", nil)}

	tests := []struct {
		cycle    domain.CreditCycle
		want     domain.SignalType
		wantConf float64
	}{
		{domain.CycleExpansion, domain.SignalBuy, 0.65},
		{domain.CycleRecovery, domain.SignalBuy, 0.55},
		{domain.CycleContraction, domain.SignalSell, 0.60},
	}
	for _, tt := range tests {
		market := marketWith(domain.RegimeRanging)
		market.Macro = &domain.MacroSnapshot{CreditCycle: tt.cycle}

		signals, err := NewMacroCycle().Analyze(context.Background(), funds, market)
		require.NoError(t, err)
		require.Len(t, signals, 1, "cycle %s", tt.cycle)
		assert.Equal(t, tt.want, signals[0].Type)
		assert.Equal(t, tt.wantConf, signals[0].Confidence)
		assert.Equal(t, 50, signals[0].Priority)
	}

	// Peak and unknown both stay silent.
	for _, cycle := range []domain.CreditCycle{domain.CyclePeak, domain.CycleUnknown} {
		market := marketWith(domain.RegimeRanging)
		market.Macro = &domain.MacroSnapshot{CreditCycle: cycle}
		signals, err := NewMacroCycle().Analyze(context.Background(), funds, market)
		require.NoError(t, err)
		assert.Empty(t, signals, "cycle %s", cycle)
	}
}

func TestManagerAlphaGrades(t *testing.T) {
	funds := []*domain.FundData{
		equityFund("110011", nil),
		equityFund("005827", nil),
		equityFund("161005", nil),
		equityFund("260108", nil),
	}
	market := marketWith(domain.RegimeRanging)
	market.ManagerScores = map[string]domain.ManagerScore{
		"110011": {Score: 88, Grade: "A", Reasons: []string{"年化收益优秀", "回撤控制好", "风格稳定", "任职久"}},
		"005827": {Score: 72, Grade: "B"},
		"161005": {Score: 55, Grade: "C"},
		"260108": {Score: 30, Grade: "D", Reasons: []string{"长期跑输基准"}},
	}

	signals, err := NewManagerAlpha().Analyze(context.Background(), funds, market)
	require.NoError(t, err)
	require.Len(t, signals, 3, "C grades produce nothing")

	byFund := map[string]domain.Signal{}
	for _, s := range signals {
		byFund[s.FundCode] = s
	}

	a := byFund["110011"]
	assert.Equal(t, domain.SignalBuy, a.Type)
	assert.Equal(t, 0.40, a.Confidence)
	// Only the top three reasons make it into the text.
	assert.Contains(t, a.Reason, "风格稳定")
	assert.NotContains(t, a.Reason, "任职久")

	assert.Equal(t, 0.25, byFund["005827"].Confidence)
	assert.Equal(t, domain.SignalSell, byFund["260108"].Type)
	assert.Equal(t, 0.30, byFund["260108"].Confidence)
}
