package risk

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/domain"
)

// navSeries builds a NAV history with shared dates so alignment
// succeeds. gen maps day index to NAV.
func navSeries(n int, gen func(i int) float64) []domain.FundNAV {
	out := make([]domain.FundNAV, n)
	for i := range out {
		out[i] = domain.FundNAV{
			Date: fmt.Sprintf("2025-%02d-%02d", i/28+1, i%28+1),
			NAV:  gen(i),
		}
	}
	return out
}

func TestPenaltyHighCorrelation(t *testing.T) {
	// Candidate and holding track the same sine wave: correlation
	// near 1, position cut to 30%.
	wave := func(i int) float64 { return 1.0 + 0.1*math.Sin(float64(i)*0.3) }
	shifted := func(i int) float64 { return 2.0 + 0.2*math.Sin(float64(i)*0.3) }

	penalty := Penalty(navSeries(120, wave), map[string][]domain.FundNAV{
		"005827": navSeries(120, shifted),
	})
	assert.Equal(t, 0.3, penalty)
}

func TestPenaltyUncorrelated(t *testing.T) {
	wave := func(i int) float64 { return 1.0 + 0.1*math.Sin(float64(i)*0.3) }
	other := func(i int) float64 { return 1.0 + 0.1*math.Cos(float64(i)*1.7) }

	penalty := Penalty(navSeries(120, wave), map[string][]domain.FundNAV{
		"217022": navSeries(120, other),
	})
	assert.Equal(t, 1.0, penalty)
}

func TestPenaltyModerateCorrelation(t *testing.T) {
	// Mix a shared factor with idiosyncratic noise for a mid-band
	// correlation, expecting the linear 1 - 0.7·corr scaling.
	shared := func(i int) float64 { return 0.05 * math.Sin(float64(i)*0.3) }
	a := func(i int) float64 { return 1.0 + shared(i) + 0.03*math.Sin(float64(i)*1.1) }
	b := func(i int) float64 { return 1.0 + shared(i) + 0.03*math.Cos(float64(i)*2.3) }

	corr, ok := PairCorrelation(navSeries(120, a), navSeries(120, b))
	require.True(t, ok)

	penalty := Penalty(navSeries(120, a), map[string][]domain.FundNAV{
		"161005": navSeries(120, b),
	})
	switch {
	case corr > 0.8:
		assert.Equal(t, 0.3, penalty)
	case corr > 0.5:
		assert.InDelta(t, 1.0-corr*0.7, penalty, 0.01)
	default:
		assert.Equal(t, 1.0, penalty)
	}
}

func TestPenaltyDefaultsWithoutData(t *testing.T) {
	wave := func(i int) float64 { return 1.0 + 0.01*float64(i) }

	// No holdings at all.
	assert.Equal(t, 1.0, Penalty(navSeries(120, wave), nil))

	// Holding too short to align 30 return days.
	assert.Equal(t, 1.0, Penalty(navSeries(120, wave), map[string][]domain.FundNAV{
		"005827": navSeries(10, wave),
	}))
}

func TestPairCorrelationNeedsOverlap(t *testing.T) {
	wave := func(i int) float64 { return 1.0 + 0.01*float64(i) }
	_, ok := PairCorrelation(navSeries(20, wave), navSeries(20, wave))
	assert.False(t, ok)
}

func TestAnalyzePortfolio(t *testing.T) {
	wave := func(i int) float64 { return 1.0 + 0.1*math.Sin(float64(i)*0.3) }
	clone := func(i int) float64 { return 2.0 + 0.2*math.Sin(float64(i)*0.3) }
	diversifier := func(i int) float64 { return 1.0 + 0.1*math.Cos(float64(i)*1.7) }

	twin := AnalyzePortfolio(map[string][]domain.FundNAV{
		"110011": navSeries(120, wave),
		"005827": navSeries(120, clone),
	})
	assert.Greater(t, twin.AvgCorrelation, 0.8)
	assert.Len(t, twin.HighCorrPairs, 1)
	assert.Less(t, twin.DiversificationScore, 20.0)
	assert.NotEmpty(t, twin.Suggestions)

	mixed := AnalyzePortfolio(map[string][]domain.FundNAV{
		"110011": navSeries(120, wave),
		"217022": navSeries(120, diversifier),
	})
	assert.Less(t, mixed.AvgCorrelation, 0.3)
	assert.Empty(t, mixed.HighCorrPairs)
	assert.Contains(t, mixed.Suggestions, "持仓分散度优秀")
}

func TestAnalyzePortfolioSingleHolding(t *testing.T) {
	wave := func(i int) float64 { return 1.0 }
	r := AnalyzePortfolio(map[string][]domain.FundNAV{"110011": navSeries(120, wave)})
	assert.Equal(t, 100.0, r.DiversificationScore)
	assert.Contains(t, r.Suggestions, "持仓不足 2 只，无需相关性分析")
}
