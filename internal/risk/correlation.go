package risk

import (
	"math"
	"sort"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

const (
	correlationLookback = 120
	minAlignedReturns   = 30
)

// Penalty measures how much a candidate fund duplicates the existing
// holdings and returns a position multiplier in [0.3, 1.0]. Funds
// whose daily returns track the book closely get cut hard; genuinely
// diversifying funds pass at full size. Insufficient overlapping
// history defaults to 1.0 rather than blocking the trade.
func Penalty(candidate []domain.FundNAV, holdings map[string][]domain.FundNAV) float64 {
	if len(holdings) == 0 {
		return 1.0
	}

	candReturns := returnsByDate(candidate)
	var correlations []float64
	for _, history := range holdings {
		corr, ok := alignedCorrelation(candReturns, returnsByDate(history))
		if ok {
			correlations = append(correlations, corr)
		}
	}
	if len(correlations) == 0 {
		return 1.0
	}

	sum := 0.0
	for _, c := range correlations {
		sum += c
	}
	avg := sum / float64(len(correlations))

	switch {
	case avg > 0.8:
		return 0.3
	case avg > 0.5:
		return math.Round((1.0-avg*0.7)*100) / 100
	default:
		return 1.0
	}
}

// PairCorrelation computes the return correlation of two funds over
// the lookback window. ok is false with under 30 aligned days.
func PairCorrelation(a, b []domain.FundNAV) (float64, bool) {
	return alignedCorrelation(returnsByDate(a), returnsByDate(b))
}

// PortfolioCorrelation summarizes how correlated the holdings are
// with each other: the average pairwise correlation, pairs above 0.8
// and a 0-100 diversification score.
type PortfolioCorrelation struct {
	AvgCorrelation       float64
	HighCorrPairs        [][2]string
	DiversificationScore float64
	Suggestions          []string
}

// AnalyzePortfolio audits the correlation structure of the holdings.
func AnalyzePortfolio(holdings map[string][]domain.FundNAV) PortfolioCorrelation {
	if len(holdings) < 2 {
		return PortfolioCorrelation{
			DiversificationScore: 100,
			Suggestions:          []string{"持仓不足 2 只，无需相关性分析"},
		}
	}

	codes := make([]string, 0, len(holdings))
	for code := range holdings {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	returns := make(map[string]map[string]float64, len(codes))
	for _, code := range codes {
		returns[code] = returnsByDate(holdings[code])
	}

	var correlations []float64
	var highPairs [][2]string
	for i := 0; i < len(codes); i++ {
		for j := i + 1; j < len(codes); j++ {
			corr, ok := alignedCorrelation(returns[codes[i]], returns[codes[j]])
			if !ok {
				continue
			}
			correlations = append(correlations, corr)
			if corr > 0.8 {
				highPairs = append(highPairs, [2]string{codes[i], codes[j]})
			}
		}
	}

	if len(correlations) == 0 {
		return PortfolioCorrelation{
			DiversificationScore: 50,
			Suggestions:          []string{"数据不足，无法计算相关性"},
		}
	}

	sum := 0.0
	for _, c := range correlations {
		sum += c
	}
	avg := sum / float64(len(correlations))

	result := PortfolioCorrelation{
		AvgCorrelation:       round3(avg),
		HighCorrPairs:        highPairs,
		DiversificationScore: math.Max(0, math.Min(100, math.Round((1-avg)*1000)/10)),
	}
	if avg > 0.7 {
		result.Suggestions = append(result.Suggestions,
			"持仓高度相关，实际等于集中持仓一个方向，建议增加不同风格的基金")
	}
	for _, pair := range highPairs {
		result.Suggestions = append(result.Suggestions,
			pair[0]+" 和 "+pair[1]+" 高度相关，建议保留其一")
	}
	if avg < 0.3 {
		result.Suggestions = append(result.Suggestions, "持仓分散度优秀")
	}
	return result
}

// returnsByDate maps date to daily return over the last lookback
// observations.
func returnsByDate(history []domain.FundNAV) map[string]float64 {
	if len(history) > correlationLookback {
		history = history[len(history)-correlationLookback:]
	}
	out := make(map[string]float64, len(history))
	for i := 1; i < len(history); i++ {
		prev := history[i-1].NAV
		if prev != 0 {
			out[history[i].Date] = (history[i].NAV - prev) / prev
		}
	}
	return out
}

func alignedCorrelation(a, b map[string]float64) (float64, bool) {
	dates := make([]string, 0, len(a))
	for d := range a {
		if _, ok := b[d]; ok {
			dates = append(dates, d)
		}
	}
	if len(dates) < minAlignedReturns {
		return 0, false
	}
	sort.Strings(dates)

	xs := make([]float64, len(dates))
	ys := make([]float64, len(dates))
	for i, d := range dates {
		xs[i] = a[d]
		ys[i] = b[d]
	}
	corr := indicators.Correlation(xs, ys)
	if math.IsNaN(corr) {
		return 0, false
	}
	return corr, true
}
