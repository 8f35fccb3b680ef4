package backtest

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// MonteCarloResult describes how much a trade record depends on the
// order luck dealt it. All returns and drawdowns are percentages.
type MonteCarloResult struct {
	Simulations       int       `json:"n_simulations"`
	TradeCount        int       `json:"n_trades"`
	MedianReturn      float64   `json:"median_return"`
	MeanReturn        float64   `json:"mean_return"`
	Percentile5       float64   `json:"percentile_5"`
	Percentile95      float64   `json:"percentile_95"`
	WorstReturn       float64   `json:"worst_return"`
	BestReturn        float64   `json:"best_return"`
	MedianMaxDrawdown float64   `json:"median_max_drawdown"`
	WorstMaxDrawdown  float64   `json:"worst_max_drawdown"`
	ProfitProbability float64   `json:"probability_of_profit"`
	RobustnessScore   float64   `json:"robustness_score"`
	Distribution      []float64 `json:"distribution,omitempty"`
}

// SellPnLs extracts the realized per-trade returns a Monte-Carlo run
// needs from a replay result.
func SellPnLs(r Result) []float64 {
	var out []float64
	for _, t := range r.Trades {
		if t.Action == "sell" {
			out = append(out, t.PnL)
		}
	}
	return out
}

// MonteCarlo reshuffles the trade order n times and simulates an
// equity curve per shuffle, deploying 80% of capital each trade. A
// strategy whose 5th percentile still profits is robust; one that
// only profits in the observed order got lucky. Fewer than three
// trades returns a zero result. rng may be nil for a time-based seed.
func MonteCarlo(tradePnLs []float64, simulations int, initialCapital float64, rng *rand.Rand) MonteCarloResult {
	if len(tradePnLs) < 3 {
		return MonteCarloResult{TradeCount: len(tradePnLs)}
	}
	if simulations <= 0 {
		simulations = 1000
	}
	if initialCapital <= 0 {
		initialCapital = 10000
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	returns := make([]float64, 0, simulations)
	drawdowns := make([]float64, 0, simulations)
	shuffled := make([]float64, len(tradePnLs))
	copy(shuffled, tradePnLs)

	for i := 0; i < simulations; i++ {
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		ret, dd := simulateCurve(shuffled, initialCapital)
		returns = append(returns, ret)
		drawdowns = append(drawdowns, dd)
	}

	sortedReturns := append([]float64(nil), returns...)
	sort.Float64s(sortedReturns)
	sortedDDs := append([]float64(nil), drawdowns...)
	sort.Float64s(sortedDDs)

	profitable := 0
	for _, r := range returns {
		if r > 0 {
			profitable++
		}
	}
	probProfit := float64(profitable) / float64(len(returns)) * 100

	p5 := stat.Quantile(0.05, stat.Empirical, sortedReturns, nil)
	p95 := stat.Quantile(0.95, stat.Empirical, sortedReturns, nil)
	medianReturn := stat.Quantile(0.5, stat.Empirical, sortedReturns, nil)
	medianDD := stat.Quantile(0.5, stat.Empirical, sortedDDs, nil)

	return MonteCarloResult{
		Simulations:       simulations,
		TradeCount:        len(tradePnLs),
		MedianReturn:      round2(medianReturn),
		MeanReturn:        round2(stat.Mean(returns, nil)),
		Percentile5:       round2(p5),
		Percentile95:      round2(p95),
		WorstReturn:       round2(sortedReturns[0]),
		BestReturn:        round2(sortedReturns[len(sortedReturns)-1]),
		MedianMaxDrawdown: round2(medianDD),
		WorstMaxDrawdown:  round2(sortedDDs[0]),
		ProfitProbability: math.Round(probProfit*10) / 10,
		RobustnessScore:   monteCarloRobustness(probProfit, p5, medianDD, stat.StdDev(returns, nil)),
		Distribution:      sortedReturns,
	}
}

func simulateCurve(tradePnLs []float64, initialCapital float64) (totalReturn, maxDrawdown float64) {
	capital := initialCapital
	peak := capital
	maxDD := 0.0

	for _, pnl := range tradePnLs {
		position := capital * positionFraction
		capital += position * (pnl / 100)

		peak = math.Max(peak, capital)
		maxDD = math.Min(maxDD, (capital-peak)/peak)
		if capital <= 0 {
			break
		}
	}
	return (capital - initialCapital) / initialCapital * 100, maxDD * 100
}

func monteCarloRobustness(probProfit, p5, medianDD, sd float64) float64 {
	score := 0.0
	switch {
	case probProfit > 80:
		score += 30
	case probProfit > 60:
		score += 15
	}
	switch {
	case p5 > 0:
		score += 30
	case p5 > -5:
		score += 15
	}
	switch {
	case math.Abs(medianDD) < 10:
		score += 20
	case math.Abs(medianDD) < 15:
		score += 10
	}
	switch {
	case sd < 5:
		score += 20
	case sd < 10:
		score += 10
	}
	return math.Min(100, score)
}
