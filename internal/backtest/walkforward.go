package backtest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

// WindowOutcome is one out-of-sample test window.
type WindowOutcome struct {
	FundCode     string  `json:"fund_code"`
	Window       int     `json:"window"`
	TestPeriod   string  `json:"test_period"`
	Predicted    string  `json:"predicted"`
	ActualReturn float64 `json:"actual_return"`
	Correct      bool    `json:"is_correct"`
}

// WalkForwardResult summarizes all out-of-sample windows. Returns are
// percentages; RobustnessScore is 0-100.
type WalkForwardResult struct {
	StrategyName    string          `json:"strategy_name"`
	Windows         int             `json:"n_windows"`
	AvgReturn       float64         `json:"avg_return"`
	WorstReturn     float64         `json:"worst_return"`
	BestReturn      float64         `json:"best_return"`
	WinRate         float64         `json:"win_rate"`
	ActiveWindows   int             `json:"active_windows"`
	WindowOutcomes  []WindowOutcome `json:"window_results,omitempty"`
	RobustnessScore float64         `json:"robustness_score"`
}

// WalkForward slices each fund's history into nWindows segments and
// checks whether the signal visible at each window's start predicted
// the window's realized return. Unlike a plain replay this never
// evaluates on data the signal already saw.
func WalkForward(fundData []*domain.FundData, nWindows int, trainRatio float64) WalkForwardResult {
	if nWindows <= 1 {
		nWindows = 6
	}
	if trainRatio <= 0 || trainRatio >= 1 {
		trainRatio = 0.7
	}

	var outcomes []WindowOutcome
	for _, f := range fundData {
		if len(f.NAVHistory) < 200 {
			continue
		}
		navs := f.NAVs()
		windowSize := len(navs) / nWindows
		if windowSize < 60 {
			continue
		}

		for w := 0; w < nWindows-1; w++ {
			testStart := (w + 1) * windowSize
			testEnd := testStart + windowSize
			if testEnd > len(navs) {
				testEnd = len(navs)
			}
			if testEnd-testStart < 20 {
				continue
			}
			testNavs := navs[testStart:testEnd]
			if len(testNavs) < 30 {
				continue
			}

			tech := indicators.Summarize(navs[:testStart+30])
			if tech == nil {
				continue
			}

			periodReturn := (testNavs[len(testNavs)-1] - testNavs[0]) / testNavs[0] * 100
			predicted := predictDirection(tech)
			correct := predicted == "hold" ||
				(predicted == "buy" && periodReturn > 0) ||
				(predicted == "sell" && periodReturn < 0)

			outcomes = append(outcomes, WindowOutcome{
				FundCode: f.FundCode,
				Window:   w,
				TestPeriod: fmt.Sprintf("%s ~ %s",
					f.NAVHistory[testStart].Date, f.NAVHistory[testEnd-1].Date),
				Predicted:    predicted,
				ActualReturn: round2(periodReturn),
				Correct:      correct,
			})
		}
	}

	result := WalkForwardResult{StrategyName: "trend_following", Windows: nWindows}
	if len(outcomes) == 0 {
		return result
	}
	result.WindowOutcomes = outcomes

	var returns []float64
	active, correct := 0, 0
	for _, o := range outcomes {
		if o.Predicted == "hold" {
			continue
		}
		active++
		returns = append(returns, o.ActualReturn)
		if o.Correct {
			correct++
		}
	}
	result.ActiveWindows = active

	if len(returns) > 0 {
		sum, worst, best := 0.0, returns[0], returns[0]
		for _, r := range returns {
			sum += r
			worst = math.Min(worst, r)
			best = math.Max(best, r)
		}
		result.AvgReturn = round2(sum / float64(len(returns)))
		result.WorstReturn = round2(worst)
		result.BestReturn = round2(best)
	}
	if active > 0 {
		result.WinRate = math.Round(float64(correct)/float64(active)*1000) / 10
	}
	result.RobustnessScore = walkForwardRobustness(result.WinRate, result.WorstReturn, returns)
	return result
}

// predictDirection reads the direction visible at a window start:
// bullish stack below overbought buys, bearish stack above oversold
// sells, anything else holds.
func predictDirection(tech *indicators.TechnicalSummary) string {
	rsi := 50.0
	if tech.RSI != nil {
		rsi = *tech.RSI
	}
	switch {
	case tech.MAAlignment == indicators.MABullish && rsi < 70:
		return "buy"
	case tech.MAAlignment == indicators.MABearish && rsi > 30:
		return "sell"
	default:
		return "hold"
	}
}

// walkForwardRobustness scores win rate, tail window and consistency.
func walkForwardRobustness(winRate, worstReturn float64, returns []float64) float64 {
	score := 0.0
	switch {
	case winRate > 60:
		score += 30
	case winRate > 50:
		score += 15
	}
	switch {
	case worstReturn > -10:
		score += 30
	case worstReturn > -15:
		score += 15
	}
	if len(returns) > 3 {
		switch sd := stat.StdDev(returns, nil); {
		case sd < 5:
			score += 40
		case sd < 10:
			score += 20
		}
	}
	return score
}
