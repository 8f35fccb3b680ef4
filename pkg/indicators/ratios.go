package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SharpeRatio returns the annualized Sharpe ratio of daily returns
// against an annual risk-free rate (default callers pass 0.02).
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	rets := dropNaN(returns)
	if len(rets) == 0 {
		return 0
	}
	sd := stat.StdDev(rets, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	daily := riskFreeRate / 250
	excess := make([]float64, len(rets))
	for i, r := range rets {
		excess[i] = r - daily
	}
	return stat.Mean(excess, nil) / sd * math.Sqrt(250)
}

// SortinoRatio returns the annualized Sortino ratio, penalizing only
// downside volatility. With no losing days it returns +Inf when the
// excess mean is positive, 0 otherwise.
func SortinoRatio(returns []float64, riskFreeRate float64) float64 {
	rets := dropNaN(returns)
	if len(rets) == 0 {
		return 0
	}
	daily := riskFreeRate / 250
	excess := make([]float64, len(rets))
	var downside []float64
	for i, r := range rets {
		excess[i] = r - daily
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 || stat.StdDev(downside, nil) == 0 {
		if stat.Mean(excess, nil) > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return stat.Mean(excess, nil) / stat.StdDev(downside, nil) * math.Sqrt(250)
}

// MaxDrawdown returns the deepest peak-to-trough decline of a price
// series as a negative fraction, with the peak and trough indices.
func MaxDrawdown(prices []float64) (maxDD float64, peakIdx, troughIdx int) {
	if len(prices) == 0 {
		return 0, 0, 0
	}
	peak := prices[0]
	peakAt := 0
	for i, p := range prices {
		if p > peak {
			peak = p
			peakAt = i
		}
		if peak <= 0 {
			continue
		}
		dd := (p - peak) / peak
		if dd < maxDD {
			maxDD = dd
			peakIdx = peakAt
			troughIdx = i
		}
	}
	return maxDD, peakIdx, troughIdx
}

// Correlation returns the Pearson correlation of two equal-length
// return series, or 0 when undefined.
func Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}
