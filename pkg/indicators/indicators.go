// Package indicators computes the technical indicators used by the
// strategy layer: moving averages, RSI, MACD, Bollinger bands and
// volatility, plus risk-adjusted ratios.
//
// Series functions return slices aligned with the input where the
// warm-up region is NaN, so callers can index any position and test
// validity with math.IsNaN.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// MA returns the simple moving average series for one window.
func MA(prices []float64, window int) []float64 {
	if window <= 0 || len(prices) == 0 {
		return nil
	}
	out := talib.Sma(prices, window)
	for i := 0; i < window-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	if len(prices) < window {
		for i := range out {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA returns the exponential moving average series with alpha
// 2/(span+1), seeded at the first observation.
func EMA(prices []float64, span int) []float64 {
	if span <= 0 || len(prices) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = alpha*prices[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI returns the Wilder relative strength index series.
func RSI(prices []float64, period int) []float64 {
	if len(prices) < period+1 {
		out := make([]float64, len(prices))
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	out := talib.Rsi(prices, period)
	for i := 0; i < period && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// LastRSI returns the current RSI value, or nil with fewer than
// period+1 observations.
func LastRSI(prices []float64, period int) *float64 {
	rsi := RSI(prices, period)
	if len(rsi) == 0 {
		return nil
	}
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) {
		return nil
	}
	return &last
}

// MACDResult holds the three MACD series. Histogram uses the
// mainland convention 2*(DIF-DEA).
type MACDResult struct {
	DIF       []float64
	DEA       []float64
	Histogram []float64
}

// MACD returns DIF, DEA and histogram series for fast/slow/signal spans.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)
	dif := make([]float64, len(prices))
	for i := range prices {
		dif[i] = emaFast[i] - emaSlow[i]
	}
	dea := EMA(dif, signal)
	hist := make([]float64, len(prices))
	for i := range prices {
		hist[i] = 2 * (dif[i] - dea[i])
	}
	return MACDResult{DIF: dif, DEA: dea, Histogram: hist}
}

// Bollinger holds the band series for one window and deviation.
type Bollinger struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
	Width  []float64
}

// BollingerBands returns middle/upper/lower/width series using a
// rolling sample standard deviation.
func BollingerBands(prices []float64, period int, stdDev float64) Bollinger {
	n := len(prices)
	b := Bollinger{
		Middle: MA(prices, period),
		Upper:  make([]float64, n),
		Lower:  make([]float64, n),
		Width:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		if i < period-1 || math.IsNaN(b.Middle[i]) {
			b.Upper[i] = math.NaN()
			b.Lower[i] = math.NaN()
			b.Width[i] = math.NaN()
			continue
		}
		sd := sampleStd(prices[i-period+1 : i+1])
		b.Upper[i] = b.Middle[i] + stdDev*sd
		b.Lower[i] = b.Middle[i] - stdDev*sd
		if b.Middle[i] != 0 {
			b.Width[i] = (b.Upper[i] - b.Lower[i]) / b.Middle[i]
		} else {
			b.Width[i] = math.NaN()
		}
	}
	return b
}

// Volatility returns the rolling annualized volatility series of log
// returns (window default 20, annualized by sqrt(250)).
func Volatility(prices []float64, window int) []float64 {
	n := len(prices)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < 2 {
		return out
	}
	logRets := make([]float64, n)
	logRets[0] = math.NaN()
	for i := 1; i < n; i++ {
		if prices[i-1] > 0 && prices[i] > 0 {
			logRets[i] = math.Log(prices[i] / prices[i-1])
		} else {
			logRets[i] = math.NaN()
		}
	}
	for i := window; i < n; i++ {
		win := logRets[i-window+1 : i+1]
		valid := true
		for _, v := range win {
			if math.IsNaN(v) {
				valid = false
				break
			}
		}
		if valid {
			out[i] = sampleStd(win) * math.Sqrt(250)
		}
	}
	return out
}

// DailyReturns returns simple percentage returns between consecutive
// observations.
func DailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

// sampleStd is the ddof=1 standard deviation.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
