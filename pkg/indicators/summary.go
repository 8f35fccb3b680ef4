package indicators

import "math"

// Signal labels shared with the strategy layer.
const (
	RSIOverbought = "超买"
	RSIOversold   = "超卖"
	RSINeutral    = "中性"

	MACDGoldenCross = "金叉"
	MACDDeathCross  = "死叉"
	MACDBullish     = "多头"
	MACDBearish     = "空头"

	MABullish = "多头排列"
	MABearish = "空头排列"
	MACrossed = "交叉"

	BBBreakUpper = "突破上轨"
	BBBreakLower = "突破下轨"
	BBInChannel  = "通道内"
)

// TechnicalSummary is the current snapshot of all indicators for one
// price series. Nil pointers mean the indicator had insufficient data.
type TechnicalSummary struct {
	CurrentPrice  float64            `json:"current_price"`
	RSI           *float64           `json:"rsi,omitempty"`
	RSISignal     string             `json:"rsi_signal,omitempty"`
	MACDDif       *float64           `json:"macd_dif,omitempty"`
	MACDDea       *float64           `json:"macd_dea,omitempty"`
	MACDHistogram *float64           `json:"macd_histogram,omitempty"`
	MACDSignal    string             `json:"macd_signal,omitempty"`
	MA            map[string]float64 `json:"ma,omitempty"`
	MAAlignment   string             `json:"ma_alignment,omitempty"`
	BBUpper       *float64           `json:"bb_upper,omitempty"`
	BBMiddle      *float64           `json:"bb_middle,omitempty"`
	BBLower       *float64           `json:"bb_lower,omitempty"`
	BBPosition    *float64           `json:"bb_position,omitempty"`
	BBSignal      string             `json:"bb_signal,omitempty"`
	Volatility    *float64           `json:"volatility,omitempty"`
}

// Summarize computes the full indicator snapshot for a price series.
// Returns nil with fewer than 30 observations.
func Summarize(prices []float64) *TechnicalSummary {
	if len(prices) < 30 {
		return nil
	}
	n := len(prices)
	current := prices[n-1]
	s := &TechnicalSummary{CurrentPrice: current}

	if rsi := LastRSI(prices, 14); rsi != nil {
		r := round1(*rsi)
		s.RSI = &r
		switch {
		case *rsi > 70:
			s.RSISignal = RSIOverbought
		case *rsi < 30:
			s.RSISignal = RSIOversold
		default:
			s.RSISignal = RSINeutral
		}
	}

	macd := MACD(prices, 12, 26, 9)
	dif := macd.DIF[n-1]
	dea := macd.DEA[n-1]
	hist := macd.Histogram[n-1]
	s.MACDDif = ptr(round4(dif))
	s.MACDDea = ptr(round4(dea))
	s.MACDHistogram = ptr(round4(hist))
	prevDif, prevDea := dif, dea
	if n > 1 {
		prevDif = macd.DIF[n-2]
		prevDea = macd.DEA[n-2]
	}
	if dif > dea {
		if prevDif <= prevDea {
			s.MACDSignal = MACDGoldenCross
		} else {
			s.MACDSignal = MACDBullish
		}
	} else {
		if prevDif >= prevDea {
			s.MACDSignal = MACDDeathCross
		} else {
			s.MACDSignal = MACDBearish
		}
	}

	s.MA = map[string]float64{}
	maLabels := map[int]string{5: "MA5", 10: "MA10", 20: "MA20", 60: "MA60"}
	for _, w := range []int{5, 10, 20, 60} {
		ma := MA(prices, w)
		if len(ma) > 0 && !math.IsNaN(ma[n-1]) {
			s.MA[maLabels[w]] = round4(ma[n-1])
		}
	}
	ma5, ok5 := s.MA["MA5"]
	ma10, ok10 := s.MA["MA10"]
	ma20, ok20 := s.MA["MA20"]
	ma60, ok60 := s.MA["MA60"]
	if ok5 && ok10 && ok20 && ok60 {
		switch {
		case ma5 > ma10 && ma10 > ma20 && ma20 > ma60:
			s.MAAlignment = MABullish
		case ma5 < ma10 && ma10 < ma20 && ma20 < ma60:
			s.MAAlignment = MABearish
		default:
			s.MAAlignment = MACrossed
		}
	}

	bb := BollingerBands(prices, 20, 2.0)
	upper, lower, middle := bb.Upper[n-1], bb.Lower[n-1], bb.Middle[n-1]
	if !math.IsNaN(upper) && !math.IsNaN(lower) {
		s.BBUpper = ptr(round4(upper))
		s.BBMiddle = ptr(round4(middle))
		s.BBLower = ptr(round4(lower))
		switch {
		case current > upper:
			s.BBSignal = BBBreakUpper
		case current < lower:
			s.BBSignal = BBBreakLower
		default:
			pos := 0.5
			if upper != lower {
				pos = (current - lower) / (upper - lower)
			}
			s.BBPosition = ptr(round2(pos))
			s.BBSignal = BBInChannel
		}
	}

	vol := Volatility(prices, 20)
	if v := vol[n-1]; !math.IsNaN(v) {
		s.Volatility = ptr(round4(v))
	}
	return s
}

func ptr(f float64) *float64 { return &f }

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
