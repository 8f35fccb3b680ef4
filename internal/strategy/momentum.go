package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/athang/pixiu/internal/domain"
)

// Momentum ranks the universe by risk-adjusted momentum and buys the
// leaders, sells the laggards. The most recent five days are excluded
// from the measurement window to sidestep short-term reversal noise.
type Momentum struct {
	lookback int
	topN     int
}

func NewMomentum() *Momentum {
	return &Momentum{lookback: 60, topN: 3}
}

func (s *Momentum) Name() string    { return "momentum" }
func (s *Momentum) Weight() float64 { return 0.20 }

type momentumScore struct {
	fundCode       string
	rawMomentum    float64
	sharpeMomentum float64
	pathQuality    float64
	trendAccel     bool
	composite      float64
}

func (s *Momentum) Analyze(ctx context.Context, funds []*domain.FundData, market *domain.MarketData) ([]domain.Signal, error) {
	// 深熊市动量失效, 直接停用。
	if market.GlobalRegime == domain.RegimeBearStrong {
		return nil, nil
	}

	ranked := make([]momentumScore, 0, len(funds))
	for _, fund := range funds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(fund.NAVHistory) < s.lookback {
			continue
		}
		if score, ok := s.score(fund.NAVs()); ok {
			score.fundCode = fund.FundCode
			ranked = append(ranked, score)
		}
	}
	if len(ranked) < 2 {
		return nil, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].composite != ranked[j].composite {
			return ranked[i].composite > ranked[j].composite
		}
		return ranked[i].fundCode < ranked[j].fundCode
	})

	var signals []domain.Signal
	top := s.topN
	if top > len(ranked) {
		top = len(ranked)
	}
	for _, item := range ranked[:top] {
		if item.composite <= 5 {
			continue
		}
		reasons := []string{
			fmt.Sprintf("夏普动量 %.2f", item.sharpeMomentum),
			fmt.Sprintf("路径质量 %.0f%%", item.pathQuality*100),
		}
		if item.trendAccel {
			reasons = append(reasons, "动量加速")
		}
		signals = append(signals, domain.Signal{
			FundCode:     item.fundCode,
			Type:         domain.SignalBuy,
			Confidence:   round2(math.Min(0.7, item.composite/50)),
			Reason:       strings.Join(reasons, ", "),
			StrategyName: s.Name(),
			Metadata: map[string]interface{}{
				"composite_score": item.composite,
				"sharpe_momentum": item.sharpeMomentum,
			},
		})
	}

	bottom := len(ranked) - s.topN
	if bottom < 0 {
		bottom = 0
	}
	for _, item := range ranked[bottom:] {
		if item.composite >= -10 {
			continue
		}
		signals = append(signals, domain.Signal{
			FundCode:     item.fundCode,
			Type:         domain.SignalSell,
			Confidence:   round2(math.Min(0.7, math.Abs(item.composite)/50)),
			Reason:       fmt.Sprintf("动量排名靠后, 综合评分 %.1f", item.composite),
			StrategyName: s.Name(),
			Metadata: map[string]interface{}{
				"composite_score": item.composite,
				"sharpe_momentum": item.sharpeMomentum,
			},
		})
	}

	return signals, nil
}

func (s *Momentum) score(navs []float64) (momentumScore, bool) {
	n := len(navs)
	if n < s.lookback {
		return momentumScore{}, false
	}

	// 剔除最近5天反转噪音: 用 T-5 到 T-60 区间。
	t5 := navs[n-1]
	if n >= 6 {
		t5 = navs[n-6]
	}
	t60 := navs[n-s.lookback]
	if t60 <= 0 {
		return momentumScore{}, false
	}
	rawMomentum := (t5 - t60) / t60 * 100

	period := navs[n-s.lookback:]
	if n > 5 {
		period = navs[n-s.lookback : n-5]
	}
	returns := make([]float64, 0, len(period))
	for i := 1; i < len(period); i++ {
		if period[i-1] != 0 {
			returns = append(returns, (period[i]-period[i-1])/period[i-1])
		}
	}

	var sharpeMomentum float64
	mean, std := stat.MeanStdDev(returns, nil)
	if len(returns) < 10 || std == 0 || math.IsNaN(std) {
		sharpeMomentum = rawMomentum / 10
	} else {
		sharpeMomentum = mean / std * math.Sqrt(250)
	}

	pathQuality := 0.5
	if len(returns) > 0 {
		positives := 0
		negStreak, maxNegStreak := 0, 0
		for _, r := range returns {
			if r > 0 {
				positives++
			}
			if r < 0 {
				negStreak++
				if negStreak > maxNegStreak {
					maxNegStreak = negStreak
				}
			} else {
				negStreak = 0
			}
		}
		positiveRatio := float64(positives) / float64(len(returns))
		streakPenalty := math.Max(0, 1-float64(maxNegStreak)/10)
		pathQuality = positiveRatio*0.7 + streakPenalty*0.3
	}

	trendAccel := false
	if n >= 25 {
		t20 := navs[0]
		if n >= 21 {
			t20 = navs[n-21]
		}
		if t20 > 0 {
			shortMom := (t5 - t20) / t20 * 100
			trendAccel = shortMom > rawMomentum*0.5 && shortMom > 2
		}
	}

	composite := sharpeMomentum*10 + rawMomentum*0.3 + pathQuality*10
	if trendAccel {
		composite += 5
	}

	return momentumScore{
		rawMomentum:    math.Round(rawMomentum*100) / 100,
		sharpeMomentum: math.Round(sharpeMomentum*100) / 100,
		pathQuality:    math.Round(pathQuality*100) / 100,
		trendAccel:     trendAccel,
		composite:      math.Round(composite*100) / 100,
	}, true
}
