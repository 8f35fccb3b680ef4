package market

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/config"
	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

const (
	// scoreMinNAVs is the shortest history a fund can be scored on.
	scoreMinNAVs = 60

	// defaultFeeScore stands in for the fee dimension: the funds table
	// carries no per-fund fee data, so every fund gets the midfield.
	defaultFeeScore = 7.0
)

// FundScore is the 100-point composite quality score of one fund:
// returns out of 40, risk control out of 30, stability out of 20 and
// fees out of 10.
type FundScore struct {
	FundCode  string          `json:"fund_code"`
	Name      string          `json:"name"`
	Category  domain.Category `json:"category"`
	Total     float64         `json:"total"`
	Return    float64         `json:"return_score"`
	Risk      float64         `json:"risk_score"`
	Stability float64         `json:"stability_score"`
	Fee       float64         `json:"fee_score"`
}

// FundScorer ranks funds against per-category return and risk
// baselines. A bond fund is graded against bond expectations, not
// against equity ones.
type FundScorer struct {
	funds   *FundRepo
	targets config.ScoringTargets
	log     zerolog.Logger
}

func NewFundScorer(funds *FundRepo, targets config.ScoringTargets, log zerolog.Logger) *FundScorer {
	return &FundScorer{
		funds:   funds,
		targets: targets,
		log:     log.With().Str("component", "fund_scorer").Logger(),
	}
}

// ScoreAll scores every fund with enough NAV history, best first.
func (s *FundScorer) ScoreAll(ctx context.Context) ([]FundScore, error) {
	codes, err := s.funds.CodesWithHistory(ctx, scoreMinNAVs)
	if err != nil {
		return nil, err
	}
	var out []FundScore
	for _, code := range codes {
		score, err := s.Score(ctx, code)
		if err != nil {
			s.log.Warn().Err(err).Str("fund", code).Msg("fund scoring skipped")
			continue
		}
		out = append(out, *score)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out, nil
}

// Score grades one fund. Errors on unknown funds or thin history.
func (s *FundScorer) Score(ctx context.Context, fundCode string) (*FundScore, error) {
	fund, err := s.funds.Get(ctx, fundCode)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, fmt.Errorf("score fund %s: not registered", fundCode)
	}
	navs, err := s.funds.NAVHistory(ctx, fundCode, 0)
	if err != nil {
		return nil, err
	}
	if len(navs) < scoreMinNAVs {
		return nil, fmt.Errorf("score fund %s: only %d NAV rows, need %d", fundCode, len(navs), scoreMinNAVs)
	}
	prices := make([]float64, len(navs))
	for i, n := range navs {
		prices[i] = n.NAV
	}

	cat := domain.ClassifyByName(fund.Name)
	target := s.targetFor(cat)

	score := FundScore{
		FundCode:  fundCode,
		Name:      fund.Name,
		Category:  cat,
		Return:    returnScore(prices, target.ReturnTarget),
		Risk:      riskScore(prices, target),
		Stability: stabilityScore(prices),
		Fee:       defaultFeeScore,
	}
	score.Total = math.Round((score.Return+score.Risk+score.Stability+score.Fee)*10) / 10
	return &score, nil
}

func (s *FundScorer) targetFor(cat domain.Category) config.ScoringTarget {
	if t, ok := s.targets[string(cat)]; ok {
		return t
	}
	return config.ScoringTarget{ReturnTarget: 0.20, VolCap: 0.40, DDCap: 0.30}
}

// returnScore (0-40) compares annualized returns over 1m/3m/6m/1y
// windows against the category target. Hitting the target exactly
// lands mid-scale at 20.
func returnScore(prices []float64, target float64) float64 {
	if target <= 0 {
		target = 0.20
	}
	periods := []struct {
		days      int
		weight    float64
		annualize float64
	}{
		{22, 0.15, 12},
		{66, 0.25, 4},
		{132, 0.30, 2},
		{250, 0.30, 1},
	}

	last := len(prices) - 1
	total, weightSum := 0.0, 0.0
	for _, p := range periods {
		if last < p.days || prices[last-p.days] <= 0 {
			continue
		}
		annualized := (prices[last]/prices[last-p.days] - 1) * p.annualize
		total += clamp((annualized+target)/(2*target)*40, 0, 40) * p.weight
		weightSum += p.weight
	}
	if weightSum == 0 {
		return 0
	}
	return math.Round(total/weightSum*10) / 10
}

// riskScore (0-30) starts from a full score and charges for drawdown
// and volatility beyond the category caps, with a small Sharpe
// adjustment either way.
func riskScore(prices []float64, target config.ScoringTarget) float64 {
	ddCap := target.DDCap
	if ddCap <= 0 {
		ddCap = 0.30
	}
	volCap := target.VolCap
	if volCap <= 0 {
		volCap = 0.40
	}

	score := 30.0

	dd, _, _ := indicators.MaxDrawdown(prices)
	score -= math.Min(30, math.Abs(dd)/ddCap*15)

	if vol, ok := latestValid(indicators.Volatility(prices, 20)); ok {
		score -= clamp((vol-volCap*0.25)/(volCap*0.75)*10, 0, 10)
	}

	sharpe := indicators.SharpeRatio(indicators.DailyReturns(prices), 0.02)
	score += clamp((sharpe-0.5)/1.5*5, -5, 5)

	return math.Round(clamp(score, 0, 30)*10) / 10
}

// stabilityScore (0-20) rewards a high share of positive 22-day
// windows. A 30% win rate scores zero, 70% or better scores full.
func stabilityScore(prices []float64) float64 {
	const window = 22
	wins, total := 0, 0
	for end := len(prices); end >= window; end -= window {
		start := end - window
		if prices[start] <= 0 {
			continue
		}
		total++
		if prices[end-1] > prices[start] {
			wins++
		}
	}
	if total == 0 {
		return 0
	}
	winRate := float64(wins) / float64(total)
	return math.Round(clamp((winRate-0.30)/0.40*20, 0, 20)*10) / 10
}

func latestValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
