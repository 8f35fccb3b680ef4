// Package backtest replays strategy signals over historical NAV data
// and stress-tests the results with walk-forward validation and
// Monte-Carlo shuffling.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

const (
	// minHistory is the shortest NAV series worth replaying.
	minHistory = 120
	// warmup bars before the first signal evaluation.
	warmup = 60
	// positionFraction of free capital deployed per entry.
	positionFraction = 0.8
	// shortHoldFee is the redemption penalty for exits within
	// shortHoldDays (open-end fund punitive fee).
	shortHoldFee  = 0.015
	shortHoldDays = 5
)

// Evaluator scores one indicator snapshot. Satisfied by
// *strategy.TrendFollowing.
type Evaluator interface {
	Name() string
	Evaluate(tech *indicators.TechnicalSummary, regime domain.Regime) (domain.SignalType, float64, []string)
}

// Trade is one simulated fill.
type Trade struct {
	Fund   string  `json:"fund"`
	Action string  `json:"action"`
	Date   string  `json:"date"`
	NAV    float64 `json:"nav"`
	PnL    float64 `json:"pnl,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Result aggregates a full replay across funds. Returns and drawdown
// are percentages.
type Result struct {
	StrategyName     string  `json:"strategy_name"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	WinRate          float64 `json:"win_rate"`
	TotalTrades      int     `json:"total_trades"`
	ProfitTrades     int     `json:"profit_trades"`
	Trades           []Trade `json:"trades,omitempty"`
}

// Engine replays an evaluator fund by fund with dynamic stops and
// averages the outcomes.
type Engine struct {
	evaluator      Evaluator
	initialCapital float64
	log            zerolog.Logger
}

func NewEngine(evaluator Evaluator, initialCapital float64, log zerolog.Logger) *Engine {
	if initialCapital <= 0 {
		initialCapital = 10000
	}
	return &Engine{
		evaluator:      evaluator,
		initialCapital: initialCapital,
		log:            log.With().Str("component", "backtest").Logger(),
	}
}

// Run replays every fund with at least 120 NAV observations. Each
// fund trades an independent book; the result averages per-fund
// returns and keeps the worst drawdown.
func (e *Engine) Run(ctx context.Context, fundData []*domain.FundData) Result {
	var (
		allTrades   []Trade
		fundReturns []float64
		worstDD     float64
		minDate     string
		maxDate     string
	)

	for _, f := range fundData {
		if ctx.Err() != nil {
			break
		}
		if len(f.NAVHistory) < minHistory {
			continue
		}
		trades, ret, maxDD := e.replayFund(f)
		allTrades = append(allTrades, trades...)
		fundReturns = append(fundReturns, ret)
		if maxDD < worstDD {
			worstDD = maxDD
		}
		first, last := f.NAVHistory[0].Date, f.NAVHistory[len(f.NAVHistory)-1].Date
		if minDate == "" || first < minDate {
			minDate = first
		}
		if last > maxDate {
			maxDate = last
		}
	}

	avgReturn := 0.0
	for _, r := range fundReturns {
		avgReturn += r
	}
	if len(fundReturns) > 0 {
		avgReturn /= float64(len(fundReturns))
	}

	annualized := avgReturn
	if minDate != "" && maxDate != "" && avgReturn > -1 {
		start, err1 := time.Parse("2006-01-02", minDate)
		end, err2 := time.Parse("2006-01-02", maxDate)
		if err1 == nil && err2 == nil {
			if days := end.Sub(start).Hours() / 24; days > 0 {
				annualized = math.Pow(1+avgReturn, 365/days) - 1
			}
		}
	}

	sells, wins := 0, 0
	for _, t := range allTrades {
		if t.Action != "sell" {
			continue
		}
		sells++
		if t.PnL > 0 {
			wins++
		}
	}
	winRate := float64(wins) / math.Max(float64(sells), 1) * 100

	return Result{
		StrategyName:     e.evaluator.Name(),
		TotalReturn:      round2(avgReturn * 100),
		AnnualizedReturn: round2(annualized * 100),
		MaxDrawdown:      round2(worstDD * 100),
		// No portfolio-level equity curve across funds, so no
		// meaningful Sharpe here.
		SharpeRatio:  0,
		WinRate:      math.Round(winRate*10) / 10,
		TotalTrades:  len(allTrades),
		ProfitTrades: wins,
		Trades:       allTrades,
	}
}

func (e *Engine) replayFund(f *domain.FundData) ([]Trade, float64, float64) {
	navs := f.NAVs()

	var trades []Trade
	capital := e.initialCapital
	position := 0.0
	costBasis := 0.0
	navPeak := 0.0
	peak := e.initialCapital
	maxDD := 0.0
	buyIndex := 0

	for i := warmup; i < len(navs); i++ {
		tech := indicators.Summarize(navs[:i+1])
		if tech == nil {
			continue
		}
		sigType, _, _ := e.evaluator.Evaluate(tech, domain.RegimeRanging)
		current := navs[i]

		vol := 0.01
		if tech.Volatility != nil {
			vol = *tech.Volatility
		}
		stopLossPct := math.Max(0.03, math.Min(vol*15, 0.15))
		trailingStopPct := stopLossPct * 1.5

		if position > 0 {
			navPeak = math.Max(navPeak, current)
			lossFromCost := (current - costBasis) / costBasis
			lossFromPeak := (current - navPeak) / navPeak

			stopReason := ""
			switch {
			case lossFromCost <= -stopLossPct:
				stopReason = fmt.Sprintf("止损(%.1f%%)", lossFromCost*100)
			case navPeak > costBasis && lossFromPeak <= -trailingStopPct:
				stopReason = fmt.Sprintf("移动止盈(%.1f%%)", lossFromPeak*100)
			}

			if stopReason != "" {
				capital += exitProceeds(position, current, i-buyIndex)
				trades = append(trades, Trade{
					Fund: f.FundCode, Action: "sell", Date: f.NAVHistory[i].Date,
					NAV: current, PnL: (current - costBasis) / costBasis * 100,
					Reason: stopReason,
				})
				position, costBasis, navPeak = 0, 0, 0
				peak = math.Max(peak, capital)
				maxDD = math.Min(maxDD, (capital-peak)/peak)
				continue
			}
		}

		switch {
		case sigType.IsBuy() && position == 0 && capital > 0:
			cost := capital * positionFraction
			position = cost / current
			capital -= cost
			costBasis = current
			navPeak = current
			buyIndex = i
			trades = append(trades, Trade{
				Fund: f.FundCode, Action: "buy", Date: f.NAVHistory[i].Date, NAV: current,
			})

		case sigType.IsSell() && position > 0:
			capital += exitProceeds(position, current, i-buyIndex)
			trades = append(trades, Trade{
				Fund: f.FundCode, Action: "sell", Date: f.NAVHistory[i].Date,
				NAV: current, PnL: (current - costBasis) / costBasis * 100,
			})
			position, costBasis, navPeak = 0, 0, 0
		}

		totalValue := capital + position*current
		peak = math.Max(peak, totalValue)
		maxDD = math.Min(maxDD, (totalValue-peak)/peak)
	}

	if position > 0 {
		capital += position * navs[len(navs)-1]
	}
	ret := (capital - e.initialCapital) / e.initialCapital
	return trades, ret, maxDD
}

// exitProceeds applies the punitive short-hold redemption fee.
func exitProceeds(position, nav float64, holdingDays int) float64 {
	feeRate := 0.0
	if holdingDays < shortHoldDays {
		feeRate = shortHoldFee
	}
	return position * nav * (1 - feeRate)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
