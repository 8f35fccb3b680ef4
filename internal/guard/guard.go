// Package guard detects recurring failure patterns in a fund's
// recent composite signals and dampens or suppresses new ones before
// they reach the recommendation layer.
//
// Three anti-patterns are checked:
//  1. three or more consecutive same-direction misses
//  2. ping-pong (alternating buy/sell with mostly wrong outcomes)
//  3. confidence inflation (high-confidence win rate under 40%)
package guard

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/domain"
)

// Health is the verdict for one fund's signal history.
type Health struct {
	FundCode      string
	PenaltyFactor float64 // multiplied into confidence, 0.3 to 1.0
	Suppressed    bool
	Reason        string
}

type validationRow struct {
	signalType string
	isCorrect  sql.NullInt64
	confidence float64
}

// Guard evaluates signal health against the validation history.
type Guard struct {
	db       *sql.DB
	log      zerolog.Logger
	lookback int // days
	now      func() time.Time
}

func New(db *sql.DB, log zerolog.Logger) *Guard {
	return &Guard{
		db:       db,
		log:      log.With().Str("component", "signal_guard").Logger(),
		lookback: 90,
		now:      time.Now,
	}
}

// Check inspects the fund's last ten composite signals within the
// lookback window. Fewer than three records is a healthy verdict;
// young funds are given the benefit of the doubt.
func (g *Guard) Check(ctx context.Context, fundCode string) (Health, error) {
	healthy := Health{FundCode: fundCode, PenaltyFactor: 1.0}

	cutoff := g.now().AddDate(0, 0, -g.lookback).Format("2006-01-02")
	rows, err := g.db.QueryContext(ctx, `
		SELECT signal_type, is_correct_30d, confidence
		FROM signal_validation
		WHERE fund_code = ? AND strategy_name = 'composite'
		  AND signal_date >= ?
		ORDER BY signal_date DESC LIMIT 10`,
		fundCode, cutoff)
	if err != nil {
		return healthy, fmt.Errorf("query signal history for %s: %w", fundCode, err)
	}
	defer rows.Close()

	var records []validationRow
	for rows.Next() {
		var r validationRow
		var conf sql.NullFloat64
		if err := rows.Scan(&r.signalType, &r.isCorrect, &conf); err != nil {
			return healthy, fmt.Errorf("scan signal history for %s: %w", fundCode, err)
		}
		r.confidence = conf.Float64
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return healthy, fmt.Errorf("iterate signal history for %s: %w", fundCode, err)
	}

	if len(records) < 3 {
		return healthy, nil
	}

	if h, bad := checkConsecutiveWrong(fundCode, records); bad {
		return h, nil
	}

	validated := make([]validationRow, 0, len(records))
	for _, r := range records {
		if r.isCorrect.Valid {
			validated = append(validated, r)
		}
	}
	if h, bad := checkPingPong(fundCode, validated); bad {
		return h, nil
	}
	if h, bad := checkInflatedConfidence(fundCode, validated); bad {
		return h, nil
	}

	return healthy, nil
}

// Apply filters a composite signal batch through health checks.
// Suppressed signals are removed; penalized ones keep flowing with a
// reduced confidence and an audit line appended to their reason.
func (g *Guard) Apply(ctx context.Context, signals []domain.Signal) []domain.Signal {
	if len(signals) == 0 {
		return signals
	}

	guarded := make([]domain.Signal, 0, len(signals))
	for _, sig := range signals {
		health, err := g.Check(ctx, sig.FundCode)
		if err != nil {
			g.log.Warn().Err(err).Str("fund", sig.FundCode).Msg("health check failed")
			guarded = append(guarded, sig)
			continue
		}

		if health.Suppressed {
			g.log.Info().
				Str("fund", sig.FundCode).
				Str("reason", health.Reason).
				Msg("signal suppressed")
			continue
		}

		if health.PenaltyFactor < 1.0 {
			original := sig.Confidence
			sig.Confidence = math.Round(sig.Confidence*health.PenaltyFactor*100) / 100
			sig.Reason += fmt.Sprintf("\n[signal_guard] 置信度降级 %v → %v (%s)",
				original, sig.Confidence, health.Reason)
			g.log.Debug().
				Str("fund", sig.FundCode).
				Float64("factor", health.PenaltyFactor).
				Str("reason", health.Reason).
				Msg("signal penalized")
		}

		guarded = append(guarded, sig)
	}
	return guarded
}

func isBuyType(signalType string) bool {
	return signalType == string(domain.SignalStrongBuy) || signalType == string(domain.SignalBuy)
}

// checkConsecutiveWrong counts the streak of validated misses in the
// same direction starting from the most recent record. Three misses
// penalize, five suppress outright.
func checkConsecutiveWrong(fundCode string, records []validationRow) (Health, bool) {
	streak := 0
	lastDirection := ""
	for _, r := range records {
		direction := "sell"
		if isBuyType(r.signalType) {
			direction = "buy"
		}
		wrong := r.isCorrect.Valid && r.isCorrect.Int64 == 0
		if wrong && (lastDirection == "" || direction == lastDirection) {
			streak++
			lastDirection = direction
		} else {
			break
		}
	}
	if streak < 3 {
		return Health{}, false
	}
	return Health{
		FundCode:      fundCode,
		PenaltyFactor: 0.3,
		Suppressed:    streak >= 5,
		Reason:        fmt.Sprintf("连续 %d 次同方向错误", streak),
	}, true
}

// checkPingPong flags mostly-alternating direction flips that are
// also mostly wrong: the signal is chasing its own tail.
func checkPingPong(fundCode string, validated []validationRow) (Health, bool) {
	if len(validated) < 4 {
		return Health{}, false
	}
	alternating := 0
	wrong := 0
	for i, r := range validated {
		if r.isCorrect.Int64 == 0 {
			wrong++
		}
		if i > 0 && isBuyType(r.signalType) != isBuyType(validated[i-1].signalType) {
			alternating++
		}
	}
	n := len(validated)
	if float64(alternating) >= float64(n)*0.7 && float64(wrong) >= float64(n)*0.6 {
		return Health{
			FundCode:      fundCode,
			PenaltyFactor: 0.5,
			Reason:        fmt.Sprintf("乒乓模式 (%d/%d 交替, %d/%d 错误)", alternating, n, wrong, n),
		}, true
	}
	return Health{}, false
}

// checkInflatedConfidence compares the win rate of high-confidence
// signals against a 40% floor.
func checkInflatedConfidence(fundCode string, validated []validationRow) (Health, bool) {
	var highConf, highCorrect int
	for _, r := range validated {
		if r.confidence >= 0.6 {
			highConf++
			if r.isCorrect.Int64 == 1 {
				highCorrect++
			}
		}
	}
	if highConf < 3 {
		return Health{}, false
	}
	winRate := float64(highCorrect) / float64(highConf)
	if winRate >= 0.4 {
		return Health{}, false
	}
	return Health{
		FundCode:      fundCode,
		PenaltyFactor: 0.6,
		Reason:        fmt.Sprintf("高置信度胜率仅 %.0f%% (%d/%d)", winRate*100, highCorrect, highConf),
	}, true
}
