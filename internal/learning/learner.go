// Package learning closes the feedback loop: it records every signal
// as a prediction, validates predictions against realized NAVs at 7
// and 30 days, aggregates win rates per strategy and regime, and
// derives the weight overrides the composite fuser consumes.
package learning

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/domain"
)

// sevenDayHurdle is the minimum 7-day gain (percent) for a buy call
// to count as correct; it filters out drift-sized moves. The 30-day
// horizon uses a plain zero hurdle.
const sevenDayHurdle = 1.65

// Learner owns the signal_validation and strategy_performance tables.
type Learner struct {
	db            *sql.DB
	log           zerolog.Logger
	strategyNames []string
	now           func() time.Time
}

func New(db *sql.DB, strategyNames []string, log zerolog.Logger) *Learner {
	return &Learner{
		db:            db,
		log:           log.With().Str("component", "learner").Logger(),
		strategyNames: strategyNames,
		now:           time.Now,
	}
}

// RecordSignals stores composite signals as pending predictions, plus
// one row per contributing sub-strategy parsed from the fused reason
// lines. The (date, fund, strategy) key is unique; re-running the
// pipeline on the same day inserts nothing new.
func (l *Learner) RecordSignals(ctx context.Context, signals []domain.Signal, regime domain.Regime) error {
	today := l.now().Format("2006-01-02")

	for _, sig := range signals {
		nav, err := l.latestNAV(ctx, sig.FundCode)
		if err != nil {
			return err
		}

		if err := l.record(ctx, today, sig.FundCode, sig.StrategyName, sig, regime, nav); err != nil {
			return err
		}

		// Sub-strategy attribution comes from the "[name] reason"
		// lines the composite fuser writes.
		for _, line := range strings.Split(sig.Reason, "\n") {
			if !strings.HasPrefix(line, "[") {
				continue
			}
			end := strings.Index(line, "]")
			if end <= 1 {
				continue
			}
			name := line[1:end]
			if name == "conflict" || name == "signal_guard" {
				continue
			}
			if err := l.record(ctx, today, sig.FundCode, name, sig, regime, nav); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Learner) record(ctx context.Context, date, fundCode, strategyName string, sig domain.Signal, regime domain.Regime, nav float64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signal_validation
			(signal_date, fund_code, strategy_name, signal_type, confidence, regime, nav_at_signal)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		date, fundCode, strategyName, string(sig.Type), sig.Confidence, string(regime), nav)
	if err != nil {
		return fmt.Errorf("record signal %s/%s: %w", fundCode, strategyName, err)
	}
	return nil
}

func (l *Learner) latestNAV(ctx context.Context, fundCode string) (float64, error) {
	var nav float64
	err := l.db.QueryRowContext(ctx,
		`SELECT nav FROM fund_nav WHERE fund_code = ? ORDER BY nav_date DESC LIMIT 1`,
		fundCode).Scan(&nav)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest nav %s: %w", fundCode, err)
	}
	return nav, nil
}

// ValidatePending grades every signal whose 7-day or 30-day horizon
// has passed, comparing the realized NAV move against the signal
// direction. Returns how many horizon checks completed.
func (l *Learner) ValidatePending(ctx context.Context) (int, error) {
	count7, err := l.validateHorizon(ctx, 7)
	if err != nil {
		return 0, err
	}
	count30, err := l.validateHorizon(ctx, 30)
	if err != nil {
		return count7, err
	}
	total := count7 + count30
	if total > 0 {
		l.log.Info().Int("validated", total).Msg("graded historical signals")
	}
	return total, nil
}

func (l *Learner) validateHorizon(ctx context.Context, days int) (int, error) {
	col := "7d"
	if days == 30 {
		col = "30d"
	}
	cutoff := l.now().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, fund_code, signal_type, nav_at_signal, signal_date
		FROM signal_validation
		WHERE nav_after_%s IS NULL AND signal_date <= ?`, col), cutoff)
	if err != nil {
		return 0, fmt.Errorf("query pending %s validations: %w", col, err)
	}

	type pending struct {
		id         int64
		fundCode   string
		signalType string
		navAt      float64
		signalDate string
	}
	var batch []pending
	for rows.Next() {
		var p pending
		var navAt sql.NullFloat64
		if err := rows.Scan(&p.id, &p.fundCode, &p.signalType, &navAt, &p.signalDate); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan pending validation: %w", err)
		}
		p.navAt = navAt.Float64
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	validatedAt := l.now().Format(time.RFC3339)
	validated := 0
	for _, p := range batch {
		if p.navAt <= 0 {
			continue
		}
		navAfter, ok, err := l.navAfter(ctx, p.fundCode, p.signalDate, days)
		if err != nil {
			return validated, err
		}
		if !ok {
			continue
		}

		ret := (navAfter - p.navAt) / p.navAt * 100
		correct := checkDirection(p.signalType, ret, days)

		_, err = l.db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE signal_validation
			SET nav_after_%[1]s = ?, return_%[1]s = ?, is_correct_%[1]s = ?, validated_at = ?
			WHERE id = ?`, col),
			navAfter, math.Round(ret*10000)/10000, correct, validatedAt, p.id)
		if err != nil {
			return validated, fmt.Errorf("update validation %d: %w", p.id, err)
		}
		validated++
	}
	return validated, nil
}

// navAfter finds the NAV closest to signal_date+days, preferring the
// last observation inside the window and falling back to the newest
// one after it.
func (l *Learner) navAfter(ctx context.Context, fundCode, signalDate string, days int) (float64, bool, error) {
	signal, err := time.Parse("2006-01-02", signalDate)
	if err != nil {
		return 0, false, fmt.Errorf("bad signal date %q: %w", signalDate, err)
	}
	target := signal.AddDate(0, 0, days).Format("2006-01-02")

	var nav float64
	err = l.db.QueryRowContext(ctx, `
		SELECT nav FROM fund_nav
		WHERE fund_code = ? AND nav_date >= ? AND nav_date <= ?
		ORDER BY nav_date DESC LIMIT 1`,
		fundCode, signalDate, target).Scan(&nav)
	if err == sql.ErrNoRows {
		err = l.db.QueryRowContext(ctx, `
			SELECT nav FROM fund_nav
			WHERE fund_code = ? AND nav_date > ?
			ORDER BY nav_date DESC LIMIT 1`,
			fundCode, signalDate).Scan(&nav)
	}
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("nav after %s+%dd: %w", signalDate, days, err)
	}
	return nav, true, nil
}

// checkDirection grades a signal against the realized return. A flat
// outcome counts as wrong: the signal claimed an edge that was not
// there.
func checkDirection(signalType string, actualReturn float64, days int) int {
	isBuy := signalType == string(domain.SignalStrongBuy) || signalType == string(domain.SignalBuy)
	isSell := signalType == string(domain.SignalStrongSell) || signalType == string(domain.SignalSell)

	hurdle := 0.0
	if days == 7 {
		hurdle = sevenDayHurdle
	}

	switch {
	case isBuy && actualReturn > hurdle:
		return 1
	case isSell && actualReturn < 0:
		return 1
	default:
		return 0
	}
}

// UpdatePerformance aggregates validated 30-day outcomes over the
// last 90 days per strategy and regime, and refreshes the
// strategy_performance rollup used for learned weighting.
func (l *Learner) UpdatePerformance(ctx context.Context) error {
	cutoff := l.now().AddDate(0, 0, -90).Format("2006-01-02")
	today := l.now().Format("2006-01-02")

	rows, err := l.db.QueryContext(ctx, `
		SELECT strategy_name, regime,
		       COUNT(*) AS total,
		       SUM(CASE WHEN is_correct_30d = 1 THEN 1 ELSE 0 END) AS correct,
		       AVG(return_30d) AS avg_return,
		       AVG(confidence) AS avg_confidence
		FROM signal_validation
		WHERE signal_date >= ? AND is_correct_30d IS NOT NULL
		GROUP BY strategy_name, regime`, cutoff)
	if err != nil {
		return fmt.Errorf("aggregate strategy performance: %w", err)
	}

	type perfRow struct {
		strategy, regime string
		total, correct   int
		avgReturn        float64
		avgConfidence    float64
	}
	var stats []perfRow
	for rows.Next() {
		var r perfRow
		var avgRet, avgConf sql.NullFloat64
		if err := rows.Scan(&r.strategy, &r.regime, &r.total, &r.correct, &avgRet, &avgConf); err != nil {
			rows.Close()
			return fmt.Errorf("scan performance row: %w", err)
		}
		r.avgReturn = avgRet.Float64
		r.avgConfidence = avgConf.Float64
		stats = append(stats, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range stats {
		winRate := 0.0
		if s.total > 0 {
			winRate = float64(s.correct) / float64(s.total)
		}

		highRate, err := l.confBandWinRate(ctx, s.strategy, s.regime, cutoff, true)
		if err != nil {
			return err
		}
		lowRate, err := l.confBandWinRate(ctx, s.strategy, s.regime, cutoff, false)
		if err != nil {
			return err
		}
		confidenceAccuracy := highRate - lowRate

		recommended := math.Max(0.1, math.Min(1.0, winRate*1.5))
		if s.avgReturn < -2 {
			recommended *= 0.5
		}

		_, err = l.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO strategy_performance
				(period_end, strategy_name, regime, total_signals, correct_signals,
				 win_rate, avg_return, avg_confidence, confidence_accuracy,
				 recommended_weight, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			today, s.strategy, s.regime, s.total, s.correct,
			math.Round(winRate*10000)/10000,
			math.Round(s.avgReturn*10000)/10000,
			math.Round(s.avgConfidence*10000)/10000,
			math.Round(confidenceAccuracy*10000)/10000,
			math.Round(recommended*10000)/10000)
		if err != nil {
			return fmt.Errorf("upsert performance %s/%s: %w", s.strategy, s.regime, err)
		}
	}

	if len(stats) > 0 {
		l.log.Info().Int("rows", len(stats)).Msg("refreshed strategy performance")
	}
	return nil
}

// confBandWinRate is the win rate of one confidence band; the gap
// between bands tells whether confidence carries information.
func (l *Learner) confBandWinRate(ctx context.Context, strategy, regime, cutoff string, high bool) (float64, error) {
	op := "<"
	if high {
		op = ">="
	}
	var rate sql.NullFloat64
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT AVG(CASE WHEN is_correct_30d = 1 THEN 1.0 ELSE 0.0 END)
		FROM signal_validation
		WHERE strategy_name = ? AND regime = ?
		  AND confidence %s 0.6 AND signal_date >= ?
		  AND is_correct_30d IS NOT NULL`, op),
		strategy, regime, cutoff).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("confidence band win rate: %w", err)
	}
	return rate.Float64, nil
}

// LearnedWeights returns performance-derived strategy weights for a
// regime, or nil when fewer than two strategies have at least five
// validated signals there. Weights are normalized, missing strategies
// back-filled with small defaults, then normalized again.
func (l *Learner) LearnedWeights(ctx context.Context, regime domain.Regime) (map[string]float64, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT strategy_name, recommended_weight
		FROM strategy_performance
		WHERE regime = ? AND total_signals >= 5
		ORDER BY updated_at DESC`, string(regime))
	if err != nil {
		return nil, fmt.Errorf("query learned weights: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(l.strategyNames))
	for _, name := range l.strategyNames {
		known[name] = true
	}

	weights := map[string]float64{}
	for rows.Next() {
		var name string
		var weight sql.NullFloat64
		if err := rows.Scan(&name, &weight); err != nil {
			return nil, fmt.Errorf("scan learned weight: %w", err)
		}
		if known[name] && weights[name] == 0 {
			weights[name] = weight.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(weights) < 2 {
		return nil, nil
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return nil, nil
	}
	for k, w := range weights {
		weights[k] = math.Round(w/total*1000) / 1000
	}

	for _, name := range l.strategyNames {
		if _, ok := weights[name]; ok {
			continue
		}
		if name == "macro_cycle" || name == "manager_alpha" {
			weights[name] = 0.05
		} else {
			weights[name] = 0.20
		}
	}

	total = 0
	for _, w := range weights {
		total += w
	}
	for k, w := range weights {
		weights[k] = math.Round(w/total*1000) / 1000
	}
	return weights, nil
}

// Stats summarizes the validation backlog for the learning report.
type Stats struct {
	TotalSignals int
	Validated    int
	Pending      int
}

func (l *Learner) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var validated sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN is_correct_30d IS NOT NULL THEN 1 ELSE 0 END)
		FROM signal_validation`).Scan(&s.TotalSignals, &validated)
	if err != nil {
		return Stats{}, fmt.Errorf("validation stats: %w", err)
	}
	s.Validated = int(validated.Int64)
	s.Pending = s.TotalSignals - s.Validated
	return s, nil
}

// Performance is one strategy_performance rollup row.
type Performance struct {
	StrategyName       string
	Regime             string
	TotalSignals       int
	WinRate            float64
	AvgReturn          float64
	RecommendedWeight  float64
	ConfidenceAccuracy float64
}

// PerformanceReport lists the current rollups ordered by strategy
// then regime.
func (l *Learner) PerformanceReport(ctx context.Context) ([]Performance, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT strategy_name, regime, total_signals, win_rate,
		       avg_return, recommended_weight, confidence_accuracy
		FROM strategy_performance
		ORDER BY strategy_name, regime`)
	if err != nil {
		return nil, fmt.Errorf("query performance report: %w", err)
	}
	defer rows.Close()

	var out []Performance
	for rows.Next() {
		var p Performance
		var winRate, avgReturn, recWeight, confAcc sql.NullFloat64
		if err := rows.Scan(&p.StrategyName, &p.Regime, &p.TotalSignals,
			&winRate, &avgReturn, &recWeight, &confAcc); err != nil {
			return nil, fmt.Errorf("scan performance report: %w", err)
		}
		p.WinRate = winRate.Float64
		p.AvgReturn = avgReturn.Float64
		p.RecommendedWeight = recWeight.Float64
		p.ConfidenceAccuracy = confAcc.Float64
		out = append(out, p)
	}
	return out, rows.Err()
}

// RunCycle performs one learning pass: grade due predictions, then
// refresh the rollups.
func (l *Learner) RunCycle(ctx context.Context) error {
	if _, err := l.ValidatePending(ctx); err != nil {
		return err
	}
	return l.UpdatePerformance(ctx)
}
