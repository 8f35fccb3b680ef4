package market

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/database"
)

// Daily net-inflow series stored in sentiment_indicators, in 亿元.
const (
	FlowNorthbound = "northbound_net"
	FlowMainForce  = "main_force_net"
)

// Flows scores institutional money direction from the stored
// northbound and main-force net-inflow series. A missing or thin
// series contributes zero, so regime detection works unchanged before
// any flow data has been imported.
type Flows struct {
	db  *database.DB
	log zerolog.Logger
}

func NewFlows(db *database.DB, log zerolog.Logger) *Flows {
	return &Flows{db: db, log: log.With().Str("component", "flows").Logger()}
}

// RecordFlow upserts one day's net inflow for a flow series.
func (f *Flows) RecordFlow(ctx context.Context, name, date string, value float64) error {
	_, err := f.db.Conn().ExecContext(ctx, `
		INSERT INTO sentiment_indicators (trade_date, indicator_name, value)
		VALUES (?, ?, ?)
		ON CONFLICT (trade_date, indicator_name) DO UPDATE SET value = excluded.value`,
		date, name, value)
	if err != nil {
		return fmt.Errorf("record flow %s %s: %w", name, date, err)
	}
	return nil
}

// FlowScores implements regime.FlowScorer. Both components read the
// last 20 trading days and weigh the 5-day window heaviest: recent
// money direction matters more than the monthly drift.
func (f *Flows) FlowScores(ctx context.Context) (northbound, fundFlow float64) {
	return f.northboundScore(ctx), f.mainForceScore(ctx)
}

// northboundScore rates foreign money via Stock Connect: ±10 on the
// 5-day net flow (>100亿 strong), ±5 confirmation on the 20-day sum.
func (f *Flows) northboundScore(ctx context.Context) float64 {
	series := f.series(ctx, FlowNorthbound, 20)
	if len(series) == 0 {
		return 0
	}
	sum5 := sumHead(series, 5)
	sum20 := sumHead(series, 20)

	score := 0.0
	switch {
	case sum5 > 100:
		score += 10
	case sum5 > 30:
		score += 5
	case sum5 < -100:
		score -= 10
	case sum5 < -30:
		score -= 5
	}
	switch {
	case sum20 > 200:
		score += 5
	case sum20 < -200:
		score -= 5
	}
	return clampScore(score, 15)
}

// mainForceScore rates domestic institutional flows: ±10 on the 5-day
// main-force net inflow (>200亿 strong), ±5 on the 20-day sum. Needs
// at least five observations to say anything.
func (f *Flows) mainForceScore(ctx context.Context) float64 {
	series := f.series(ctx, FlowMainForce, 20)
	if len(series) < 5 {
		return 0
	}
	sum5 := sumHead(series, 5)
	sum20 := sumHead(series, 20)

	score := 0.0
	switch {
	case sum5 > 200:
		score += 10
	case sum5 > 50:
		score += 5
	case sum5 < -200:
		score -= 10
	case sum5 < -50:
		score -= 5
	}
	switch {
	case sum20 > 500:
		score += 5
	case sum20 < -500:
		score -= 5
	}
	return clampScore(score, 15)
}

// series returns up to limit values, newest first.
func (f *Flows) series(ctx context.Context, name string, limit int) []float64 {
	rows, err := f.db.Conn().QueryContext(ctx, `
		SELECT value FROM sentiment_indicators
		WHERE indicator_name = ? AND value IS NOT NULL
		ORDER BY trade_date DESC LIMIT ?`, name, limit)
	if err != nil {
		f.log.Debug().Err(err).Str("series", name).Msg("flow series unavailable")
		return nil
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			f.log.Debug().Err(err).Str("series", name).Msg("flow row unreadable")
			return nil
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		f.log.Debug().Err(err).Str("series", name).Msg("flow series unavailable")
		return nil
	}
	return out
}

func sumHead(xs []float64, n int) float64 {
	if n > len(xs) {
		n = len(xs)
	}
	sum := 0.0
	for _, v := range xs[:n] {
		sum += v
	}
	return sum
}

func clampScore(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// NoFlows contributes nothing to the trend score. Used in tests and
// wherever no flow series has been seeded.
type NoFlows struct{}

func (NoFlows) FlowScores(context.Context) (float64, float64) { return 0, 0 }
