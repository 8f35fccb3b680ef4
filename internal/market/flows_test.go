package market

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFlowSeries(t *testing.T, f *Flows, name string, daily []float64) {
	t.Helper()
	ctx := context.Background()
	start := time.Now().AddDate(0, 0, -len(daily))
	for i, v := range daily {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		require.NoError(t, f.RecordFlow(ctx, name, date, v))
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestFlowScoresZeroWithoutData(t *testing.T) {
	f := NewFlows(newTestDB(t), zerolog.Nop())
	north, fund := f.FlowScores(context.Background())
	assert.Zero(t, north)
	assert.Zero(t, fund)
}

func TestNorthboundScoreStrongInflow(t *testing.T) {
	f := NewFlows(newTestDB(t), zerolog.Nop())
	// 25亿/day: 5-day sum 125 (>100 → +10), 20-day sum 500 (>200 → +5).
	seedFlowSeries(t, f, FlowNorthbound, repeat(25, 20))

	north, _ := f.FlowScores(context.Background())
	assert.InDelta(t, 15, north, 1e-9)
}

func TestNorthboundScoreModerateOutflow(t *testing.T) {
	f := NewFlows(newTestDB(t), zerolog.Nop())
	// -8亿/day: 5-day sum -40 (< -30 → -5), 20-day sum -160 (inside ±200).
	seedFlowSeries(t, f, FlowNorthbound, repeat(-8, 20))

	north, _ := f.FlowScores(context.Background())
	assert.InDelta(t, -5, north, 1e-9)
}

func TestMainForceScoreNeedsFiveObservations(t *testing.T) {
	f := NewFlows(newTestDB(t), zerolog.Nop())
	seedFlowSeries(t, f, FlowMainForce, repeat(300, 4))

	_, fund := f.FlowScores(context.Background())
	assert.Zero(t, fund, "under five observations the series says nothing")
}

func TestMainForceScoreHeavyOutflow(t *testing.T) {
	f := NewFlows(newTestDB(t), zerolog.Nop())
	// -50亿/day: 5-day sum -250 (< -200 → -10), 20-day sum -1000 (< -500 → -5).
	seedFlowSeries(t, f, FlowMainForce, repeat(-50, 20))

	_, fund := f.FlowScores(context.Background())
	assert.InDelta(t, -15, fund, 1e-9)
}

func TestFlowScoresWeighRecentWindow(t *testing.T) {
	f := NewFlows(newTestDB(t), zerolog.Nop())
	// Old outflows, recent strong inflows: the 5-day window flips the
	// score positive while the 20-day sum stays muted.
	daily := append(repeat(-10, 15), repeat(40, 5)...)
	seedFlowSeries(t, f, FlowNorthbound, daily)

	north, _ := f.FlowScores(context.Background())
	// 5d = 200 (+10), 20d = 50 (no confirmation).
	assert.InDelta(t, 10, north, 1e-9)
}

func TestRecordFlowUpsertsSameDay(t *testing.T) {
	f := NewFlows(newTestDB(t), zerolog.Nop())
	ctx := context.Background()
	date := time.Now().Format("2006-01-02")

	require.NoError(t, f.RecordFlow(ctx, FlowNorthbound, date, 10))
	require.NoError(t, f.RecordFlow(ctx, FlowNorthbound, date, 35))

	series := f.series(ctx, FlowNorthbound, 20)
	require.Len(t, series, 1)
	assert.InDelta(t, 35, series[0], 1e-9)
}
