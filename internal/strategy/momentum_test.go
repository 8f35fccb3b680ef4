package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/domain"
)

func trending(start, dailyPct float64, n int) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		out[i] = v
		v *= 1 + dailyPct/100
	}
	return out
}

func TestMomentumBuysLeadersSellsLaggards(t *testing.T) {
	funds := []*domain.FundData{
		equityFund("110011", trending(1.0, 0.4, 80)),  // strong riser
		equityFund("005827", trending(1.0, 0.1, 80)),  // mild riser
		equityFund("161005", trending(1.0, -0.5, 80)), // steady faller
	}

	signals, err := NewMomentum().Analyze(context.Background(), funds, marketWith(domain.RegimeBullWeak))
	require.NoError(t, err)

	byFund := map[string]domain.Signal{}
	for _, s := range signals {
		byFund[s.FundCode] = s
	}

	leader, ok := byFund["110011"]
	require.True(t, ok, "top-ranked fund should get a buy")
	assert.Equal(t, domain.SignalBuy, leader.Type)
	assert.LessOrEqual(t, leader.Confidence, 0.7)
	assert.Contains(t, leader.Reason, "夏普动量")
	assert.Contains(t, leader.Reason, "路径质量")

	laggard, ok := byFund["161005"]
	require.True(t, ok, "bottom-ranked fund should get a sell")
	assert.Equal(t, domain.SignalSell, laggard.Type)
	assert.Contains(t, laggard.Reason, "动量排名靠后")
}

func TestMomentumDisabledInDeepBear(t *testing.T) {
	funds := []*domain.FundData{
		equityFund("110011", trending(1.0, 0.4, 80)),
		equityFund("161005", trending(1.0, -0.5, 80)),
	}
	signals, err := NewMomentum().Analyze(context.Background(), funds, marketWith(domain.RegimeBearStrong))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentumNeedsTwoCandidates(t *testing.T) {
	funds := []*domain.FundData{
		equityFund("110011", trending(1.0, 0.4, 80)),
		equityFund("005827", trending(1.0, 0.1, 30)), // too short to rank
	}
	signals, err := NewMomentum().Analyze(context.Background(), funds, marketWith(domain.RegimeBullWeak))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMomentumScoreComponents(t *testing.T) {
	m := NewMomentum()

	up, ok := m.score(trending(1.0, 0.4, 80))
	require.True(t, ok)
	assert.Greater(t, up.rawMomentum, 0.0)
	assert.Greater(t, up.sharpeMomentum, 0.0)
	// A monotonic rise is a perfect path.
	assert.Equal(t, 1.0, up.pathQuality)
	assert.Greater(t, up.composite, 5.0)

	down, ok := m.score(trending(1.0, -0.5, 80))
	require.True(t, ok)
	assert.Less(t, down.composite, -10.0)

	_, ok = m.score(trending(1.0, 0.4, 59))
	assert.False(t, ok, "needs the full lookback window")
}
