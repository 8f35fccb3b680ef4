package market

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
)

func newTestEnrichment(t *testing.T) (*EnrichmentService, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	funds := NewFundRepo(db, zerolog.Nop())
	watchlist := NewWatchlistRepo(db, zerolog.Nop())
	return NewEnrichmentService(db, funds, watchlist, zerolog.Nop()), db
}

func TestClassifyValuationBands(t *testing.T) {
	tests := []struct {
		pct  float64
		mult float64
	}{
		{10, 1.5},
		{25, 1.3},
		{50, 1.0},
		{75, 0.6},
		{90, 0.3},
	}
	for _, tt := range tests {
		sig := classifyValuation(tt.pct)
		assert.InDelta(t, tt.mult, sig.PositionMultiplier, 1e-9, "pct %.0f", tt.pct)
		assert.NotEmpty(t, sig.Narrative)
	}
}

func TestClassifyMacroCycles(t *testing.T) {
	tests := []struct {
		pmi    float64
		m2Up   bool
		cycle  domain.CreditCycle
		signal string
	}{
		{51.2, true, domain.CycleExpansion, "偏股"},
		{51.2, false, domain.CyclePeak, "均衡"},
		{49.0, false, domain.CycleContraction, "偏债"},
		{49.0, true, domain.CycleRecovery, "偏股"},
	}
	for _, tt := range tests {
		snap := classifyMacro(tt.pmi, 8.5, tt.m2Up)
		assert.Equal(t, tt.cycle, snap.CreditCycle)
		assert.Equal(t, tt.signal, snap.CycleSignal)
	}
}

func TestScoreTrackRecordInsufficientData(t *testing.T) {
	score := ScoreTrackRecord(make([]float64, 100))
	assert.InDelta(t, 50, score.Score, 1e-9)
	assert.Equal(t, "C", score.Grade)
	assert.Contains(t, score.Reasons, "数据不足 (<120 天)")
}

func TestScoreTrackRecordStrongRecord(t *testing.T) {
	// 5+ years of steady 0.07% daily gains: long tenure, high
	// annualized return, no drawdown, high Sharpe.
	prices := make([]float64, 1300)
	for i := range prices {
		prices[i] = math.Pow(1.0007, float64(i))
	}
	score := ScoreTrackRecord(prices)
	assert.Equal(t, "A", score.Grade)
	assert.GreaterOrEqual(t, score.Score, 80.0)
	assert.Contains(t, score.Reasons[0], "穿越多个周期")
}

func TestScoreTrackRecordPoorRecord(t *testing.T) {
	prices := make([]float64, 300)
	for i := range prices {
		prices[i] = 2.0 * math.Pow(0.998, float64(i))
	}
	score := ScoreTrackRecord(prices)
	assert.LessOrEqual(t, score.Score, 55.0)
	found := false
	for _, r := range score.Reasons {
		if strings.Contains(r, "较大") {
			found = true
		}
	}
	assert.True(t, found, "expected drawdown warning, got %v", score.Reasons)
}

func TestFetchAllDefaultsOnEmptyDatabase(t *testing.T) {
	svc, _ := newTestEnrichment(t)

	e := svc.FetchAll(context.Background())

	require.NotNil(t, e.Valuation)
	assert.InDelta(t, 50, e.Valuation.PEPercentile, 1e-9)
	assert.InDelta(t, 1.0, e.Valuation.PositionMultiplier, 1e-9)
	require.NotNil(t, e.Macro)
	assert.Equal(t, domain.CycleUnknown, e.Macro.CreditCycle)
	require.NotNil(t, e.Sentiment)
	assert.InDelta(t, 50, e.Sentiment.Score, 1e-9)
	assert.Equal(t, "情绪数据不可用", e.Sentiment.Narrative)
	assert.Empty(t, e.ManagerScores)
	assert.Equal(t, "DEFAULT", e.DataQuality["valuation"])
	assert.Equal(t, "DEFAULT", e.DataQuality["macro"])
	assert.Equal(t, "DEFAULT", e.DataQuality["sentiment"])
	assert.Equal(t, "DEFAULT", e.DataQuality["manager_scores"])
}

func TestClassifySentimentBands(t *testing.T) {
	tests := []struct {
		pct    float64
		level  string
		signal string
	}{
		{95, "极度贪婪", "强烈看空"},
		{80, "贪婪", "谨慎"},
		{50, "中性", "正常"},
		{20, "恐惧", "积极"},
		{5, "极度恐惧", "强烈看多"},
	}
	for _, tt := range tests {
		snap := classifySentiment(tt.pct)
		assert.Equal(t, tt.level, snap.Level, "pct %.0f", tt.pct)
		assert.Equal(t, tt.signal, snap.Signal, "pct %.0f", tt.pct)
	}
}

func TestSentimentComputedFromMarginSeries(t *testing.T) {
	svc, db := newTestEnrichment(t)
	flows := NewFlows(db, zerolog.Nop())

	// Steadily rising margin balance: today's reading sits at the top
	// of its own history, with a rising 5-vs-20 day trend.
	daily := make([]float64, 60)
	for i := range daily {
		daily[i] = 15000 + float64(i)*10
	}
	seedFlowSeries(t, flows, sentimentIndicator, daily)

	e := svc.FetchAll(context.Background())

	require.NotNil(t, e.Sentiment)
	assert.Equal(t, "极度贪婪", e.Sentiment.Level)
	assert.Equal(t, "强烈看空", e.Sentiment.Signal)
	assert.Equal(t, "上升", e.Sentiment.Trend)
	assert.Greater(t, e.Sentiment.Percentile, 90.0)
	assert.Contains(t, e.Sentiment.Narrative, "融资余额分位")
	assert.Equal(t, "REALTIME", e.DataQuality["sentiment"])
}

func TestValuationFallsBackToStoredPercentile(t *testing.T) {
	svc, db := newTestEnrichment(t)
	ctx := context.Background()

	today := time.Now().Format("2006-01-02")
	_, err := db.Conn().ExecContext(ctx, `
		INSERT INTO index_valuation (trade_date, index_code, pe, pe_percentile)
		VALUES (?, '000300', 11.2, 25.0)`, today)
	require.NoError(t, err)

	e := svc.FetchAll(ctx)

	require.NotNil(t, e.Valuation)
	assert.InDelta(t, 25, e.Valuation.PEPercentile, 1e-9)
	assert.InDelta(t, 1.3, e.Valuation.PositionMultiplier, 1e-9)
	assert.Equal(t, "(缓存) PE分位 25%", e.Valuation.Narrative)
	assert.Equal(t, "CACHED", e.DataQuality["valuation"])
}

func TestMacroClassifiedFromIndicatorTable(t *testing.T) {
	svc, db := newTestEnrichment(t)
	ctx := context.Background()

	recent := time.Now().AddDate(0, 0, -10).Format("2006-01-02")
	prior := time.Now().AddDate(0, 0, -40).Format("2006-01-02")
	for _, row := range []struct {
		date  string
		name  string
		value float64
	}{
		{recent, "pmi", 51.2},
		{prior, "pmi", 50.1},
		{recent, "m2_yoy", 8.8},
		{prior, "m2_yoy", 8.1},
	} {
		_, err := db.Conn().ExecContext(ctx, `
			INSERT INTO macro_indicators (indicator_date, indicator_name, value)
			VALUES (?, ?, ?)`, row.date, row.name, row.value)
		require.NoError(t, err)
	}

	e := svc.FetchAll(ctx)

	require.NotNil(t, e.Macro)
	assert.Equal(t, domain.CycleExpansion, e.Macro.CreditCycle)
	assert.Equal(t, "偏股", e.Macro.CycleSignal)
	assert.Contains(t, e.Macro.Narrative, "信贷宽松期")
	assert.Equal(t, "REALTIME", e.DataQuality["macro"])
}

func TestManagerScoresComputedForWatchlist(t *testing.T) {
	svc, db := newTestEnrichment(t)
	funds := NewFundRepo(db, zerolog.Nop())
	watchlist := NewWatchlistRepo(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, watchlist.Add(ctx, domain.WatchItem{FundCode: "110011"}))

	navs := make([]domain.FundNAV, 130)
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := range navs {
		navs[i] = domain.FundNAV{
			FundCode: "110011",
			Date:     day.AddDate(0, 0, i).Format("2006-01-02"),
			NAV:      2.0,
		}
	}
	require.NoError(t, funds.SaveNAVs(ctx, navs))

	e := svc.FetchAll(ctx)

	require.Contains(t, e.ManagerScores, "110011")
	assert.Equal(t, "REALTIME", e.DataQuality["manager_scores"])

	var grade string
	require.NoError(t, db.Conn().QueryRowContext(ctx,
		`SELECT grade FROM fund_managers WHERE fund_code = '110011'`).Scan(&grade))
	assert.Equal(t, e.ManagerScores["110011"].Grade, grade)
}
