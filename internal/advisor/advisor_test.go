package advisor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/config"
	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/internal/guard"
	"github.com/athang/pixiu/internal/knowledge"
	"github.com/athang/pixiu/internal/learning"
	"github.com/athang/pixiu/internal/llm"
	"github.com/athang/pixiu/internal/market"
	"github.com/athang/pixiu/internal/portfolio"
	"github.com/athang/pixiu/internal/regime"
	"github.com/athang/pixiu/internal/risk"
	"github.com/athang/pixiu/internal/strategy"
)

// fakeLLM answers by model name so each pipeline tier can be scripted
// independently.
type fakeLLM struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
	lastUser  string
}

func (f *fakeLLM) Complete(_ context.Context, _, user, model string, _ int) (llm.Response, error) {
	f.calls = append(f.calls, model)
	f.lastUser = user
	if err := f.errs[model]; err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: f.responses[model], TokensUsed: 100, Provider: "gemini", Model: model}, nil
}

func (f *fakeLLM) AnalysisModel() string { return "analysis-model" }
func (f *fakeLLM) DecisionModel() string { return "decision-model" }
func (f *fakeLLM) CriticalModel() string { return "critical-model" }

const fakeAssessment = `{"regime_agreement": true, "sentiment": "cautious",
	"key_risks": ["估值偏高"], "key_opportunities": ["政策托底"],
	"narrative": "市场震荡整理，建议控制仓位"}`

const fakeDecision = `{
	"date": "2026-03-18",
	"thinking_process": {
		"initial_judgment": "量化信号偏多",
		"challenge": "但估值不便宜",
		"final_conclusion": "小仓位试探买入"
	},
	"market_assessment": {"regime_agreement": true, "sentiment": "neutral", "narrative": "震荡"},
	"recommendations": [
		{"fund_code": "110011", "fund_name": "易方达蓝筹", "action": "buy",
		 "confidence": 0.7, "amount": 0, "reasoning": "趋势向好且配置偏低",
		 "key_factors": ["动量"], "risks": ["回撤"], "stop_loss_trigger": "净值跌破 0.95"},
		{"fund_code": "161725", "action": "sell", "confidence": 0.6,
		 "reasoning": "板块过热"}
	],
	"portfolio_advice": "保持三成仓位",
	"confidence_summary": "中等置信度"
}`

const fakeReflection = `{"was_correct": true,
	"accuracy_analysis": "买入判断正确，涨幅兑现",
	"missed_factors": [], "overweighted_factors": [],
	"lessons": ["震荡市中低仓位买入胜率更高"],
	"strategy_suggestions": ["考虑在置信度低于0.5时不下单"]}`

// alwaysBuy is a deterministic stand-in strategy so the composite
// output does not depend on real indicator thresholds.
type alwaysBuy struct{}

func (alwaysBuy) Name() string    { return "test_trend" }
func (alwaysBuy) Weight() float64 { return 1.0 }
func (alwaysBuy) Analyze(_ context.Context, funds []*domain.FundData, _ *domain.MarketData) ([]domain.Signal, error) {
	var out []domain.Signal
	for _, f := range funds {
		out = append(out, domain.Signal{
			FundCode:     f.FundCode,
			Type:         domain.SignalBuy,
			Confidence:   0.8,
			Reason:       "均线多头排列",
			StrategyName: "test_trend",
		})
	}
	return out, nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Profile: database.ProfileCache,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func newTestService(t *testing.T, db *database.DB, fake *fakeLLM) *Service {
	t.Helper()
	log := zerolog.Nop()
	cfg := config.Default()
	cfg.Account.InitialCapital = 100000
	cfg.Account.CurrentCash = 100000

	funds := market.NewFundRepo(db, log)
	indices := market.NewIndexRepo(db, log)
	watchlist := market.NewWatchlistRepo(db, log)
	registry := strategy.NewRegistry()
	registry.MustRegister(alwaysBuy{})

	svc := NewService(cfg, Deps{
		DB:         db,
		Funds:      funds,
		Indices:    indices,
		Watchlist:  watchlist,
		Enrichment: market.NewEnrichmentService(db, funds, watchlist, log),
		Detector:   regime.New(market.NewSeries(funds, indices), market.NoFlows{}, log),
		Composite:  strategy.NewComposite(registry, log),
		Guard:      guard.New(db.Conn(), log),
		Sizer:      risk.NewSizer(cfg.Risk),
		Book:       portfolio.NewRepo(db, log),
		Learner:    learning.New(db.Conn(), registry.Names(), log),
		Knowledge:  knowledge.NewStore(db.Conn(), log),
		Brain:      NewBrain(fake, log),
	}, log)
	// A Wednesday with no seasonal effects in force.
	svc.now = func() time.Time { return time.Date(2026, 3, 18, 10, 0, 0, 0, time.Local) }
	return svc
}

func seedFund(t *testing.T, db *database.DB, code, name string, days int) {
	t.Helper()
	funds := market.NewFundRepo(db, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, funds.Upsert(ctx, domain.Fund{Code: code, Name: name, Type: "混合型"}))

	navs := make([]domain.FundNAV, 0, days)
	start := time.Date(2026, 3, 18, 0, 0, 0, 0, time.Local).AddDate(0, 0, -days)
	for i := 0; i < days; i++ {
		navs = append(navs, domain.FundNAV{
			FundCode: code,
			Date:     start.AddDate(0, 0, i).Format("2006-01-02"),
			NAV:      1.0 + float64(i)*0.002,
		})
	}
	require.NoError(t, funds.SaveNAVs(ctx, navs))
	require.NoError(t, market.NewWatchlistRepo(db, zerolog.Nop()).Add(ctx, domain.WatchItem{
		FundCode: code, Reason: "测试", Category: domain.CategoryEquity,
	}))
}

func TestSeasonalModifier(t *testing.T) {
	cases := []struct {
		date     time.Time
		modifier float64
		contains string
	}{
		{time.Date(2026, 1, 25, 0, 0, 0, 0, time.Local), 0.1, "春节红包行情"},
		{time.Date(2026, 3, 5, 0, 0, 0, 0, time.Local), 0.05, "两会维稳期"},
		{time.Date(2026, 4, 15, 0, 0, 0, 0, time.Local), -0.1, "财报季波动"},
		{time.Date(2026, 12, 20, 0, 0, 0, 0, time.Local), 0.05, "年末基金粉饰"},
		{time.Date(2026, 1, 3, 0, 0, 0, 0, time.Local), 0.05, "开门红效应"},
		{time.Date(2026, 10, 5, 0, 0, 0, 0, time.Local), 0.05, "国庆后效应"},
		{time.Date(2026, 5, 29, 0, 0, 0, 0, time.Local), -0.1, "五穷六绝"},
		{time.Date(2026, 7, 15, 0, 0, 0, 0, time.Local), 0, "无季节性因素"},
	}
	for _, tc := range cases {
		mod, reason := SeasonalModifier(tc.date)
		assert.InDelta(t, tc.modifier, mod, 1e-9, "date %s", tc.date.Format("2006-01-02"))
		assert.Contains(t, reason, tc.contains)
	}
}

func TestSeasonalModifierStacksAndClamps(t *testing.T) {
	// Late-May combines 五穷六绝 with 月末资金面紧张.
	mod, reason := SeasonalModifier(time.Date(2026, 5, 30, 0, 0, 0, 0, time.Local))
	assert.InDelta(t, -0.1, mod, 1e-9)
	assert.Contains(t, reason, "月末资金面紧张")
	assert.Contains(t, reason, "五穷六绝")
}

func TestApplySeasonalOnlyTouchesEquityAndIndex(t *testing.T) {
	fundData := []*domain.FundData{
		{FundCode: "110011", Category: domain.CategoryEquity},
		{FundCode: "000012", Category: domain.CategoryBond},
	}
	signals := []domain.Signal{
		{FundCode: "110011", Type: domain.SignalBuy, Confidence: 0.6},
		{FundCode: "110011", Type: domain.SignalSell, Confidence: 0.6},
		{FundCode: "000012", Type: domain.SignalBuy, Confidence: 0.6},
	}
	applySeasonal(signals, fundData, 0.1)

	assert.InDelta(t, 0.7, signals[0].Confidence, 1e-9)
	assert.InDelta(t, 0.5, signals[1].Confidence, 1e-9)
	assert.InDelta(t, 0.6, signals[2].Confidence, 1e-9, "bond funds stay untouched")
}

func TestApplySeasonalClampsConfidence(t *testing.T) {
	fundData := []*domain.FundData{{FundCode: "110011", Category: domain.CategoryIndex}}
	signals := []domain.Signal{
		{FundCode: "110011", Type: domain.SignalBuy, Confidence: 0.92},
	}
	applySeasonal(signals, fundData, 0.1)
	assert.InDelta(t, 0.95, signals[0].Confidence, 1e-9)
}

func TestBrainAnalyzeMarket(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{"analysis-model": fakeAssessment}}
	brain := NewBrain(fake, zerolog.Nop())

	assessment, tokens, err := brain.AnalyzeMarket(context.Background(), MarketInput{
		Regime:     domain.RegimeRanging,
		TrendScore: 48.5,
		Volatility: 0.18,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, tokens)
	assert.Equal(t, "cautious", assessment.Sentiment)
	assert.Contains(t, assessment.Narrative, "震荡整理")
	assert.Contains(t, fake.lastUser, "暂无数据", "missing sections use the placeholder")
}

func TestBrainMakeDecisionBuildsBudgetedPrompt(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{"critical-model": fakeDecision}}
	brain := NewBrain(fake, zerolog.Nop())

	decision, tokens, err := brain.MakeDecision(context.Background(), DecisionContext{
		MarketSummary: "市场震荡",
		QuantSignals:  "- [偏股] 易方达蓝筹 (110011): buy",
		Account:       "- 现金: 100000",
		Holdings:      "当前空仓",
		Lessons:       "尚无历史教训积累",
	})
	require.NoError(t, err)
	assert.Equal(t, 100, tokens)
	assert.Equal(t, []string{"critical-model"}, fake.calls)
	assert.Equal(t, "小仓位试探买入", decision.ThinkingProcess.FinalConclusion)
	require.Len(t, decision.Recommendations, 2)
	assert.Equal(t, "buy", decision.Recommendations[0].Action)

	assert.Contains(t, fake.lastUser, "## 市场摘要")
	assert.Contains(t, fake.lastUser, "## 量化信号")
	assert.Contains(t, fake.lastUser, "三步决策流程")
}

func TestBrainMakeDecisionRejectsMalformedJSON(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{"critical-model": "抱歉，我无法完成这个请求"}}
	brain := NewBrain(fake, zerolog.Nop())

	_, tokens, err := brain.MakeDecision(context.Background(), DecisionContext{MarketSummary: "x"})
	require.Error(t, err)
	assert.Equal(t, 100, tokens, "tokens are still accounted on parse failure")
}

func TestRecommendWeekendGate(t *testing.T) {
	svc := newTestService(t, newTestDB(t), &fakeLLM{})
	svc.now = func() time.Time { return time.Date(2026, 3, 21, 10, 0, 0, 0, time.Local) }

	adv, err := svc.Recommend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeClosed, adv.Mode)
	assert.Contains(t, adv.Note, "周末")
	assert.Empty(t, adv.Recommendations)
}

func TestRecommendHoldsWithoutFundData(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, &fakeLLM{})

	adv, err := svc.Recommend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeHold, adv.Mode)
	assert.Contains(t, adv.Note, "净值数据")
	assert.InDelta(t, 100000, adv.Account.TotalValue, 1e-9)
}

func TestRecommendLLMMode(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeLLM{responses: map[string]string{
		"analysis-model": fakeAssessment,
		"critical-model": fakeDecision,
	}}
	svc := newTestService(t, db, fake)
	seedFund(t, db, "110011", "易方达蓝筹精选混合", 120)

	adv, err := svc.Recommend(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeLLM, adv.Mode)
	require.NotNil(t, adv.LLMAnalysis)
	assert.Equal(t, "小仓位试探买入", adv.LLMAnalysis.FinalConclusion)
	assert.Equal(t, 300, adv.Tokens, "analysis + intel + decision calls")

	require.Len(t, adv.Recommendations, 2)
	buyRec := adv.Recommendations[0]
	assert.Equal(t, "110011", buyRec.FundCode)
	assert.Equal(t, "买入", buyRec.ActionLabel)
	assert.Greater(t, buyRec.Amount, 0.0, "missing amount falls back to the sizer")
	assert.LessOrEqual(t, buyRec.Amount, 100000*0.9)

	sellRec := adv.Recommendations[1]
	assert.Equal(t, "观望（未持有）", sellRec.ActionLabel, "selling an unheld fund becomes watch")
	assert.Zero(t, sellRec.Amount)

	ctx := context.Background()
	var decisions int
	require.NoError(t, db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_decisions`).Scan(&decisions))
	assert.Equal(t, 1, decisions)

	var reasoning, model string
	require.NoError(t, db.Conn().QueryRowContext(ctx,
		`SELECT reasoning, model_used FROM agent_decisions`).Scan(&reasoning, &model))
	assert.Equal(t, "小仓位试探买入", reasoning)
	assert.Equal(t, "gemini:critical-model", model)

	trades, err := portfolio.NewRepo(db, zerolog.Nop()).RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "pending", trades[0].Status)
	assert.Equal(t, "buy", trades[0].Action)

	var summary string
	require.NoError(t, db.Conn().QueryRowContext(ctx,
		`SELECT summary FROM analysis_log WHERE analysis_type = 'daily'`).Scan(&summary))
	assert.Contains(t, summary, "LLM 增强模式")
}

const fakeIntel = `{"regime_agreement": true, "sentiment": "cautious",
	"narrative": "市场震荡整理，建议控制仓位",
	"market_regime_view": "震荡偏弱",
	"confidence": 0.6,
	"key_narrative": "政策托底与估值压力并存",
	"signal_dimensions": [
		{"dimension": "政策", "direction": "+", "strength": "moderate", "evidence": "稳增长表态"},
		{"dimension": "估值", "direction": "-", "strength": "weak", "evidence": "PE分位偏高"}
	],
	"contradictions": ["政策利好但资金流出"],
	"risk_alerts": ["外围波动"],
	"actionable_suggestion": "维持低仓位，等待确认信号",
	"asset_allocation_hint": {"equity": "maintain", "bond": "increase", "cash": "maintain"}}`

func TestRecommendFeedsMarketIntelIntoDecision(t *testing.T) {
	db := newTestDB(t)
	// The analysis tier serves both the analyst call and the intel
	// scan, so the scripted response carries both contracts.
	fake := &fakeLLM{responses: map[string]string{
		"analysis-model": fakeIntel,
		"critical-model": fakeDecision,
	}}
	svc := newTestService(t, db, fake)
	seedFund(t, db, "110011", "易方达蓝筹精选混合", 120)

	adv, err := svc.Recommend(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeLLM, adv.Mode)
	assert.Equal(t, []string{"analysis-model", "analysis-model", "critical-model"}, fake.calls)

	// The decision prompt carries the condensed intel block.
	assert.Contains(t, fake.lastUser, "## 市场情报研判")
	assert.Contains(t, fake.lastUser, "市场判断: 震荡偏弱")
	assert.Contains(t, fake.lastUser, "政策+ | 估值-")
	assert.Contains(t, fake.lastUser, "配置方向: 股→ 债↑ 现金→")

	var summary string
	require.NoError(t, db.Conn().QueryRowContext(context.Background(),
		`SELECT summary FROM analysis_log WHERE analysis_type = 'market_intel'`).Scan(&summary))
	assert.Equal(t, "政策托底与估值压力并存", summary)
}

func TestRecommendDegradesToQuantOnLLMFailure(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeLLM{errs: map[string]error{
		"analysis-model": fmt.Errorf("rate limited"),
		"critical-model": fmt.Errorf("rate limited"),
	}}
	svc := newTestService(t, db, fake)
	seedFund(t, db, "110011", "易方达蓝筹精选混合", 120)

	adv, err := svc.Recommend(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeQuant, adv.Mode)
	assert.Nil(t, adv.LLMAnalysis)
	require.Len(t, adv.Recommendations, 1)
	rec := adv.Recommendations[0]
	assert.Equal(t, "110011", rec.FundCode)
	assert.Equal(t, "buy", rec.Action)
	assert.Greater(t, rec.Amount, 0.0)
	assert.Contains(t, rec.Reason, "均线多头排列")
	assert.Contains(t, rec.StopLoss, "净值跌破", "quant buys carry a computed stop line")

	var decisions int
	require.NoError(t, db.Conn().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM agent_decisions`).Scan(&decisions))
	assert.Zero(t, decisions, "failed llm runs are not archived as decisions")
}

func newTestReflector(t *testing.T, db *database.DB, fake *fakeLLM) *Reflector {
	t.Helper()
	log := zerolog.Nop()
	cfg := config.Default()
	r := NewReflector(cfg, db, NewBrain(fake, log), knowledge.NewStore(db.Conn(), log), log)
	r.now = func() time.Time { return time.Date(2026, 3, 18, 10, 0, 0, 0, time.Local) }
	return r
}

func TestReflectorReviewsMaturedDecisions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fake := &fakeLLM{responses: map[string]string{"decision-model": fakeReflection}}
	r := newTestReflector(t, db, fake)

	decisionJSON := `[{"fund_code": "110011", "fund_name": "易方达蓝筹", "action": "buy", "confidence": 0.7}]`
	_, err := db.Conn().ExecContext(ctx, `
		INSERT INTO agent_decisions (decision_date, market_context, llm_decision, confidence)
		VALUES ('2026-03-08', '震荡市', ?, 0.7)`, decisionJSON)
	require.NoError(t, err)

	funds := market.NewFundRepo(db, zerolog.Nop())
	require.NoError(t, funds.SaveNAVs(ctx, []domain.FundNAV{
		{FundCode: "110011", Date: "2026-03-06", NAV: 1.00},
		{FundCode: "110011", Date: "2026-03-13", NAV: 1.08},
	}))

	out, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Reviewed, "only the 7d horizon has matured")
	assert.Equal(t, 2, out.Lessons)
	assert.Equal(t, 100, out.Tokens)

	assert.Contains(t, fake.lastUser, "建议buy")
	assert.Contains(t, fake.lastUser, "正确")
	assert.Contains(t, fake.lastUser, "+8.00%")

	var period string
	var wasCorrect int
	require.NoError(t, db.Conn().QueryRowContext(ctx,
		`SELECT period, was_correct FROM reflections`).Scan(&period, &wasCorrect))
	assert.Equal(t, "7d", period)
	assert.Equal(t, 1, wasCorrect)

	var lessons int
	require.NoError(t, db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_base`).Scan(&lessons))
	assert.Equal(t, 2, lessons)

	// Re-running must not double-review the same horizon.
	again, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Reviewed)
}

func TestReflectorNavLookupFindsStoredRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := newTestReflector(t, db, &fakeLLM{})

	funds := market.NewFundRepo(db, zerolog.Nop())
	require.NoError(t, funds.SaveNAVs(ctx, []domain.FundNAV{
		{FundCode: "110011", Date: "2026-08-18", NAV: 4.2},
		{FundCode: "110011", Date: "2026-08-20", NAV: 4.5},
	}))

	// Asking past the latest date returns the most recent stored NAV.
	nav, ok := r.navOnOrBefore(ctx, "110011", "2026-08-25")
	require.True(t, ok, "nav lookup should find the stored row")
	assert.InDelta(t, 4.5, nav, 1e-9)

	// An exact-date hit and an earlier cutoff both resolve.
	nav, ok = r.navOnOrBefore(ctx, "110011", "2026-08-18")
	require.True(t, ok)
	assert.InDelta(t, 4.2, nav, 1e-9)

	_, ok = r.navOnOrBefore(ctx, "110011", "2026-08-17")
	assert.False(t, ok, "no NAV exists before the first stored date")
}

func TestReflectorReportsMissingNAVData(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fake := &fakeLLM{responses: map[string]string{"decision-model": fakeReflection}}
	r := newTestReflector(t, db, fake)

	_, err := db.Conn().ExecContext(ctx, `
		INSERT INTO agent_decisions (decision_date, llm_decision, confidence)
		VALUES ('2026-03-08', '[{"fund_code": "999999", "action": "buy"}]', 0.5)`)
	require.NoError(t, err)

	out, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Reviewed)
	assert.True(t, strings.Contains(fake.lastUser, "缺少足够的净值数据"))
}
