package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

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

// Mode tells how an advisory was produced.
type Mode string

const (
	ModeLLM    Mode = "llm_enhanced"
	ModeQuant  Mode = "quant"
	ModeHold   Mode = "hold"
	ModeClosed Mode = "market_closed"
)

// DisplayName returns the Chinese mode label for reports.
func (m Mode) DisplayName() string {
	switch m {
	case ModeLLM:
		return "LLM 增强"
	case ModeQuant:
		return "纯量化"
	case ModeHold:
		return "持有观望"
	case ModeClosed:
		return "休市"
	}
	return string(m)
}

// Recommendation is one actionable advisory line.
type Recommendation struct {
	FundCode    string   `json:"fund_code"`
	FundName    string   `json:"fund_name"`
	Action      string   `json:"action"`
	ActionLabel string   `json:"action_label"`
	Amount      float64  `json:"amount"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason"`
	KeyFactors  []string `json:"key_factors,omitempty"`
	Risks       []string `json:"risks,omitempty"`
	StopLoss    string   `json:"stop_loss,omitempty"`
	PositionPct float64  `json:"position_pct"`
	// Cost estimates the round-trip fee drag of a buy at a one-month
	// holding horizon.
	Cost *risk.TradeCost `json:"cost,omitempty"`
}

// LLMAnalysis carries the model's reasoning trace for the report.
type LLMAnalysis struct {
	InitialJudgment   string `json:"initial_judgment"`
	Challenge         string `json:"challenge"`
	FinalConclusion   string `json:"final_conclusion"`
	MarketNarrative   string `json:"market_narrative"`
	Sentiment         string `json:"sentiment"`
	PortfolioAdvice   string `json:"portfolio_advice"`
	ConfidenceSummary string `json:"confidence_summary"`
}

// Advisory is the full daily recommendation output.
type Advisory struct {
	Date            string            `json:"date"`
	Mode            Mode              `json:"mode"`
	Regime          domain.Regime     `json:"regime"`
	SeasonalNote    string            `json:"seasonal_note,omitempty"`
	Note            string            `json:"note,omitempty"`
	Recommendations []Recommendation  `json:"recommendations"`
	LLMAnalysis     *LLMAnalysis      `json:"llm_analysis,omitempty"`
	Account         portfolio.Account `json:"account"`
	DataQuality     map[string]string `json:"data_quality,omitempty"`
	Tokens          int               `json:"tokens_used"`
}

// Deps bundles the collaborators the advisor orchestrates.
type Deps struct {
	DB         *database.DB
	Funds      *market.FundRepo
	Indices    *market.IndexRepo
	Watchlist  *market.WatchlistRepo
	Enrichment *market.EnrichmentService
	Detector   *regime.Detector
	Composite  *strategy.Composite
	Guard      *guard.Guard
	Sizer      *risk.Sizer
	Book       *portfolio.Repo
	Learner    *learning.Learner
	Knowledge  *knowledge.Store
	Brain      *Brain
}

// Service runs the daily advisory pipeline: regimes, signals, risk,
// LLM decision, persistence. It degrades to pure-quantitative output
// whenever the LLM layer fails.
type Service struct {
	cfg *config.Config
	d   Deps
	log zerolog.Logger
	now func() time.Time
}

func NewService(cfg *config.Config, d Deps, log zerolog.Logger) *Service {
	return &Service{
		cfg: cfg,
		d:   d,
		log: log.With().Str("component", "advisor").Logger(),
		now: time.Now,
	}
}

// Recommend produces today's advisory. Open-end funds settle on trade
// days only, so weekends short-circuit to a market-closed notice.
func (s *Service) Recommend(ctx context.Context) (*Advisory, error) {
	now := s.now()
	adv := &Advisory{Date: now.Format("2006-01-02"), Regime: domain.RegimeRanging}

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		adv.Mode = ModeClosed
		adv.Note = "今日为周末，非交易日，暂缓执行交易调仓"
		return adv, nil
	}

	items, err := s.d.Watchlist.List(ctx)
	if err != nil {
		return nil, err
	}
	fundData, err := s.d.Funds.LoadFundData(ctx, items, 400)
	if err != nil {
		return nil, err
	}

	cash, err := s.d.Book.LatestCash(ctx, s.cfg.Account.CurrentCash)
	if err != nil {
		return nil, err
	}
	acct, err := s.d.Book.AccountState(ctx, cash, s.cfg.Account.InitialCapital)
	if err != nil {
		return nil, err
	}
	adv.Account = acct

	if len(fundData) == 0 {
		adv.Mode = ModeHold
		adv.Note = "暂无基金净值数据，请先更新行情"
		return adv, nil
	}

	state, err := s.d.Detector.Detect(ctx, domain.CategoryEquity)
	if err != nil {
		s.log.Warn().Err(err).Msg("equity regime detection failed, assuming ranging")
		state = domain.RegimeState{Regime: domain.RegimeRanging, Volatility: 0.2}
	}
	adv.Regime = state.Regime
	categoryRegimes := s.d.Detector.DetectAll(ctx, domain.Categories())

	enrich := s.d.Enrichment.FetchAll(ctx)
	adv.DataQuality = enrich.DataQuality
	md := &domain.MarketData{
		GlobalRegime:    state.Regime,
		CategoryRegimes: categoryRegimes,
		Valuation:       enrich.Valuation,
		Macro:           enrich.Macro,
		ManagerScores:   enrich.ManagerScores,
		DataQuality:     enrich.DataQuality,
	}

	weights, err := s.d.Learner.LearnedWeights(ctx, state.Regime)
	if err != nil {
		s.log.Warn().Err(err).Msg("learned weights unavailable, using defaults")
		weights = nil
	}

	signals := s.d.Composite.Generate(ctx, fundData, md, weights)
	signals = s.d.Guard.Apply(ctx, signals)

	modifier, seasonalReason := SeasonalModifier(now)
	adv.SeasonalNote = seasonalReason
	if modifier != 0 {
		applySeasonal(signals, fundData, modifier)
	}

	if len(signals) == 0 {
		adv.Mode = ModeHold
		adv.Note = "当前无明确交易信号，继续持有观望"
		s.logAnalysis(ctx, adv)
		return adv, nil
	}

	if err := s.d.Learner.RecordSignals(ctx, signals, state.Regime); err != nil {
		s.log.Warn().Err(err).Msg("recording signals for validation failed")
	}

	curve, err := s.d.Book.EquityCurve(ctx, 250)
	if err != nil {
		return nil, err
	}
	dd := risk.MeasureDrawdown(curve, s.cfg.Risk, s.cfg.Account.InitialCapital)

	decision, tokens := s.llmDecision(ctx, state, fundData, signals, acct, dd, enrich)
	adv.Tokens = tokens
	if decision != nil {
		adv.Mode = ModeLLM
		adv.LLMAnalysis = &LLMAnalysis{
			InitialJudgment:   decision.ThinkingProcess.InitialJudgment,
			Challenge:         decision.ThinkingProcess.Challenge,
			FinalConclusion:   decision.ThinkingProcess.FinalConclusion,
			MarketNarrative:   decision.MarketAssessment.Narrative,
			Sentiment:         decision.MarketAssessment.Sentiment,
			PortfolioAdvice:   decision.PortfolioAdvice,
			ConfidenceSummary: decision.ConfidenceSummary,
		}
		adv.Recommendations = s.fromLLM(ctx, decision, fundData, acct, state.Regime, enrich)
	} else {
		adv.Mode = ModeQuant
		adv.Recommendations = s.fromSignals(ctx, signals, fundData, acct, state.Regime, enrich)
	}

	s.persistPending(ctx, adv, fundData)
	s.logAnalysis(ctx, adv)

	s.log.Info().Str("mode", string(adv.Mode)).Str("regime", string(adv.Regime)).
		Int("recommendations", len(adv.Recommendations)).Int("tokens", adv.Tokens).
		Msg("advisory generated")
	return adv, nil
}

// applySeasonal shifts buy/sell confidence on A-share equity and index
// funds by the calendar modifier, clamped to [0.1, 0.95].
func applySeasonal(signals []domain.Signal, fundData []*domain.FundData, modifier float64) {
	categories := map[string]domain.Category{}
	for _, f := range fundData {
		categories[f.FundCode] = f.Category
	}
	for i := range signals {
		cat := categories[signals[i].FundCode]
		if cat != domain.CategoryEquity && cat != domain.CategoryIndex {
			continue
		}
		conf := signals[i].Confidence
		if signals[i].Type.IsBuy() {
			conf += modifier
		} else if signals[i].Type.IsSell() {
			conf -= modifier
		} else {
			continue
		}
		signals[i].Confidence = math.Round(math.Min(0.95, math.Max(0.1, conf))*100) / 100
	}
}

// llmDecision runs the LLM pipeline: cheap-tier market analysis, the
// intelligence scan, then the critical-tier decision. A nil decision
// means the caller must fall back to pure-quantitative output.
func (s *Service) llmDecision(ctx context.Context, state domain.RegimeState, fundData []*domain.FundData,
	signals []domain.Signal, acct portfolio.Account, dd risk.DrawdownReport, enrich market.Enrichment) (*llm.Decision, int) {

	totalTokens := 0

	assessment, tokens, err := s.d.Brain.AnalyzeMarket(ctx, MarketInput{
		Regime:        state.Regime,
		TrendScore:    state.Score,
		Volatility:    state.Volatility,
		IndicesText:   s.indicesText(ctx),
		ValuationText: enrich.Valuation.Narrative,
		MacroText:     enrich.Macro.Narrative,
	})
	totalTokens += tokens
	marketSummary := fmt.Sprintf("市场状态: %s (%s)", state.Regime, state.Regime.DisplayName())
	if err != nil {
		s.log.Warn().Err(err).Msg("llm market analysis failed")
	} else {
		marketSummary = assessment.Narrative
	}

	regimeText := fmt.Sprintf("市场状态: %s (%s)，趋势得分 %.1f，波动率 %.2f%%",
		state.Regime, state.Regime.DisplayName(), state.Score, state.Volatility*100)
	sentimentText := ""
	if enrich.Sentiment != nil {
		sentimentText = enrich.Sentiment.Narrative
	}
	intel, tokens, err := s.d.Brain.MarketIntel(ctx, s.indicesText(ctx), regimeText,
		enrich.Valuation.Narrative, enrich.Macro.Narrative, sentimentText)
	totalTokens += tokens
	intelText := ""
	if err != nil {
		s.log.Warn().Err(err).Msg("llm market intel failed")
	} else {
		intelText = intelDecisionText(intel)
		s.saveIntel(ctx, intel)
	}

	lessons, err := s.d.Knowledge.Relevant(ctx, string(state.Regime), 10)
	if err != nil {
		s.log.Debug().Err(err).Msg("knowledge lookup failed")
	}
	lessonsText := "尚无历史教训积累"
	if len(lessons) > 0 {
		lessonsText = "- " + strings.Join(lessons, "\n- ")
	}

	decision, tokens, err := s.d.Brain.MakeDecision(ctx, DecisionContext{
		MarketSummary: marketSummary,
		QuantSignals:  s.quantSignalsText(ctx, signals, fundData, acct, enrich),
		Account:       accountText(acct, dd),
		Holdings:      holdingsText(acct.Holdings, fundData),
		Enhanced:      enhancedText(enrich),
		Intel:         intelText,
		Lessons:       lessonsText,
	})
	totalTokens += tokens
	if err != nil {
		s.log.Warn().Err(err).Msg("llm decision failed, degrading to quantitative mode")
		return nil, totalTokens
	}

	s.saveDecision(ctx, decision, marketSummary, signals, totalTokens)
	return decision, totalTokens
}

// quantSignalsText renders the top signals with category tags, the
// data-quality note and the cross-asset allocation context.
func (s *Service) quantSignalsText(ctx context.Context, signals []domain.Signal,
	fundData []*domain.FundData, acct portfolio.Account, enrich market.Enrichment) string {

	names := map[string]string{}
	categories := map[string]domain.Category{}
	for _, f := range fundData {
		names[f.FundCode] = f.Name
		categories[f.FundCode] = f.Category
	}

	counts := map[domain.Category]map[string]int{}
	var lines []string
	for i, sig := range signals {
		cat := categories[sig.FundCode]
		if cat == "" {
			cat = domain.CategoryEquity
		}
		if counts[cat] == nil {
			counts[cat] = map[string]int{}
		}
		switch {
		case sig.Type.IsBuy():
			counts[cat]["BUY"]++
		case sig.Type.IsSell():
			counts[cat]["SELL"]++
		default:
			counts[cat]["HOLD"]++
		}
		if i >= 10 {
			continue
		}
		name := names[sig.FundCode]
		if name == "" {
			name = "基金" + sig.FundCode
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s (%s): %s | 置信度 %.0f%% | 原因: %s",
			cat, name, sig.FundCode, sig.Type, sig.Confidence*100, sig.Reason))
	}
	text := "当前无交易信号"
	if len(lines) > 0 {
		text = strings.Join(lines, "\n")
	}

	if len(enrich.DataQuality) > 0 {
		keys := make([]string, 0, len(enrich.DataQuality))
		for k := range enrich.DataQuality {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, enrich.DataQuality[k]))
		}
		text += "\n\n数据可靠度: " + strings.Join(parts, ", ")
	}

	text += "\n\n## 资产配置\n" + s.allocationContext(ctx, counts, acct, enrich)
	return text
}

func (s *Service) allocationContext(ctx context.Context, counts map[domain.Category]map[string]int,
	acct portfolio.Account, enrich market.Enrichment) string {

	var summary []string
	for _, cat := range domain.Categories() {
		c := counts[cat]
		if c == nil {
			continue
		}
		var parts []string
		if c["BUY"] > 0 {
			parts = append(parts, fmt.Sprintf("%d BUY", c["BUY"]))
		}
		if c["SELL"] > 0 {
			parts = append(parts, fmt.Sprintf("%d SELL", c["SELL"]))
		}
		if len(parts) > 0 {
			summary = append(summary, fmt.Sprintf("%s: %s", cat.DisplayName(), strings.Join(parts, " / ")))
		}
	}
	summaryText := "无信号"
	if len(summary) > 0 {
		summaryText = strings.Join(summary, "; ")
	}

	current, _, err := s.d.Book.CurrentAllocation(ctx, acct.Cash)
	if err != nil {
		current = risk.Allocation{Cash: 1.0}
	}
	pePct := 50.0
	if enrich.Valuation != nil {
		pePct = enrich.Valuation.PEPercentile
	}
	target := risk.TargetAllocation(s.currentRegime(ctx), pePct)

	return fmt.Sprintf(
		"各类别信号汇总: %s\n当前配置: 偏股 %.0f%% | 债券 %.0f%% | 现金 %.0f%%\n目标配置: 偏股 %.0f%% | 债券 %.0f%% | 现金 %.0f%%\n你需要在不同资产类别间做配置决策，优先修复配置偏差。",
		summaryText,
		current.Equity*100, current.Bond*100, current.Cash*100,
		target.Equity*100, target.Bond*100, target.Cash*100)
}

func (s *Service) currentRegime(ctx context.Context) domain.Regime {
	state, err := s.d.Detector.Detect(ctx, domain.CategoryEquity)
	if err != nil {
		return domain.RegimeRanging
	}
	return state.Regime
}

func (s *Service) indicesText(ctx context.Context) string {
	var lines []string
	for _, ref := range s.cfg.Benchmark {
		bars, err := s.d.Indices.Bars(ctx, ref.Code, 2)
		if err != nil || len(bars) == 0 {
			continue
		}
		last := bars[len(bars)-1]
		changeText := "-"
		if len(bars) == 2 && bars[0].Close > 0 {
			changeText = fmt.Sprintf("%+.2f%%", (last.Close-bars[0].Close)/bars[0].Close*100)
		}
		lines = append(lines, fmt.Sprintf("- %s: %.2f (%s)", ref.Name, last.Close, changeText))
	}
	return strings.Join(lines, "\n")
}

func accountText(acct portfolio.Account, dd risk.DrawdownReport) string {
	return fmt.Sprintf(
		"- 总资产: %.2f RMB\n- 现金: %.2f RMB\n- 已投资: %.2f RMB\n- 当前回撤: %.2f%%",
		acct.TotalValue, acct.Cash, acct.Invested, dd.CurrentDrawdown*100)
}

func holdingsText(holdings []domain.Holding, fundData []*domain.FundData) string {
	if len(holdings) == 0 {
		return "当前空仓"
	}
	names := map[string]string{}
	for _, f := range fundData {
		names[f.FundCode] = f.Name
	}
	var lines []string
	for _, h := range holdings {
		name := names[h.FundCode]
		if name == "" {
			name = h.FundCode
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): 成本 %.4f, 现价 %.4f, 份额 %.2f",
			name, h.FundCode, h.CostPrice, h.CurrentNAV, h.Shares))
	}
	return strings.Join(lines, "\n")
}

func enhancedText(enrich market.Enrichment) string {
	var parts []string
	if enrich.Valuation != nil && enrich.Valuation.Narrative != "" {
		parts = append(parts, "估值: "+enrich.Valuation.Narrative)
	}
	if enrich.Macro != nil && enrich.Macro.Narrative != "" {
		parts = append(parts, "宏观: "+enrich.Macro.Narrative)
	}
	if enrich.Sentiment != nil && enrich.Sentiment.Narrative != "" {
		parts = append(parts, "情绪: "+enrich.Sentiment.Narrative)
	}
	return strings.Join(parts, "\n")
}

// fromLLM converts the model's recommendations into sized advisory
// lines. The model's amounts are advisory only: buys never exceed 90%
// of the cash still unallocated in this batch.
func (s *Service) fromLLM(ctx context.Context, decision *llm.Decision, fundData []*domain.FundData,
	acct portfolio.Account, reg domain.Regime, enrich market.Enrichment) []Recommendation {

	names := map[string]string{}
	for _, f := range fundData {
		names[f.FundCode] = f.Name
	}
	held := map[string]domain.Holding{}
	for _, h := range acct.Holdings {
		held[h.FundCode] = h
	}

	remaining := acct.Cash
	positions := len(acct.Holdings)
	var out []Recommendation

	for _, rec := range decision.Recommendations {
		name := rec.FundName
		if name == "" {
			name = names[rec.FundCode]
		}
		if name == "" {
			name = "基金" + rec.FundCode
		}
		r := Recommendation{
			FundCode:   rec.FundCode,
			FundName:   name,
			Action:     rec.Action,
			Confidence: rec.Confidence,
			Reason:     rec.Reasoning,
			KeyFactors: rec.KeyFactors,
			Risks:      rec.Risks,
			StopLoss:   rec.StopLossTrigger,
		}

		switch rec.Action {
		case "buy":
			r.ActionLabel = "买入"
			amount := rec.Amount
			if amount <= 0 {
				amount = s.sizeBuy(ctx, rec.FundCode, rec.Confidence, acct.TotalValue, remaining, positions, reg, enrich, fundData)
			}
			amount = math.Min(amount, remaining*0.9)
			if amount < 0 {
				amount = 0
			}
			r.Amount = round2(amount)
			if r.Amount > 0 {
				cost := risk.RoundTripCost(r.Amount, 30, s.cfg.Fees)
				r.Cost = &cost
				remaining -= r.Amount
				positions++
			}
		case "sell":
			r.ActionLabel = "卖出"
			if h, ok := held[rec.FundCode]; ok {
				r.Amount = round2(h.MarketValue())
			} else {
				r.Action = "watch"
				r.ActionLabel = "观望（未持有）"
			}
		case "watch":
			r.ActionLabel = "观望"
		default:
			r.ActionLabel = "持有"
		}

		if acct.TotalValue > 0 {
			r.PositionPct = math.Round(r.Amount/acct.TotalValue*1000) / 1000
		}
		out = append(out, r)
	}
	return out
}

// fromSignals is the pure-quantitative fallback: size the top five
// composite signals directly.
func (s *Service) fromSignals(ctx context.Context, signals []domain.Signal, fundData []*domain.FundData,
	acct portfolio.Account, reg domain.Regime, enrich market.Enrichment) []Recommendation {

	names := map[string]string{}
	byCode := map[string]*domain.FundData{}
	for _, f := range fundData {
		names[f.FundCode] = f.Name
		byCode[f.FundCode] = f
	}
	held := map[string]domain.Holding{}
	for _, h := range acct.Holdings {
		held[h.FundCode] = h
	}

	remaining := acct.Cash
	positions := len(acct.Holdings)
	var out []Recommendation

	limit := len(signals)
	if limit > 5 {
		limit = 5
	}
	for _, sig := range signals[:limit] {
		name := names[sig.FundCode]
		if name == "" {
			name = "基金" + sig.FundCode
		}
		r := Recommendation{
			FundCode:   sig.FundCode,
			FundName:   name,
			Confidence: sig.Confidence,
			Reason:     sig.Reason,
		}
		switch {
		case sig.Type.IsBuy():
			r.Action = "buy"
			r.ActionLabel = "买入"
			amount := s.sizeBuy(ctx, sig.FundCode, sig.Confidence, acct.TotalValue, remaining, positions, reg, enrich, fundData)
			r.Amount = round2(amount)
			if r.Amount <= 0 {
				continue // unfundable buy, drop the line
			}
			if f := byCode[sig.FundCode]; f != nil && f.LatestNAV() > 0 {
				stop := risk.StopLoss(f.NAVs(), f.LatestNAV(), s.cfg.Risk.SingleFundStopLoss)
				r.StopLoss = fmt.Sprintf("净值跌破 %.4f (%.1f%%)", stop.Price, stop.Pct)
			}
			cost := risk.RoundTripCost(r.Amount, 30, s.cfg.Fees)
			r.Cost = &cost
			remaining -= r.Amount
			positions++
		case sig.Type.IsSell():
			r.Action = "sell"
			r.ActionLabel = "卖出"
			if h, ok := held[sig.FundCode]; ok {
				r.Amount = round2(h.MarketValue())
			} else {
				r.Action = "watch"
				r.ActionLabel = "观望（未持有）"
			}
		default:
			r.Action = "hold"
			r.ActionLabel = "持有"
		}
		if acct.TotalValue > 0 {
			r.PositionPct = math.Round(r.Amount/acct.TotalValue*1000) / 1000
		}
		out = append(out, r)
	}
	return out
}

func (s *Service) sizeBuy(ctx context.Context, fundCode string, confidence, totalValue, remainingCash float64,
	positions int, reg domain.Regime, enrich market.Enrichment, fundData []*domain.FundData) float64 {

	valuationMult := 1.0
	pePct := 50.0
	if enrich.Valuation != nil {
		valuationMult = enrich.Valuation.PositionMultiplier
		pePct = enrich.Valuation.PEPercentile
	}

	histories := map[string][]domain.FundNAV{}
	var candidate []domain.FundNAV
	for _, f := range fundData {
		if f.FundCode == fundCode {
			candidate = f.NAVHistory
		}
	}
	holdings, err := s.d.Book.OpenHoldings(ctx)
	if err == nil {
		for _, h := range holdings {
			for _, f := range fundData {
				if f.FundCode == h.FundCode {
					histories[h.FundCode] = f.NAVHistory
				}
			}
		}
	}
	penalty := risk.Penalty(candidate, histories)

	current, _, err := s.d.Book.CurrentAllocation(ctx, remainingCash)
	maxEquity := -1.0
	if err == nil {
		maxEquity = risk.MaxEquityAmount(totalValue, current.Equity*totalValue, reg, pePct)
	}

	return s.d.Sizer.PositionSize(risk.SizeInput{
		TotalCapital:        totalValue,
		CurrentCash:         remainingCash,
		Confidence:          confidence,
		Regime:              reg,
		ExistingPositions:   positions,
		ValuationMultiplier: valuationMult,
		CorrelationPenalty:  penalty,
		MaxEquityAmount:     maxEquity,
	})
}

// saveDecision archives the raw decision for later reflection.
func (s *Service) saveDecision(ctx context.Context, decision *llm.Decision, marketSummary string,
	signals []domain.Signal, tokens int) {

	decisionJSON, _ := json.Marshal(decision)
	recsJSON, _ := json.Marshal(decision.Recommendations)
	signalsJSON, _ := json.Marshal(signals)

	avgConf := 0.0
	if len(decision.Recommendations) > 0 {
		for _, r := range decision.Recommendations {
			avgConf += r.Confidence
		}
		avgConf /= float64(len(decision.Recommendations))
	}

	_, err := s.d.DB.Conn().ExecContext(ctx, `
		INSERT INTO agent_decisions
			(decision_date, market_context, quant_signals, llm_analysis, llm_decision,
			 confidence, reasoning, challenge, model_used, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.now().Format("2006-01-02"), marketSummary, string(signalsJSON),
		string(decisionJSON), string(recsJSON), avgConf,
		decision.ThinkingProcess.FinalConclusion, decision.ThinkingProcess.Challenge,
		fmt.Sprintf("%s:%s", s.cfg.LLM.Provider, s.d.Brain.gw.CriticalModel()), tokens)
	if err != nil {
		s.log.Warn().Err(err).Msg("saving agent decision failed")
	}
}

// persistPending records actionable lines as pending trades awaiting
// manual confirmation.
func (s *Service) persistPending(ctx context.Context, adv *Advisory, fundData []*domain.FundData) {
	navs := map[string]float64{}
	for _, f := range fundData {
		navs[f.FundCode] = f.LatestNAV()
	}
	for _, rec := range adv.Recommendations {
		if rec.Amount <= 0 || (rec.Action != "buy" && rec.Action != "sell") {
			continue
		}
		reason := rec.Reason
		if len([]rune(reason)) > 500 {
			reason = string([]rune(reason)[:500])
		}
		_, err := s.d.Book.SavePending(ctx, domain.Trade{
			Date:       adv.Date,
			FundCode:   rec.FundCode,
			Action:     rec.Action,
			Amount:     rec.Amount,
			NAV:        navs[rec.FundCode],
			Confidence: rec.Confidence,
			Reason:     reason,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("fund", rec.FundCode).Msg("saving pending trade failed")
		}
	}
}

// saveIntel archives the intelligence scan so later runs can compare
// the model's regime reads over time.
func (s *Service) saveIntel(ctx context.Context, intel *llm.IntelReport) {
	summary := intel.KeyNarrative
	if summary == "" {
		summary = intel.MarketRegimeView
	}
	if summary == "" {
		return
	}
	_, err := s.d.DB.Conn().ExecContext(ctx, `
		INSERT INTO analysis_log (analysis_date, analysis_type, summary)
		VALUES (?, 'market_intel', ?)`, s.now().Format("2006-01-02"), summary)
	if err != nil {
		s.log.Warn().Err(err).Msg("writing intel log failed")
	}
}

func (s *Service) logAnalysis(ctx context.Context, adv *Advisory) {
	summary := fmt.Sprintf("市场状态: %s, %s模式, 生成 %d 条建议",
		adv.Regime, adv.Mode.DisplayName(), len(adv.Recommendations))
	_, err := s.d.DB.Conn().ExecContext(ctx, `
		INSERT INTO analysis_log (analysis_date, analysis_type, summary)
		VALUES (?, 'daily', ?)`, adv.Date, summary)
	if err != nil {
		s.log.Warn().Err(err).Msg("writing analysis log failed")
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
