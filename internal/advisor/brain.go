package advisor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/internal/llm"
	"github.com/athang/pixiu/internal/prompt"
)

// LLM is the slice of the gateway the brain needs. Satisfied by
// *llm.Gateway.
type LLM interface {
	Complete(ctx context.Context, system, user, model string, maxTokens int) (llm.Response, error)
	AnalysisModel() string
	DecisionModel() string
	CriticalModel() string
}

// Brain holds the LLM-facing business logic: market analysis on the
// cheap tier, the three-step decision on the critical tier, and
// post-mortem reflection. Infrastructure (retry, fallback) lives in
// the gateway.
type Brain struct {
	gw  LLM
	log zerolog.Logger
}

func NewBrain(gw LLM, log zerolog.Logger) *Brain {
	return &Brain{gw: gw, log: log.With().Str("component", "brain").Logger()}
}

// MarketInput is the quantitative context handed to the analyst call.
type MarketInput struct {
	Regime        domain.Regime
	TrendScore    float64
	Volatility    float64
	IndicesText   string
	FlowText      string
	ValuationText string
	MacroText     string
}

// AnalyzeMarket summarizes the market environment on the analysis
// tier (1500 output tokens).
func (b *Brain) AnalyzeMarket(ctx context.Context, in MarketInput) (*llm.MarketAssessment, int, error) {
	user := fmt.Sprintf(marketAnalystTemplate,
		in.Regime, in.Regime.DisplayName(), in.TrendScore, in.Volatility*100,
		orPlaceholder(in.IndicesText), orPlaceholder(in.FlowText),
		orPlaceholder(in.ValuationText), orPlaceholder(in.MacroText))

	resp, err := b.gw.Complete(ctx, marketAnalystSystem, user, b.gw.AnalysisModel(), 1500)
	if err != nil {
		return nil, 0, err
	}
	var assessment llm.MarketAssessment
	if err := llm.ParseJSON(resp.Text, &assessment); err != nil {
		return nil, resp.TokensUsed, err
	}
	assessment.Normalize()
	b.log.Debug().Str("sentiment", assessment.Sentiment).Int("tokens", resp.TokensUsed).
		Msg("market analysis complete")
	return &assessment, resp.TokensUsed, nil
}

// DecisionContext carries the pre-rendered text blocks for the
// decision prompt. Empty optional blocks are dropped.
type DecisionContext struct {
	MarketSummary string
	QuantSignals  string
	Account       string
	Holdings      string
	Enhanced      string
	Intel         string
	Lessons       string
}

// MakeDecision runs the three-step decision on the critical tier. The
// prompt is budget-built: mandatory blocks survive truncation,
// optional ones are dropped when the 8000-token budget runs out.
func (b *Brain) MakeDecision(ctx context.Context, dc DecisionContext) (*llm.Decision, int, error) {
	sections := []prompt.Section{
		{Name: "市场摘要", Content: "## 市场环境摘要\n" + dc.MarketSummary, Priority: prompt.PriorityMust},
		{Name: "量化信号", Content: "## 量化信号\n" + dc.QuantSignals, Priority: prompt.PriorityMust},
		{Name: "账户状态", Content: "## 账户状态\n" + dc.Account, Priority: prompt.PriorityMust},
		{Name: "持仓", Content: "## 当前持仓\n" + dc.Holdings, Priority: prompt.PriorityImportant},
	}
	if dc.Enhanced != "" {
		sections = append(sections, prompt.Section{
			Name: "增强数据", Content: "## 增强市场数据\n" + dc.Enhanced, Priority: prompt.PriorityImportant,
		})
	}
	if dc.Intel != "" {
		sections = append(sections, prompt.Section{
			Name: "市场情报", Content: "## 市场情报研判\n" + dc.Intel, Priority: prompt.PriorityImportant,
		})
	}
	sections = append(sections, prompt.Section{
		Name: "教训", Content: "## 历史教训\n" + dc.Lessons, Priority: prompt.PriorityOptional,
	})

	user := prompt.Build(sections, prompt.DefaultBudget)
	user += "\n\n请按三步决策流程，给出你的投资建议。"

	resp, err := b.gw.Complete(ctx, decisionEngineSystem, user, b.gw.CriticalModel(), 0)
	if err != nil {
		return nil, 0, err
	}
	var decision llm.Decision
	if err := llm.ParseJSON(resp.Text, &decision); err != nil {
		return nil, resp.TokensUsed, err
	}
	decision.Normalize()
	b.log.Debug().Int("recommendations", len(decision.Recommendations)).
		Int("tokens", resp.TokensUsed).Msg("decision complete")
	return &decision, resp.TokensUsed, nil
}

// Reflect reruns a past decision against its actual outcome on the
// decision tier and extracts lessons.
func (b *Brain) Reflect(ctx context.Context, rec domain.AgentDecision, period, actualOutcome string) (*llm.ReflectionResult, int, error) {
	user := fmt.Sprintf(reflectionTemplate,
		rec.Date, rec.MarketContext, rec.LLMAnalysis, rec.LLMDecision,
		rec.Confidence*100, rec.QuantSignals, period, actualOutcome)

	resp, err := b.gw.Complete(ctx, reflectionSystem, user, b.gw.DecisionModel(), 0)
	if err != nil {
		return nil, 0, err
	}
	var result llm.ReflectionResult
	if err := llm.ParseJSON(resp.Text, &result); err != nil {
		return nil, resp.TokensUsed, err
	}
	return &result, resp.TokensUsed, nil
}

func orPlaceholder(s string) string {
	if s == "" {
		return "暂无数据"
	}
	return s
}
