package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/athang/pixiu/internal/llm"
)

const intelSystem = `你是一位 A 股市场情报分析师。你的任务是在每日决策之前，对市场环境做一次五维信号扫描，输出结构化的情报研判。

五个信号维度：政策、宏观、估值、情绪、行业。每个维度给出方向（+ 利好 / - 利空 / = 中性）、强度（strong/moderate/weak）和依据。

分析要求：
- 指出维度之间的矛盾信号
- 列出需要警惕的风险和值得关注的机会
- 给出一条可操作的建议
- 给出股/债/现金三类资产的方向倾向

你需要输出一个 JSON 对象（不要输出其他内容）：
{
    "market_regime_view": "对市场状态的独立判断",
    "confidence": 0.6,
    "key_narrative": "当前市场的核心叙事",
    "signal_dimensions": [
        {"dimension": "政策", "direction": "+/-/=", "strength": "strong/moderate/weak", "evidence": "依据"}
    ],
    "contradictions": ["矛盾信号"],
    "risk_alerts": ["风险提示"],
    "opportunity_alerts": ["机会提示"],
    "actionable_suggestion": "可操作建议",
    "asset_allocation_hint": {"equity": "increase/decrease/maintain", "bond": "...", "cash": "..."}
}`

const intelTemplate = `## 市场快照

### 主要指数
%s

### 量化层判断
%s

### 估值
%s

### 宏观
%s

### 情绪
%s

请基于以上数据做五维信号扫描，输出情报研判。`

// MarketIntel runs the five-dimension intelligence scan on the
// analysis tier. It feeds the decision call, not the user directly.
func (b *Brain) MarketIntel(ctx context.Context, indices, regime, valuation, macro, sentiment string) (*llm.IntelReport, int, error) {
	user := fmt.Sprintf(intelTemplate,
		orPlaceholder(indices), orPlaceholder(regime),
		orPlaceholder(valuation), orPlaceholder(macro), orPlaceholder(sentiment))

	resp, err := b.gw.Complete(ctx, intelSystem, user, b.gw.AnalysisModel(), 2000)
	if err != nil {
		return nil, 0, err
	}
	var report llm.IntelReport
	if err := llm.ParseJSON(resp.Text, &report); err != nil {
		return nil, resp.TokensUsed, err
	}
	report.Normalize()
	b.log.Debug().Str("regime_view", report.MarketRegimeView).
		Int("tokens", resp.TokensUsed).Msg("market intel complete")
	return &report, resp.TokensUsed, nil
}

// intelDecisionText condenses an intel report into the compact block
// the decision prompt carries. Empty reports render as "".
func intelDecisionText(r *llm.IntelReport) string {
	if r == nil || (r.MarketRegimeView == "" && r.KeyNarrative == "" && len(r.Signals) == 0) {
		return ""
	}
	var b strings.Builder
	if r.MarketRegimeView != "" {
		fmt.Fprintf(&b, "市场判断: %s (置信度 %.0f%%)\n", r.MarketRegimeView, r.Confidence*100)
	}
	if r.KeyNarrative != "" {
		fmt.Fprintf(&b, "核心叙事: %s\n", r.KeyNarrative)
	}
	if len(r.Signals) > 0 {
		parts := make([]string, 0, len(r.Signals))
		for _, s := range r.Signals {
			parts = append(parts, s.Dimension+s.Direction)
		}
		fmt.Fprintf(&b, "信号: %s\n", strings.Join(parts, " | "))
	}
	if len(r.Contradictions) > 0 {
		fmt.Fprintf(&b, "矛盾: %s\n", strings.Join(r.Contradictions, "；"))
	}
	if len(r.RiskAlerts) > 0 {
		fmt.Fprintf(&b, "风险: %s\n", strings.Join(r.RiskAlerts, "；"))
	}
	h := r.AllocationHint
	fmt.Fprintf(&b, "配置方向: 股%s 债%s 现金%s\n", hintWord(h.Equity), hintWord(h.Bond), hintWord(h.Cash))
	if r.ActionableSuggestion != "" {
		fmt.Fprintf(&b, "建议: %s", r.ActionableSuggestion)
	}
	return strings.TrimRight(b.String(), "\n")
}

func hintWord(hint string) string {
	switch hint {
	case "increase":
		return "↑"
	case "decrease":
		return "↓"
	default:
		return "→"
	}
}
