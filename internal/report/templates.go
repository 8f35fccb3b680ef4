package report

import (
	"fmt"
	"sort"
	"text/template"
	"time"

	"github.com/athang/pixiu/internal/advisor"
	"github.com/athang/pixiu/internal/portfolio"
)

type advisoryData struct {
	Date            string
	GeneratedAt     string
	Mode            string
	Regime          string
	SeasonalNote    string
	Note            string
	Recommendations []advisor.Recommendation
	LLM             *advisor.LLMAnalysis
	Tokens          int
	DataQuality     []string
	Account         portfolio.Account
}

func advisoryView(adv *advisor.Advisory, now time.Time) advisoryData {
	d := advisoryData{
		Date:            adv.Date,
		GeneratedAt:     now.Format("2006-01-02 15:04"),
		Mode:            adv.Mode.DisplayName(),
		Regime:          adv.Regime.DisplayName(),
		SeasonalNote:    adv.SeasonalNote,
		Note:            adv.Note,
		Recommendations: adv.Recommendations,
		LLM:             adv.LLMAnalysis,
		Tokens:          adv.Tokens,
		Account:         adv.Account,
	}
	keys := make([]string, 0, len(adv.DataQuality))
	for k := range adv.DataQuality {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.DataQuality = append(d.DataQuality, fmt.Sprintf("%s: %s", k, adv.DataQuality[k]))
	}
	return d
}

var advisoryTmpl = template.Must(template.New("advisory").Funcs(tmplFuncs).Parse(`# 交易建议报告 — {{.Date}}

**决策模式**: {{.Mode}} | **市场状态**: {{.Regime}}
{{- if .SeasonalNote}}
**季节性因素**: {{.SeasonalNote}}
{{- end}}
{{- if .Note}}

> {{.Note}}
{{- end}}
{{if .LLM}}
## LLM 智能分析
{{if .LLM.MarketNarrative}}
### 市场研判

{{.LLM.MarketNarrative}}
{{end}}{{if .LLM.InitialJudgment}}
### 初步判断

{{.LLM.InitialJudgment}}
{{end}}{{if .LLM.Challenge}}
### 自我挑战

{{.LLM.Challenge}}
{{end}}{{if .LLM.FinalConclusion}}
### 最终结论

{{.LLM.FinalConclusion}}
{{end}}{{if .LLM.PortfolioAdvice}}
### 组合建议

{{.LLM.PortfolioAdvice}}
{{end}}{{if .LLM.ConfidenceSummary}}
**整体把握度**: {{.LLM.ConfidenceSummary}}
{{end}}
*LLM 情绪: {{if .LLM.Sentiment}}{{.LLM.Sentiment}}{{else}}-{{end}} | Token 消耗: {{.Tokens}}*

---
{{end}}
{{- range .Recommendations}}
## 操作建议: {{.ActionLabel}}

| 项目 | 内容 |
|------|------|
| 操作 | **{{.ActionLabel}}** |
| 基金 | {{.FundName}} ({{.FundCode}}) |
| 建议金额 | {{money .Amount}} RMB |
| 置信度 | {{confLabel .Confidence}} ({{pct .Confidence}}) |
{{- if .Cost}}
| 交易成本 | {{.Cost.Narrative}} |
{{- end}}

### 分析依据

{{.Reason}}
{{if or .KeyFactors .Risks .StopLoss}}
### LLM 洞察
{{if .KeyFactors}}
**关键因子:**
{{range .KeyFactors}}- {{.}}
{{end}}{{end}}{{if .Risks}}
**风险提示:**
{{range .Risks}}- {{.}}
{{end}}{{end}}{{if .StopLoss}}
**止损条件:** {{.StopLoss}}
{{end}}{{end}}
{{- if eq .Action "buy"}}
### 操作步骤

1. 打开支付宝 → 理财 → 基金
2. 搜索 **{{.FundCode}}**
3. {{.ActionLabel}} {{money .Amount}} RMB
4. 确认订单
{{end}}
{{- end}}
{{- if .DataQuality}}
## 数据可靠度

{{range .DataQuality}}- {{.}}
{{end}}{{end}}
## 账户状态

- 总资产: {{money .Account.TotalValue}} RMB
- 现金: {{money .Account.Cash}} RMB
- 已投资: {{money .Account.Invested}} RMB
- 当前回撤: {{signpct .Account.MaxDrawdownPct}}

---
*生成时间: {{.GeneratedAt}} | 貔貅智能基金分析系统*
`))

type holdingRow struct {
	Name       string
	Shares     float64
	CostPrice  float64
	CurrentNAV float64
	PnLPct     float64
	BuyDate    string
}

type portfolioData struct {
	Date        string
	GeneratedAt string
	Account     portfolio.Account
	Holdings    []holdingRow
}

func portfolioView(acct portfolio.Account, funds map[string]string, now time.Time) portfolioData {
	d := portfolioData{
		Date:        acct.Date,
		GeneratedAt: now.Format("2006-01-02 15:04"),
		Account:     acct,
	}
	if d.Date == "" {
		d.Date = now.Format("2006-01-02")
	}
	for _, h := range acct.Holdings {
		name := funds[h.FundCode]
		if name == "" {
			name = "基金" + h.FundCode
		}
		nav := h.CurrentNAV
		if nav <= 0 {
			nav = h.CostPrice
		}
		pnl := 0.0
		if h.CostPrice > 0 {
			pnl = (nav - h.CostPrice) / h.CostPrice * 100
		}
		d.Holdings = append(d.Holdings, holdingRow{
			Name:       name,
			Shares:     h.Shares,
			CostPrice:  h.CostPrice,
			CurrentNAV: nav,
			PnLPct:     pnl,
			BuyDate:    h.BuyDate,
		})
	}
	return d
}

var portfolioTmpl = template.Must(template.New("portfolio").Funcs(tmplFuncs).Parse(`# 组合状态报告 — {{.Date}}

## 账户总览

| 项目 | 数值 |
|------|------|
| 总资产 | {{money .Account.TotalValue}} RMB |
| 现金 | {{money .Account.Cash}} RMB |
| 已投资 | {{money .Account.Invested}} RMB |
| 总收益 | {{signpct .Account.ReturnPct}} |
| 最大回撤 | {{signpct .Account.MaxDrawdownPct}} |
{{if .Holdings}}
## 持仓明细

| 基金 | 份额 | 成本 | 现价 | 盈亏 | 买入日期 |
|------|------|------|------|------|----------|
{{- range .Holdings}}
| {{.Name}} | {{printf "%.2f" .Shares}} | {{nav .CostPrice}} | {{nav .CurrentNAV}} | {{signpct .PnLPct}} | {{.BuyDate}} |
{{- end}}
{{else}}
当前空仓。
{{end}}
---
*生成时间: {{.GeneratedAt}}*
`))
