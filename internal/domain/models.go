package domain

import "time"

// Fund is a mutual fund identity row.
type Fund struct {
	Code    string `json:"fund_code"`
	Name    string `json:"fund_name"`
	Type    string `json:"fund_type,omitempty"`
	Company string `json:"company,omitempty"`
}

// FundNAV is one net-asset-value observation. Date is YYYY-MM-DD.
type FundNAV struct {
	FundCode    string  `json:"fund_code"`
	Date        string  `json:"nav_date"`
	NAV         float64 `json:"nav"`
	AccNAV      float64 `json:"acc_nav,omitempty"`
	DailyReturn float64 `json:"daily_return,omitempty"`
}

// IndexBar is one daily bar of a benchmark market index.
type IndexBar struct {
	IndexCode string  `json:"index_code"`
	Date      string  `json:"trade_date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

// Holding is one open or closed portfolio position.
type Holding struct {
	ID            int64    `json:"id"`
	FundCode      string   `json:"fund_code"`
	Shares        float64  `json:"shares"`
	CostPrice     float64  `json:"cost_price"`
	CurrentNAV    float64  `json:"current_nav"`
	BuyDate       string   `json:"buy_date"`
	Status        string   `json:"status"`
	SellDate      *string  `json:"sell_date,omitempty"`
	SellNAV       *float64 `json:"sell_nav,omitempty"`
	ProfitLoss    *float64 `json:"profit_loss,omitempty"`
	ProfitLossPct *float64 `json:"profit_loss_pct,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// MarketValue returns the position's current worth.
func (h Holding) MarketValue() float64 {
	return h.Shares * h.CurrentNAV
}

// CostBasis returns the position's acquisition cost.
func (h Holding) CostBasis() float64 {
	return h.Shares * h.CostPrice
}

// Trade is one recorded or pending trade instruction.
type Trade struct {
	ID         int64   `json:"id"`
	Date       string  `json:"trade_date"`
	FundCode   string  `json:"fund_code"`
	Action     string  `json:"action"`
	Amount     float64 `json:"amount"`
	NAV        float64 `json:"nav,omitempty"`
	Shares     float64 `json:"shares,omitempty"`
	Fee        float64 `json:"fee,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	ReportPath string  `json:"report_path,omitempty"`
	Status     string  `json:"status"`
}

// AccountSnapshot is the end-of-day account state.
type AccountSnapshot struct {
	Date            string  `json:"snapshot_date"`
	TotalValue      float64 `json:"total_value"`
	Cash            float64 `json:"cash"`
	Invested        float64 `json:"invested"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
	TotalReturnPct  float64 `json:"total_return_pct"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	HoldingsJSON    string  `json:"holdings_json,omitempty"`
}

// WatchItem is one fund under observation.
type WatchItem struct {
	FundCode     string   `json:"fund_code"`
	AddedDate    string   `json:"added_date"`
	Reason       string   `json:"reason,omitempty"`
	TargetAction string   `json:"target_action,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Category     Category `json:"category"`
}

// SignalValidation is one signal awaiting or holding outcome checks.
// Nil pointers mean the horizon has not been validated yet.
type SignalValidation struct {
	ID           int64      `json:"id"`
	SignalDate   string     `json:"signal_date"`
	FundCode     string     `json:"fund_code"`
	StrategyName string     `json:"strategy_name"`
	SignalType   SignalType `json:"signal_type"`
	Confidence   float64    `json:"confidence"`
	Regime       Regime     `json:"regime"`
	NAVAtSignal  float64    `json:"nav_at_signal"`
	NAVAfter7d   *float64   `json:"nav_after_7d,omitempty"`
	NAVAfter30d  *float64   `json:"nav_after_30d,omitempty"`
	Return7d     *float64   `json:"return_7d,omitempty"`
	Return30d    *float64   `json:"return_30d,omitempty"`
	IsCorrect7d  *bool      `json:"is_correct_7d,omitempty"`
	IsCorrect30d *bool      `json:"is_correct_30d,omitempty"`
	ValidatedAt  *string    `json:"validated_at,omitempty"`
}

// StrategyPerformance is one aggregated (period, strategy, regime) row.
type StrategyPerformance struct {
	ID                 int64   `json:"id"`
	PeriodEnd          string  `json:"period_end"`
	StrategyName       string  `json:"strategy_name"`
	Regime             Regime  `json:"regime"`
	TotalSignals       int     `json:"total_signals"`
	CorrectSignals     int     `json:"correct_signals"`
	WinRate            float64 `json:"win_rate"`
	AvgReturn          float64 `json:"avg_return"`
	AvgConfidence      float64 `json:"avg_confidence"`
	ConfidenceAccuracy float64 `json:"confidence_accuracy"`
	RecommendedWeight  float64 `json:"recommended_weight"`
}

// KnowledgeEntry is one accumulated lesson or insight.
type KnowledgeEntry struct {
	ID                 int64     `json:"id"`
	Category           string    `json:"category"`
	Content            string    `json:"content"`
	SourceReflectionID *int64    `json:"source_reflection_id,omitempty"`
	TimesValidated     int       `json:"times_validated"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// AgentDecision is one persisted LLM decision round.
type AgentDecision struct {
	ID            int64   `json:"id"`
	Date          string  `json:"decision_date"`
	MarketContext string  `json:"market_context,omitempty"`
	QuantSignals  string  `json:"quant_signals,omitempty"`
	LLMAnalysis   string  `json:"llm_analysis,omitempty"`
	LLMDecision   string  `json:"llm_decision,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
	Challenge     string  `json:"challenge,omitempty"`
	ModelUsed     string  `json:"model_used,omitempty"`
	TokensUsed    int     `json:"tokens_used,omitempty"`
}

// Reflection is one post-hoc review of a past decision.
type Reflection struct {
	ID              int64  `json:"id"`
	Date            string `json:"reflection_date"`
	DecisionID      int64  `json:"decision_id"`
	Period          string `json:"period"`
	OriginalSignal  string `json:"original_signal,omitempty"`
	ActualOutcome   string `json:"actual_outcome,omitempty"`
	WasCorrect      bool   `json:"was_correct"`
	ReflectionText  string `json:"reflection_text,omitempty"`
	Lessons         string `json:"lessons,omitempty"`
	CognitiveUpdate string `json:"cognitive_update,omitempty"`
}

// FundManager is one evaluated manager of a fund.
type FundManager struct {
	ID          int64   `json:"id"`
	FundCode    string  `json:"fund_code"`
	ManagerName string  `json:"manager_name"`
	TenureYears float64 `json:"tenure_years,omitempty"`
	Grade       string  `json:"grade,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// IndexValuation is one index valuation observation.
type IndexValuation struct {
	Date         string  `json:"trade_date"`
	IndexCode    string  `json:"index_code"`
	PE           float64 `json:"pe,omitempty"`
	PEPercentile float64 `json:"pe_percentile,omitempty"`
	PB           float64 `json:"pb,omitempty"`
	PBPercentile float64 `json:"pb_percentile,omitempty"`
}

// MacroIndicator is one macro data point (PMI, CPI, M1-M2, ...).
type MacroIndicator struct {
	Date  string  `json:"indicator_date"`
	Name  string  `json:"indicator_name"`
	Value float64 `json:"value"`
}

// SentimentIndicator is one market sentiment observation.
type SentimentIndicator struct {
	Date       string  `json:"trade_date"`
	Name       string  `json:"indicator_name"`
	Value      float64 `json:"value"`
	Percentile float64 `json:"percentile,omitempty"`
}

// Hotspot is one detected sector theme.
type Hotspot struct {
	ID         int64   `json:"id"`
	DetectDate string  `json:"detect_date"`
	SectorName string  `json:"sector_name"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason,omitempty"`
	Status     string  `json:"status"`
}

// SectorSnapshot is one daily sector flow observation.
type SectorSnapshot struct {
	ID         int64   `json:"id"`
	Date       string  `json:"snapshot_date"`
	SectorName string  `json:"sector_name"`
	ChangePct  float64 `json:"change_pct"`
	NetInflow  float64 `json:"net_inflow,omitempty"`
	Rank       int     `json:"rank,omitempty"`
}
