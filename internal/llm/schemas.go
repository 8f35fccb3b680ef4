package llm

// Structured output contracts for decision and reflection calls.
// Normalize methods clamp out-of-range fields instead of rejecting
// the whole response, since model output is best-effort.

// MarketAssessment is the model's read of the current market.
type MarketAssessment struct {
	RegimeAgreement  bool     `json:"regime_agreement"`
	RegimeOverride   string   `json:"regime_override,omitempty"`
	KeyRisks         []string `json:"key_risks"`
	KeyOpportunities []string `json:"key_opportunities"`
	Sentiment        string   `json:"sentiment"`
	Narrative        string   `json:"narrative"`
}

func (m *MarketAssessment) Normalize() {
	switch m.Sentiment {
	case "bullish", "bearish", "cautious", "neutral":
	default:
		m.Sentiment = "neutral"
	}
}

// FundRecommendation is one per-fund action from the decision call.
type FundRecommendation struct {
	FundCode        string   `json:"fund_code"`
	FundName        string   `json:"fund_name,omitempty"`
	Action          string   `json:"action"`
	Confidence      float64  `json:"confidence"`
	Amount          float64  `json:"amount"`
	Reasoning       string   `json:"reasoning"`
	KeyFactors      []string `json:"key_factors"`
	Risks           []string `json:"risks"`
	StopLossTrigger string   `json:"stop_loss_trigger"`
}

func (r *FundRecommendation) Normalize() {
	switch r.Action {
	case "buy", "sell", "hold", "watch":
	default:
		r.Action = "hold"
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
}

// ThinkingProcess carries the three-step reasoning trace the decision
// prompt demands.
type ThinkingProcess struct {
	InitialJudgment string `json:"initial_judgment"`
	Challenge       string `json:"challenge"`
	FinalConclusion string `json:"final_conclusion"`
}

// Decision is the full structured output of the daily decision call.
type Decision struct {
	Date              string               `json:"date"`
	ThinkingProcess   ThinkingProcess      `json:"thinking_process"`
	MarketAssessment  MarketAssessment     `json:"market_assessment"`
	Recommendations   []FundRecommendation `json:"recommendations"`
	PortfolioAdvice   string               `json:"portfolio_advice"`
	WatchlistChanges  []string             `json:"watchlist_changes"`
	ConfidenceSummary string               `json:"confidence_summary"`
}

func (d *Decision) Normalize() {
	d.MarketAssessment.Normalize()
	for i := range d.Recommendations {
		d.Recommendations[i].Normalize()
	}
}

// IntelSignal is one dimension of the intelligence scan.
type IntelSignal struct {
	Dimension string `json:"dimension"`
	Direction string `json:"direction"`
	Strength  string `json:"strength"`
	Evidence  string `json:"evidence"`
}

func (s *IntelSignal) Normalize() {
	switch s.Direction {
	case "+", "-", "=":
	default:
		s.Direction = "="
	}
	switch s.Strength {
	case "strong", "moderate", "weak":
	default:
		s.Strength = "weak"
	}
}

// AllocationHint is the coarse asset-direction bias from the intel call.
type AllocationHint struct {
	Equity string `json:"equity"`
	Bond   string `json:"bond"`
	Cash   string `json:"cash"`
}

func (h *AllocationHint) Normalize() {
	for _, f := range []*string{&h.Equity, &h.Bond, &h.Cash} {
		switch *f {
		case "increase", "decrease", "maintain":
		default:
			*f = "maintain"
		}
	}
}

// IntelReport is the structured output of the market-intelligence scan
// that runs ahead of the decision call.
type IntelReport struct {
	MarketRegimeView     string         `json:"market_regime_view"`
	Confidence           float64        `json:"confidence"`
	KeyNarrative         string         `json:"key_narrative"`
	Signals              []IntelSignal  `json:"signal_dimensions"`
	Contradictions       []string       `json:"contradictions"`
	RiskAlerts           []string       `json:"risk_alerts"`
	OpportunityAlerts    []string       `json:"opportunity_alerts"`
	ActionableSuggestion string         `json:"actionable_suggestion"`
	AllocationHint       AllocationHint `json:"asset_allocation_hint"`
}

func (r *IntelReport) Normalize() {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	for i := range r.Signals {
		r.Signals[i].Normalize()
	}
	r.AllocationHint.Normalize()
}

// ReflectionResult is the structured output of a post-mortem call.
type ReflectionResult struct {
	WasCorrect          bool     `json:"was_correct"`
	AccuracyAnalysis    string   `json:"accuracy_analysis"`
	MissedFactors       []string `json:"missed_factors"`
	OverweightedFactors []string `json:"overweighted_factors"`
	Lessons             []string `json:"lessons"`
	StrategySuggestions []string `json:"strategy_suggestions"`
}
