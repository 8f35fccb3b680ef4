package domain

// FundData is the per-fund input snapshot handed to strategies.
// NAVHistory is ordered by date ascending.
type FundData struct {
	FundCode   string
	Name       string
	Category   Category
	NAVHistory []FundNAV
}

// NAVs returns the raw NAV series in date order.
func (f *FundData) NAVs() []float64 {
	out := make([]float64, len(f.NAVHistory))
	for i, r := range f.NAVHistory {
		out[i] = r.NAV
	}
	return out
}

// LatestNAV returns the most recent NAV, or 0 with no history.
func (f *FundData) LatestNAV() float64 {
	if len(f.NAVHistory) == 0 {
		return 0
	}
	return f.NAVHistory[len(f.NAVHistory)-1].NAV
}

// ValuationSignal is the broad-market valuation enrichment.
type ValuationSignal struct {
	PEPercentile       float64 `json:"pe_percentile"`
	PositionMultiplier float64 `json:"position_multiplier"`
	Narrative          string  `json:"narrative,omitempty"`
}

// SentimentSnapshot is the margin-balance sentiment enrichment. The
// percentile reads the current balance against its own history;
// extremes are contrarian signals.
type SentimentSnapshot struct {
	Score      float64 `json:"score"`
	Level      string  `json:"level"`
	Signal     string  `json:"signal,omitempty"`
	Percentile float64 `json:"percentile"`
	Trend      string  `json:"trend,omitempty"`
	Narrative  string  `json:"narrative,omitempty"`
}

// CreditCycle labels the macro credit-cycle phase.
type CreditCycle string

const (
	CycleExpansion   CreditCycle = "expansion"
	CycleRecovery    CreditCycle = "recovery"
	CyclePeak        CreditCycle = "peak"
	CycleContraction CreditCycle = "contraction"
	CycleUnknown     CreditCycle = "unknown"
)

// MacroSnapshot is the macro-cycle enrichment.
type MacroSnapshot struct {
	CreditCycle CreditCycle `json:"credit_cycle"`
	CycleSignal string      `json:"cycle_signal,omitempty"`
	Narrative   string      `json:"narrative,omitempty"`
}

// ManagerScore is one fund manager evaluation.
type ManagerScore struct {
	Score   float64  `json:"score"`
	Grade   string   `json:"grade"`
	Reasons []string `json:"reasons,omitempty"`
}

// MarketData is the sealed market snapshot consumed by strategies.
// Optional enrichments are nil pointers / nil maps when unavailable;
// strategies document which fields they require.
type MarketData struct {
	GlobalRegime    Regime
	CategoryRegimes map[Category]Regime
	Valuation       *ValuationSignal
	Macro           *MacroSnapshot
	ManagerScores   map[string]ManagerScore
	DataQuality     map[string]string
}

// RegimeFor returns the category's regime, falling back to the global one.
func (m *MarketData) RegimeFor(c Category) Regime {
	if r, ok := m.CategoryRegimes[c]; ok {
		return r
	}
	if m.GlobalRegime != "" {
		return m.GlobalRegime
	}
	return RegimeRanging
}
