package risk

import (
	"math"

	"github.com/athang/pixiu/internal/config"
	"github.com/athang/pixiu/internal/domain"
)

// minTradeAmount is the smallest order worth placing, in RMB.
const minTradeAmount = 100

var regimeMultipliers = map[domain.Regime]float64{
	domain.RegimeBullStrong: 0.90,
	domain.RegimeBullWeak:   0.70,
	domain.RegimeRanging:    0.50,
	domain.RegimeBearWeak:   0.35,
	domain.RegimeBearStrong: 0.20,
}

// SizeInput carries everything PositionSize needs. The valuation and
// correlation multipliers default to 1 when zero so callers without
// enrichment data can leave them unset.
type SizeInput struct {
	TotalCapital      float64
	CurrentCash       float64
	Confidence        float64
	Regime            domain.Regime
	ExistingPositions int
	// ValuationMultiplier scales exposure by market valuation
	// (from the PE-percentile enrichment).
	ValuationMultiplier float64
	// CorrelationPenalty shrinks positions that duplicate existing
	// holdings. See Penalty.
	CorrelationPenalty float64
	// MaxEquityAmount caps the order by allocation headroom.
	// Negative means no cap.
	MaxEquityAmount float64
}

// Sizer computes trade amounts under the configured risk limits.
type Sizer struct {
	cfg config.RiskConfig
}

func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// PositionSize returns the suggested order amount in RMB, or 0 when
// no trade should be placed. The sizing chain: cash reserve, regime
// base, confidence, concentration damping, valuation and correlation
// multipliers, then the single-position, total-position and
// allocation caps.
func (s *Sizer) PositionSize(in SizeInput) float64 {
	available := in.CurrentCash - in.TotalCapital*s.cfg.MinCashReservePct
	if available <= 0 {
		return 0
	}

	basePct, ok := regimeMultipliers[in.Regime]
	if !ok {
		basePct = regimeMultipliers[domain.RegimeRanging]
	}
	positionPct := basePct * in.Confidence

	switch {
	case in.ExistingPositions >= 3:
		positionPct *= 0.5
	case in.ExistingPositions >= 2:
		positionPct *= 0.7
	}

	if in.ValuationMultiplier > 0 {
		positionPct *= in.ValuationMultiplier
	}
	if in.CorrelationPenalty > 0 {
		positionPct *= in.CorrelationPenalty
	}

	maxSingle := in.TotalCapital * s.cfg.MaxSinglePositionPct
	if in.MaxEquityAmount >= 0 {
		maxSingle = math.Min(maxSingle, in.MaxEquityAmount)
	}

	// Headroom left under the total-position ceiling.
	invested := in.TotalCapital - in.CurrentCash
	headroom := in.TotalCapital*s.cfg.MaxTotalPositionPct - invested
	if headroom <= 0 {
		return 0
	}

	amount := math.Min(available*positionPct, maxSingle)
	amount = math.Min(amount, headroom)
	if amount < minTradeAmount {
		return 0
	}
	return math.Round(amount*100) / 100
}

// KellyFraction sizes a position by the Kelly criterion f* = (bp-q)/b
// scaled by the configured fraction (half-Kelly by default). The
// result is clamped to [0, max single position].
func (s *Sizer) KellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 0
	}
	b := avgWin / avgLoss
	p := winRate
	q := 1 - p
	kelly := (b*p - q) / b

	position := kelly * s.cfg.KellyFraction
	return math.Max(0, math.Min(position, s.cfg.MaxSinglePositionPct))
}
