package risk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/athang/pixiu/internal/domain"
)

func TestTargetAllocationByRegime(t *testing.T) {
	tests := []struct {
		regime domain.Regime
		want   Allocation
	}{
		{domain.RegimeBullStrong, Allocation{Equity: 0.60, Bond: 0.15, Cash: 0.25}},
		{domain.RegimeRanging, Allocation{Equity: 0.45, Bond: 0.25, Cash: 0.30}},
		{domain.RegimeBearStrong, Allocation{Equity: 0.25, Bond: 0.35, Cash: 0.40}},
		{domain.Regime("nonsense"), Allocation{Equity: 0.45, Bond: 0.25, Cash: 0.30}},
	}
	for _, tt := range tests {
		// Mid-band valuation leaves the regime profile untouched.
		got := TargetAllocation(tt.regime, 50)
		assert.Equal(t, tt.want, got, "regime %s", tt.regime)
	}
}

func TestTargetAllocationValuationOverlay(t *testing.T) {
	// Deep undervaluation leans the ranging profile into equity:
	// 0.55/0.20/0.25 after the +0.10/-0.05/-0.05 shift, floors then
	// push bond back to 0.25 and the mix renormalizes.
	cheap := TargetAllocation(domain.RegimeRanging, 10)
	assert.Greater(t, cheap.Equity, 0.45)

	rich := TargetAllocation(domain.RegimeRanging, 90)
	assert.Less(t, rich.Equity, 0.45)
	assert.Greater(t, rich.Cash, 0.30)

	// Every output respects the hard floors and sums to 1.
	for _, pe := range []float64{5, 25, 50, 75, 95} {
		for regime := range regimeAllocations {
			a := TargetAllocation(regime, pe)
			assert.LessOrEqual(t, a.Equity, EquityMax+1e-9, "regime %s pe %.0f", regime, pe)
			assert.InDelta(t, 1.0, a.Equity+a.Bond+a.Cash, 0.002, "regime %s pe %.0f", regime, pe)
		}
	}
}

func TestTargetAllocationEquityCapInStrongBull(t *testing.T) {
	// bull_strong plus extreme undervaluation wants 0.70 equity; the
	// cap holds it exactly there.
	a := TargetAllocation(domain.RegimeBullStrong, 10)
	assert.LessOrEqual(t, a.Equity, EquityMax)
}

func TestMaxEquityAmount(t *testing.T) {
	// ranging target 0.45 + 0.05 tolerance on 10000 total is 5000.
	assert.Equal(t, 5000.0, MaxEquityAmount(10000, 0, domain.RegimeRanging, 50))
	assert.Equal(t, 2000.0, MaxEquityAmount(10000, 3000, domain.RegimeRanging, 50))
	// Already over target: no headroom rather than a negative cap.
	assert.Equal(t, 0.0, MaxEquityAmount(10000, 6000, domain.RegimeRanging, 50))
}

func TestCheckCompliance(t *testing.T) {
	ok := CheckCompliance(Allocation{Equity: 0.45, Bond: 0.25, Cash: 0.30}, domain.RegimeRanging, 50)
	assert.True(t, ok.Compliant)
	assert.Empty(t, ok.Violations)

	bad := CheckCompliance(Allocation{Equity: 0.80, Bond: 0.05, Cash: 0.15}, domain.RegimeRanging, 50)
	assert.False(t, bad.Compliant)
	assert.Len(t, bad.Violations, 3, "equity cap, cash floor and bond floor all breached")
	assert.NotEmpty(t, bad.Suggestions)
}

func TestCheckComplianceDeviationSuggestions(t *testing.T) {
	// Within the hard floors but 15pp over the equity target.
	c := CheckCompliance(Allocation{Equity: 0.60, Bond: 0.12, Cash: 0.28}, domain.RegimeRanging, 50)
	assert.True(t, c.Compliant)

	found := false
	for _, s := range c.Suggestions {
		if strings.Contains(s, "equity") && strings.Contains(s, "偏高") {
			found = true
		}
	}
	assert.True(t, found, "expected an equity overweight suggestion, got %v", c.Suggestions)
}
