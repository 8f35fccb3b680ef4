package portfolio

import (
	"context"
	"math"
	"strings"

	"github.com/athang/pixiu/internal/risk"
)

// CurrentAllocation splits the live account into equity/bond/cash
// fractions for compliance checks. Bond exposure is detected from the
// fund name and type; everything else counts as equity.
func (r *Repo) CurrentAllocation(ctx context.Context, cash float64) (risk.Allocation, float64, error) {
	holdings, err := r.OpenHoldings(ctx)
	if err != nil {
		return risk.Allocation{}, 0, err
	}

	var equityValue, bondValue float64
	for _, h := range holdings {
		value := h.MarketValue()
		if r.isBondFund(ctx, h.FundCode) {
			bondValue += value
		} else {
			equityValue += value
		}
	}

	totalValue := cash + equityValue + bondValue
	if totalValue <= 0 {
		return risk.Allocation{Cash: 1.0}, cash, nil
	}
	alloc := risk.Allocation{
		Equity: round3(equityValue / totalValue),
		Bond:   round3(bondValue / totalValue),
		Cash:   round3(cash / totalValue),
	}
	return alloc, round2(totalValue), nil
}

func (r *Repo) isBondFund(ctx context.Context, fundCode string) bool {
	var name, fundType string
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COALESCE(fund_name,''), COALESCE(fund_type,'')
		FROM funds WHERE fund_code = ?`, fundCode).Scan(&name, &fundType)
	if err != nil {
		return false
	}
	return strings.Contains(name, "债") ||
		strings.Contains(name, "利率") ||
		strings.Contains(strings.ToLower(fundType), "bond") ||
		strings.Contains(fundType, "债")
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
