package risk

import (
	"fmt"

	"github.com/athang/pixiu/internal/config"
)

// baseSubscriptionRate is the pre-discount A-share fund subscription
// fee. Third-party platforms discount it heavily (typically to 10%).
const baseSubscriptionRate = 0.015

// TradeCost is the estimated round-trip friction of one buy, in RMB.
type TradeCost struct {
	SubscriptionFee float64 `json:"subscription_fee"`
	RedemptionFee   float64 `json:"redemption_fee"`
	TotalFee        float64 `json:"total_fee"`
	TotalFeePct     float64 `json:"total_fee_pct"`
	BreakevenPct    float64 `json:"breakeven_pct"`
	NetInvestment   float64 `json:"net_investment"`
}

// Narrative renders the cost line for reports.
func (c TradeCost) Narrative() string {
	return fmt.Sprintf("申购费 %.2f + 赎回费 %.2f = 总费用 %.2f (%.2f%%)，保本需涨 %.2f%%",
		c.SubscriptionFee, c.RedemptionFee, c.TotalFee, c.TotalFeePct, c.BreakevenPct)
}

// SubscriptionFee is the discounted front-load on a purchase.
func SubscriptionFee(amount float64, cfg config.FeesConfig) float64 {
	discount := cfg.SubscriptionFeeDiscount
	if discount <= 0 {
		discount = 0.1
	}
	return round2(amount * baseSubscriptionRate * discount)
}

// RedemptionRate returns the exit-fee rate for a holding period. The
// first rung is the punitive short-term rate open-end funds charge by
// regulation; the rest of the ladder decays to zero past two years.
func RedemptionRate(holdingDays int, cfg config.FeesConfig) float64 {
	penaltyDays := cfg.ShortTermPenaltyDays
	if penaltyDays <= 0 {
		penaltyDays = 7
	}
	penaltyRate := cfg.ShortTermPenaltyRate
	if penaltyRate <= 0 {
		penaltyRate = 0.015
	}
	switch {
	case holdingDays < penaltyDays:
		return penaltyRate
	case holdingDays < 30:
		return 0.0075
	case holdingDays < 365:
		return 0.005
	case holdingDays < 730:
		return 0.0025
	default:
		return 0
	}
}

// RoundTripCost estimates the full cost of buying now and redeeming
// after holdingDays, assuming a flat NAV.
func RoundTripCost(amount float64, holdingDays int, cfg config.FeesConfig) TradeCost {
	if amount <= 0 {
		return TradeCost{}
	}
	sub := SubscriptionFee(amount, cfg)
	red := round2((amount - sub) * RedemptionRate(holdingDays, cfg))
	total := round2(sub + red)
	return TradeCost{
		SubscriptionFee: sub,
		RedemptionFee:   red,
		TotalFee:        total,
		TotalFeePct:     round2(total / amount * 100),
		BreakevenPct:    round2(total / (amount - sub) * 100),
		NetInvestment:   round2(amount - sub),
	}
}
