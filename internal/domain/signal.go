// Package domain defines the core types shared across pixiu: signals,
// market data records, fund categories and persistence models.
package domain

// SignalType is the direction and strength of a trading signal.
type SignalType string

const (
	SignalStrongBuy  SignalType = "strong_buy"
	SignalBuy        SignalType = "buy"
	SignalHold       SignalType = "hold"
	SignalSell       SignalType = "sell"
	SignalStrongSell SignalType = "strong_sell"
)

// IsBuy reports whether the signal points long.
func (s SignalType) IsBuy() bool {
	return s == SignalBuy || s == SignalStrongBuy
}

// IsSell reports whether the signal points short.
func (s SignalType) IsSell() bool {
	return s == SignalSell || s == SignalStrongSell
}

// Valid reports whether s is one of the five known signal types.
func (s SignalType) Valid() bool {
	switch s {
	case SignalStrongBuy, SignalBuy, SignalHold, SignalSell, SignalStrongSell:
		return true
	}
	return false
}

// Signal is a strategy recommendation for one fund.
type Signal struct {
	FundCode     string                 `json:"fund_code"`
	Type         SignalType             `json:"signal_type"`
	Confidence   float64                `json:"confidence"`
	Reason       string                 `json:"reason"`
	StrategyName string                 `json:"strategy_name"`
	TargetAmount float64                `json:"target_amount,omitempty"`
	Priority     int                    `json:"priority"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
