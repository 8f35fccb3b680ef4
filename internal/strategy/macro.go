package strategy

import (
	"context"
	"fmt"

	"github.com/athang/pixiu/internal/domain"
)

// MacroCycle translates the credit-cycle phase (PMI direction crossed
// with M2 direction) into a coarse directional tilt on equity
// exposure. Monthly cadence, low weight.
type MacroCycle struct{}

func NewMacroCycle() *MacroCycle { return &MacroCycle{} }

func (s *MacroCycle) Name() string    { return "macro_cycle" }
func (s *MacroCycle) Weight() float64 { return 0.10 }

func (s *MacroCycle) Analyze(ctx context.Context, funds []*domain.FundData, market *domain.MarketData) ([]domain.Signal, error) {
	if market.Macro == nil || market.Macro.CreditCycle == domain.CycleUnknown {
		return nil, nil
	}
	narrative := market.Macro.Narrative

	var sigType domain.SignalType
	var confidence float64
	var reason string
	switch market.Macro.CreditCycle {
	case domain.CycleExpansion:
		sigType, confidence = domain.SignalBuy, 0.65
		reason = fmt.Sprintf("信贷扩张期，利好权益资产。%s", narrative)
	case domain.CycleRecovery:
		sigType, confidence = domain.SignalBuy, 0.55
		reason = fmt.Sprintf("政策底/经济底，可左侧布局。%s", narrative)
	case domain.CycleContraction:
		sigType, confidence = domain.SignalSell, 0.60
		reason = fmt.Sprintf("信贷紧缩期，减少权益敞口。%s", narrative)
	default:
		// peak 维持现有配置, 不发信号。
		return nil, nil
	}

	var signals []domain.Signal
	for _, fund := range funds {
		if fund.Category != domain.CategoryEquity && fund.Category != domain.CategoryIndex {
			continue
		}
		signals = append(signals, domain.Signal{
			FundCode:     fund.FundCode,
			Type:         sigType,
			Confidence:   confidence,
			Reason:       reason,
			StrategyName: s.Name(),
			Priority:     50,
			Metadata: map[string]interface{}{
				"credit_cycle": string(market.Macro.CreditCycle),
			},
		})
	}
	return signals, nil
}
