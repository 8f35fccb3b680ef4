package strategy

import (
	"context"
	"fmt"

	"github.com/athang/pixiu/internal/domain"
)

// Valuation trades the broad-market PE percentile. Signals move on a
// monthly cadence; the percentile bands are deliberately wide so the
// strategy only speaks near historical extremes. PE percentiles mean
// nothing for bond, gold or QDII funds, so those are skipped.
type Valuation struct{}

func NewValuation() *Valuation { return &Valuation{} }

func (s *Valuation) Name() string    { return "valuation" }
func (s *Valuation) Weight() float64 { return 0.25 }

func (s *Valuation) Analyze(ctx context.Context, funds []*domain.FundData, market *domain.MarketData) ([]domain.Signal, error) {
	if market.Valuation == nil {
		return nil, nil
	}
	pePct := market.Valuation.PEPercentile
	narrative := market.Valuation.Narrative

	var signals []domain.Signal
	for _, fund := range funds {
		if fund.Category != domain.CategoryEquity && fund.Category != domain.CategoryIndex {
			continue
		}

		var sig domain.Signal
		switch {
		case pePct < 20:
			sig = domain.Signal{
				Type:       domain.SignalStrongBuy,
				Confidence: 0.85,
				Reason:     fmt.Sprintf("估值极低 (PE分位 %.0f%%)，历史底部区域。%s", pePct, narrative),
				Priority:   90,
			}
		case pePct < 30:
			sig = domain.Signal{
				Type:       domain.SignalBuy,
				Confidence: 0.70,
				Reason:     fmt.Sprintf("估值低估 (PE分位 %.0f%%)。%s", pePct, narrative),
				Priority:   70,
			}
		case pePct > 85:
			sig = domain.Signal{
				Type:       domain.SignalStrongSell,
				Confidence: 0.80,
				Reason:     fmt.Sprintf("估值极高 (PE分位 %.0f%%)，应逐步减仓。%s", pePct, narrative),
				Priority:   85,
			}
		case pePct > 75:
			sig = domain.Signal{
				Type:       domain.SignalSell,
				Confidence: 0.60,
				Reason:     fmt.Sprintf("估值偏高 (PE分位 %.0f%%)。%s", pePct, narrative),
				Priority:   60,
			}
		default:
			// 30-75% 分位不表态, 让其他策略驱动。
			continue
		}

		sig.FundCode = fund.FundCode
		sig.StrategyName = s.Name()
		sig.Metadata = map[string]interface{}{
			"pe_percentile": pePct,
			"category":      string(fund.Category),
		}
		signals = append(signals, sig)
	}
	return signals, nil
}
