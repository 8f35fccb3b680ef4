package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/athang/pixiu/internal/domain"
)

// ManagerAlpha turns fund-manager evaluations into weak confirmation
// signals: A/B grades add to other strategies' buys, D grades warn.
// It never drives a trade on its own.
type ManagerAlpha struct{}

func NewManagerAlpha() *ManagerAlpha { return &ManagerAlpha{} }

func (s *ManagerAlpha) Name() string    { return "manager_alpha" }
func (s *ManagerAlpha) Weight() float64 { return 0.10 }

func (s *ManagerAlpha) Analyze(ctx context.Context, funds []*domain.FundData, market *domain.MarketData) ([]domain.Signal, error) {
	if len(market.ManagerScores) == 0 {
		return nil, nil
	}

	var signals []domain.Signal
	for _, fund := range funds {
		eval, ok := market.ManagerScores[fund.FundCode]
		if !ok {
			continue
		}

		reasonText := fmt.Sprintf("经理评分 %.0f", eval.Score)
		if len(eval.Reasons) > 0 {
			top := eval.Reasons
			if len(top) > 3 {
				top = top[:3]
			}
			reasonText = strings.Join(top, "; ")
		}

		var sig domain.Signal
		switch eval.Grade {
		case "A":
			sig = domain.Signal{
				Type:       domain.SignalBuy,
				Confidence: 0.40,
				Reason:     fmt.Sprintf("基金经理评级 A (%.0f分): %s", eval.Score, reasonText),
				Priority:   30,
			}
		case "B":
			sig = domain.Signal{
				Type:       domain.SignalBuy,
				Confidence: 0.25,
				Reason:     fmt.Sprintf("基金经理评级 B (%.0f分): %s", eval.Score, reasonText),
				Priority:   20,
			}
		case "D":
			sig = domain.Signal{
				Type:       domain.SignalSell,
				Confidence: 0.30,
				Reason:     fmt.Sprintf("基金经理评级 D (%.0f分)，能力存疑: %s", eval.Score, reasonText),
				Priority:   25,
			}
		default:
			continue
		}

		sig.FundCode = fund.FundCode
		sig.StrategyName = s.Name()
		sig.Metadata = map[string]interface{}{
			"manager_score": eval.Score,
			"grade":         eval.Grade,
		}
		signals = append(signals, sig)
	}
	return signals, nil
}
