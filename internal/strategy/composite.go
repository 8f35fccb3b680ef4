package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/domain"
)

// CompositeName is the strategy name attached to fused signals.
const CompositeName = "composite"

// Composite runs every registered strategy concurrently and fuses
// their signals into one weighted recommendation per fund. A failing
// strategy contributes nothing; it never aborts the run.
type Composite struct {
	registry *Registry
	log      zerolog.Logger
}

func NewComposite(registry *Registry, log zerolog.Logger) *Composite {
	return &Composite{
		registry: registry,
		log:      log.With().Str("component", "composite").Logger(),
	}
}

// Generate fuses the registry's signals under the given per-strategy
// weights. Strategies absent from weights fall back to their default
// weight. Output is ordered by priority descending with fund code as
// the tiebreak, so identical inputs always produce identical output.
func (c *Composite) Generate(ctx context.Context, funds []*domain.FundData, market *domain.MarketData, weights map[string]float64) []domain.Signal {
	strategies := c.registry.All()

	categories := make(map[string]domain.Category, len(funds))
	for _, f := range funds {
		categories[f.FundCode] = f.Category
	}

	type weighted struct {
		signal domain.Signal
		weight float64
	}
	var (
		mu          sync.Mutex
		fundSignals = map[string][]weighted{}
		wg          sync.WaitGroup
	)

	for _, strat := range strategies {
		weight, ok := weights[strat.Name()]
		if !ok {
			weight = strat.Weight()
		}
		wg.Add(1)
		go func(strat Strategy, weight float64) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.log.Error().Interface("panic", r).Str("strategy", strat.Name()).Msg("strategy panicked")
				}
			}()
			signals, err := strat.Analyze(ctx, funds, market)
			if err != nil {
				c.log.Warn().Err(err).Str("strategy", strat.Name()).Msg("strategy failed")
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sig := range signals {
				fundSignals[sig.FundCode] = append(fundSignals[sig.FundCode], weighted{sig, weight})
			}
		}(strat, weight)
	}
	wg.Wait()

	var composite []domain.Signal
	for fundCode, ws := range fundSignals {
		// Within-fund determinism: bucket fill order depends on
		// goroutine scheduling.
		sort.SliceStable(ws, func(i, j int) bool {
			return ws[i].signal.StrategyName < ws[j].signal.StrategyName
		})

		var (
			buyScore, sellScore          float64
			buyStrategies, sellStrategies []string
			reasons                      []string
		)
		for _, w := range ws {
			switch {
			case w.signal.Type.IsBuy():
				buyScore += w.signal.Confidence * w.weight
				buyStrategies = append(buyStrategies, w.signal.StrategyName)
				reasons = append(reasons, fmt.Sprintf("[%s] %s", w.signal.StrategyName, w.signal.Reason))
			case w.signal.Type.IsSell():
				sellScore += w.signal.Confidence * w.weight
				sellStrategies = append(sellStrategies, w.signal.StrategyName)
				reasons = append(reasons, fmt.Sprintf("[%s] %s", w.signal.StrategyName, w.signal.Reason))
			}
		}

		net := buyScore - sellScore
		total := buyScore + sellScore
		if total < 0.1 {
			continue
		}

		confidence := math.Abs(net) / math.Max(total, 0.01)

		hasConflict := len(buyStrategies) > 0 && len(sellStrategies) > 0
		if hasConflict {
			conflictRatio := math.Min(buyScore, sellScore) / math.Max(total, 0.01)
			confidence *= 1 - conflictRatio*0.5
			reasons = append(reasons, fmt.Sprintf("[conflict] 策略冲突 (买:%s vs 卖:%s)",
				strings.Join(buyStrategies, ","), strings.Join(sellStrategies, ",")))
		}

		var sigType domain.SignalType
		switch {
		case net > 0.5:
			sigType = domain.SignalStrongBuy
		case net > 0.2:
			sigType = domain.SignalBuy
		case net < -0.5:
			sigType = domain.SignalStrongSell
		case net < -0.2:
			sigType = domain.SignalSell
		default:
			continue
		}

		category, ok := categories[fundCode]
		if !ok {
			category = domain.CategoryEquity
		}

		composite = append(composite, domain.Signal{
			FundCode:     fundCode,
			Type:         sigType,
			Confidence:   round2(math.Min(confidence, 0.95)),
			Reason:       strings.Join(reasons, "\n"),
			StrategyName: CompositeName,
			Priority:     int(math.Abs(net * 100)),
			Metadata: map[string]interface{}{
				"buy_score":    math.Round(buyScore*1000) / 1000,
				"sell_score":   math.Round(sellScore*1000) / 1000,
				"regime":       string(market.RegimeFor(category)),
				"has_conflict": hasConflict,
				"category":     string(category),
			},
		})
	}

	sort.SliceStable(composite, func(i, j int) bool {
		if composite[i].Priority != composite[j].Priority {
			return composite[i].Priority > composite[j].Priority
		}
		return composite[i].FundCode < composite[j].FundCode
	})

	return composite
}
