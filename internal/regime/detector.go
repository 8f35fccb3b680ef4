// Package regime classifies the prevailing market state per asset
// category from the moving-average system and volatility of the
// category's proxy series.
package regime

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

// minHistory is the number of observations required before the
// detector trusts its trend score.
const minHistory = 120

// defaultVolatility stands in when the series is too short to
// annualize log returns.
const defaultVolatility = 0.2

// SeriesSource supplies the closing series the detector scores.
type SeriesSource interface {
	// IndexCloses returns index closes by date ascending.
	IndexCloses(ctx context.Context, indexCode string, limit int) ([]float64, error)
	// FundNAVs returns fund NAVs by date ascending.
	FundNAVs(ctx context.Context, fundCode string, limit int) ([]float64, error)
}

// FlowScorer contributes the northbound / fund-flow components for
// equity categories. Both values are clamped to ±15; implementations
// return zeros when the data is unavailable.
type FlowScorer interface {
	FlowScores(ctx context.Context) (northbound, fundFlow float64)
}

// proxyFor maps each asset category to the series that represents it.
// Bond, gold and QDII categories are proxied by flagship funds since
// no suitable domestic index history is stored.
var proxyFor = map[domain.Category]struct {
	code   string
	isFund bool
}{
	domain.CategoryEquity: {code: "000300"},
	domain.CategoryIndex:  {code: "000300"},
	domain.CategoryBond:   {code: "217022", isFund: true},
	domain.CategoryGold:   {code: "000307", isFund: true},
	domain.CategoryQDII:   {code: "270042", isFund: true},
}

// Detector computes per-category market regimes. Results are cached
// for the calendar day so repeated pipeline runs stay cheap.
type Detector struct {
	source SeriesSource
	flows  FlowScorer
	log    zerolog.Logger
	cache  *stateCache
	now    func() time.Time
}

// New creates a detector. flows may be nil.
func New(source SeriesSource, flows FlowScorer, log zerolog.Logger) *Detector {
	return &Detector{
		source: source,
		flows:  flows,
		log:    log.With().Str("component", "regime").Logger(),
		cache:  newStateCache(),
		now:    time.Now,
	}
}

// Detect classifies the market state for one asset category. With
// fewer than 120 observations the detector reports ranging with a
// zero score rather than guessing.
func (d *Detector) Detect(ctx context.Context, category domain.Category) (domain.RegimeState, error) {
	day := d.now().Format("2006-01-02")
	if st, ok := d.cache.get(category, day); ok {
		return st, nil
	}

	proxy, ok := proxyFor[category]
	if !ok {
		proxy = proxyFor[domain.CategoryEquity]
	}

	var (
		closes []float64
		err    error
	)
	if proxy.isFund {
		closes, err = d.source.FundNAVs(ctx, proxy.code, 0)
	} else {
		closes, err = d.source.IndexCloses(ctx, proxy.code, 0)
	}
	if err != nil {
		return domain.RegimeState{}, fmt.Errorf("load proxy series %s: %w", proxy.code, err)
	}

	if len(closes) < minHistory {
		d.log.Debug().
			Str("category", string(category)).
			Str("proxy", proxy.code).
			Int("points", len(closes)).
			Msg("insufficient history, defaulting to ranging")
		st := domain.RegimeState{Regime: domain.RegimeRanging, Score: 0, Volatility: defaultVolatility}
		d.cache.put(category, day, st)
		return st, nil
	}

	score := d.trendScore(ctx, category, closes)
	vol := currentVolatility(closes)
	st := domain.RegimeState{
		Regime:     classify(score, vol),
		Score:      math.Round(score*10) / 10,
		Volatility: math.Round(vol*10000) / 10000,
	}

	d.log.Debug().
		Str("category", string(category)).
		Str("regime", string(st.Regime)).
		Float64("score", st.Score).
		Float64("volatility", st.Volatility).
		Msg("regime detected")

	d.cache.put(category, day, st)
	return st, nil
}

// DetectAll resolves the regime of every category present in cats.
// Detection failures degrade to ranging, never abort the pipeline.
func (d *Detector) DetectAll(ctx context.Context, cats []domain.Category) map[domain.Category]domain.Regime {
	out := make(map[domain.Category]domain.Regime, len(cats))
	for _, c := range cats {
		st, err := d.Detect(ctx, c)
		if err != nil {
			d.log.Warn().Err(err).Str("category", string(c)).Msg("regime detection failed")
			out[c] = domain.RegimeRanging
			continue
		}
		out[c] = st.Regime
	}
	return out
}

// trendScore sums the component scores in [-100, 100]: price vs MA
// (±40), MA slope (±30), MA alignment (±30), plus flow scores (±30)
// for equity categories.
func (d *Detector) trendScore(ctx context.Context, category domain.Category, closes []float64) float64 {
	n := len(closes)
	current := closes[n-1]
	score := 0.0

	mas := map[int][]float64{}
	for _, w := range []int{5, 10, 20, 60, 120} {
		mas[w] = indicators.MA(closes, w)
	}
	latest := func(w int) (float64, bool) {
		s := mas[w]
		if len(s) == 0 || math.IsNaN(s[n-1]) {
			return 0, false
		}
		return s[n-1], true
	}

	// Price distance from MA20/60/120, each clamped to its weight.
	for _, c := range []struct {
		window int
		weight float64
	}{{20, 10}, {60, 15}, {120, 15}} {
		if ma, ok := latest(c.window); ok && ma > 0 {
			pctAbove := (current - ma) / ma
			score += clamp(pctAbove*100, -c.weight, c.weight)
		}
	}

	// MA slope over the last 10 bars, scaled by 500 and clamped ±10.
	for _, w := range []int{20, 60, 120} {
		s := mas[w]
		if len(s) < 10 {
			continue
		}
		end := s[n-1]
		start := s[n-10]
		if math.IsNaN(end) || math.IsNaN(start) || start == 0 {
			continue
		}
		slope := (end - start) / start
		score += clamp(slope*500, -10, 10)
	}

	// MA alignment: perfect bull/bear stacks are ±30, partial stacks
	// scale by the fraction of correctly ordered pairs.
	vals := make([]float64, 0, 4)
	for _, w := range []int{5, 10, 20, 60} {
		if ma, ok := latest(w); ok {
			vals = append(vals, ma)
		}
	}
	if len(vals) == 4 {
		score += alignmentScore(vals)
	}

	if category == domain.CategoryEquity || category == domain.CategoryIndex {
		if d.flows != nil {
			north, flow := d.flows.FlowScores(ctx)
			score += clamp(north, -15, 15)
			score += clamp(flow, -15, 15)
		}
	}

	return score
}

func alignmentScore(vals []float64) float64 {
	descending, ascending := true, true
	correct, total := 0, 0
	for i := 0; i < len(vals); i++ {
		for j := i + 1; j < len(vals); j++ {
			total++
			if vals[i] > vals[j] {
				correct++
			} else {
				descending = false
			}
			if vals[i] >= vals[j] {
				ascending = false
			}
		}
	}
	switch {
	case descending:
		return 30
	case ascending:
		return -30
	default:
		return (float64(correct)/float64(total)*2 - 1) * 15
	}
}

// classify maps a trend score to a regime. Volatility above 30%
// downgrades the weak regimes to ranging since high volatility often
// marks a trend transition.
func classify(score, vol float64) domain.Regime {
	var r domain.Regime
	switch {
	case score > 40:
		r = domain.RegimeBullStrong
	case score > 15:
		r = domain.RegimeBullWeak
	case score > -15:
		r = domain.RegimeRanging
	case score > -40:
		r = domain.RegimeBearWeak
	default:
		r = domain.RegimeBearStrong
	}
	if vol > 0.30 && (r == domain.RegimeBullWeak || r == domain.RegimeBearWeak) {
		r = domain.RegimeRanging
	}
	return r
}

func currentVolatility(closes []float64) float64 {
	vol := indicators.Volatility(closes, 20)
	if len(vol) == 0 {
		return defaultVolatility
	}
	v := vol[len(vol)-1]
	if math.IsNaN(v) {
		return defaultVolatility
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
