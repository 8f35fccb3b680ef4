package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/dataq"
	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

const (
	enrichPoolWidth = 3
	enrichDeadline  = 60 * time.Second

	valuationTTL = 24 * time.Hour
	macroTTL     = 72 * time.Hour
	sentimentTTL = 24 * time.Hour
	managerTTL   = 7 * 24 * time.Hour

	// Manager evaluations are slow (full NAV history per fund), so
	// only the head of the watchlist is scored each cycle.
	managerFundLimit = 10

	valuationIndex     = "000300"
	sentimentIndicator = "margin_balance"
)

// Enrichment bundles the optional market context fetched around the
// core NAV data. Every field degrades independently.
type Enrichment struct {
	Valuation     *domain.ValuationSignal
	Macro         *domain.MacroSnapshot
	Sentiment     *domain.SentimentSnapshot
	ManagerScores map[string]domain.ManagerScore
	DataQuality   map[string]string
}

// EnrichmentService resolves valuation, macro-cycle, sentiment and
// fund-manager context through the progressive-degradation tiers.
type EnrichmentService struct {
	db        *database.DB
	funds     *FundRepo
	watchlist *WatchlistRepo
	cache     *dataq.CacheStore
	log       zerolog.Logger
}

func NewEnrichmentService(db *database.DB, funds *FundRepo, watchlist *WatchlistRepo, log zerolog.Logger) *EnrichmentService {
	return &EnrichmentService{
		db:        db,
		funds:     funds,
		watchlist: watchlist,
		cache:     dataq.NewCacheStore(db.Conn()),
		log:       log.With().Str("component", "enrichment").Logger(),
	}
}

// FetchAll resolves the enrichment concerns concurrently on a
// bounded pool. It never fails outright: unresolvable concerns come
// back as neutral defaults, with provenance in DataQuality.
func (s *EnrichmentService) FetchAll(ctx context.Context) Enrichment {
	ctx, cancel := context.WithTimeout(ctx, enrichDeadline)
	defer cancel()

	var (
		val dataq.Result[domain.ValuationSignal]
		mac dataq.Result[domain.MacroSnapshot]
		sen dataq.Result[domain.SentimentSnapshot]
		mgr dataq.Result[map[string]domain.ManagerScore]
	)
	tasks := []func(){
		func() { val = s.valuation(ctx) },
		func() { mac = s.macro(ctx) },
		func() { sen = s.sentiment(ctx) },
		func() { mgr = s.managerScores(ctx) },
	}

	sem := make(chan struct{}, enrichPoolWidth)
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(run func()) {
			defer wg.Done()
			defer func() { <-sem }()
			run()
		}(task)
	}
	wg.Wait()

	s.log.Info().
		Str("valuation", val.Quality.String()).
		Str("macro", mac.Quality.String()).
		Str("sentiment", sen.Quality.String()).
		Str("manager_scores", mgr.Quality.String()).
		Msg("enrichment fetch complete")

	return Enrichment{
		Valuation:     &val.Value,
		Macro:         &mac.Value,
		Sentiment:     &sen.Value,
		ManagerScores: mgr.Value,
		DataQuality: map[string]string{
			"valuation":      val.Quality.String(),
			"macro":          mac.Quality.String(),
			"sentiment":      sen.Quality.String(),
			"manager_scores": mgr.Quality.String(),
		},
	}
}

// --- valuation ---

func (s *EnrichmentService) valuation(ctx context.Context) dataq.Result[domain.ValuationSignal] {
	return dataq.Get(ctx, s.log, dataq.Source[domain.ValuationSignal]{
		Name:   "valuation",
		Fetch:  s.fetchValuation,
		Lookup: s.lookupValuation,
		Default: func() domain.ValuationSignal {
			return domain.ValuationSignal{PEPercentile: 50, PositionMultiplier: 1.0, Narrative: "估值数据不可用"}
		},
		TTL: valuationTTL,
	})
}

// fetchValuation recomputes the PE percentile from the stored
// valuation series. It only counts as live while the newest row is
// recent; older data falls through to the cache tier.
func (s *EnrichmentService) fetchValuation(ctx context.Context) (domain.ValuationSignal, bool, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT trade_date, pe FROM index_valuation
		WHERE index_code = ? AND pe > 0
		ORDER BY trade_date ASC`, valuationIndex)
	if err != nil {
		return domain.ValuationSignal{}, false, fmt.Errorf("load valuation series: %w", err)
	}
	defer rows.Close()

	var (
		pes        []float64
		latestDate string
	)
	for rows.Next() {
		var (
			date string
			pe   float64
		)
		if err := rows.Scan(&date, &pe); err != nil {
			return domain.ValuationSignal{}, false, fmt.Errorf("scan valuation row: %w", err)
		}
		pes = append(pes, pe)
		latestDate = date
	}
	if err := rows.Err(); err != nil {
		return domain.ValuationSignal{}, false, err
	}
	if len(pes) < 60 {
		return domain.ValuationSignal{}, false, nil
	}
	if d, err := time.Parse("2006-01-02", latestDate); err != nil || time.Since(d) > 7*24*time.Hour {
		return domain.ValuationSignal{}, false, nil
	}

	current := pes[len(pes)-1]
	below := 0
	for _, pe := range pes {
		if pe < current {
			below++
		}
	}
	pct := float64(below) / float64(len(pes)) * 100

	sig := classifyValuation(pct)
	if err := s.cache.Put(ctx, "valuation", sig); err != nil {
		s.log.Debug().Err(err).Msg("cache valuation signal failed")
	}
	return sig, true, nil
}

// lookupValuation reads the last persisted percentile straight from
// the valuation table when the series is too short or too old to
// recompute.
func (s *EnrichmentService) lookupValuation(ctx context.Context) (dataq.Cached[domain.ValuationSignal], bool, error) {
	var (
		date string
		pct  float64
	)
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT trade_date, pe_percentile FROM index_valuation
		WHERE index_code = ? AND pe_percentile IS NOT NULL
		ORDER BY trade_date DESC LIMIT 1`, valuationIndex).Scan(&date, &pct)
	if err != nil {
		if hit, ok, cerr := dataq.LookupInto[domain.ValuationSignal](s.cache, "valuation")(ctx); cerr == nil && ok {
			return hit, true, nil
		}
		return dataq.Cached[domain.ValuationSignal]{}, false, nil
	}
	sig := classifyValuation(pct)
	sig.Narrative = fmt.Sprintf("(缓存) PE分位 %.0f%%", pct)
	storedAt, _ := time.Parse("2006-01-02", date)
	return dataq.Cached[domain.ValuationSignal]{Value: sig, StoredAt: storedAt}, true, nil
}

func classifyValuation(pct float64) domain.ValuationSignal {
	sig := domain.ValuationSignal{PEPercentile: pct}
	switch {
	case pct < 20:
		sig.PositionMultiplier = 1.5
		sig.Narrative = fmt.Sprintf("沪深300 PE 分位 %.0f%%，处于历史极低区域，是最佳建仓时机", pct)
	case pct < 30:
		sig.PositionMultiplier = 1.3
		sig.Narrative = fmt.Sprintf("沪深300 PE 分位 %.0f%%，低估区域，适合加大投入", pct)
	case pct < 70:
		sig.PositionMultiplier = 1.0
		sig.Narrative = fmt.Sprintf("沪深300 PE 分位 %.0f%%，估值中性", pct)
	case pct < 80:
		sig.PositionMultiplier = 0.6
		sig.Narrative = fmt.Sprintf("沪深300 PE 分位 %.0f%%，高估区域，应减少投入", pct)
	default:
		sig.PositionMultiplier = 0.3
		sig.Narrative = fmt.Sprintf("沪深300 PE 分位 %.0f%%，极度高估，应逐步撤退", pct)
	}
	return sig
}

// --- macro ---

func (s *EnrichmentService) macro(ctx context.Context) dataq.Result[domain.MacroSnapshot] {
	return dataq.Get(ctx, s.log, dataq.Source[domain.MacroSnapshot]{
		Name:   "macro",
		Fetch:  s.fetchMacro,
		Lookup: dataq.LookupInto[domain.MacroSnapshot](s.cache, "macro"),
		Default: func() domain.MacroSnapshot {
			return domain.MacroSnapshot{CreditCycle: domain.CycleUnknown, CycleSignal: "均衡", Narrative: "宏观数据不可用"}
		},
		TTL: macroTTL,
	})
}

// fetchMacro classifies the credit cycle from the two newest readings
// of PMI and M2 growth. Macro series update monthly, so anything from
// the last 45 days still counts as live.
func (s *EnrichmentService) fetchMacro(ctx context.Context) (domain.MacroSnapshot, bool, error) {
	pmi, _, pmiDate, pmiOK, err := s.indicatorTrend(ctx, "pmi")
	if err != nil {
		return domain.MacroSnapshot{}, false, err
	}
	m2, m2Up, m2Date, m2OK, err := s.indicatorTrend(ctx, "m2_yoy")
	if err != nil {
		return domain.MacroSnapshot{}, false, err
	}
	if !pmiOK && !m2OK {
		return domain.MacroSnapshot{}, false, nil
	}
	if !pmiOK {
		pmi = 50
	}
	if !m2OK {
		m2 = 8
	}
	latest := pmiDate
	if m2Date.After(latest) {
		latest = m2Date
	}
	if latest.IsZero() || time.Since(latest) > 45*24*time.Hour {
		return domain.MacroSnapshot{}, false, nil
	}

	snap := classifyMacro(pmi, m2, m2Up)
	if err := s.cache.Put(ctx, "macro", snap); err != nil {
		s.log.Debug().Err(err).Msg("cache macro snapshot failed")
	}
	return snap, true, nil
}

// indicatorTrend returns the latest value of one macro series and
// whether it rose vs the previous reading.
func (s *EnrichmentService) indicatorTrend(ctx context.Context, name string) (value float64, rising bool, latest time.Time, ok bool, err error) {
	rows, qerr := s.db.Conn().QueryContext(ctx, `
		SELECT indicator_date, value FROM macro_indicators
		WHERE indicator_name = ?
		ORDER BY indicator_date DESC LIMIT 2`, name)
	if qerr != nil {
		return 0, false, time.Time{}, false, fmt.Errorf("load macro indicator %s: %w", name, qerr)
	}
	defer rows.Close()

	var (
		dates  []string
		values []float64
	)
	for rows.Next() {
		var (
			d string
			v float64
		)
		if err := rows.Scan(&d, &v); err != nil {
			return 0, false, time.Time{}, false, err
		}
		dates = append(dates, d)
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return 0, false, time.Time{}, false, err
	}
	if len(values) == 0 {
		return 0, false, time.Time{}, false, nil
	}
	latest, _ = time.Parse("2006-01-02", dates[0])
	rising = len(values) < 2 || values[0] >= values[1]
	return values[0], rising, latest, true, nil
}

func classifyMacro(pmi, m2 float64, m2Rising bool) domain.MacroSnapshot {
	expanding := pmi > 50
	switch {
	case expanding && m2Rising:
		return domain.MacroSnapshot{
			CreditCycle: domain.CycleExpansion,
			CycleSignal: "偏股",
			Narrative:   fmt.Sprintf("PMI %.1f (扩张) + M2 增速 %.1f%% (上行)，信贷宽松期，利好权益资产", pmi, m2),
		}
	case expanding && !m2Rising:
		return domain.MacroSnapshot{
			CreditCycle: domain.CyclePeak,
			CycleSignal: "均衡",
			Narrative:   fmt.Sprintf("PMI %.1f (扩张) + M2 增速 %.1f%% (下行)，经济见顶期，注意风险", pmi, m2),
		}
	case !expanding && !m2Rising:
		return domain.MacroSnapshot{
			CreditCycle: domain.CycleContraction,
			CycleSignal: "偏债",
			Narrative:   fmt.Sprintf("PMI %.1f (收缩) + M2 增速 %.1f%% (下行)，信贷紧缩期，减少权益", pmi, m2),
		}
	default:
		return domain.MacroSnapshot{
			CreditCycle: domain.CycleRecovery,
			CycleSignal: "偏股",
			Narrative:   fmt.Sprintf("PMI %.1f (收缩) + M2 增速 %.1f%% (上行)，政策底信号，可左侧布局", pmi, m2),
		}
	}
}

// --- sentiment ---

func (s *EnrichmentService) sentiment(ctx context.Context) dataq.Result[domain.SentimentSnapshot] {
	return dataq.Get(ctx, s.log, dataq.Source[domain.SentimentSnapshot]{
		Name:   "sentiment",
		Fetch:  s.fetchSentiment,
		Lookup: s.lookupSentiment,
		Default: func() domain.SentimentSnapshot {
			return domain.SentimentSnapshot{Score: 50, Level: "中性", Signal: "正常", Narrative: "情绪数据不可用"}
		},
		TTL: sentimentTTL,
	})
}

// fetchSentiment reads the position of today's margin balance within
// its own history. The percentile is a contrarian gauge: extreme highs
// mean crowded leverage, extreme lows mean washed-out sentiment. Only
// counts as live while the newest reading is recent.
func (s *EnrichmentService) fetchSentiment(ctx context.Context) (domain.SentimentSnapshot, bool, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT trade_date, value FROM sentiment_indicators
		WHERE indicator_name = ?
		ORDER BY trade_date ASC`, sentimentIndicator)
	if err != nil {
		return domain.SentimentSnapshot{}, false, fmt.Errorf("load margin balance series: %w", err)
	}
	defer rows.Close()

	var (
		values     []float64
		latestDate string
	)
	for rows.Next() {
		var (
			date string
			v    float64
		)
		if err := rows.Scan(&date, &v); err != nil {
			return domain.SentimentSnapshot{}, false, fmt.Errorf("scan margin balance row: %w", err)
		}
		values = append(values, v)
		latestDate = date
	}
	if err := rows.Err(); err != nil {
		return domain.SentimentSnapshot{}, false, err
	}
	if len(values) < 60 {
		return domain.SentimentSnapshot{}, false, nil
	}
	if d, err := time.Parse("2006-01-02", latestDate); err != nil || time.Since(d) > 7*24*time.Hour {
		return domain.SentimentSnapshot{}, false, nil
	}

	current := values[len(values)-1]
	below := 0
	for _, v := range values {
		if v < current {
			below++
		}
	}
	pct := float64(below) / float64(len(values)) * 100

	snap := classifySentiment(pct)
	snap.Trend = marginTrend(values)
	snap.Narrative = fmt.Sprintf("融资余额分位 %.0f%% (%s)，趋势%s。%s信号。", pct, snap.Level, snap.Trend, snap.Signal)
	if err := s.cache.Put(ctx, "sentiment", snap); err != nil {
		s.log.Debug().Err(err).Msg("cache sentiment snapshot failed")
	}
	return snap, true, nil
}

// lookupSentiment reclassifies the last computed percentile when the
// series is too short or too stale to recompute.
func (s *EnrichmentService) lookupSentiment(ctx context.Context) (dataq.Cached[domain.SentimentSnapshot], bool, error) {
	if hit, ok, err := dataq.LookupInto[domain.SentimentSnapshot](s.cache, "sentiment")(ctx); err == nil && ok {
		hit.Value.Narrative = fmt.Sprintf("(缓存) 融资余额分位 %.0f%%", hit.Value.Percentile)
		return hit, true, nil
	}
	return dataq.Cached[domain.SentimentSnapshot]{}, false, nil
}

// marginTrend compares the 5-day and 20-day means of the margin
// balance tail to call the direction of the leverage flow.
func marginTrend(values []float64) string {
	if len(values) < 20 {
		return "未知"
	}
	tail := values[len(values)-20:]
	ma20 := stat.Mean(tail, nil)
	ma5 := stat.Mean(tail[len(tail)-5:], nil)
	if ma5 >= ma20 {
		return "上升"
	}
	return "下降"
}

func classifySentiment(pct float64) domain.SentimentSnapshot {
	snap := domain.SentimentSnapshot{Score: pct, Percentile: pct}
	switch {
	case pct > 90:
		snap.Level = "极度贪婪"
		snap.Signal = "强烈看空"
	case pct > 75:
		snap.Level = "贪婪"
		snap.Signal = "谨慎"
	case pct < 10:
		snap.Level = "极度恐惧"
		snap.Signal = "强烈看多"
	case pct < 25:
		snap.Level = "恐惧"
		snap.Signal = "积极"
	default:
		snap.Level = "中性"
		snap.Signal = "正常"
	}
	return snap
}

// --- manager scores ---

func (s *EnrichmentService) managerScores(ctx context.Context) dataq.Result[map[string]domain.ManagerScore] {
	return dataq.Get(ctx, s.log, dataq.Source[map[string]domain.ManagerScore]{
		Name:    "manager_scores",
		Fetch:   s.fetchManagerScores,
		Lookup:  dataq.LookupInto[map[string]domain.ManagerScore](s.cache, "manager_scores"),
		Default: func() map[string]domain.ManagerScore { return nil },
		TTL:     managerTTL,
	})
}

func (s *EnrichmentService) fetchManagerScores(ctx context.Context) (map[string]domain.ManagerScore, bool, error) {
	items, err := s.watchlist.List(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(items) > managerFundLimit {
		items = items[:managerFundLimit]
	}

	scores := make(map[string]domain.ManagerScore, len(items))
	for _, item := range items {
		navs, err := s.funds.NAVHistory(ctx, item.FundCode, 0)
		if err != nil {
			s.log.Warn().Err(err).Str("fund", item.FundCode).Msg("manager score skipped")
			continue
		}
		prices := make([]float64, len(navs))
		for i, n := range navs {
			prices[i] = n.NAV
		}
		score := ScoreTrackRecord(prices)
		scores[item.FundCode] = score
		if err := s.persistManagerScore(ctx, item.FundCode, len(prices), score); err != nil {
			s.log.Debug().Err(err).Str("fund", item.FundCode).Msg("persist manager score failed")
		}
	}
	if len(scores) == 0 {
		return nil, false, nil
	}
	if err := s.cache.Put(ctx, "manager_scores", scores); err != nil {
		s.log.Debug().Err(err).Msg("cache manager scores failed")
	}
	return scores, true, nil
}

func (s *EnrichmentService) persistManagerScore(ctx context.Context, fundCode string, navCount int, score domain.ManagerScore) error {
	name := "未知"
	_ = s.db.Conn().QueryRowContext(ctx,
		`SELECT manager_name FROM fund_managers WHERE fund_code = ? LIMIT 1`, fundCode).Scan(&name)
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO fund_managers (fund_code, manager_name, tenure_years, grade, score, evaluated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(fund_code, manager_name) DO UPDATE SET
			tenure_years = excluded.tenure_years,
			grade = excluded.grade,
			score = excluded.score,
			evaluated_at = CURRENT_TIMESTAMP`,
		fundCode, name, float64(navCount)/250, score.Grade, score.Score)
	return err
}

// ScoreTrackRecord grades a manager's NAV track record on a 0-100
// scale: tenure, annualized return, drawdown control, Sharpe and
// style consistency each move the base score of 50.
func ScoreTrackRecord(prices []float64) domain.ManagerScore {
	if len(prices) < 120 {
		return domain.ManagerScore{Score: 50, Grade: "C", Reasons: []string{"数据不足 (<120 天)"}}
	}

	score := 50.0
	var reasons []string

	years := float64(len(prices)) / 250
	switch {
	case years >= 5:
		score += 15
		reasons = append(reasons, fmt.Sprintf("数据覆盖 %.1f 年，穿越多个周期", years))
	case years >= 3:
		score += 10
		reasons = append(reasons, fmt.Sprintf("数据覆盖 %.1f 年", years))
	case years >= 1:
		score += 5
		reasons = append(reasons, fmt.Sprintf("数据覆盖 %.1f 年，样本尚短", years))
	}

	total := prices[len(prices)-1]/prices[0] - 1
	annualized := math.Pow(1+total, 1/math.Max(years, 0.5)) - 1
	switch {
	case annualized > 0.15:
		score += 15
		reasons = append(reasons, fmt.Sprintf("年化收益 %.1f%%，优秀", annualized*100))
	case annualized > 0.08:
		score += 10
		reasons = append(reasons, fmt.Sprintf("年化收益 %.1f%%，良好", annualized*100))
	case annualized > 0:
		score += 5
		reasons = append(reasons, fmt.Sprintf("年化收益 %.1f%%，为正", annualized*100))
	}

	maxDD, _, _ := indicators.MaxDrawdown(prices)
	switch {
	case maxDD > -0.20:
		score += 10
		reasons = append(reasons, fmt.Sprintf("最大回撤 %.1f%%，控制良好", maxDD*100))
	case maxDD > -0.30:
		score += 5
		reasons = append(reasons, fmt.Sprintf("最大回撤 %.1f%%，尚可", maxDD*100))
	default:
		score -= 5
		reasons = append(reasons, fmt.Sprintf("最大回撤 %.1f%%，较大", maxDD*100))
	}

	returns := indicators.DailyReturns(prices)
	sharpe := indicators.SharpeRatio(returns, 0.02)
	switch {
	case sharpe > 1.5:
		score += 10
		reasons = append(reasons, fmt.Sprintf("夏普 %.2f，风险调整收益优秀", sharpe))
	case sharpe > 0.8:
		score += 5
		reasons = append(reasons, fmt.Sprintf("夏普 %.2f，风险调整收益良好", sharpe))
	}

	if vov, ok := volOfVol(returns, 20); ok && vov < 0.3 {
		score += 5
		reasons = append(reasons, "风格稳定，波动率一致")
	}

	score = math.Max(0, math.Min(100, score))
	return domain.ManagerScore{Score: score, Grade: gradeFor(score), Reasons: reasons}
}

// volOfVol measures style drift as the dispersion of rolling-window
// volatility relative to its mean. Needs at least three windows.
func volOfVol(returns []float64, window int) (float64, bool) {
	if len(returns) < window*3 {
		return 0, false
	}
	var vols []float64
	for i := window; i <= len(returns); i += window {
		vols = append(vols, stat.StdDev(returns[i-window:i], nil))
	}
	mean := stat.Mean(vols, nil)
	if mean == 0 || math.IsNaN(mean) {
		return 0, false
	}
	return stat.StdDev(vols, nil) / mean, true
}

func gradeFor(score float64) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 65:
		return "B"
	case score >= 50:
		return "C"
	default:
		return "D"
	}
}
