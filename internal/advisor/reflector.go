package advisor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/config"
	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/internal/knowledge"
	"github.com/athang/pixiu/internal/llm"
)

// Reflector reviews past decisions against realized NAV moves and
// turns the model's post-mortems into durable knowledge entries.
type Reflector struct {
	cfg       *config.Config
	db        *database.DB
	brain     *Brain
	knowledge *knowledge.Store
	log       zerolog.Logger
	now       func() time.Time
}

func NewReflector(cfg *config.Config, db *database.DB, brain *Brain, kn *knowledge.Store, log zerolog.Logger) *Reflector {
	return &Reflector{
		cfg:       cfg,
		db:        db,
		brain:     brain,
		knowledge: kn,
		log:       log.With().Str("component", "reflector").Logger(),
		now:       time.Now,
	}
}

// ReflectionOutcome summarizes one reflection run.
type ReflectionOutcome struct {
	Reviewed int `json:"reviewed"`
	Lessons  int `json:"lessons"`
	Tokens   int `json:"tokens_used"`
}

// Run reflects on every decision old enough for each configured
// horizon that has not been reviewed at that horizon yet.
func (r *Reflector) Run(ctx context.Context) (ReflectionOutcome, error) {
	var out ReflectionOutcome
	for _, days := range r.cfg.LLM.ReflectionPeriods {
		period := fmt.Sprintf("%dd", days)
		pending, err := r.pendingDecisions(ctx, days, period)
		if err != nil {
			return out, err
		}
		for _, dec := range pending {
			lessons, tokens, err := r.reflectOne(ctx, dec, days, period)
			out.Tokens += tokens
			if err != nil {
				r.log.Warn().Err(err).Int64("decision", dec.ID).Str("period", period).
					Msg("reflection failed")
				continue
			}
			out.Reviewed++
			out.Lessons += lessons
		}
	}
	return out, nil
}

func (r *Reflector) pendingDecisions(ctx context.Context, days int, period string) ([]domain.AgentDecision, error) {
	cutoff := r.now().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, decision_date, COALESCE(market_context, ''), COALESCE(quant_signals, ''),
		       COALESCE(llm_analysis, ''), COALESCE(llm_decision, ''), COALESCE(confidence, 0)
		FROM agent_decisions
		WHERE decision_date <= ?
		  AND id NOT IN (SELECT COALESCE(decision_id, 0) FROM reflections WHERE period = ?)
		ORDER BY decision_date`, cutoff, period)
	if err != nil {
		return nil, fmt.Errorf("query pending decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.AgentDecision
	for rows.Next() {
		var d domain.AgentDecision
		if err := rows.Scan(&d.ID, &d.Date, &d.MarketContext, &d.QuantSignals,
			&d.LLMAnalysis, &d.LLMDecision, &d.Confidence); err != nil {
			return nil, fmt.Errorf("scan pending decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Reflector) reflectOne(ctx context.Context, dec domain.AgentDecision, days int, period string) (int, int, error) {
	outcome := r.buildActualOutcome(ctx, dec, days)

	result, tokens, err := r.brain.Reflect(ctx, dec, period, outcome)
	if err != nil {
		return 0, tokens, err
	}

	reflectionID, err := r.saveReflection(ctx, dec, period, outcome, result)
	if err != nil {
		return 0, tokens, err
	}

	saved := 0
	for _, lesson := range result.Lessons {
		if err := r.knowledge.Add(ctx, "strategy_lesson", lesson, reflectionID); err != nil {
			r.log.Warn().Err(err).Msg("saving lesson failed")
			continue
		}
		saved++
	}
	for _, suggestion := range result.StrategySuggestions {
		if err := r.knowledge.Add(ctx, "risk_insight", suggestion, reflectionID); err != nil {
			r.log.Warn().Err(err).Msg("saving suggestion failed")
			continue
		}
		saved++
	}

	r.log.Info().Int64("decision", dec.ID).Str("period", period).
		Bool("was_correct", result.WasCorrect).Int("lessons", saved).
		Msg("decision reflected")
	return saved, tokens, nil
}

// buildActualOutcome compares each recommended fund's NAV at the
// decision date against the NAV after the horizon and judges the call.
func (r *Reflector) buildActualOutcome(ctx context.Context, dec domain.AgentDecision, days int) string {
	var recs []llm.FundRecommendation
	if dec.LLMDecision != "" {
		if err := json.Unmarshal([]byte(dec.LLMDecision), &recs); err != nil {
			r.log.Debug().Err(err).Int64("decision", dec.ID).Msg("decision payload unparseable")
		}
	}

	horizon, err := time.Parse("2006-01-02", dec.Date)
	if err != nil {
		horizon = r.now().AddDate(0, 0, -days)
	}
	endDate := horizon.AddDate(0, 0, days).Format("2006-01-02")

	var lines []string
	for _, rec := range recs {
		startNAV, okStart := r.navOnOrBefore(ctx, rec.FundCode, dec.Date)
		endNAV, okEnd := r.navOnOrBefore(ctx, rec.FundCode, endDate)
		if !okStart || !okEnd || startNAV <= 0 {
			continue
		}
		change := (endNAV - startNAV) / startNAV * 100

		correct := false
		switch rec.Action {
		case "buy", "watch":
			correct = change > 0
		case "sell":
			correct = change < 0
		}
		verdict := "错误"
		if correct {
			verdict = "正确"
		}
		name := rec.FundName
		if name == "" {
			name = rec.FundCode
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): 建议%s, 实际%d天涨跌 %+.2f%% (净值 %.4f → %.4f) — %s",
			name, rec.FundCode, rec.Action, days, change, startNAV, endNAV, verdict))
	}

	if len(lines) == 0 {
		return fmt.Sprintf("决策日 %s 后 %d 天，缺少足够的净值数据进行评估。", dec.Date, days)
	}
	return strings.Join(lines, "\n")
}

func (r *Reflector) navOnOrBefore(ctx context.Context, fundCode, date string) (float64, bool) {
	var nav float64
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT nav FROM fund_nav
		WHERE fund_code = ? AND nav_date <= ?
		ORDER BY nav_date DESC LIMIT 1`, fundCode, date).Scan(&nav)
	if err == sql.ErrNoRows {
		return 0, false
	}
	if err != nil {
		r.log.Debug().Err(err).Str("fund", fundCode).Msg("nav lookup failed")
		return 0, false
	}
	return nav, true
}

func (r *Reflector) saveReflection(ctx context.Context, dec domain.AgentDecision, period, outcome string,
	result *llm.ReflectionResult) (int64, error) {

	original := dec.LLMDecision
	if len([]rune(original)) > 2000 {
		original = string([]rune(original)[:2000])
	}
	lessonsJSON, _ := json.Marshal(result.Lessons)
	suggestionsJSON, _ := json.Marshal(result.StrategySuggestions)
	wasCorrect := 0
	if result.WasCorrect {
		wasCorrect = 1
	}

	res, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO reflections
			(reflection_date, decision_id, period, original_signal, actual_outcome,
			 was_correct, reflection_text, lessons, cognitive_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.now().Format("2006-01-02"), dec.ID, period, original, outcome,
		wasCorrect, result.AccuracyAnalysis, string(lessonsJSON), string(suggestionsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert reflection: %w", err)
	}
	return res.LastInsertId()
}
