package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/athang/pixiu/internal/domain"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports database reachability plus host memory and disk
// headroom around the database file.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "healthy"
	dbStatus := "ok"
	if err := s.db.HealthCheck(ctx); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	resp := map[string]interface{}{
		"status":     status,
		"service":    "pixiu",
		"database":   dbStatus,
		"goroutines": runtime.NumGoroutine(),
		"time":       time.Now().Format(time.RFC3339),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_pct":     vm.UsedPercent,
			"available_mb": vm.Available / 1024 / 1024,
		}
	}
	if du, err := disk.Usage(filepath.Dir(s.db.Path())); err == nil {
		resp["disk"] = map[string]interface{}{
			"total_gb": du.Total / 1024 / 1024 / 1024,
			"free_gb":  du.Free / 1024 / 1024 / 1024,
			"used_pct": du.UsedPercent,
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

// handlePortfolio returns the current account state and trade statistics.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cash, err := s.book.LatestCash(ctx, s.cfg.Account.CurrentCash)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	acct, err := s.book.AccountState(ctx, cash, s.cfg.Account.InitialCapital)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.book.Stats(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": acct,
		"stats":   stats,
	})
}

type signalRow struct {
	SignalDate   string  `json:"signal_date"`
	FundCode     string  `json:"fund_code"`
	StrategyName string  `json:"strategy_name"`
	SignalType   string  `json:"signal_type"`
	Confidence   float64 `json:"confidence"`
	Regime       string  `json:"regime,omitempty"`
	NAVAtSignal  float64 `json:"nav_at_signal,omitempty"`
	Return7d     float64 `json:"return_7d,omitempty"`
	Return30d    float64 `json:"return_30d,omitempty"`
}

// handleSignals returns the most recent validated quant signals.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Conn().QueryContext(r.Context(), `
		SELECT signal_date, fund_code, strategy_name, signal_type,
		       COALESCE(confidence, 0), COALESCE(regime, ''),
		       COALESCE(nav_at_signal, 0),
		       COALESCE(return_7d, 0), COALESCE(return_30d, 0)
		FROM signal_validation
		ORDER BY signal_date DESC, id DESC
		LIMIT 100`)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	signals := make([]signalRow, 0, 100)
	for rows.Next() {
		var sig signalRow
		if err := rows.Scan(&sig.SignalDate, &sig.FundCode, &sig.StrategyName,
			&sig.SignalType, &sig.Confidence, &sig.Regime,
			&sig.NAVAtSignal, &sig.Return7d, &sig.Return30d); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(signals),
		"signals": signals,
	})
}

// handleRecommendations returns the latest agent decision together with
// the pending trades derived from it.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		decisionDate  string
		marketContext string
		llmDecision   string
		confidence    float64
		reasoning     string
		modelUsed     string
		tokensUsed    int
	)
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT decision_date, COALESCE(market_context, ''),
		       COALESCE(llm_decision, ''), COALESCE(confidence, 0),
		       COALESCE(reasoning, ''), COALESCE(model_used, ''),
		       COALESCE(tokens_used, 0)
		FROM agent_decisions
		ORDER BY decision_date DESC, id DESC
		LIMIT 1`).Scan(&decisionDate, &marketContext, &llmDecision,
		&confidence, &reasoning, &modelUsed, &tokensUsed)

	resp := map[string]interface{}{}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		resp["decision"] = nil
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	default:
		decision := map[string]interface{}{
			"decision_date":  decisionDate,
			"market_context": marketContext,
			"confidence":     confidence,
			"reasoning":      reasoning,
			"model_used":     modelUsed,
			"tokens_used":    tokensUsed,
		}
		if json.Valid([]byte(llmDecision)) {
			decision["llm_decision"] = json.RawMessage(llmDecision)
		} else {
			decision["llm_decision"] = llmDecision
		}
		resp["decision"] = decision
	}

	pending, err := s.pendingTrades(r)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp["pending_trades"] = pending

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) pendingTrades(r *http.Request) ([]domain.Trade, error) {
	rows, err := s.db.Conn().QueryContext(r.Context(), `
		SELECT id, trade_date, fund_code, action, COALESCE(amount, 0),
		       COALESCE(nav, 0), COALESCE(reason, ''), COALESCE(confidence, 0)
		FROM trades
		WHERE status = 'pending'
		ORDER BY trade_date DESC, id DESC
		LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0, 16)
	for rows.Next() {
		t := domain.Trade{Status: "pending"}
		if err := rows.Scan(&t.ID, &t.Date, &t.FundCode, &t.Action,
			&t.Amount, &t.NAV, &t.Reason, &t.Confidence); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// handleKnowledge lists active knowledge base entries.
func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	entries, err := s.knowledge.All(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type entryRow struct {
		ID             int64  `json:"id"`
		Category       string `json:"category"`
		Content        string `json:"content"`
		TimesValidated int    `json:"times_validated"`
		CreatedAt      string `json:"created_at"`
	}
	out := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryRow{
			ID:             e.ID,
			Category:       e.Category,
			Content:        e.Content,
			TimesValidated: e.TimesValidated,
			CreatedAt:      e.CreatedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(out),
		"entries": out,
	})
}

// handleJobList returns the recent job ledger.
func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"verbs": s.queue.Verbs(),
		"jobs":  s.queue.Jobs(50),
	})
}

// handleJobEnqueue queues a background job by verb.
func (s *Server) handleJobEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Verb string `json:"verb"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Verb = strings.TrimSpace(req.Verb)
	if req.Verb == "" {
		s.writeError(w, http.StatusBadRequest, "verb is required")
		return
	}

	job, err := s.queue.Enqueue(req.Verb)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, job)
}

// handleRecordTrade confirms an executed trade and applies it to the
// position ledger.
func (s *Server) handleRecordTrade(w http.ResponseWriter, r *http.Request) {
	var t domain.Trade
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	recorded, err := s.book.RecordTrade(r.Context(), t)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info().
		Str("fund", recorded.FundCode).
		Str("action", recorded.Action).
		Float64("amount", recorded.Amount).
		Msg("交易已记录")
	s.writeJSON(w, http.StatusCreated, recorded)
}
