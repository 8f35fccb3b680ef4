// Package portfolio tracks positions, executed trades and account
// snapshots. Trades are confirmed manually; the repo keeps the ledger
// consistent (buy opens a lot, sell closes the fund's open lots).
package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
)

// Repo owns the portfolio, trades and account_snapshots tables.
type Repo struct {
	db  *database.DB
	log zerolog.Logger
	now func() time.Time
}

func NewRepo(db *database.DB, log zerolog.Logger) *Repo {
	return &Repo{
		db:  db,
		log: log.With().Str("component", "portfolio").Logger(),
		now: time.Now,
	}
}

// OpenHoldings returns all open positions ordered by purchase date.
func (r *Repo) OpenHoldings(ctx context.Context) ([]domain.Holding, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, fund_code, shares, cost_price, COALESCE(current_nav, cost_price),
		       buy_date, status, COALESCE(notes,'')
		FROM portfolio WHERE status = 'holding' ORDER BY buy_date`)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.ID, &h.FundCode, &h.Shares, &h.CostPrice,
			&h.CurrentNAV, &h.BuyDate, &h.Status, &h.Notes); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpdateCurrentNAV refreshes the mark price on a fund's open lots.
func (r *Repo) UpdateCurrentNAV(ctx context.Context, fundCode string, nav float64) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		UPDATE portfolio SET current_nav = ? WHERE fund_code = ? AND status = 'holding'`,
		nav, fundCode)
	if err != nil {
		return fmt.Errorf("update current nav %s: %w", fundCode, err)
	}
	return nil
}

// RecordTrade writes one confirmed trade and applies it to the
// position ledger. Shares are derived from amount and NAV when not
// supplied. A sell closes every open lot of the fund.
func (r *Repo) RecordTrade(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	if t.Date == "" {
		t.Date = r.now().Format("2006-01-02")
	}
	if t.Action != "buy" && t.Action != "sell" {
		return t, fmt.Errorf("unsupported trade action %q", t.Action)
	}
	if t.NAV <= 0 {
		return t, fmt.Errorf("trade nav must be positive, got %.4f", t.NAV)
	}
	if t.Shares == 0 {
		t.Shares = t.Amount / t.NAV
	}
	t.Status = "executed"

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trades (trade_date, fund_code, action, amount, nav, shares, fee, reason, confidence, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'executed')`,
			t.Date, t.FundCode, t.Action, t.Amount, t.NAV, t.Shares, t.Fee, t.Reason, t.Confidence)
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		t.ID, _ = res.LastInsertId()

		if t.Action == "buy" {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO portfolio (fund_code, shares, cost_price, current_nav, buy_date, status, notes)
				VALUES (?, ?, ?, ?, ?, 'holding', ?)`,
				t.FundCode, t.Shares, t.NAV, t.NAV, t.Date, t.Reason)
			if err != nil {
				return fmt.Errorf("open position: %w", err)
			}
			return nil
		}
		return r.closeLots(ctx, tx, t)
	})
	if err != nil {
		return t, err
	}

	r.log.Info().Str("fund", t.FundCode).Str("action", t.Action).
		Float64("amount", t.Amount).Float64("nav", t.NAV).Msg("trade recorded")
	return t, nil
}

// closeLots marks every open lot of the fund as sold at the trade NAV
// and books the realized profit per lot.
func (r *Repo) closeLots(ctx context.Context, tx *sql.Tx, t domain.Trade) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, shares, cost_price FROM portfolio
		WHERE fund_code = ? AND status = 'holding' ORDER BY buy_date`, t.FundCode)
	if err != nil {
		return fmt.Errorf("load open lots: %w", err)
	}
	type lot struct {
		id     int64
		shares float64
		cost   float64
	}
	var lots []lot
	for rows.Next() {
		var l lot
		if err := rows.Scan(&l.id, &l.shares, &l.cost); err != nil {
			rows.Close()
			return err
		}
		lots = append(lots, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(lots) == 0 {
		return fmt.Errorf("no open position in %s to sell", t.FundCode)
	}

	for _, l := range lots {
		pl := (t.NAV - l.cost) * l.shares
		plPct := 0.0
		if l.cost > 0 {
			plPct = (t.NAV - l.cost) / l.cost * 100
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE portfolio SET status = 'sold', sell_date = ?, sell_nav = ?,
			       profit_loss = ?, profit_loss_pct = ?
			WHERE id = ?`,
			t.Date, t.NAV, round2(pl), round2(plPct), l.id)
		if err != nil {
			return fmt.Errorf("close lot %d: %w", l.id, err)
		}
	}
	return nil
}

// SavePending stores an advisory recommendation as a pending trade
// awaiting manual confirmation.
func (r *Repo) SavePending(ctx context.Context, t domain.Trade) (int64, error) {
	if t.Date == "" {
		t.Date = r.now().Format("2006-01-02")
	}
	res, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO trades (trade_date, fund_code, action, amount, nav, shares, reason, confidence, report_path, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')`,
		t.Date, t.FundCode, t.Action, t.Amount, t.NAV, t.Shares, t.Reason, t.Confidence, t.ReportPath)
	if err != nil {
		return 0, fmt.Errorf("save pending trade: %w", err)
	}
	return res.LastInsertId()
}

// RecentTrades returns the newest trades first.
func (r *Repo) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, trade_date, fund_code, action, COALESCE(amount,0), COALESCE(nav,0),
		       COALESCE(shares,0), COALESCE(fee,0), COALESCE(reason,''),
		       COALESCE(confidence,0), COALESCE(report_path,''), status
		FROM trades ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.Date, &t.FundCode, &t.Action, &t.Amount, &t.NAV,
			&t.Shares, &t.Fee, &t.Reason, &t.Confidence, &t.ReportPath, &t.Status); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradeStats summarizes the executed-trade journal.
type TradeStats struct {
	TotalTrades     int     `json:"total_trades"`
	BuyTrades       int     `json:"buy_trades"`
	SellTrades      int     `json:"sell_trades"`
	ClosedPositions int     `json:"closed_positions"`
	WinCount        int     `json:"win_count"`
	LossCount       int     `json:"loss_count"`
	WinRate         float64 `json:"win_rate"`
	AvgProfit       float64 `json:"avg_profit"`
	AvgLoss         float64 `json:"avg_loss"`
	TotalInvested   float64 `json:"total_invested"`
}

// Stats aggregates executed trades and closed lots. Win rate is over
// closed positions, profit/loss averages are in percent.
func (r *Repo) Stats(ctx context.Context) (TradeStats, error) {
	var s TradeStats
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN action = 'buy' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN action = 'sell' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN action = 'buy' THEN COALESCE(amount,0) ELSE 0 END)
		FROM trades WHERE status = 'executed'`).
		Scan(&s.TotalTrades, nullInt(&s.BuyTrades), nullInt(&s.SellTrades), nullFloat(&s.TotalInvested))
	if err != nil {
		return s, fmt.Errorf("trade stats: %w", err)
	}

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT COALESCE(profit_loss_pct, 0) FROM portfolio WHERE status = 'sold'`)
	if err != nil {
		return s, fmt.Errorf("closed positions: %w", err)
	}
	defer rows.Close()

	var profitSum, lossSum float64
	for rows.Next() {
		var pct float64
		if err := rows.Scan(&pct); err != nil {
			return s, err
		}
		s.ClosedPositions++
		if pct > 0 {
			s.WinCount++
			profitSum += pct
		} else {
			s.LossCount++
			lossSum += pct
		}
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	if s.ClosedPositions > 0 {
		s.WinRate = math.Round(float64(s.WinCount)/float64(s.ClosedPositions)*1000) / 10
	}
	if s.WinCount > 0 {
		s.AvgProfit = round2(profitSum / float64(s.WinCount))
	}
	if s.LossCount > 0 {
		s.AvgLoss = round2(lossSum / float64(s.LossCount))
	}
	s.TotalInvested = round2(s.TotalInvested)
	return s, nil
}

// nullInt / nullFloat scan SUM() results that are NULL on empty sets.
type nullIntScanner struct{ dest *int }

func nullInt(dest *int) *nullIntScanner { return &nullIntScanner{dest: dest} }

func (s *nullIntScanner) Scan(v any) error {
	var n sql.NullInt64
	if err := n.Scan(v); err != nil {
		return err
	}
	*s.dest = int(n.Int64)
	return nil
}

type nullFloatScanner struct{ dest *float64 }

func nullFloat(dest *float64) *nullFloatScanner { return &nullFloatScanner{dest: dest} }

func (s *nullFloatScanner) Scan(v any) error {
	var n sql.NullFloat64
	if err := n.Scan(v); err != nil {
		return err
	}
	*s.dest = n.Float64
	return nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
