package portfolio

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/athang/pixiu/internal/domain"
	"github.com/athang/pixiu/pkg/indicators"
)

// Account is the computed end-of-day account state.
type Account struct {
	Date           string           `json:"date"`
	TotalValue     float64          `json:"total_value"`
	Cash           float64          `json:"cash"`
	Invested       float64          `json:"invested"`
	ProfitLoss     float64          `json:"total_profit_loss"`
	ReturnPct      float64          `json:"total_return_pct"`
	MaxDrawdownPct float64          `json:"max_drawdown_pct"`
	Holdings       []domain.Holding `json:"holdings"`
}

// AccountState values the open positions at their current NAV and
// measures the account against initial capital. Max drawdown runs over
// the snapshot history plus today's value.
func (r *Repo) AccountState(ctx context.Context, cash, initialCapital float64) (Account, error) {
	holdings, err := r.OpenHoldings(ctx)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		Date:     r.now().Format("2006-01-02"),
		Cash:     cash,
		Holdings: holdings,
	}
	for _, h := range holdings {
		acct.Invested += h.MarketValue()
	}
	acct.TotalValue = cash + acct.Invested
	if initialCapital > 0 {
		acct.ProfitLoss = acct.TotalValue - initialCapital
		acct.ReturnPct = round2(acct.ProfitLoss / initialCapital * 100)
	}

	curve, err := r.EquityCurve(ctx, 0)
	if err != nil {
		return Account{}, err
	}
	curve = append(curve, acct.TotalValue)
	maxDD, _, _ := indicators.MaxDrawdown(curve)
	acct.MaxDrawdownPct = round2(maxDD * 100)
	return acct, nil
}

// SaveSnapshot upserts today's account snapshot, one row per date.
func (r *Repo) SaveSnapshot(ctx context.Context, acct Account) error {
	holdingsJSON, err := json.Marshal(acct.Holdings)
	if err != nil {
		return fmt.Errorf("encode holdings: %w", err)
	}
	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT OR REPLACE INTO account_snapshots
			(snapshot_date, total_value, cash, invested, total_profit_loss, total_return_pct, max_drawdown_pct, holdings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.Date, acct.TotalValue, acct.Cash, acct.Invested,
		acct.ProfitLoss, acct.ReturnPct, acct.MaxDrawdownPct, string(holdingsJSON))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", acct.Date, err)
	}
	return nil
}

// EquityCurve returns total account values in date order, optionally
// limited to the most recent n snapshots.
func (r *Repo) EquityCurve(ctx context.Context, limit int) ([]float64, error) {
	query := `SELECT total_value FROM account_snapshots ORDER BY snapshot_date ASC`
	args := []any{}
	if limit > 0 {
		query = `SELECT total_value FROM (
			SELECT snapshot_date, total_value FROM account_snapshots
			ORDER BY snapshot_date DESC LIMIT ?
		) ORDER BY snapshot_date ASC`
		args = append(args, limit)
	}
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load equity curve: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatestCash returns the cash balance from the newest snapshot, or
// fallback when no snapshot exists yet.
func (r *Repo) LatestCash(ctx context.Context, fallback float64) (float64, error) {
	var cash float64
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT cash FROM account_snapshots ORDER BY snapshot_date DESC LIMIT 1`).Scan(&cash)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("load latest cash: %w", err)
	}
	return cash, nil
}
