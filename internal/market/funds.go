// Package market owns fund, index and watchlist persistence plus the
// enrichment fetch that turns raw rows into the strategy inputs.
package market

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
)

// FundRepo reads and writes fund identities and NAV history.
type FundRepo struct {
	db  *database.DB
	log zerolog.Logger
}

func NewFundRepo(db *database.DB, log zerolog.Logger) *FundRepo {
	return &FundRepo{db: db, log: log.With().Str("component", "fund_repo").Logger()}
}

// Upsert stores the fund identity row.
func (r *FundRepo) Upsert(ctx context.Context, f domain.Fund) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO funds (fund_code, fund_name, fund_type, company)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fund_code) DO UPDATE SET
			fund_name = excluded.fund_name,
			fund_type = excluded.fund_type,
			company   = excluded.company`,
		f.Code, f.Name, f.Type, f.Company)
	if err != nil {
		return fmt.Errorf("upsert fund %s: %w", f.Code, err)
	}
	return nil
}

// Get returns the fund identity, or nil when unknown.
func (r *FundRepo) Get(ctx context.Context, fundCode string) (*domain.Fund, error) {
	var f domain.Fund
	var fundType, company sql.NullString
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT fund_code, fund_name, fund_type, company FROM funds WHERE fund_code = ?`,
		fundCode).Scan(&f.Code, &f.Name, &fundType, &company)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fund %s: %w", fundCode, err)
	}
	f.Type = fundType.String
	f.Company = company.String
	return &f, nil
}

// SaveNAVs bulk-upserts NAV rows inside one transaction.
func (r *FundRepo) SaveNAVs(ctx context.Context, navs []domain.FundNAV) error {
	if len(navs) == 0 {
		return nil
	}
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fund_nav (fund_code, nav_date, nav, acc_nav, daily_return)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(fund_code, nav_date) DO UPDATE SET
				nav = excluded.nav,
				acc_nav = excluded.acc_nav,
				daily_return = excluded.daily_return`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, n := range navs {
			if _, err := stmt.ExecContext(ctx, n.FundCode, n.Date, n.NAV,
				nullIfZero(n.AccNAV), nullIfZero(n.DailyReturn)); err != nil {
				return fmt.Errorf("save nav %s@%s: %w", n.FundCode, n.Date, err)
			}
		}
		return nil
	})
}

// NAVHistory returns up to limit NAV rows date ascending. limit <= 0
// means unbounded.
func (r *FundRepo) NAVHistory(ctx context.Context, fundCode string, limit int) ([]domain.FundNAV, error) {
	query := `
		SELECT fund_code, nav_date, nav, COALESCE(acc_nav, 0), COALESCE(daily_return, 0)
		FROM (
			SELECT * FROM fund_nav WHERE fund_code = ? ORDER BY nav_date DESC %s
		) ORDER BY nav_date ASC`
	args := []interface{}{fundCode}
	if limit > 0 {
		query = fmt.Sprintf(query, "LIMIT ?")
		args = append(args, limit)
	} else {
		query = fmt.Sprintf(query, "")
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nav history %s: %w", fundCode, err)
	}
	defer rows.Close()

	var out []domain.FundNAV
	for rows.Next() {
		var n domain.FundNAV
		if err := rows.Scan(&n.FundCode, &n.Date, &n.NAV, &n.AccNAV, &n.DailyReturn); err != nil {
			return nil, fmt.Errorf("scan nav row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// LatestNAV returns the newest NAV row, or nil with no history.
func (r *FundRepo) LatestNAV(ctx context.Context, fundCode string) (*domain.FundNAV, error) {
	var n domain.FundNAV
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT fund_code, nav_date, nav, COALESCE(acc_nav, 0), COALESCE(daily_return, 0)
		FROM fund_nav WHERE fund_code = ?
		ORDER BY nav_date DESC LIMIT 1`,
		fundCode).Scan(&n.FundCode, &n.Date, &n.NAV, &n.AccNAV, &n.DailyReturn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest nav %s: %w", fundCode, err)
	}
	return &n, nil
}

// LoadFundData assembles the strategy input for each watched fund.
// Funds without NAV history are skipped with a warning rather than
// failing the whole batch.
func (r *FundRepo) LoadFundData(ctx context.Context, items []domain.WatchItem, historyLimit int) ([]*domain.FundData, error) {
	var out []*domain.FundData
	for _, item := range items {
		navs, err := r.NAVHistory(ctx, item.FundCode, historyLimit)
		if err != nil {
			return nil, err
		}
		if len(navs) == 0 {
			r.log.Warn().Str("fund", item.FundCode).Msg("no nav history, skipping")
			continue
		}

		name := item.FundCode
		if f, err := r.Get(ctx, item.FundCode); err == nil && f != nil {
			name = f.Name
		}
		out = append(out, &domain.FundData{
			FundCode:   item.FundCode,
			Name:       name,
			Category:   item.Category,
			NAVHistory: navs,
		})
	}
	return out, nil
}

// CodesWithHistory lists fund codes having at least minRows NAV rows.
func (r *FundRepo) CodesWithHistory(ctx context.Context, minRows int) ([]string, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT fund_code FROM fund_nav
		GROUP BY fund_code HAVING COUNT(*) >= ?
		ORDER BY fund_code`, minRows)
	if err != nil {
		return nil, fmt.Errorf("codes with history: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func nullIfZero(v float64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
