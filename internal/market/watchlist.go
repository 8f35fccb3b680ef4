package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
)

// WatchlistRepo manages the fund observation pool.
type WatchlistRepo struct {
	db  *database.DB
	log zerolog.Logger
	now func() time.Time
}

func NewWatchlistRepo(db *database.DB, log zerolog.Logger) *WatchlistRepo {
	return &WatchlistRepo{
		db:  db,
		log: log.With().Str("component", "watchlist").Logger(),
		now: time.Now,
	}
}

// Add puts a fund under observation. Re-adding updates reason and
// category in place.
func (r *WatchlistRepo) Add(ctx context.Context, item domain.WatchItem) error {
	if item.AddedDate == "" {
		item.AddedDate = r.now().Format("2006-01-02")
	}
	if item.Category == "" {
		item.Category = domain.CategoryEquity
	}
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO watchlist (fund_code, added_date, reason, target_action, notes, category)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fund_code) DO UPDATE SET
			reason = excluded.reason,
			target_action = excluded.target_action,
			category = excluded.category`,
		item.FundCode, item.AddedDate, item.Reason, item.TargetAction,
		item.Notes, string(item.Category))
	if err != nil {
		return fmt.Errorf("add watch item %s: %w", item.FundCode, err)
	}
	return nil
}

// Remove drops a fund from observation.
func (r *WatchlistRepo) Remove(ctx context.Context, fundCode string) error {
	res, err := r.db.Conn().ExecContext(ctx,
		`DELETE FROM watchlist WHERE fund_code = ?`, fundCode)
	if err != nil {
		return fmt.Errorf("remove watch item %s: %w", fundCode, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fund %s not on watchlist", fundCode)
	}
	return nil
}

// List returns all watched funds ordered by code.
func (r *WatchlistRepo) List(ctx context.Context) ([]domain.WatchItem, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT fund_code, added_date, COALESCE(reason,''), COALESCE(target_action,''),
		       COALESCE(notes,''), COALESCE(category,'equity')
		FROM watchlist ORDER BY fund_code`)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var out []domain.WatchItem
	for rows.Next() {
		var item domain.WatchItem
		var category string
		if err := rows.Scan(&item.FundCode, &item.AddedDate, &item.Reason,
			&item.TargetAction, &item.Notes, &category); err != nil {
			return nil, fmt.Errorf("scan watch item: %w", err)
		}
		item.Category = domain.Category(category)
		out = append(out, item)
	}
	return out, rows.Err()
}

// Get returns one watch item, or nil when absent.
func (r *WatchlistRepo) Get(ctx context.Context, fundCode string) (*domain.WatchItem, error) {
	var item domain.WatchItem
	var category string
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT fund_code, added_date, COALESCE(reason,''), COALESCE(target_action,''),
		       COALESCE(notes,''), COALESCE(category,'equity')
		FROM watchlist WHERE fund_code = ?`, fundCode).
		Scan(&item.FundCode, &item.AddedDate, &item.Reason,
			&item.TargetAction, &item.Notes, &category)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watch item %s: %w", fundCode, err)
	}
	item.Category = domain.Category(category)
	return &item, nil
}

// CategoryCounts tallies watched funds per asset category.
func (r *WatchlistRepo) CategoryCounts(ctx context.Context) (map[domain.Category]int, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT COALESCE(category,'equity'), COUNT(*)
		FROM watchlist GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("watchlist category counts: %w", err)
	}
	defer rows.Close()

	out := map[domain.Category]int{}
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		out[domain.Category(category)] = n
	}
	return out, rows.Err()
}
