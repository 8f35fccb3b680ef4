package market

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
)

// IndexRepo reads and writes benchmark index bars.
type IndexRepo struct {
	db  *database.DB
	log zerolog.Logger
}

func NewIndexRepo(db *database.DB, log zerolog.Logger) *IndexRepo {
	return &IndexRepo{db: db, log: log.With().Str("component", "index_repo").Logger()}
}

// SaveBars bulk-upserts daily bars inside one transaction.
func (r *IndexRepo) SaveBars(ctx context.Context, bars []domain.IndexBar) error {
	if len(bars) == 0 {
		return nil
	}
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO market_indices (index_code, trade_date, open, high, low, close, volume, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(index_code, trade_date) DO UPDATE SET
				open = excluded.open, high = excluded.high, low = excluded.low,
				close = excluded.close, volume = excluded.volume, amount = excluded.amount`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx, b.IndexCode, b.Date,
				b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount); err != nil {
				return fmt.Errorf("save bar %s@%s: %w", b.IndexCode, b.Date, err)
			}
		}
		return nil
	})
}

// Bars returns up to limit bars date ascending.
func (r *IndexRepo) Bars(ctx context.Context, indexCode string, limit int) ([]domain.IndexBar, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT index_code, trade_date, COALESCE(open,0), COALESCE(high,0),
		       COALESCE(low,0), close, COALESCE(volume,0), COALESCE(amount,0)
		FROM (
			SELECT * FROM market_indices WHERE index_code = ?
			ORDER BY trade_date DESC LIMIT ?
		) ORDER BY trade_date ASC`, indexCode, limit)
	if err != nil {
		return nil, fmt.Errorf("index bars %s: %w", indexCode, err)
	}
	defer rows.Close()

	var out []domain.IndexBar
	for rows.Next() {
		var b domain.IndexBar
		if err := rows.Scan(&b.IndexCode, &b.Date, &b.Open, &b.High, &b.Low,
			&b.Close, &b.Volume, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan index bar: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Closes returns the closing series date ascending.
func (r *IndexRepo) Closes(ctx context.Context, indexCode string, limit int) ([]float64, error) {
	bars, err := r.Bars(ctx, indexCode, limit)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out, nil
}
