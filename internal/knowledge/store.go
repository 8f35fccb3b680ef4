// Package knowledge stores distilled lessons from reflection cycles
// and retrieves the ones relevant to the current market state. Lookup
// prefers an FTS5 hybrid ranking and degrades to a plain validation
// ordering when full-text search is unavailable.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	CategoryStrategyLesson = "strategy_lesson"
	CategoryRiskInsight    = "risk_insight"
	CategoryMarketPattern  = "market_pattern"
)

// CategoryNames maps storage categories to display labels.
var CategoryNames = map[string]string{
	CategoryStrategyLesson: "策略教训",
	CategoryRiskInsight:    "风险洞察",
	CategoryMarketPattern:  "市场规律",
}

// Entry is one knowledge_base row.
type Entry struct {
	ID             int64
	Category       string
	Content        string
	TimesValidated int
	CreatedAt      string
}

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "knowledge").Logger()}
}

// Add inserts a lesson, or bumps times_validated when an active entry
// with identical content already exists. The base row and its FTS
// index row are written in one transaction; FTS statement failures
// are logged and swallowed so a missing fts5 build never blocks
// learning.
func (s *Store) Add(ctx context.Context, category, content string, sourceReflectionID int64) error {
	var existingID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM knowledge_base WHERE content = ? AND is_active = 1`,
		content).Scan(&existingID)

	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE knowledge_base SET times_validated = times_validated + 1 WHERE id = ?`,
			existingID)
		if err != nil {
			return fmt.Errorf("bump knowledge validation: %w", err)
		}
		return nil

	case err == sql.ErrNoRows:
		var ref interface{}
		if sourceReflectionID > 0 {
			ref = sourceReflectionID
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin knowledge insert: %w", err)
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_base (category, content, source_reflection_id) VALUES (?, ?, ?)`,
			category, content, ref)
		if err != nil {
			return fmt.Errorf("insert knowledge: %w", err)
		}
		if rowID, idErr := res.LastInsertId(); idErr == nil {
			_, ftsErr := tx.ExecContext(ctx,
				`INSERT INTO knowledge_fts(rowid, content, category) VALUES (?, ?, ?)`,
				rowID, content, category)
			if ftsErr != nil {
				s.log.Debug().Err(ftsErr).Msg("fts index sync skipped")
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit knowledge insert: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("lookup knowledge: %w", err)
	}
}

// Relevant returns up to limit lesson texts ranked for the given
// market state. The primary path blends FTS match rank, validation
// count (capped at 10) and recency decay; on FTS error or empty match
// it falls back to times_validated then recency.
func (s *Store) Relevant(ctx context.Context, regime string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kb.content
		FROM knowledge_base kb
		JOIN knowledge_fts fts ON kb.id = fts.rowid
		WHERE knowledge_fts MATCH ?
		  AND kb.is_active = 1
		ORDER BY rank * -0.4
		    + MIN(kb.times_validated, 10) * 0.3
		    + (1.0 / (1 + julianday('now') - julianday(kb.created_at))) * 50 * 0.3
		DESC LIMIT ?`, regime, limit)
	if err == nil {
		lessons, scanErr := scanContents(rows)
		if scanErr == nil && len(lessons) > 0 {
			return lessons, nil
		}
		if scanErr != nil {
			s.log.Debug().Err(scanErr).Msg("fts knowledge lookup degraded")
		}
	} else {
		s.log.Debug().Err(err).Msg("fts knowledge lookup degraded")
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT content FROM knowledge_base
		WHERE is_active = 1
		ORDER BY times_validated DESC, created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("fallback knowledge lookup: %w", err)
	}
	return scanContents(rows)
}

func scanContents(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// All lists active entries ordered by validation count then recency,
// for the knowledge report.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, content, times_validated, created_at
		FROM knowledge_base
		WHERE is_active = 1
		ORDER BY times_validated DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt sql.NullString
		if err := rows.Scan(&e.ID, &e.Category, &e.Content, &e.TimesValidated, &createdAt); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		e.CreatedAt = createdAt.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Deactivate retires a lesson without deleting its history. The FTS
// row is removed in the same transaction so a retired lesson can no
// longer surface through full-text ranking.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin knowledge deactivate: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE knowledge_base SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate knowledge %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("knowledge entry %d not found", id)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM knowledge_fts WHERE rowid = ?`, id); err != nil {
		s.log.Debug().Err(err).Msg("fts index cleanup skipped")
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit knowledge deactivate: %w", err)
	}
	return nil
}
