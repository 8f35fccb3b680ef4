package dataq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// CacheStore persists enrichment payloads keyed by concern. Values
// are msgpack-encoded so arbitrary snapshot structs round-trip
// without per-type tables.
type CacheStore struct {
	db *sql.DB
}

func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

// Put encodes and upserts a payload under key.
func (s *CacheStore) Put(ctx context.Context, key string, value any) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache payload %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_cache (cache_key, payload, stored_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			stored_at = excluded.stored_at`,
		key, payload, time.Now().Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("store cache payload %s: %w", key, err)
	}
	return nil
}

// Get decodes the payload stored under key into dest and reports when
// it was stored. ok is false on a miss.
func (s *CacheStore) Get(ctx context.Context, key string, dest any) (storedAt time.Time, ok bool, err error) {
	var (
		payload []byte
		stored  string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, stored_at FROM enrichment_cache WHERE cache_key = ?`, key)
	if err := row.Scan(&payload, &stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("load cache payload %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(payload, dest); err != nil {
		return time.Time{}, false, fmt.Errorf("decode cache payload %s: %w", key, err)
	}
	storedAt, _ = time.Parse("2006-01-02", stored)
	return storedAt, true, nil
}

// LookupInto adapts Get to the fallback Source.Lookup contract for a
// concrete payload type.
func LookupInto[T any](s *CacheStore, key string) func(ctx context.Context) (Cached[T], bool, error) {
	return func(ctx context.Context) (Cached[T], bool, error) {
		var v T
		storedAt, ok, err := s.Get(ctx, key, &v)
		if err != nil || !ok {
			return Cached[T]{}, false, err
		}
		return Cached[T]{Value: v, StoredAt: storedAt}, true, nil
	}
}
