// Package dataq implements progressive data degradation: a live
// fetch is preferred, a database cache covers API outages, and a
// neutral default keeps the pipeline running when both fail.
package dataq

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Quality ranks how fresh a fetched value is. Higher is better.
type Quality int

const (
	QualityDefault Quality = iota
	QualityStale
	QualityCached
	QualityRealtime
)

func (q Quality) String() string {
	switch q {
	case QualityRealtime:
		return "REALTIME"
	case QualityCached:
		return "CACHED"
	case QualityStale:
		return "STALE"
	default:
		return "DEFAULT"
	}
}

// Result carries a fetched value with its provenance.
type Result[T any] struct {
	Value   T
	Quality Quality
	Source  string // "api", "db" or "default"
}

// Cached is a cache hit with the date it was stored.
type Cached[T any] struct {
	Value    T
	StoredAt time.Time
}

// Source describes the three tiers of one data concern.
type Source[T any] struct {
	// Name identifies the concern in logs.
	Name string
	// Fetch performs the live lookup. A nil-ok return (ok=false)
	// without error means the API had nothing.
	Fetch func(ctx context.Context) (T, bool, error)
	// Lookup queries the cache tier; ok=false on miss.
	Lookup func(ctx context.Context) (Cached[T], bool, error)
	// Default builds the neutral fallback value.
	Default func() T
	// TTL bounds how old a cache hit can be before it counts as
	// stale. Zero means 24h.
	TTL time.Duration
}

// Get resolves a value through the three tiers. Errors in the upper
// tiers are logged and absorbed; Get always returns a usable value.
func Get[T any](ctx context.Context, log zerolog.Logger, src Source[T]) Result[T] {
	ttl := src.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	if src.Fetch != nil {
		v, ok, err := src.Fetch(ctx)
		if err != nil {
			log.Debug().Err(err).Str("source", src.Name).Msg("live fetch failed")
		} else if ok {
			return Result[T]{Value: v, Quality: QualityRealtime, Source: "api"}
		}
	}

	if src.Lookup != nil {
		hit, ok, err := src.Lookup(ctx)
		if err != nil {
			log.Debug().Err(err).Str("source", src.Name).Msg("cache lookup failed")
		} else if ok {
			quality := QualityCached
			if hit.StoredAt.IsZero() || time.Since(hit.StoredAt) >= ttl {
				quality = QualityStale
			}
			return Result[T]{Value: hit.Value, Quality: quality, Source: "db"}
		}
	}

	return Result[T]{Value: src.Default(), Quality: QualityDefault, Source: "default"}
}
