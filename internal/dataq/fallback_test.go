package dataq

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/database"
)

type sentiment struct {
	Score float64
	Label string
}

func TestGetPrefersRealtime(t *testing.T) {
	res := Get(context.Background(), zerolog.Nop(), Source[sentiment]{
		Name: "sentiment",
		Fetch: func(context.Context) (sentiment, bool, error) {
			return sentiment{Score: 0.8, Label: "贪婪"}, true, nil
		},
		Lookup: func(context.Context) (Cached[sentiment], bool, error) {
			t.Fatal("cache must not be consulted when the live fetch succeeds")
			return Cached[sentiment]{}, false, nil
		},
		Default: func() sentiment { return sentiment{} },
	})

	assert.Equal(t, QualityRealtime, res.Quality)
	assert.Equal(t, "api", res.Source)
	assert.Equal(t, 0.8, res.Value.Score)
}

func TestGetFallsBackToCache(t *testing.T) {
	tests := []struct {
		name     string
		storedAt time.Time
		want     Quality
	}{
		{"fresh cache", time.Now(), QualityCached},
		{"expired cache", time.Now().Add(-48 * time.Hour), QualityStale},
		{"unknown age", time.Time{}, QualityStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Get(context.Background(), zerolog.Nop(), Source[sentiment]{
				Name: "sentiment",
				Fetch: func(context.Context) (sentiment, bool, error) {
					return sentiment{}, false, errors.New("upstream down")
				},
				Lookup: func(context.Context) (Cached[sentiment], bool, error) {
					return Cached[sentiment]{
						Value:    sentiment{Score: 0.5, Label: "中性"},
						StoredAt: tt.storedAt,
					}, true, nil
				},
				Default: func() sentiment { return sentiment{} },
				TTL:     24 * time.Hour,
			})

			assert.Equal(t, tt.want, res.Quality)
			assert.Equal(t, "db", res.Source)
			assert.Equal(t, "中性", res.Value.Label)
		})
	}
}

func TestGetDefaultsWhenAllTiersFail(t *testing.T) {
	res := Get(context.Background(), zerolog.Nop(), Source[sentiment]{
		Name: "sentiment",
		Fetch: func(context.Context) (sentiment, bool, error) {
			return sentiment{}, false, errors.New("upstream down")
		},
		Lookup: func(context.Context) (Cached[sentiment], bool, error) {
			return Cached[sentiment]{}, false, errors.New("db locked")
		},
		Default: func() sentiment { return sentiment{Score: 0.5, Label: "默认"} },
	})

	assert.Equal(t, QualityDefault, res.Quality)
	assert.Equal(t, "default", res.Source)
	assert.Equal(t, "默认", res.Value.Label)
}

func TestQualityOrdering(t *testing.T) {
	assert.True(t, QualityRealtime > QualityCached)
	assert.True(t, QualityCached > QualityStale)
	assert.True(t, QualityStale > QualityDefault)
}

func TestCacheStoreRoundTrip(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Profile: database.ProfileCache,
		Name:    "test",
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	store := NewCacheStore(db.Conn())
	ctx := context.Background()

	in := sentiment{Score: 0.33, Label: "恐惧"}
	require.NoError(t, store.Put(ctx, "sentiment", in))

	var out sentiment
	storedAt, ok, err := store.Get(ctx, "sentiment", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
	assert.WithinDuration(t, time.Now(), storedAt, 24*time.Hour)

	// Upsert replaces the payload under the same key.
	require.NoError(t, store.Put(ctx, "sentiment", sentiment{Score: 0.9, Label: "贪婪"}))
	_, ok, err = store.Get(ctx, "sentiment", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, out.Score)

	// Missing keys are a clean miss, not an error.
	_, ok, err = store.Get(ctx, "absent", &out)
	require.NoError(t, err)
	assert.False(t, ok)

	// LookupInto plugs a cache hit straight into the fallback chain.
	res := Get(ctx, zerolog.Nop(), Source[sentiment]{
		Name: "sentiment",
		Fetch: func(context.Context) (sentiment, bool, error) {
			return sentiment{}, false, errors.New("upstream down")
		},
		Lookup:  LookupInto[sentiment](store, "sentiment"),
		Default: func() sentiment { return sentiment{} },
	})
	assert.Equal(t, QualityCached, res.Quality)
	assert.Equal(t, 0.9, res.Value.Score)
}
