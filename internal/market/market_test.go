package market

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Profile: database.ProfileCache,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestFundRepoSaveAndQueryNAVs(t *testing.T) {
	db := newTestDB(t)
	repo := NewFundRepo(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.SaveNAVs(ctx, []domain.FundNAV{
		{FundCode: "110011", Date: "2026-03-02", NAV: 2.51, DailyReturn: 0.4},
		{FundCode: "110011", Date: "2026-02-27", NAV: 2.50},
		{FundCode: "110011", Date: "2026-03-03", NAV: 2.48, DailyReturn: -1.2},
	}))

	history, err := repo.NAVHistory(ctx, "110011", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-03-02", history[0].Date)
	assert.Equal(t, "2026-03-03", history[1].Date)

	latest, err := repo.LatestNAV(ctx, "110011")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 2.48, latest.NAV, 1e-9)

	// Re-saving the same date overwrites, not duplicates.
	require.NoError(t, repo.SaveNAVs(ctx, []domain.FundNAV{
		{FundCode: "110011", Date: "2026-03-03", NAV: 2.49},
	}))
	history, err = repo.NAVHistory(ctx, "110011", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.InDelta(t, 2.49, history[2].NAV, 1e-9)
}

func TestFundRepoUpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewFundRepo(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.Fund{Code: "110011", Name: "易方达中小盘", Type: "混合型"}))
	require.NoError(t, repo.Upsert(ctx, domain.Fund{Code: "110011", Name: "易方达优质精选", Type: "混合型"}))

	f, err := repo.Get(ctx, "110011")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "易方达优质精选", f.Name)

	missing, err := repo.Get(ctx, "999999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLoadFundDataSkipsFundsWithoutHistory(t *testing.T) {
	db := newTestDB(t)
	repo := NewFundRepo(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.SaveNAVs(ctx, []domain.FundNAV{
		{FundCode: "110011", Date: "2026-03-02", NAV: 2.50},
	}))

	items := []domain.WatchItem{
		{FundCode: "110011", Category: domain.CategoryEquity},
		{FundCode: "000001", Category: domain.CategoryIndex},
	}
	funds, err := repo.LoadFundData(ctx, items, 0)
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Equal(t, "110011", funds[0].FundCode)
	assert.Equal(t, domain.CategoryEquity, funds[0].Category)
}

func TestWatchlistAddUpdateRemove(t *testing.T) {
	db := newTestDB(t)
	repo := NewWatchlistRepo(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, domain.WatchItem{FundCode: "110011", Reason: "长期跟踪"}))
	require.NoError(t, repo.Add(ctx, domain.WatchItem{
		FundCode: "110011", Reason: "更新理由", Category: domain.CategoryIndex,
	}))
	require.NoError(t, repo.Add(ctx, domain.WatchItem{FundCode: "161725", Category: domain.CategoryEquity}))

	items, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "110011", items[0].FundCode)
	assert.Equal(t, "更新理由", items[0].Reason)
	assert.Equal(t, domain.CategoryIndex, items[0].Category)

	counts, err := repo.CategoryCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.CategoryIndex])
	assert.Equal(t, 1, counts[domain.CategoryEquity])

	require.NoError(t, repo.Remove(ctx, "161725"))
	assert.Error(t, repo.Remove(ctx, "161725"))

	got, err := repo.Get(ctx, "161725")
	require.NoError(t, err)
	assert.Nil(t, got)
}

type fakeFetcher struct {
	navErr map[string]error
	navs   map[string][]domain.FundNAV
	bars   map[string][]domain.IndexBar
}

func (f *fakeFetcher) FundNAVHistory(_ context.Context, fundCode string, _ int) ([]domain.FundNAV, error) {
	if err := f.navErr[fundCode]; err != nil {
		return nil, err
	}
	return f.navs[fundCode], nil
}

func (f *fakeFetcher) IndexDaily(_ context.Context, indexCode string, _ int) ([]domain.IndexBar, error) {
	return f.bars[indexCode], nil
}

func TestUpdateServiceCollectsPerFundFailures(t *testing.T) {
	db := newTestDB(t)
	funds := NewFundRepo(db, zerolog.Nop())
	indices := NewIndexRepo(db, zerolog.Nop())
	watchlist := NewWatchlistRepo(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, watchlist.Add(ctx, domain.WatchItem{FundCode: "110011"}))
	require.NoError(t, watchlist.Add(ctx, domain.WatchItem{FundCode: "161725"}))

	fetcher := &fakeFetcher{
		navErr: map[string]error{"161725": fmt.Errorf("接口超时")},
		navs: map[string][]domain.FundNAV{
			"110011": {{FundCode: "110011", Date: "2026-03-02", NAV: 2.50}},
		},
		bars: map[string][]domain.IndexBar{
			"000300": {{IndexCode: "000300", Date: "2026-03-02", Open: 3500, High: 3520, Low: 3480, Close: 3510}},
		},
	}
	svc := NewUpdateService(fetcher, funds, indices, watchlist, zerolog.Nop())

	res, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FundsUpdated)
	assert.Equal(t, 4, res.IndicesUpdated)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "161725")

	closes, err := indices.Closes(ctx, "000300", 0)
	require.NoError(t, err)
	require.Len(t, closes, 1)
	assert.InDelta(t, 3510, closes[0], 1e-9)
}
