package portfolio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Profile: database.ProfileCache,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	repo := NewRepo(db, zerolog.Nop())
	repo.now = func() time.Time { return time.Date(2026, 3, 2, 15, 0, 0, 0, time.Local) }
	return repo
}

func TestRecordBuyOpensPosition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	trade, err := repo.RecordTrade(ctx, domain.Trade{
		FundCode: "110011", Action: "buy", Amount: 2000, NAV: 2.50, Reason: "建仓",
	})
	require.NoError(t, err)
	assert.InDelta(t, 800, trade.Shares, 1e-9)
	assert.Equal(t, "2026-03-02", trade.Date)
	assert.Equal(t, "executed", trade.Status)

	holdings, err := repo.OpenHoldings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.InDelta(t, 2.50, holdings[0].CostPrice, 1e-9)
	assert.InDelta(t, 2000, holdings[0].CostBasis(), 1e-6)
}

func TestRecordSellClosesAllLotsWithProfit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.RecordTrade(ctx, domain.Trade{FundCode: "110011", Action: "buy", Amount: 2000, NAV: 2.00})
	require.NoError(t, err)
	_, err = repo.RecordTrade(ctx, domain.Trade{FundCode: "110011", Action: "buy", Amount: 1000, NAV: 2.50})
	require.NoError(t, err)

	_, err = repo.RecordTrade(ctx, domain.Trade{FundCode: "110011", Action: "sell", Amount: 3500, NAV: 2.60})
	require.NoError(t, err)

	holdings, err := repo.OpenHoldings(ctx)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 2, stats.BuyTrades)
	assert.Equal(t, 1, stats.SellTrades)
	assert.Equal(t, 2, stats.ClosedPositions)
	// 2.00→2.60 and 2.50→2.60 are both gains.
	assert.Equal(t, 2, stats.WinCount)
	assert.InDelta(t, 100, stats.WinRate, 1e-9)
	assert.InDelta(t, 3000, stats.TotalInvested, 1e-9)
}

func TestRecordSellWithoutPositionFails(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.RecordTrade(context.Background(),
		domain.Trade{FundCode: "161725", Action: "sell", Amount: 1000, NAV: 1.20})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "161725")

	// The failed sell must not leave a trade row behind.
	trades, err := repo.RecentTrades(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRecordTradeValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.RecordTrade(ctx, domain.Trade{FundCode: "110011", Action: "hold", Amount: 100, NAV: 1})
	assert.Error(t, err)
	_, err = repo.RecordTrade(ctx, domain.Trade{FundCode: "110011", Action: "buy", Amount: 100, NAV: 0})
	assert.Error(t, err)
}

func TestPendingTradesSeparateFromExecuted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.SavePending(ctx, domain.Trade{
		FundCode: "110011", Action: "buy", Amount: 1500, Confidence: 0.7, Reason: "趋势买入",
	})
	require.NoError(t, err)

	trades, err := repo.RecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "pending", trades[0].Status)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalTrades)
}

func TestAccountStateAndSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.RecordTrade(ctx, domain.Trade{FundCode: "110011", Action: "buy", Amount: 3000, NAV: 2.00})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateCurrentNAV(ctx, "110011", 2.20))

	acct, err := repo.AccountState(ctx, 7000, 10000)
	require.NoError(t, err)
	assert.InDelta(t, 3300, acct.Invested, 1e-6)
	assert.InDelta(t, 10300, acct.TotalValue, 1e-6)
	assert.InDelta(t, 3.0, acct.ReturnPct, 1e-9)
	require.Len(t, acct.Holdings, 1)

	require.NoError(t, repo.SaveSnapshot(ctx, acct))
	// Same-date snapshot overwrites.
	require.NoError(t, repo.SaveSnapshot(ctx, acct))

	curve, err := repo.EquityCurve(ctx, 0)
	require.NoError(t, err)
	require.Len(t, curve, 1)
	assert.InDelta(t, 10300, curve[0], 1e-6)

	cash, err := repo.LatestCash(ctx, 123)
	require.NoError(t, err)
	assert.InDelta(t, 7000, cash, 1e-9)
}

func TestLatestCashFallsBackWithoutSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	cash, err := repo.LatestCash(context.Background(), 10000)
	require.NoError(t, err)
	assert.InDelta(t, 10000, cash, 1e-9)
}

func TestMaxDrawdownFromEquityCurve(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, row := range []struct {
		date  string
		value float64
	}{
		{"2026-02-25", 10000},
		{"2026-02-26", 10500},
		{"2026-02-27", 9800},
	} {
		require.NoError(t, repo.SaveSnapshot(ctx, Account{Date: row.date, TotalValue: row.value, Cash: row.value}))
	}

	acct, err := repo.AccountState(ctx, 9900, 10000)
	require.NoError(t, err)
	// Peak 10500 → trough 9800 ≈ −6.67%.
	assert.InDelta(t, -6.67, acct.MaxDrawdownPct, 0.01)
}

func TestCurrentAllocationClassifiesBonds(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.db.Conn().ExecContext(ctx, `
		INSERT INTO funds (fund_code, fund_name, fund_type) VALUES
		('110011', '易方达优质精选混合', '混合型'),
		('000171', '易方达裕丰回报债券', '债券型')`)
	require.NoError(t, err)

	_, err = repo.RecordTrade(ctx, domain.Trade{FundCode: "110011", Action: "buy", Amount: 3000, NAV: 2.0})
	require.NoError(t, err)
	_, err = repo.RecordTrade(ctx, domain.Trade{FundCode: "000171", Action: "buy", Amount: 2000, NAV: 1.0})
	require.NoError(t, err)

	alloc, total, err := repo.CurrentAllocation(ctx, 5000)
	require.NoError(t, err)
	assert.InDelta(t, 10000, total, 1e-6)
	assert.InDelta(t, 0.3, alloc.Equity, 1e-9)
	assert.InDelta(t, 0.2, alloc.Bond, 1e-9)
	assert.InDelta(t, 0.5, alloc.Cash, 1e-9)
}

func TestCurrentAllocationEmptyAccount(t *testing.T) {
	repo := newTestRepo(t)
	alloc, total, err := repo.CurrentAllocation(context.Background(), 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, alloc.Cash, 1e-9)
	assert.InDelta(t, 0, total, 1e-9)
}
