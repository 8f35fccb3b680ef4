package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/domain"
)

// navFetchLimit covers the 120-day regime window plus the 250-day
// lookbacks with margin.
const navFetchLimit = 400

// trackedIndices are the benchmark indices kept current for regime
// detection and valuation context.
var trackedIndices = []string{"000300", "000905", "000852", "000016"}

// Fetcher is the slice of the data provider the updater needs.
type Fetcher interface {
	FundNAVHistory(ctx context.Context, fundCode string, limit int) ([]domain.FundNAV, error)
	IndexDaily(ctx context.Context, indexCode string, limit int) ([]domain.IndexBar, error)
}

// UpdateService refreshes NAV and index history for the watchlist.
type UpdateService struct {
	fetcher   Fetcher
	funds     *FundRepo
	indices   *IndexRepo
	watchlist *WatchlistRepo
	log       zerolog.Logger
}

func NewUpdateService(fetcher Fetcher, funds *FundRepo, indices *IndexRepo, watchlist *WatchlistRepo, log zerolog.Logger) *UpdateService {
	return &UpdateService{
		fetcher:   fetcher,
		funds:     funds,
		indices:   indices,
		watchlist: watchlist,
		log:       log.With().Str("component", "update").Logger(),
	}
}

// UpdateResult summarizes one refresh pass.
type UpdateResult struct {
	FundsUpdated   int
	IndicesUpdated int
	Failures       []string
	Elapsed        time.Duration
}

// Run refreshes every watched fund and tracked index. Individual
// failures are collected, not fatal: a single delisted fund must not
// block the daily pipeline.
func (s *UpdateService) Run(ctx context.Context) (UpdateResult, error) {
	start := time.Now()
	var res UpdateResult

	items, err := s.watchlist.List(ctx)
	if err != nil {
		return res, err
	}

	for _, item := range items {
		navs, err := s.fetcher.FundNAVHistory(ctx, item.FundCode, navFetchLimit)
		if err != nil {
			s.log.Warn().Err(err).Str("fund", item.FundCode).Msg("nav refresh failed")
			res.Failures = append(res.Failures, fmt.Sprintf("fund %s: %v", item.FundCode, err))
			continue
		}
		if err := s.funds.SaveNAVs(ctx, navs); err != nil {
			return res, err
		}
		res.FundsUpdated++
		s.log.Debug().Str("fund", item.FundCode).Int("rows", len(navs)).Msg("nav refreshed")
	}

	for _, code := range trackedIndices {
		bars, err := s.fetcher.IndexDaily(ctx, code, 300)
		if err != nil {
			s.log.Warn().Err(err).Str("index", code).Msg("index refresh failed")
			res.Failures = append(res.Failures, fmt.Sprintf("index %s: %v", code, err))
			continue
		}
		if err := s.indices.SaveBars(ctx, bars); err != nil {
			return res, err
		}
		res.IndicesUpdated++
	}

	res.Elapsed = time.Since(start)
	s.log.Info().Int("funds", res.FundsUpdated).Int("indices", res.IndicesUpdated).
		Int("failures", len(res.Failures)).Dur("elapsed", res.Elapsed).Msg("market data refreshed")
	return res, nil
}
