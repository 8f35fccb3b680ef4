package market

import (
	"context"
)

// Series adapts the fund and index repositories to the closing-series
// reads the regime detector needs.
type Series struct {
	funds   *FundRepo
	indices *IndexRepo
}

func NewSeries(funds *FundRepo, indices *IndexRepo) *Series {
	return &Series{funds: funds, indices: indices}
}

func (s *Series) IndexCloses(ctx context.Context, indexCode string, limit int) ([]float64, error) {
	return s.indices.Closes(ctx, indexCode, limit)
}

func (s *Series) FundNAVs(ctx context.Context, fundCode string, limit int) ([]float64, error) {
	navs, err := s.funds.NAVHistory(ctx, fundCode, limit)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(navs))
	for i, n := range navs {
		out[i] = n.NAV
	}
	return out, nil
}
