package recommend

import (
	"cmp"
	"context"
	"slices"

	"github.com/llehouerou/lastmix/internal/logging"
	"github.com/llehouerou/lastmix/internal/track"
)

// Service runs the full pipeline: fetch grouped candidates, rate them and
// merge duplicates.
type Service struct {
	fetcher    *Fetcher
	calculator *Calculator
}

// NewService creates a Service backed by repo.
func NewService(repo Repository, workers int) *Service {
	return &Service{
		fetcher:    NewFetcher(repo, workers),
		calculator: NewCalculator(repo),
	}
}

// Recommend returns rated recommendations for req, highest rating first.
// A track endorsed by several top tracks appears once with the sum of its
// ratings.
func (s *Service) Recommend(ctx context.Context, req Request, preferUnheardArtists bool) ([]track.Track, error) {
	grouping, err := s.fetcher.FetchGrouped(ctx, req)
	if err != nil {
		return nil, err
	}

	rated, err := s.calculator.CalculateRatings(ctx, req.User, grouping, preferUnheardArtists)
	if err != nil {
		return nil, err
	}

	merged := Merge(rated)
	slices.SortStableFunc(merged, func(a, b track.Track) int {
		return cmp.Compare(b.Rating, a.Rating)
	})

	logging.Ctx(ctx).Info().
		Str("user", req.User).
		Int("candidates", len(rated)).
		Int("recommendations", len(merged)).
		Msg("rated recommendations")

	return merged, nil
}
