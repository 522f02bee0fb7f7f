package cache

import (
	"context"
	"errors"

	"github.com/llehouerou/lastmix/internal/logging"
	"github.com/llehouerou/lastmix/internal/recommend"
	"github.com/llehouerou/lastmix/internal/track"
)

// Repository serves similar-track lookups from the cache and delegates
// everything else to the wrapped repository.
type Repository struct {
	recommend.Repository
	cache *Cache
}

// Wrap returns repo with read-through caching of similar tracks.
func Wrap(repo recommend.Repository, c *Cache) *Repository {
	return &Repository{Repository: repo, cache: c}
}

// SimilarTracks returns the cached lookup when fresh, otherwise fetches and
// stores it. Cache failures are logged and never fail the lookup.
func (r *Repository) SimilarTracks(ctx context.Context, seed track.Track, limit int) ([]track.Track, error) {
	cached, err := r.cache.SimilarTracks(ctx, seed, limit)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		logging.Ctx(ctx).Warn().Err(err).Stringer("seed", seed).Msg("read similar tracks cache")
	}

	tracks, err := r.Repository.SimilarTracks(ctx, seed, limit)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetSimilarTracks(ctx, seed, limit, tracks); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Stringer("seed", seed).Msg("write similar tracks cache")
	}
	return tracks, nil
}
