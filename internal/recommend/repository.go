// Package recommend builds rated track recommendations for a Last.fm user
// from their top tracks and the tracks similar to them.
package recommend

import (
	"context"
	"errors"

	"github.com/llehouerou/lastmix/internal/lastfm"
	"github.com/llehouerou/lastmix/internal/track"
)

// DefaultMaxSimilar is the similar-track cap per top track when a request
// leaves it unset.
const DefaultMaxSimilar = 100

var (
	// ErrEmptyUser is returned when a request has no user.
	ErrEmptyUser = errors.New("user is required")
	// ErrInvalidLimit is returned for a negative similar-track cap.
	ErrInvalidLimit = errors.New("max similar tracks per top track must be positive")
)

// Repository is the data source the pipeline pulls from. Implementations
// handle pagination, retries and authentication themselves.
type Repository interface {
	TopTracks(ctx context.Context, user string, period lastfm.Period) ([]track.Track, error)
	SimilarTracks(ctx context.Context, seed track.Track, limit int) ([]track.Track, error)
	RecentTracks(ctx context.Context, user string) ([]track.Track, error)
	RecentArtists(ctx context.Context, user string) ([]track.ArtistPlays, error)
}
