package recommend

import (
	"context"
	"fmt"

	"github.com/llehouerou/lastmix/internal/logging"
	"github.com/llehouerou/lastmix/internal/track"
)

// ArtistSource provides a user's recent artist play counts.
type ArtistSource interface {
	RecentArtists(ctx context.Context, user string) ([]track.ArtistPlays, error)
}

// Calculator assigns ratings to grouped candidates.
type Calculator struct {
	artists ArtistSource
}

// NewCalculator creates a Calculator.
func NewCalculator(artists ArtistSource) *Calculator {
	return &Calculator{artists: artists}
}

// CalculateRatings returns every candidate of grouping with its rating set.
//
// Each candidate gains the play count of the top track it is grouped under.
// When preferUnheardArtists is set, every candidate whose artist the user
// played recently then has its rating multiplied by 1/(plays+1).
//
// grouping is not modified. The result is flat and not deduplicated; see
// Merge. On error no tracks are returned.
func (c *Calculator) CalculateRatings(
	ctx context.Context,
	user string,
	grouping Grouping,
	preferUnheardArtists bool,
) ([]track.Track, error) {
	owned := grouping.Clone()

	applyPlaycounts(owned)

	if preferUnheardArtists {
		recent, err := c.artists.RecentArtists(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("fetch recent artists: %w", err)
		}
		decayed := applyArtistDecay(owned, recent)
		logging.Ctx(ctx).Debug().
			Str("user", user).
			Int("recent_artists", len(recent)).
			Int("decayed", decayed).
			Msg("adjusted ratings for recent artists")
	}

	return owned.Flatten(), nil
}

// applyPlaycounts adds each top track's play count to its candidates.
func applyPlaycounts(g Grouping) {
	for i := range g {
		bump := float64(g[i].Top.Playcount)
		for j := range g[i].Candidates {
			g[i].Candidates[j].Rating += bump
		}
	}
}

// applyArtistDecay scales down candidates by artists heard recently. Every
// matching record applies its own factor. Returns the number of candidates
// adjusted at least once.
func applyArtistDecay(g Grouping, recent []track.ArtistPlays) int {
	decayed := 0
	for i := range g {
		for j := range g[i].Candidates {
			cand := &g[i].Candidates[j]
			matched := false
			for _, a := range recent {
				if !track.SameArtist(cand.Artist, a.Artist) {
					continue
				}
				cand.Rating *= 1 / float64(a.Playcount+1)
				matched = true
			}
			if matched {
				decayed++
			}
		}
	}
	return decayed
}
