package recommend

import (
	"context"
	"fmt"
	"sync"

	"github.com/llehouerou/lastmix/internal/lastfm"
	"github.com/llehouerou/lastmix/internal/logging"
	"github.com/llehouerou/lastmix/internal/track"
)

// DefaultWorkers is the number of concurrent similar-track lookups.
const DefaultWorkers = 4

// Request describes one recommendation fetch.
type Request struct {
	User                  string
	Period                lastfm.Period
	MaxSimilarPerTopTrack int      // 0 means DefaultMaxSimilar
	BlacklistedArtists    []string // matched exactly against candidate artists
}

func (r Request) validate() (Request, error) {
	if r.User == "" {
		return r, ErrEmptyUser
	}
	if r.MaxSimilarPerTopTrack < 0 {
		return r, ErrInvalidLimit
	}
	if r.MaxSimilarPerTopTrack == 0 {
		r.MaxSimilarPerTopTrack = DefaultMaxSimilar
	}
	if r.Period == "" {
		r.Period = lastfm.PeriodOverall
	}
	return r, nil
}

// Fetcher produces candidate tracks from a user's top tracks.
type Fetcher struct {
	repo    Repository
	workers int
}

// NewFetcher creates a Fetcher. workers bounds concurrent similar-track
// lookups; values below 1 use DefaultWorkers.
func NewFetcher(repo Repository, workers int) *Fetcher {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Fetcher{repo: repo, workers: workers}
}

// Fetch returns the deduplicated pool of candidates for req: tracks similar
// to the user's top tracks, minus recently heard tracks and blacklisted
// artists. Ratings are left at zero. An empty result is not an error.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]track.Track, error) {
	grouping, err := f.FetchGrouped(ctx, req)
	if err != nil {
		return nil, err
	}

	recommendations := dedup(grouping.Flatten())

	logging.Ctx(ctx).Info().
		Str("user", req.User).
		Int("count", len(recommendations)).
		Msg("fetched recommendations")

	return recommendations, nil
}

// FetchGrouped runs the same pipeline as Fetch but keeps the candidates
// grouped under the top track that produced them, and does not deduplicate.
// A top track whose lookup failed is kept with no candidates.
func (f *Fetcher) FetchGrouped(ctx context.Context, req Request) (Grouping, error) {
	req, err := req.validate()
	if err != nil {
		return nil, err
	}
	log := logging.Ctx(ctx).With().Str("user", req.User).Logger()

	log.Info().Str("period", string(req.Period)).Msg("fetching top recommendations")

	top, err := f.repo.TopTracks(ctx, req.User, req.Period)
	if err != nil {
		return nil, fmt.Errorf("fetch top tracks: %w", err)
	}
	log.Debug().Int("count", len(top)).Msg("fetched top tracks")

	results := f.expand(ctx, top, req.MaxSimilarPerTopTrack)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grouping := make(Grouping, 0, len(results))
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			log.Warn().Err(r.err).Stringer("top_track", r.top).Msg("fetch similar tracks failed")
			grouping = append(grouping, Group{Top: r.top})
			continue
		}
		grouping = append(grouping, Group{Top: r.top, Candidates: r.tracks})
	}
	log.Debug().
		Int("candidates", grouping.Len()).
		Int("failed_lookups", failed).
		Msg("before filtering")

	recent, err := f.repo.RecentTracks(ctx, req.User)
	if err != nil {
		return nil, fmt.Errorf("fetch recent tracks: %w", err)
	}

	for i := range grouping {
		grouping[i].Candidates = withoutRecent(grouping[i].Candidates, recent)
	}
	log.Info().
		Int("recent", len(recent)).
		Int("candidates", grouping.Len()).
		Msg("filtered out recent tracks")

	blacklist := newArtistSet(req.BlacklistedArtists)
	for i := range grouping {
		grouping[i].Candidates = withoutBlacklisted(grouping[i].Candidates, blacklist)
	}
	log.Info().
		Strs("blacklist", req.BlacklistedArtists).
		Int("candidates", grouping.Len()).
		Msg("filtered out blacklisted artists")

	return grouping, nil
}

// similarResult is the outcome of expanding one top track.
type similarResult struct {
	top    track.Track
	tracks []track.Track
	err    error
}

// expand looks up similar tracks for every top track concurrently. Each
// goroutine writes only its own slot, so results keep the order of tops.
func (f *Fetcher) expand(ctx context.Context, tops []track.Track, limit int) []similarResult {
	results := make([]similarResult, len(tops))
	sem := make(chan struct{}, f.workers)
	var wg sync.WaitGroup

	for i, top := range tops {
		wg.Add(1)
		go func(idx int, top track.Track) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := similarResult{top: top}
			if err := ctx.Err(); err != nil {
				res.err = err
			} else {
				res.tracks, res.err = f.repo.SimilarTracks(ctx, top, limit)
			}
			results[idx] = res
		}(i, top)
	}

	wg.Wait()
	return results
}

// withoutRecent drops candidates equivalent to any recent track.
func withoutRecent(candidates, recent []track.Track) []track.Track {
	out := candidates[:0:0]
	for _, c := range candidates {
		heard := false
		for _, r := range recent {
			if track.Equivalent(c, r) {
				heard = true
				break
			}
		}
		if !heard {
			out = append(out, c)
		}
	}
	return out
}

type artistSet map[string]struct{}

func newArtistSet(artists []string) artistSet {
	s := make(artistSet, len(artists))
	for _, a := range artists {
		s[a] = struct{}{}
	}
	return s
}

// withoutBlacklisted drops candidates whose artist is in the set. The match
// is case-sensitive, unlike withoutRecent.
func withoutBlacklisted(candidates []track.Track, blacklist artistSet) []track.Track {
	if len(blacklist) == 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := blacklist[c.Artist]; !ok {
			out = append(out, c)
		}
	}
	return out
}
