// Package lastfm fetches a user's listening statistics and track
// similarities from the Last.fm API.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/shkh/lastfm-go/lastfm"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/llehouerou/lastmix/internal/logging"
	"github.com/llehouerou/lastmix/internal/track"
)

var (
	// ErrNoAPIKey is returned when the client is created without an API key.
	ErrNoAPIKey = errors.New("last.fm api key is required")
	// ErrUnknownPeriod is returned by ParsePeriod for unsupported names.
	ErrUnknownPeriod = errors.New("unknown period")
)

// errCodeInvalidParams is what Last.fm answers for unknown tracks or users.
const errCodeInvalidParams = 6

// scrobble is one recent-tracks entry. Last.fm repeats the track being
// played right now at the head of every page.
type scrobble struct {
	track.Track
	nowPlaying bool
}

// source is the raw, unpaginated Last.fm surface.
type source interface {
	topTracksPage(user string, period Period, page, limit int) ([]track.Track, error)
	similarTracks(seed track.Track, limit int) ([]track.Track, error)
	recentTracksPage(user string, page, limit int) ([]scrobble, error)
}

// Client pages through Last.fm responses with rate limiting and a circuit
// breaker around every request.
type Client struct {
	src     source
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]

	// recent holds fetched recent tracks per user for the client's lifetime.
	mu     sync.Mutex
	recent map[string][]track.Track
}

// New creates a client with the given settings.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return newWithSource(&apiSource{api: lastfm.New(cfg.APIKey, cfg.APISecret)}, cfg), nil
}

func newWithSource(src source, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		src:     src,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: newBreaker(cfg),
		recent:  make(map[string][]track.Track),
	}
}

func newBreaker(cfg Config) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "lastfm-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Answers like "track not found" mean the API is up.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *lastfm.LastfmError
			return errors.As(err, &apiErr) && apiErr.Code == errCodeInvalidParams
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}

// call waits for the rate limiter then runs fn through the breaker.
func call[T any](ctx context.Context, c *Client, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	res, err := c.breaker.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", op, res)
	}
	return v, nil
}

// collectPages fetches pages starting at 1 until a page comes back empty or
// maxPages have been read.
func collectPages(ctx context.Context, maxPages int, fetch func(page int) ([]track.Track, error)) ([]track.Track, error) {
	var all []track.Track
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := fetch(page)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	return all, nil
}

// TopTracks returns the user's most played tracks for period. Tracks
// played fewer than MinTopTrackPlaycount times are left out.
func (c *Client) TopTracks(ctx context.Context, user string, period Period) ([]track.Track, error) {
	tracks, err := collectPages(ctx, c.cfg.MaxPages, func(page int) ([]track.Track, error) {
		return call(ctx, c, "get top tracks", func() ([]track.Track, error) {
			return c.src.topTracksPage(user, period, page, c.cfg.PageSize)
		})
	})
	if err != nil {
		return nil, err
	}

	out := tracks[:0]
	for _, t := range tracks {
		if t.Playcount >= c.cfg.MinTopTrackPlaycount {
			out = append(out, t)
		}
	}
	return out, nil
}

// SimilarTracks returns up to limit tracks similar to seed.
func (c *Client) SimilarTracks(ctx context.Context, seed track.Track, limit int) ([]track.Track, error) {
	return call(ctx, c, "get similar tracks", func() ([]track.Track, error) {
		return c.src.similarTracks(seed, limit)
	})
}

// RecentTracks returns the user's latest scrobbles, newest first, up to
// RecentPages pages. The track playing now is included once. Results are
// kept per user, so later calls on the same client do not hit the API.
func (c *Client) RecentTracks(ctx context.Context, user string) ([]track.Track, error) {
	c.mu.Lock()
	cached, ok := c.recent[user]
	c.mu.Unlock()
	if ok {
		return slices.Clone(cached), nil
	}

	tracks, err := collectPages(ctx, c.cfg.RecentPages, func(page int) ([]track.Track, error) {
		entries, err := call(ctx, c, "get recent tracks", func() ([]scrobble, error) {
			return c.src.recentTracksPage(user, page, c.cfg.PageSize)
		})
		if err != nil {
			return nil, err
		}
		out := make([]track.Track, 0, len(entries))
		for _, e := range entries {
			if e.nowPlaying && page > 1 {
				continue
			}
			out = append(out, e.Track)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.recent[user] = tracks
	c.mu.Unlock()
	return slices.Clone(tracks), nil
}

// RecentArtists counts the user's recent scrobbles per artist. Artist names
// are grouped case-insensitively; the first spelling seen is kept.
func (c *Client) RecentArtists(ctx context.Context, user string) ([]track.ArtistPlays, error) {
	recent, err := c.RecentTracks(ctx, user)
	if err != nil {
		return nil, err
	}
	return countArtists(recent), nil
}

func countArtists(tracks []track.Track) []track.ArtistPlays {
	index := make(map[string]int)
	var out []track.ArtistPlays
	for _, t := range tracks {
		if t.Artist == "" {
			continue
		}
		key := strings.ToLower(t.Artist)
		if i, ok := index[key]; ok {
			out[i].Playcount++
			continue
		}
		index[key] = len(out)
		out = append(out, track.ArtistPlays{Artist: t.Artist, Playcount: 1})
	}
	return out
}

// apiSource talks to Last.fm through lastfm-go.
type apiSource struct {
	api *lastfm.Api
}

func (s *apiSource) topTracksPage(user string, period Period, page, limit int) ([]track.Track, error) {
	result, err := s.api.User.GetTopTracks(lastfm.P{
		"user":   user,
		"period": string(period),
		"limit":  limit,
		"page":   page,
	})
	if err != nil {
		return nil, err
	}

	tracks := make([]track.Track, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		playcount := 0
		if t.PlayCount != "" {
			_, _ = fmt.Sscanf(t.PlayCount, "%d", &playcount) //nolint:errcheck // parse failure means count stays 0
		}
		tracks = append(tracks, track.Track{
			Name:      t.Name,
			Artist:    t.Artist.Name,
			Playcount: playcount,
		})
	}
	return tracks, nil
}

func (s *apiSource) similarTracks(seed track.Track, limit int) ([]track.Track, error) {
	result, err := s.api.Track.GetSimilar(lastfm.P{
		"artist":      seed.Artist,
		"track":       seed.Name,
		"limit":       limit,
		"autocorrect": 1,
	})
	if err != nil {
		return nil, err
	}

	tracks := make([]track.Track, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		tracks = append(tracks, track.New(t.Name, t.Artist.Name))
	}
	return tracks, nil
}

func (s *apiSource) recentTracksPage(user string, page, limit int) ([]scrobble, error) {
	result, err := s.api.User.GetRecentTracks(lastfm.P{
		"user":  user,
		"limit": limit,
		"page":  page,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]scrobble, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		entries = append(entries, scrobble{
			Track:      track.New(t.Name, t.Artist.Name),
			nowPlaying: t.NowPlaying == "true",
		})
	}
	return entries, nil
}
