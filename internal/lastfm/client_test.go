package lastfm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/lastmix/internal/track"
)

// fakeSource serves fixed pages. pages[i] is page i+1.
type fakeSource struct {
	topPages    [][]track.Track
	recentPages [][]track.Track
	nowPlaying  *track.Track // repeated at the head of every recent page
	similar     []track.Track
	err         error

	topRequests    []int
	recentRequests []int
	similarCalls   int
	lastLimit      int
}

func pageOf(pages [][]track.Track, page int) []track.Track {
	if page-1 < len(pages) {
		return pages[page-1]
	}
	return nil
}

func (f *fakeSource) topTracksPage(_ string, _ Period, page, limit int) ([]track.Track, error) {
	f.topRequests = append(f.topRequests, page)
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return pageOf(f.topPages, page), nil
}

func (f *fakeSource) similarTracks(_ track.Track, limit int) ([]track.Track, error) {
	f.similarCalls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.similar, nil
}

func (f *fakeSource) recentTracksPage(_ string, page, _ int) ([]scrobble, error) {
	f.recentRequests = append(f.recentRequests, page)
	if f.err != nil {
		return nil, f.err
	}
	var out []scrobble
	if f.nowPlaying != nil {
		out = append(out, scrobble{Track: *f.nowPlaying, nowPlaying: true})
	}
	for _, t := range pageOf(f.recentPages, page) {
		out = append(out, scrobble{Track: t})
	}
	return out, nil
}

func testConfig() Config {
	return Config{APIKey: "key", RequestsPerSecond: 1000, Burst: 100}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoAPIKey)

	c, err := New(testConfig())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestTopTracks_OnePage(t *testing.T) {
	src := &fakeSource{topPages: [][]track.Track{
		{{Name: "Stayin' Alive", Artist: "Bee Gees", Playcount: 2}},
	}}
	c := newWithSource(src, testConfig())

	got, err := c.TopTracks(context.Background(), "sonofjack3", Period7Day)

	require.NoError(t, err)
	assert.Equal(t, []track.Track{{Name: "Stayin' Alive", Artist: "Bee Gees", Playcount: 2}}, got)
	assert.Equal(t, []int{1, 2}, src.topRequests, "stops at first empty page")
}

func TestTopTracks_MultiplePages(t *testing.T) {
	src := &fakeSource{topPages: [][]track.Track{
		{
			{Name: "Penny Lane", Artist: "The Beatles", Playcount: 5},
			{Name: "Won't Get Fooled Again", Artist: "The Who", Playcount: 4},
		},
		{{Name: "Like the FBI", Artist: "Bob Dylan", Playcount: 3}},
	}}
	c := newWithSource(src, testConfig())

	got, err := c.TopTracks(context.Background(), "sonofjack3", Period7Day)

	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, src.topRequests)
}

func TestTopTracks_SinglePlaysIgnored(t *testing.T) {
	src := &fakeSource{topPages: [][]track.Track{{
		{Name: "Stayin' Alive", Artist: "Bee Gees", Playcount: 1},
		{Name: "Ventura Highway", Artist: "America", Playcount: 2},
		{Name: "Anesthetized Lesson", Artist: "Gum", Playcount: 1},
	}}}
	c := newWithSource(src, testConfig())

	got, err := c.TopTracks(context.Background(), "sonofjack3", Period7Day)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ventura Highway", got[0].Name)
}

func TestTopTracks_PageCeiling(t *testing.T) {
	full := []track.Track{{Name: "x", Artist: "y", Playcount: 9}}
	src := &fakeSource{topPages: [][]track.Track{full, full, full, full}}
	cfg := testConfig()
	cfg.MaxPages = 2
	c := newWithSource(src, cfg)

	got, err := c.TopTracks(context.Background(), "u", PeriodOverall)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{1, 2}, src.topRequests)
}

func TestTopTracks_Failure(t *testing.T) {
	providerErr := errors.New("http 500")
	c := newWithSource(&fakeSource{err: providerErr}, testConfig())

	got, err := c.TopTracks(context.Background(), "u", Period7Day)

	require.ErrorIs(t, err, providerErr)
	assert.Contains(t, err.Error(), "get top tracks")
	assert.Nil(t, got)
}

func TestSimilarTracks_PassesLimit(t *testing.T) {
	src := &fakeSource{similar: []track.Track{track.New("a", "b")}}
	c := newWithSource(src, testConfig())

	got, err := c.SimilarTracks(context.Background(), track.New("seed", "artist"), 42)

	require.NoError(t, err)
	assert.Equal(t, []track.Track{track.New("a", "b")}, got)
	assert.Equal(t, 42, src.lastLimit)
}

func TestRecentArtists_CountsPerArtist(t *testing.T) {
	src := &fakeSource{recentPages: [][]track.Track{
		{track.New("1", "Gum"), track.New("2", "America"), track.New("3", "gum")},
		{track.New("4", "Gum"), track.New("5", "")},
	}}
	c := newWithSource(src, testConfig())

	got, err := c.RecentArtists(context.Background(), "u")

	require.NoError(t, err)
	assert.Equal(t, []track.ArtistPlays{
		{Artist: "Gum", Playcount: 3},
		{Artist: "America", Playcount: 1},
	}, got)
}

func TestRecentTracks_PageCeiling(t *testing.T) {
	page := []track.Track{track.New("x", "y")}
	src := &fakeSource{recentPages: [][]track.Track{page, page, page}}
	cfg := testConfig()
	cfg.RecentPages = 1
	c := newWithSource(src, cfg)

	got, err := c.RecentTracks(context.Background(), "u")

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, []int{1}, src.recentRequests)
}

func TestRecentTracks_NowPlayingCountedOnce(t *testing.T) {
	playing := track.New("Live", "Gum")
	src := &fakeSource{
		nowPlaying: &playing,
		recentPages: [][]track.Track{
			{track.New("1", "America")},
			{track.New("2", "America")},
		},
	}
	c := newWithSource(src, testConfig())

	got, err := c.RecentTracks(context.Background(), "u")

	require.NoError(t, err)
	assert.Equal(t, []track.Track{playing, track.New("1", "America"), track.New("2", "America")}, got)
	// Page 3 holds only the now-playing entry, which ends paging.
	assert.Equal(t, []int{1, 2, 3}, src.recentRequests)

	artists, err := c.RecentArtists(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []track.ArtistPlays{
		{Artist: "Gum", Playcount: 1},
		{Artist: "America", Playcount: 2},
	}, artists)
}

func TestRecentTracks_FetchedOncePerUser(t *testing.T) {
	src := &fakeSource{recentPages: [][]track.Track{{track.New("1", "Gum")}}}
	c := newWithSource(src, testConfig())
	ctx := context.Background()

	_, err := c.RecentTracks(ctx, "u")
	require.NoError(t, err)
	requests := len(src.recentRequests)

	got, err := c.RecentTracks(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []track.Track{track.New("1", "Gum")}, got)

	artists, err := c.RecentArtists(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []track.ArtistPlays{{Artist: "Gum", Playcount: 1}}, artists)
	assert.Len(t, src.recentRequests, requests, "repeat lookups must not reach the API")

	// Callers get their own copy.
	got[0].Name = "changed"
	again, err := c.RecentTracks(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "1", again[0].Name)

	_, err = c.RecentTracks(ctx, "other")
	require.NoError(t, err)
	assert.Greater(t, len(src.recentRequests), requests)
}

func TestRecentTracks_ErrorNotKept(t *testing.T) {
	src := &fakeSource{err: errors.New("http 500")}
	c := newWithSource(src, testConfig())
	ctx := context.Background()

	_, err := c.RecentTracks(ctx, "u")
	require.Error(t, err)

	src.err = nil
	src.recentPages = [][]track.Track{{track.New("1", "Gum")}}
	got, err := c.RecentTracks(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	cfg := testConfig()
	cfg.BreakerFailures = 2
	c := newWithSource(src, cfg)
	seed := track.New("seed", "artist")

	for range 2 {
		_, err := c.SimilarTracks(context.Background(), seed, 10)
		require.Error(t, err)
	}
	_, err := c.SimilarTracks(context.Background(), seed, 10)

	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, src.similarCalls, "open breaker must not reach the API")
}

func TestCall_CanceledContext(t *testing.T) {
	src := &fakeSource{}
	c := newWithSource(src, Config{APIKey: "k", RequestsPerSecond: 0.001, Burst: 1})
	// Use up the only token.
	_, err := c.SimilarTracks(context.Background(), track.New("a", "b"), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.SimilarTracks(ctx, track.New("a", "b"), 1)

	require.Error(t, err)
	assert.Equal(t, 1, src.similarCalls)
}

func TestParsePeriod(t *testing.T) {
	for _, p := range Periods {
		t.Run(string(p), func(t *testing.T) {
			got, err := ParsePeriod(string(p))
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}

	got, err := ParsePeriod(" 7DAY ")
	require.NoError(t, err)
	assert.Equal(t, Period7Day, got)

	_, err = ParsePeriod("fortnight")
	require.ErrorIs(t, err, ErrUnknownPeriod)
	assert.Equal(t, fmt.Sprintf("%v: %q", ErrUnknownPeriod, "fortnight"), err.Error())
}
