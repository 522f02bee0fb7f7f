package recommend

import (
	"context"
	"sync"

	"github.com/llehouerou/lastmix/internal/lastfm"
	"github.com/llehouerou/lastmix/internal/track"
)

// mockRepo is an in-memory Repository. Similar tracks are keyed by the seed
// track's name.
type mockRepo struct {
	mu sync.Mutex

	top        []track.Track
	topErr     error
	similar    map[string][]track.Track
	similarErr map[string]error
	recent     []track.Track
	recentErr  error
	artists    []track.ArtistPlays
	artistsErr error

	similarCalls []string
	limits       []int
}

func (m *mockRepo) TopTracks(_ context.Context, _ string, _ lastfm.Period) ([]track.Track, error) {
	return m.top, m.topErr
}

func (m *mockRepo) SimilarTracks(_ context.Context, seed track.Track, limit int) ([]track.Track, error) {
	m.mu.Lock()
	m.similarCalls = append(m.similarCalls, seed.Name)
	m.limits = append(m.limits, limit)
	m.mu.Unlock()

	if err := m.similarErr[seed.Name]; err != nil {
		return nil, err
	}
	// Hand out a fresh slice like a real adapter would.
	src := m.similar[seed.Name]
	if src == nil {
		return nil, nil
	}
	out := make([]track.Track, len(src))
	copy(out, src)
	return out, nil
}

func (m *mockRepo) RecentTracks(_ context.Context, _ string) ([]track.Track, error) {
	return m.recent, m.recentErr
}

func (m *mockRepo) RecentArtists(_ context.Context, _ string) ([]track.ArtistPlays, error) {
	return m.artists, m.artistsErr
}

func top(name, artist string, playcount int) track.Track {
	return track.Track{Name: name, Artist: artist, Playcount: playcount}
}
