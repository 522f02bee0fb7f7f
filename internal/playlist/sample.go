// Package playlist draws a bounded playlist from rated recommendations.
package playlist

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/llehouerou/lastmix/internal/track"
)

// Options controls sampling.
type Options struct {
	Size            int // number of tracks to draw
	MaxArtistRepeat int // per-artist cap, 0 means unlimited
}

// Sampler draws tracks at random, weighted by rating.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a Sampler. A nil rng uses a randomly seeded source.
func NewSampler(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // crypto not needed for music selection
	}
	return &Sampler{rng: rng}
}

// Sample returns up to opts.Size distinct tracks. Higher rated tracks are
// more likely to be picked. When every rating is zero the draw is uniform.
// The input slice is not modified.
func (s *Sampler) Sample(rated []track.Track, opts Options) []track.Track {
	if len(rated) == 0 || opts.Size <= 0 {
		return nil
	}

	pool := make([]track.Track, len(rated))
	copy(pool, rated)
	slices.SortStableFunc(pool, func(a, b track.Track) int {
		return cmp.Compare(b.Rating, a.Rating)
	})

	weights := make([]float64, len(pool))
	total := 0.0
	for i := range pool {
		weights[i] = max(pool[i].Rating, 0)
		total += weights[i]
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(len(weights))
	}

	selected := make([]track.Track, 0, min(opts.Size, len(pool)))
	used := make([]bool, len(pool))
	artistCounts := make(map[string]int)

	for len(selected) < opts.Size {
		// Weight still available after the artist cap.
		available := 0.0
		for i := range pool {
			if !used[i] && !capped(pool[i], artistCounts, opts) {
				available += weights[i]
			}
		}
		if available <= 0 {
			break
		}

		r := s.rng.Float64() * available
		cumulative := 0.0
		pick := -1
		for i := range pool {
			if used[i] || capped(pool[i], artistCounts, opts) {
				continue
			}
			cumulative += weights[i]
			pick = i
			if r < cumulative {
				break
			}
		}

		used[pick] = true
		artistCounts[pool[pick].Artist]++
		selected = append(selected, pool[pick])
	}

	return selected
}

func capped(t track.Track, counts map[string]int, opts Options) bool {
	return opts.MaxArtistRepeat > 0 && counts[t.Artist] >= opts.MaxArtistRepeat
}
