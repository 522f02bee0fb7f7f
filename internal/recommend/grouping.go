package recommend

import "github.com/llehouerou/lastmix/internal/track"

// Group holds the candidates produced by expanding one top track.
type Group struct {
	Top        track.Track
	Candidates []track.Track
}

// Grouping links every top track of a fetch to its candidates. Top tracks
// are unique since they come from a single fetch. The grouping is kept
// until ratings are computed because a candidate's rating depends on which
// top tracks endorsed it.
type Grouping []Group

// Clone returns a deep copy. Mutating the clone's candidates never affects g.
func (g Grouping) Clone() Grouping {
	if g == nil {
		return nil
	}
	out := make(Grouping, len(g))
	for i, grp := range g {
		out[i] = Group{Top: grp.Top}
		if grp.Candidates != nil {
			out[i].Candidates = make([]track.Track, len(grp.Candidates))
			copy(out[i].Candidates, grp.Candidates)
		}
	}
	return out
}

// Flatten returns every candidate of every group, in group order, without
// deduplication.
func (g Grouping) Flatten() []track.Track {
	out := make([]track.Track, 0, g.Len())
	for _, grp := range g {
		out = append(out, grp.Candidates...)
	}
	return out
}

// Len returns the total number of candidates across groups.
func (g Grouping) Len() int {
	n := 0
	for _, grp := range g {
		n += len(grp.Candidates)
	}
	return n
}

// dedup removes exact duplicates (see track.Equal), keeping the first
// occurrence.
func dedup(tracks []track.Track) []track.Track {
	seen := make(map[track.Key]struct{}, len(tracks))
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if _, ok := seen[t.Key()]; ok {
			continue
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Merge collapses exact duplicates into one track whose rating is the sum of
// the duplicates' ratings. First-seen order is kept.
func Merge(tracks []track.Track) []track.Track {
	index := make(map[track.Key]int, len(tracks))
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if i, ok := index[t.Key()]; ok {
			out[i].Rating += t.Rating
			continue
		}
		index[t.Key()] = len(out)
		out = append(out, t)
	}
	return out
}
