// Package track defines the song and artist records shared by the Last.fm
// adapter and the recommendation pipeline.
package track

import (
	"fmt"
	"strings"
)

// Track is a single song.
//
// Playcount is set on top tracks. Rating is only meaningful on candidates
// produced by similarity expansion and starts at zero.
type Track struct {
	Name      string
	Artist    string
	Playcount int
	Rating    float64
}

// New creates a track with no play count and a zero rating.
func New(name, artist string) Track {
	return Track{Name: name, Artist: artist}
}

// String returns "Artist - Name".
func (t Track) String() string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Name)
}

// Key is the exact identity of a track: name and artist, case preserved.
type Key struct {
	Name   string
	Artist string
}

// Key returns the exact identity used for deduplication.
func (t Track) Key() Key {
	return Key{Name: t.Name, Artist: t.Artist}
}

// Equal reports whether a and b have the same name and artist, compared
// case-sensitively. Rating and play count are ignored.
func Equal(a, b Track) bool {
	return a.Key() == b.Key()
}

// Equivalent reports whether a and b name the same song by the same artist,
// compared case-insensitively. Used for filtering out already heard tracks.
func Equivalent(a, b Track) bool {
	return strings.EqualFold(a.Name, b.Name) && strings.EqualFold(a.Artist, b.Artist)
}

// SameArtist reports whether two artist names match case-insensitively.
func SameArtist(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ArtistPlays summarizes how often an artist was played recently.
type ArtistPlays struct {
	Artist    string
	Playcount int
}
