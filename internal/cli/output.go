package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/llehouerou/lastmix/internal/cache"
	"github.com/llehouerou/lastmix/internal/track"
)

type jsonTrack struct {
	Artist string  `json:"artist"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

type jsonOutput struct {
	User   string      `json:"user"`
	Tracks []jsonTrack `json:"tracks"`
}

func writeJSON(w io.Writer, user string, tracks []track.Track) error {
	out := jsonOutput{User: user, Tracks: make([]jsonTrack, 0, len(tracks))}
	for _, t := range tracks {
		out.Tracks = append(out.Tracks, jsonTrack{Artist: t.Artist, Name: t.Name, Rating: t.Rating})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeText(w io.Writer, user string, tracks []track.Track) error {
	if len(tracks) == 0 {
		_, err := fmt.Fprintf(w, "no recommendations for %s\n", user)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, t := range tracks {
		fmt.Fprintf(tw, "%d.\t%.2f\t %s\t\n", i+1, t.Rating, t)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s tracks for %s\n", humanize.Comma(int64(len(tracks))), user)
	return err
}

func writeStats(w io.Writer, s cache.Stats) error {
	if s.Lookups == 0 {
		_, err := fmt.Fprintln(w, "cache is empty")
		return err
	}
	_, err := fmt.Fprintf(w, "%s lookups, %s similar tracks, oldest fetched %s\n",
		humanize.Comma(int64(s.Lookups)),
		humanize.Comma(int64(s.Tracks)),
		humanize.Time(s.Oldest),
	)
	return err
}
