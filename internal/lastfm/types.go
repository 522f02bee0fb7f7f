package lastfm

import (
	"fmt"
	"strings"
	"time"
)

// Period is a Last.fm statistics window.
type Period string

const (
	PeriodOverall Period = "overall"
	Period7Day    Period = "7day"
	Period1Month  Period = "1month"
	Period3Month  Period = "3month"
	Period6Month  Period = "6month"
	Period12Month Period = "12month"
)

// Periods lists every supported period.
var Periods = []Period{
	PeriodOverall,
	Period7Day,
	Period1Month,
	Period3Month,
	Period6Month,
	Period12Month,
}

// ParsePeriod converts a period name such as "7day" or "overall".
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

// Config holds client settings. Zero values fall back to defaults.
type Config struct {
	APIKey    string
	APISecret string

	RequestsPerSecond float64 // Last.fm allows about 5
	Burst             int

	PageSize    int // items per paginated request (max 1000 for recent tracks)
	MaxPages    int // page ceiling for top tracks
	RecentPages int // page ceiling for recent tracks

	// Top tracks played fewer times than this are not returned.
	MinTopTrackPlaycount int

	BreakerFailures uint32        // consecutive failures before the breaker opens
	BreakerTimeout  time.Duration // how long the breaker stays open
}

func (c Config) withDefaults() Config {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = 200
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.RecentPages <= 0 {
		c.RecentPages = 5
	}
	if c.MinTopTrackPlaycount <= 0 {
		c.MinTopTrackPlaycount = 2
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}
