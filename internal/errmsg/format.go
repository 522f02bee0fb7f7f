// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import (
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/llehouerou/lastmix/internal/lastfm"
	"github.com/llehouerou/lastmix/internal/recommend"
)

// Op represents an operation that can fail.
type Op string

// Operation constants.
const (
	OpConfigLoad Op = "load configuration"
	OpCacheOpen  Op = "open cache"
	OpCacheClean Op = "clean cache"
	OpCacheStats Op = "read cache statistics"
	OpClientInit Op = "connect to Last.fm"
	OpRecommend  Op = "build recommendations"
	OpOutput     Op = "write output"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v%s", op, err, hint(err))
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v%s", op, context, err, hint(err))
}

// hint suggests a fix for errors the user can act on.
func hint(err error) string {
	switch {
	case errors.Is(err, lastfm.ErrNoAPIKey):
		return " (set lastfm.api_key or LASTMIX_LASTFM_API_KEY)"
	case errors.Is(err, recommend.ErrEmptyUser):
		return " (pass -user or set recommend.user)"
	case errors.Is(err, lastfm.ErrUnknownPeriod):
		return " (use overall, 7day, 1month, 3month, 6month or 12month)"
	case errors.Is(err, gobreaker.ErrOpenState):
		return " (Last.fm is failing, try again later)"
	default:
		return ""
	}
}
