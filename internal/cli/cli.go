// Package cli implements the lastmix commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/llehouerou/lastmix/internal/cache"
	"github.com/llehouerou/lastmix/internal/config"
	"github.com/llehouerou/lastmix/internal/errmsg"
	"github.com/llehouerou/lastmix/internal/lastfm"
	"github.com/llehouerou/lastmix/internal/logging"
	"github.com/llehouerou/lastmix/internal/playlist"
	"github.com/llehouerou/lastmix/internal/recommend"
)

var usage = strings.TrimSpace(`
usage: lastmix <command> [flags]

commands:
  recommend     print rated recommendations for a Last.fm user
  playlist      sample a playlist from the recommendations
  cache stats   show similar-track cache contents
  cache clean   remove expired cache entries

for help: lastmix <command> -help
`)

// ErrUsage is returned for unknown or missing commands.
var ErrUsage = errors.New("invalid usage")

// Runner executes commands. Zero-value fields use production defaults.
type Runner struct {
	Out io.Writer

	// OpenRepository builds the data source for cfg. The returned func
	// releases its resources.
	OpenRepository func(cfg *config.Config) (recommend.Repository, func(), error)

	Rand *rand.Rand
}

// Run parses args (without the program name) and runs the command.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w\n%s", ErrUsage, usage)
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "recommend":
		return r.recommend(ctx, args, false)
	case "playlist":
		return r.recommend(ctx, args, true)
	case "cache":
		return r.cache(ctx, args)
	case "help", "-h", "-help", "--help":
		fmt.Fprintln(r.Out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, cmd, usage)
	}
}

// recommendFlags are the overrides shared by recommend and playlist.
type recommendFlags struct {
	configPath    string
	user          string
	period        string
	limit         int
	blacklist     string
	preferUnheard string
	noCache       bool
	json          bool
	size          int
	artistRepeat  int
	verbose       bool
}

func newRecommendFlagSet(name string, f *recommendFlags, withPlaylist bool) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to a config.toml")
	fs.StringVar(&f.user, "user", "", "Last.fm user name")
	fs.StringVar(&f.period, "period", "", "top tracks period: overall, 7day, 1month, 3month, 6month, 12month")
	fs.IntVar(&f.limit, "limit", 0, "similar tracks fetched per top track")
	fs.StringVar(&f.blacklist, "blacklist", "", "comma separated artists to exclude")
	fs.StringVar(&f.preferUnheard, "prefer-unheard", "", "true or false: lower ratings of recently played artists")
	fs.BoolVar(&f.noCache, "no-cache", false, "bypass the similar-track cache")
	fs.BoolVar(&f.json, "json", false, "print JSON")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	if withPlaylist {
		fs.IntVar(&f.size, "size", 0, "number of tracks in the playlist")
		fs.IntVar(&f.artistRepeat, "max-artist-repeat", -1, "tracks allowed per artist, 0 for no limit")
	}
	return fs
}

// apply overrides cfg with the flags that were set.
func (f *recommendFlags) apply(cfg *config.Config) error {
	if f.user != "" {
		cfg.Recommend.User = f.user
	}
	if f.period != "" {
		p, err := lastfm.ParsePeriod(f.period)
		if err != nil {
			return err
		}
		cfg.Recommend.Period = string(p)
	}
	if f.limit != 0 {
		cfg.Recommend.MaxSimilarPerTopTrack = f.limit
	}
	if f.blacklist != "" {
		for _, a := range strings.Split(f.blacklist, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Recommend.BlacklistedArtists = append(cfg.Recommend.BlacklistedArtists, a)
			}
		}
	}
	switch strings.ToLower(f.preferUnheard) {
	case "":
	case "true", "yes", "1":
		cfg.Recommend.PreferUnheardArtists = true
	case "false", "no", "0":
		cfg.Recommend.PreferUnheardArtists = false
	default:
		return fmt.Errorf("invalid -prefer-unheard value %q", f.preferUnheard)
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	if f.size > 0 {
		cfg.Playlist.Size = f.size
	}
	if f.artistRepeat >= 0 {
		cfg.Playlist.MaxArtistRepeat = f.artistRepeat
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg.Validate()
}

func (r *Runner) recommend(ctx context.Context, args []string, sample bool) error {
	name := "recommend"
	if sample {
		name = "playlist"
	}

	var f recommendFlags
	fs := newRecommendFlagSet(name, &f, sample)
	fs.SetOutput(r.Out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return errors.New(errmsg.FormatWith(errmsg.OpConfigLoad, f.configPath, err))
	}
	if err := f.apply(cfg); err != nil {
		return errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	open := r.OpenRepository
	if open == nil {
		open = OpenRepository
	}
	repo, closeRepo, err := open(cfg)
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpClientInit, err))
	}
	defer closeRepo()

	ctx = logging.WithRunID(ctx)
	req := recommend.Request{
		User:                  cfg.Recommend.User,
		Period:                lastfm.Period(cfg.Recommend.Period),
		MaxSimilarPerTopTrack: cfg.Recommend.MaxSimilarPerTopTrack,
		BlacklistedArtists:    cfg.Recommend.BlacklistedArtists,
	}

	svc := recommend.NewService(repo, cfg.Recommend.Workers)
	tracks, err := svc.Recommend(ctx, req, cfg.Recommend.PreferUnheardArtists)
	if err != nil {
		return errors.New(errmsg.FormatWith(errmsg.OpRecommend, req.User, err))
	}

	if sample {
		sampler := playlist.NewSampler(r.Rand)
		tracks = sampler.Sample(tracks, playlist.Options{
			Size:            cfg.Playlist.Size,
			MaxArtistRepeat: cfg.Playlist.MaxArtistRepeat,
		})
	}

	if f.json {
		err = writeJSON(r.Out, req.User, tracks)
	} else {
		err = writeText(r.Out, req.User, tracks)
	}
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpOutput, err))
	}
	return nil
}

// OpenRepository builds the Last.fm client, wrapped in the similar-track
// cache when enabled.
func OpenRepository(cfg *config.Config) (recommend.Repository, func(), error) {
	if !cfg.HasLastfmConfig() {
		return nil, nil, lastfm.ErrNoAPIKey
	}
	client, err := lastfm.New(lastfm.Config{
		APIKey:               cfg.Lastfm.APIKey,
		APISecret:            cfg.Lastfm.APISecret,
		RequestsPerSecond:    cfg.Lastfm.RequestsPerSecond,
		Burst:                cfg.Lastfm.Burst,
		PageSize:             cfg.Lastfm.PageSize,
		MaxPages:             cfg.Lastfm.MaxPages,
		RecentPages:          cfg.Lastfm.RecentPages,
		MinTopTrackPlaycount: cfg.Lastfm.MinTopTrackPlaycount,
		BreakerFailures:      cfg.Lastfm.BreakerFailures,
		BreakerTimeout:       cfg.Lastfm.BreakerTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Cache.Enabled {
		return client, func() {}, nil
	}

	c, err := openCache(cfg)
	if err != nil {
		// Run uncached rather than fail.
		logging.Warn().Err(err).Msg(errmsg.Format(errmsg.OpCacheOpen, err))
		return client, func() {}, nil
	}
	return cache.Wrap(client, c), func() { c.Close() }, nil
}

func openCache(cfg *config.Config) (*cache.Cache, error) {
	path := cfg.Cache.Path
	if path == "" {
		var err error
		if path, err = cache.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return cache.Open(path, cfg.CacheTTL())
}

func (r *Runner) cache(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	fs.SetOutput(r.Out)
	configPath := fs.String("config", "", "path to a config.toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: cache needs 'stats' or 'clean'", ErrUsage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.New(errmsg.FormatWith(errmsg.OpConfigLoad, *configPath, err))
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	c, err := openCache(cfg)
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpCacheOpen, err))
	}
	defer c.Close()

	switch fs.Arg(0) {
	case "stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			return errors.New(errmsg.Format(errmsg.OpCacheStats, err))
		}
		return writeStats(r.Out, stats)
	case "clean":
		removed, err := c.CleanExpired(ctx)
		if err != nil {
			return errors.New(errmsg.Format(errmsg.OpCacheClean, err))
		}
		fmt.Fprintf(r.Out, "removed %d expired lookups\n", removed)
		return nil
	default:
		return fmt.Errorf("%w: unknown cache command %q", ErrUsage, fs.Arg(0))
	}
}
