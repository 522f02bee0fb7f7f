package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides, e.g. LASTMIX_LASTFM_API_KEY.
const EnvPrefix = "LASTMIX_"

type Config struct {
	Lastfm    LastfmConfig    `koanf:"lastfm"`
	Recommend RecommendConfig `koanf:"recommend"`
	Playlist  PlaylistConfig  `koanf:"playlist"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
}

// LastfmConfig holds Last.fm API access settings.
type LastfmConfig struct {
	APIKey               string        `koanf:"api_key"`
	APISecret            string        `koanf:"api_secret"`
	RequestsPerSecond    float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst                int           `koanf:"burst" validate:"gte=1"`
	PageSize             int           `koanf:"page_size" validate:"gte=1,lte=1000"`
	MaxPages             int           `koanf:"max_pages" validate:"gte=1"`
	RecentPages          int           `koanf:"recent_pages" validate:"gte=1"`
	MinTopTrackPlaycount int           `koanf:"min_top_track_playcount" validate:"gte=1"`
	BreakerFailures      uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout       time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// RecommendConfig holds recommendation pipeline settings.
type RecommendConfig struct {
	User                  string   `koanf:"user"`
	Period                string   `koanf:"period" validate:"oneof=overall 7day 1month 3month 6month 12month"`
	MaxSimilarPerTopTrack int      `koanf:"max_similar_per_top_track" validate:"gte=1"`
	BlacklistedArtists    []string `koanf:"blacklisted_artists"`
	PreferUnheardArtists  bool     `koanf:"prefer_unheard_artists"`
	Workers               int      `koanf:"workers" validate:"gte=1,lte=32"`
}

// PlaylistConfig holds sampling settings.
type PlaylistConfig struct {
	Size            int `koanf:"size" validate:"gte=1"`
	MaxArtistRepeat int `koanf:"max_artist_repeat" validate:"gte=0"`
}

// CacheConfig holds similar-track cache settings.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"` // empty means the XDG cache dir
	TTLDays int    `koanf:"ttl_days" validate:"gte=1"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Lastfm: LastfmConfig{
			RequestsPerSecond:    5,
			Burst:                1,
			PageSize:             200,
			MaxPages:             20,
			RecentPages:          5,
			MinTopTrackPlaycount: 2,
			BreakerFailures:      5,
			BreakerTimeout:       30 * time.Second,
		},
		Recommend: RecommendConfig{
			Period:                "overall",
			MaxSimilarPerTopTrack: 100,
			PreferUnheardArtists:  true,
			Workers:               4,
		},
		Playlist: PlaylistConfig{
			Size:            50,
			MaxArtistRepeat: 3,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTLDays: 7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from defaults, config files, then environment
// variables, later sources winning. A non-empty path is loaded after the
// default config file locations and must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	for _, p := range getConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", p, err)
			}
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(expandPath(path)), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Environment values arrive as plain strings.
	if v, ok := k.Get("recommend.blacklisted_artists").(string); ok {
		if err := k.Set("recommend.blacklisted_artists", splitList(v)); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Cache.Path = expandPath(cfg.Cache.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps LASTMIX_LASTFM_API_KEY to lastfm.api_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges. A missing API key or user is not an error
// here since some commands need neither.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/lastmix/config.toml
		filepath.Join(xdg.ConfigHome, "lastmix", "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasLastfmConfig returns true if a Last.fm API key is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != ""
}

// CacheTTL returns the cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLDays) * 24 * time.Hour
}
