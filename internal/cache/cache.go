// Package cache keeps Last.fm similar-track lookups in SQLite so repeated
// runs do not hit the API for seeds that were recently expanded.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/llehouerou/lastmix/internal/track"
)

const (
	appName    = "lastmix"
	dbFileName = "cache.db"
)

// ErrMiss is returned when a lookup is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores similar-track lookups with a time-to-live.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// DefaultPath returns the cache database location under the XDG cache dir.
func DefaultPath() (string, error) {
	return xdg.CacheFile(filepath.Join(appName, dbFileName))
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return New(db, ttl), nil
}

// New wraps an already initialized database.
func New(db *sql.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl, now: time.Now}
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS similar_lookups (
			seed_artist TEXT NOT NULL,
			seed_track TEXT NOT NULL,
			lim INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (seed_artist, seed_track, lim)
		);

		CREATE TABLE IF NOT EXISTS similar_tracks (
			seed_artist TEXT NOT NULL,
			seed_track TEXT NOT NULL,
			lim INTEGER NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			artist TEXT NOT NULL,
			PRIMARY KEY (seed_artist, seed_track, lim, position)
		);

		CREATE INDEX IF NOT EXISTS idx_similar_lookups_fetched ON similar_lookups(fetched_at);
	`)
	return err
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (c *Cache) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Cache) expiry() int64 {
	return c.now().Add(-c.ttl).Unix()
}

// SimilarTracks returns the cached lookup for seed and limit, or ErrMiss.
// An empty, non-expired lookup is a hit.
func (c *Cache) SimilarTracks(ctx context.Context, seed track.Track, limit int) ([]track.Track, error) {
	var fetchedAt int64
	err := c.db.QueryRowContext(ctx, `
		SELECT fetched_at FROM similar_lookups
		WHERE seed_artist = ? AND seed_track = ? AND lim = ?
	`, seed.Artist, seed.Name, limit).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	if fetchedAt < c.expiry() {
		return nil, ErrMiss
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT name, artist FROM similar_tracks
		WHERE seed_artist = ? AND seed_track = ? AND lim = ?
		ORDER BY position ASC
	`, seed.Artist, seed.Name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []track.Track{}
	for rows.Next() {
		var t track.Track
		if err := rows.Scan(&t.Name, &t.Artist); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// SetSimilarTracks replaces the cached lookup for seed and limit.
func (c *Cache) SetSimilarTracks(ctx context.Context, seed track.Track, limit int, tracks []track.Track) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM similar_tracks
			WHERE seed_artist = ? AND seed_track = ? AND lim = ?
		`, seed.Artist, seed.Name, limit); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO similar_lookups (seed_artist, seed_track, lim, fetched_at)
			VALUES (?, ?, ?, ?)
		`, seed.Artist, seed.Name, limit, c.now().Unix()); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO similar_tracks (seed_artist, seed_track, lim, position, name, artist)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range tracks {
			if _, err := stmt.ExecContext(ctx, seed.Artist, seed.Name, limit, i, t.Name, t.Artist); err != nil {
				return err
			}
		}
		return nil
	})
}

// CleanExpired removes expired lookups and returns how many were removed.
func (c *Cache) CleanExpired(ctx context.Context) (int64, error) {
	var removed int64
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		expiry := c.expiry()
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM similar_tracks WHERE (seed_artist, seed_track, lim) IN (
				SELECT seed_artist, seed_track, lim FROM similar_lookups WHERE fetched_at < ?
			)
		`, expiry); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM similar_lookups WHERE fetched_at < ?`, expiry)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// Stats summarizes the cache contents.
type Stats struct {
	Lookups int
	Tracks  int
	Oldest  time.Time // zero when empty
}

// Stats returns entry counts and the oldest lookup time.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var oldest sql.NullInt64
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(fetched_at) FROM similar_lookups
	`).Scan(&s.Lookups, &oldest)
	if err != nil {
		return Stats{}, err
	}
	if oldest.Valid {
		s.Oldest = time.Unix(oldest.Int64, 0)
	}

	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM similar_tracks`).Scan(&s.Tracks); err != nil {
		return Stats{}, err
	}
	return s, nil
}
