// Package cache is a SQLite-backed TTL cache for search results and
// generated reports. Keys are the blake2b-256 digest of the caller's input,
// values are stored as JSON. Lifetime depends on the content kind.
package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/hazyhaar/deepresearch/dbopen"
)

// Kind selects the expiry of a cached entry.
type Kind string

const (
	News       Kind = "news"
	Academic   Kind = "academic"
	Historical Kind = "historical"
)

const day = 24 * time.Hour

var expirations = map[Kind]time.Duration{
	News:       3 * day,
	Academic:   90 * day,
	Historical: 360 * day,
}

// Expiry returns the lifetime of kind. Unknown kinds live as long as
// Historical.
func Expiry(k Kind) time.Duration {
	if d, ok := expirations[k]; ok {
		return d
	}
	return expirations[Historical]
}

// Schema creates the cache table.
const Schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key         TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    data        TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

// Cache reads and writes cache_entries. Safe for concurrent use.
type Cache struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

// New returns a Cache over db. The caller applies Schema, typically with
// dbopen.WithSchema(cache.Schema).
func New(db *sql.DB, opts ...Option) *Cache {
	c := &Cache{db: db, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key is the hex blake2b-256 digest of input.
func Key(input string) string {
	sum := blake2b.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Get decodes the entry for input into v. It reports false on a miss. An
// expired entry is deleted and reported as a miss.
func (c *Cache) Get(ctx context.Context, input string, v any) (bool, error) {
	key := Key(input)
	var data string
	var expires int64
	err := c.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&data, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get: %w", err)
	}

	if c.now().UnixMilli() >= expires {
		if _, err := dbopen.Exec(ctx, c.db, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			c.logger.Warn("cache: drop expired entry", "key", key, "error", err)
		}
		return false, nil
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v for input, replacing any previous entry.
func (c *Cache) Set(ctx context.Context, input string, kind Kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if _, ok := expirations[kind]; !ok {
		kind = Historical
	}
	now := c.now()
	_, err = dbopen.Exec(ctx, c.db,
		`INSERT INTO cache_entries (key, kind, data, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   kind = excluded.kind, data = excluded.data,
		   created_at = excluded.created_at, expires_at = excluded.expires_at`,
		Key(input), string(kind), string(data), now.UnixMilli(), now.Add(Expiry(kind)).UnixMilli())
	if err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Invalidate removes the entry for input.
func (c *Cache) Invalidate(ctx context.Context, input string) error {
	if _, err := dbopen.Exec(ctx, c.db, `DELETE FROM cache_entries WHERE key = ?`, Key(input)); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := dbopen.Exec(ctx, c.db, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res, err := dbopen.Exec(ctx, c.db,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	return res.RowsAffected()
}

// Len counts stored entries, expired ones included.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}
