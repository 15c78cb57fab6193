// Package cache persists merged search pages in SQLite with a per-query TTL.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lepinkainen/search-forge/pkg/database"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// TTL is how long a query's cached pages stay valid after its last write.
const TTL = 5 * time.Minute

// ErrNotFound is returned when a cached result id does not exist.
var ErrNotFound = errors.New("cached result not found")

const schema = `
CREATE TABLE IF NOT EXISTS search_cache_info (
	query TEXT PRIMARY KEY,
	last_search_ms INTEGER NOT NULL,
	expiration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_cache_info_expiration ON search_cache_info(expiration_ms);

CREATE TABLE IF NOT EXISTS search_results (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	page INTEGER NOT NULL,
	position INTEGER NOT NULL,
	thumbnail_url TEXT NOT NULL,
	title TEXT NOT NULL,
	source TEXT NOT NULL,
	datetime TEXT NOT NULL,
	type TEXT NOT NULL,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	cached_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_results_query_page ON search_results(query, page);
CREATE INDEX IF NOT EXISTS idx_search_results_query_thumbnail ON search_results(query, thumbnail_url);
`

const resultColumns = `r.id, r.thumbnail_url, r.title, r.source, r.datetime, r.type, r.is_favorite`

// ResultCache stores pages of search results keyed by (query, page).
type ResultCache struct {
	db  *database.Database
	mu  sync.Mutex // serializes SavePage, Clear, SweepExpired and SetFavorite
	now func() time.Time
	ttl time.Duration

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		c.now = now
	}
}

// New creates the cache tables on db if needed and returns a cache using them.
// The caller owns db and closes it after the cache is no longer used.
func New(ctx context.Context, db *database.Database, opts ...Option) (*ResultCache, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}

	c := &ResultCache{
		db:   db,
		now:  time.Now,
		ttl:  TTL,
		subs: make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := db.ExecuteSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize search cache: %w", err)
	}

	return c, nil
}

// IsValid reports whether query has a cache entry that has not expired yet.
func (c *ResultCache) IsValid(ctx context.Context, query string) (bool, error) {
	var expiration int64
	err := c.db.DB().QueryRowContext(ctx,
		"SELECT expiration_ms FROM search_cache_info WHERE query = ?", query,
	).Scan(&expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry for %q: %w", query, err)
	}

	return c.now().UnixMilli() < expiration, nil
}

// GetPage returns the stored items of one page if the query is still valid.
// Validity and rows come from a single statement. A miss returns nil, nil.
func (c *ResultCache) GetPage(ctx context.Context, query string, page int) ([]searchtypes.SearchResult, error) {
	rows, err := c.db.DB().QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM search_results r
		JOIN search_cache_info i ON i.query = r.query
		WHERE r.query = ? AND r.page = ? AND i.expiration_ms > ?
		ORDER BY r.datetime DESC, r.position ASC`,
		query, page, c.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached page %d for %q: %w", page, query, err)
	}
	defer rows.Close()

	items, err := scanResults(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached page %d for %q: %w", page, query, err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	slog.Debug("Cache hit", "query", query, "page", page, "items", len(items))
	return items, nil
}

// SavePage stores items as page of query. Items whose thumbnail URL is
// already cached for the query, or repeated within items, are dropped.
// Expired entries are swept and the query's entry is refreshed in the same
// transaction. It returns the number of rows written.
func (c *ResultCache) SavePage(ctx context.Context, query string, page int, items []searchtypes.SearchResult) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	nowMs := now.UnixMilli()
	inserted := 0
	var swept int64

	err := c.db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		swept, err = sweepExpired(ctx, tx, nowMs)
		if err != nil {
			return err
		}

		seen, err := thumbnailKeys(ctx, tx, query)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_cache_info (query, last_search_ms, expiration_ms)
			VALUES (?, ?, ?)
			ON CONFLICT(query) DO UPDATE SET
				last_search_ms = excluded.last_search_ms,
				expiration_ms = excluded.expiration_ms`,
			query, nowMs, now.Add(c.ttl).UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to upsert cache entry: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO search_results
				(id, query, page, position, thumbnail_url, title, source, datetime, type, is_favorite, cached_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare result insert: %w", err)
		}
		defer stmt.Close()

		for _, item := range items {
			if _, dup := seen[item.ThumbnailURL]; dup {
				continue
			}
			seen[item.ThumbnailURL] = struct{}{}

			if _, err := stmt.ExecContext(ctx,
				item.ID, query, page, inserted, item.ThumbnailURL, item.Title, item.Source,
				item.Datetime, string(item.Type), item.IsFavorite, nowMs,
			); err != nil {
				return fmt.Errorf("failed to insert result %s: %w", item.ID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save page %d for %q: %w", page, query, err)
	}

	slog.Debug("Saved page to cache",
		"query", query,
		"page", page,
		"received", len(items),
		"inserted", inserted,
		"swept", swept)

	if swept > 0 {
		c.publish(Change{Kind: Swept})
	}
	c.publish(Change{Kind: Saved, Query: query})
	return inserted, nil
}

// Clear removes every cached page and the entry for query.
func (c *ResultCache) Clear(ctx context.Context, query string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM search_results WHERE query = ?", query); err != nil {
			return fmt.Errorf("failed to delete cached results: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM search_cache_info WHERE query = ?", query); err != nil {
			return fmt.Errorf("failed to delete cache entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache for %q: %w", query, err)
	}

	slog.Debug("Cleared cache", "query", query)
	c.publish(Change{Kind: Cleared, Query: query})
	return nil
}

// SweepExpired removes entries whose expiration is before now, together with
// their results, and returns the number of entries removed.
func (c *ResultCache) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	err := c.db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = sweepExpired(ctx, tx, now.UnixMilli())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache: %w", err)
	}

	if removed > 0 {
		slog.Debug("Cleaned up expired cache entries", "count", removed)
		c.publish(Change{Kind: Swept})
	}
	return removed, nil
}

// StartSweeper runs SweepExpired every interval until ctx is done.
// The returned channel is closed when the sweeper has stopped.
func (c *ResultCache) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.SweepExpired(ctx, c.now()); err != nil && ctx.Err() == nil {
					slog.Warn("Background cache sweep failed", "error", err)
				}
			}
		}
	}()
	return done
}

// sweepExpired deletes results before entries so no result is left without
// its entry.
func sweepExpired(ctx context.Context, tx *sql.Tx, nowMs int64) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM search_results
		WHERE query IN (SELECT query FROM search_cache_info WHERE expiration_ms < ?)`, nowMs,
	); err != nil {
		return 0, fmt.Errorf("failed to delete expired results: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM search_cache_info WHERE expiration_ms < ?", nowMs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}
	return res.RowsAffected()
}

func thumbnailKeys(ctx context.Context, tx *sql.Tx, query string) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, "SELECT thumbnail_url FROM search_results WHERE query = ?", query)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached thumbnails: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan cached thumbnail: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

func scanResults(rows *sql.Rows) ([]searchtypes.SearchResult, error) {
	var items []searchtypes.SearchResult
	for rows.Next() {
		item, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (searchtypes.SearchResult, error) {
	var (
		item     searchtypes.SearchResult
		typeName string
	)
	if err := row.Scan(&item.ID, &item.ThumbnailURL, &item.Title, &item.Source,
		&item.Datetime, &typeName, &item.IsFavorite); err != nil {
		return searchtypes.SearchResult{}, err
	}

	t, err := searchtypes.ParseResultType(typeName)
	if err != nil {
		return searchtypes.SearchResult{}, err
	}
	item.Type = t
	return item, nil
}
