package cache

import (
	"context"
	"fmt"
	"time"
)

// Stats summarizes the cache contents.
type Stats struct {
	Queries        int `json:"queries" yaml:"queries"`
	ValidQueries   int `json:"valid_queries" yaml:"valid_queries"`
	ExpiredQueries int `json:"expired_queries" yaml:"expired_queries"`
	Results        int `json:"results" yaml:"results"`
	Favorites      int `json:"favorites" yaml:"favorites"`
}

// Entry describes one cached query.
type Entry struct {
	Query      string    `json:"query" yaml:"query"`
	LastSearch time.Time `json:"last_search" yaml:"last_search"`
	Expiration time.Time `json:"expiration" yaml:"expiration"`
	Valid      bool      `json:"valid" yaml:"valid"`
	Results    int       `json:"results" yaml:"results"`
}

// GetStats returns cache statistics
func (c *ResultCache) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	nowMs := c.now().UnixMilli()
	db := c.db.DB()

	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN expiration_ms > ? THEN 1 ELSE 0 END), 0)
		FROM search_cache_info`, nowMs,
	).Scan(&stats.Queries, &stats.ValidQueries); err != nil {
		return Stats{}, fmt.Errorf("failed to count cache entries: %w", err)
	}
	stats.ExpiredQueries = stats.Queries - stats.ValidQueries

	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_favorite), 0) FROM search_results`,
	).Scan(&stats.Results, &stats.Favorites); err != nil {
		return Stats{}, fmt.Errorf("failed to count cached results: %w", err)
	}

	return stats, nil
}

// Entries lists cached queries, most recently searched first.
func (c *ResultCache) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.DB().QueryContext(ctx, `
		SELECT i.query, i.last_search_ms, i.expiration_ms, COUNT(r.id)
		FROM search_cache_info i
		LEFT JOIN search_results r ON r.query = i.query
		GROUP BY i.query
		ORDER BY i.last_search_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	now := c.now()
	var entries []Entry
	for rows.Next() {
		var (
			e            Entry
			last, expire int64
		)
		if err := rows.Scan(&e.Query, &last, &expire, &e.Results); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.LastSearch = time.UnixMilli(last)
		e.Expiration = time.UnixMilli(expire)
		e.Valid = now.UnixMilli() < expire
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
