package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// CachedResult is a stored result together with the page it was served on.
type CachedResult struct {
	searchtypes.SearchResult
	Query string
	Page  int
}

// Result looks up a cached result by id, regardless of TTL.
func (c *ResultCache) Result(ctx context.Context, id string) (CachedResult, error) {
	row := c.db.DB().QueryRowContext(ctx, `
		SELECT `+resultColumns+`, r.query, r.page
		FROM search_results r
		WHERE r.id = ?`, id)

	var (
		res      CachedResult
		typeName string
	)
	err := row.Scan(&res.ID, &res.ThumbnailURL, &res.Title, &res.Source,
		&res.Datetime, &typeName, &res.IsFavorite, &res.Query, &res.Page)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return CachedResult{}, fmt.Errorf("failed to read cached result %s: %w", id, err)
	}

	res.Type, err = searchtypes.ParseResultType(typeName)
	if err != nil {
		return CachedResult{}, err
	}
	return res, nil
}

// SetFavorite updates the cached favorite flag of one result.
func (c *ResultCache) SetFavorite(ctx context.Context, id string, favorite bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var query string
	err := c.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT query FROM search_results WHERE id = ?", id).Scan(&query); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		_, err := tx.ExecContext(ctx, "UPDATE search_results SET is_favorite = ? WHERE id = ?", favorite, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update favorite flag: %w", err)
	}

	c.publish(Change{Kind: FavoriteChanged, Query: query, ID: id})
	return nil
}

// FavoriteStates returns the cached favorite flag of every result of query.
func (c *ResultCache) FavoriteStates(ctx context.Context, query string) (map[string]bool, error) {
	rows, err := c.db.DB().QueryContext(ctx,
		"SELECT id, is_favorite FROM search_results WHERE query = ?", query)
	if err != nil {
		return nil, fmt.Errorf("failed to read favorite states for %q: %w", query, err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var (
			id  string
			fav bool
		)
		if err := rows.Scan(&id, &fav); err != nil {
			return nil, fmt.Errorf("failed to scan favorite state: %w", err)
		}
		states[id] = fav
	}
	return states, rows.Err()
}

// Results returns every cached result of a valid query in serving order.
func (c *ResultCache) Results(ctx context.Context, query string) ([]searchtypes.SearchResult, error) {
	rows, err := c.db.DB().QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM search_results r
		JOIN search_cache_info i ON i.query = r.query
		WHERE r.query = ? AND i.expiration_ms > ?
		ORDER BY r.page ASC, r.datetime DESC, r.position ASC`,
		query, c.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached results for %q: %w", query, err)
	}
	defer rows.Close()

	return scanResults(rows)
}
