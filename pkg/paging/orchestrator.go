package paging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/search-forge/pkg/cache"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// DefaultPageSize is the nominal number of items requested per page.
const DefaultPageSize = 20

// Fetcher produces live pages. *Merger implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, sess Session, page, pageSize int) (Page, Session, error)
}

// PageCache is the cache the orchestrator reads pages from and writes them to.
// *cache.ResultCache implements it.
type PageCache interface {
	PageWriter
	GetPage(ctx context.Context, query string, page int) ([]searchtypes.SearchResult, error)
	Clear(ctx context.Context, query string) error
}

// FavoriteCache holds the cached favorite projection.
type FavoriteCache interface {
	Result(ctx context.Context, id string) (cache.CachedResult, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	FavoriteStates(ctx context.Context, query string) (map[string]bool, error)
}

// Registry owns bookmark state. SetFavorite is idempotent.
type Registry interface {
	IsFavorite(ctx context.Context, id string) (bool, error)
	SetFavorite(ctx context.Context, item searchtypes.SearchResult, favorite bool) error
}

// Orchestrator serves pages from the cache when it can and from the merger
// otherwise.
type Orchestrator struct {
	fetcher   Fetcher
	cache     PageCache
	writer    *Writer
	favorites FavoriteCache
	registry  Registry
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithWriter shares a Writer, e.g. with a merger's first-page notifier.
func WithWriter(w *Writer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.writer = w
	}
}

// WithFavorites enables ToggleFavorite and FavoriteStates.
func WithFavorites(fc FavoriteCache, r Registry) OrchestratorOption {
	return func(o *Orchestrator) {
		o.favorites = fc
		o.registry = r
	}
}

// NewOrchestrator creates an orchestrator. Without WithWriter, cache writes
// use a private Writer with a 10 second timeout.
func NewOrchestrator(fetcher Fetcher, c PageCache, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		cache:   c,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.writer == nil {
		o.writer = NewWriter(c, 10*time.Second)
	}
	return o
}

// Load returns page of sess.Query. Cache read problems fall back to a live
// fetch; only a failed live fetch is returned, as a *LoadError.
func (o *Orchestrator) Load(ctx context.Context, sess Session, page, pageSize int) (Page, Session, error) {
	if sess.Blank() {
		return emptyPage(sess.Query, page), sess, nil
	}
	if !validRequest(page, pageSize) {
		return Page{}, sess, fmt.Errorf("%w: page %d, size %d", ErrInvalidRequest, page, pageSize)
	}

	items, err := o.cache.GetPage(ctx, sess.Query, page)
	if err != nil {
		slog.Warn("Cache read failed, fetching live", "query", sess.Query, "page", page, "error", err)
	}
	if err == nil && len(items) > 0 {
		result := Page{
			Query:     sess.Query,
			Number:    page,
			Items:     items,
			PrevKey:   prevKey(page),
			FromCache: true,
		}
		// A short cached page is taken as the last one.
		if len(items) >= pageSize {
			result.NextKey = page + 1
		}
		slog.Debug("Loaded page from cache", "query", sess.Query, "page", page, "items", len(items), "next", result.NextKey)
		return result, sess, nil
	}

	result, next, err := o.fetcher.FetchPage(ctx, sess, page, pageSize)
	if err != nil {
		return Page{}, sess, &LoadError{Query: sess.Query, Page: page, Err: err}
	}

	if len(result.Items) > 0 {
		o.writer.Schedule(ctx, sess.Query, page, result.Items)
	}

	slog.Debug("Loaded page live", "query", sess.Query, "page", page, "items", len(result.Items), "next", result.NextKey)
	return result, next, nil
}

// ClearQuery drops the cached pages of query so the next load is live.
func (o *Orchestrator) ClearQuery(ctx context.Context, query string) error {
	return o.cache.Clear(ctx, query)
}

// ToggleFavorite flips the bookmark of a cached result and mirrors the new
// state into the cache. It returns the new state. If the cache cannot be
// updated the bookmark is restored to its previous state.
func (o *Orchestrator) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	if o.favorites == nil || o.registry == nil {
		return false, fmt.Errorf("favorites are not configured")
	}

	res, err := o.favorites.Result(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up result %s: %w", id, err)
	}

	current, err := o.registry.IsFavorite(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to read favorite %s: %w", id, err)
	}
	state := !current

	if err := o.registry.SetFavorite(ctx, res.SearchResult, state); err != nil {
		return false, fmt.Errorf("failed to toggle favorite %s: %w", id, err)
	}

	if err := o.favorites.SetFavorite(ctx, id, state); err != nil {
		storeErr := fmt.Errorf("failed to store favorite state %s: %w", id, err)
		if rbErr := o.registry.SetFavorite(context.WithoutCancel(ctx), res.SearchResult, current); rbErr != nil {
			slog.Error("Failed to restore favorite", "id", id, "favorite", current, "error", rbErr)
			return false, errors.Join(storeErr, fmt.Errorf("failed to restore favorite %s: %w", id, rbErr))
		}
		return false, storeErr
	}

	slog.Debug("Toggled favorite", "id", id, "query", res.Query, "favorite", state)
	return state, nil
}

// FavoriteStates re-reads the cached favorite flags of query.
func (o *Orchestrator) FavoriteStates(ctx context.Context, query string) (map[string]bool, error) {
	if o.favorites == nil {
		return nil, fmt.Errorf("favorites are not configured")
	}
	return o.favorites.FavoriteStates(ctx, query)
}

// Wait blocks until background cache writes have finished.
func (o *Orchestrator) Wait() {
	o.writer.Wait()
}
