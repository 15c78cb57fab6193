// Package server exposes the paging engine as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lepinkainen/search-forge/internal/favorites"
	"github.com/lepinkainen/search-forge/pkg/cache"
	"github.com/lepinkainen/search-forge/pkg/paging"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// loadFailedMessage is the only detail clients get about a failed load.
const loadFailedMessage = "could not load this page"

// Searcher loads pages and flips favorites. *paging.Orchestrator implements it.
type Searcher interface {
	paging.Loader
	ClearQuery(ctx context.Context, query string) error
	ToggleFavorite(ctx context.Context, id string) (bool, error)
}

// CacheInspector reports on the result cache. *cache.ResultCache implements it.
type CacheInspector interface {
	IsValid(ctx context.Context, query string) (bool, error)
	GetStats(ctx context.Context) (cache.Stats, error)
}

// Bookmarks lists favorites. *favorites.Registry implements it.
type Bookmarks interface {
	List(ctx context.Context) ([]favorites.Bookmark, error)
	Search(ctx context.Context, pattern string) ([]favorites.Bookmark, error)
}

// Deps are the collaborators of the API handlers.
type Deps struct {
	Searcher  Searcher
	Cache     CacheInspector
	Bookmarks Bookmarks
	PageSize  int

	// AllowedOrigins enables CORS for browser clients when non-empty.
	AllowedOrigins []string
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Query     string                     `json:"query"`
	Page      int                        `json:"page"`
	Items     []searchtypes.SearchResult `json:"items"`
	PrevKey   int                        `json:"prev_key"`
	NextKey   int                        `json:"next_key"`
	FromCache bool                       `json:"from_cache"`
	Cursor    string                     `json:"cursor,omitempty"`
}

// NewHandler builds the router.
func NewHandler(deps Deps) http.Handler {
	if deps.PageSize <= 0 {
		deps.PageSize = paging.DefaultPageSize
	}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         86400,
		}))
	}

	r.Get("/health", handleHealth)
	r.Get("/search", handleSearch(deps))

	r.Route("/cache", func(r chi.Router) {
		r.Get("/", handleCacheStats(deps))
		r.Get("/{query}", handleCacheStatus(deps))
		r.Delete("/{query}", handleCacheClear(deps))
	})

	r.Get("/favorites", handleListFavorites(deps))
	r.Post("/favorites/{id}/toggle", handleToggleFavorite(deps))

	return r
}

// New returns an http.Server for handler on addr.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		query := params.Get("q")

		size, err := intParam(params, "size", deps.PageSize)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}

		sess := paging.NewSession(query)
		page := 1
		if token := params.Get("cursor"); token != "" {
			cur, err := paging.DecodeCursor(token)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid cursor")
				return
			}
			// A cursor for another query is ignored and a new session starts.
			if query == "" || cur.Session.Query == query {
				sess, page = cur.Session, cur.Page
			}
		}

		page, err = intParam(params, "page", page)
		if err != nil {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}

		result, next, err := deps.Searcher.Load(r.Context(), sess, page, size)
		if errors.Is(err, paging.ErrInvalidRequest) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err != nil {
			slog.Warn("Search failed", "query", sess.Query, "page", page, "error", err)
			httpError(w, http.StatusBadGateway, loadFailedMessage)
			return
		}

		resp := SearchResponse{
			Query:     result.Query,
			Page:      result.Number,
			Items:     result.Items,
			PrevKey:   result.PrevKey,
			NextKey:   result.NextKey,
			FromCache: result.FromCache,
		}
		if resp.Items == nil {
			resp.Items = []searchtypes.SearchResult{}
		}
		if result.NextKey != 0 {
			resp.Cursor, err = paging.EncodeCursor(paging.Cursor{Session: next, Page: result.NextKey})
			if err != nil {
				httpError(w, http.StatusInternalServerError, "%v", err)
				return
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCacheStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Cache.GetStats(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to get cache stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleCacheStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := pathParam(r, "query")
		valid, err := deps.Cache.IsValid(r.Context(), query)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to check cache: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"query": query, "valid": valid})
	}
}

func handleCacheClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := pathParam(r, "query")
		if err := deps.Searcher.ClearQuery(r.Context(), query); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to clear cache: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListFavorites(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookmarks, err := deps.Bookmarks.Search(r.Context(), r.URL.Query().Get("filter"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list favorites: %v", err)
			return
		}
		if bookmarks == nil {
			bookmarks = []favorites.Bookmark{}
		}
		writeJSON(w, http.StatusOK, bookmarks)
	}
}

func handleToggleFavorite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		state, err := deps.Searcher.ToggleFavorite(r.Context(), id)
		if errors.Is(err, paging.ErrResultNotFound) {
			httpError(w, http.StatusNotFound, "result %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to toggle favorite: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "favorite": state})
	}
}

func intParam(params url.Values, name string, def int) (int, error) {
	raw := params.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
