// Package app wires the search engine together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/search-forge/internal/config"
	"github.com/lepinkainen/search-forge/internal/favorites"
	"github.com/lepinkainen/search-forge/internal/kakao"
	"github.com/lepinkainen/search-forge/pkg/cache"
	"github.com/lepinkainen/search-forge/pkg/database"
	"github.com/lepinkainen/search-forge/pkg/filesystem"
	"github.com/lepinkainen/search-forge/pkg/paging"
)

// ErrSearchDisabled is returned by search operations of an App opened with
// OpenStorage.
var ErrSearchDisabled = errors.New("search is not configured")

// App owns the stores and the paging pipeline.
type App struct {
	Config       *config.Config
	Cache        *cache.ResultCache
	Favorites    *favorites.Registry
	Orchestrator *paging.Orchestrator

	db          *database.Database
	writer      *paging.Writer
	stopSweeper context.CancelFunc
	sweeperDone <-chan struct{}
}

// OpenStorage opens the result cache and the favorites store only. It is
// enough for cache and favorites maintenance and needs no API key.
func OpenStorage(ctx context.Context, cfg *config.Config) (*App, error) {
	cachePath, err := filesystem.DataPath(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache path: %w", err)
	}
	favoritesPath, err := filesystem.DataPath(cfg.Favorites.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve favorites path: %w", err)
	}

	if !database.DatabaseExists(cachePath) {
		slog.Debug("Creating cache database", "path", cachePath)
	}

	dbConfig := database.DefaultConfig()
	dbConfig.Path = cachePath
	db, err := database.NewDatabase(dbConfig)
	if err != nil {
		return nil, err
	}

	resultCache, err := cache.New(ctx, db)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	registry, err := favorites.Open(favoritesPath)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	slog.Debug("Opened storage", "cache", cachePath, "favorites", favoritesPath)
	return &App{
		Config:    cfg,
		Cache:     resultCache,
		Favorites: registry,
		db:        db,
	}, nil
}

// Open opens the storage and builds the search pipeline on top of it. The
// background sweeper runs until Close.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.enableSearch(); err != nil {
		a.Close()
		return nil, err
	}
	a.startSweeper()
	return a, nil
}

func (a *App) enableSearch() error {
	sort, err := paging.ParseSort(a.Config.Kakao.Sort)
	if err != nil {
		return err
	}

	client, err := kakao.NewClient(kakao.Config{
		APIKey:            a.Config.Kakao.APIKey,
		BaseURL:           a.Config.Kakao.BaseURL,
		RequestsPerSecond: a.Config.Kakao.RequestsPerSecond,
		Timeout:           a.Config.Kakao.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create search client: %w", err)
	}

	// One writer serves both the merger's first-page notification and the
	// orchestrator so Close can wait for every pending write.
	a.writer = paging.NewWriter(a.Cache, a.Config.Paging.WriteTimeout)

	merger := paging.NewMerger(client.Images(), client.Videos(),
		paging.WithSort(sort),
		paging.WithFetchTimeout(a.Config.Paging.FetchTimeout),
		paging.WithFirstPageNotifier(a.writer),
	)

	a.Orchestrator = paging.NewOrchestrator(merger, a.Cache,
		paging.WithWriter(a.writer),
		paging.WithFavorites(a.Cache, a.Favorites),
	)
	return nil
}

func (a *App) startSweeper() {
	interval := a.Config.Cache.SweepInterval
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel
	a.sweeperDone = a.Cache.StartSweeper(ctx, interval)
}

// PageSize is the configured number of items per page.
func (a *App) PageSize() int {
	if a.Config.Paging.PageSize > 0 {
		return a.Config.Paging.PageSize
	}
	return paging.DefaultPageSize
}

// NewPager starts paging query. size <= 0 uses the configured page size.
func (a *App) NewPager(query string, size int) (*paging.Pager, error) {
	if a.Orchestrator == nil {
		return nil, ErrSearchDisabled
	}
	if size <= 0 {
		size = a.PageSize()
	}
	return paging.NewPager(a.Orchestrator, query, size), nil
}

// ResumePager continues paging from an encoded cursor.
func (a *App) ResumePager(token string, size int) (*paging.Pager, error) {
	if a.Orchestrator == nil {
		return nil, ErrSearchDisabled
	}
	cur, err := paging.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = a.PageSize()
	}
	return paging.ResumePager(a.Orchestrator, cur, size), nil
}

// StorageInfo describes the cache database file.
func (a *App) StorageInfo(ctx context.Context) (database.Info, error) {
	return a.db.Info(ctx)
}

// Vacuum reclaims space in the cache database, e.g. after a sweep.
func (a *App) Vacuum(ctx context.Context) error {
	return a.db.Vacuum(ctx)
}

// Close waits for pending cache writes, stops the sweeper and closes the
// stores.
func (a *App) Close() error {
	if a.writer != nil {
		a.writer.Wait()
	}
	if a.stopSweeper != nil {
		a.stopSweeper()
		<-a.sweeperDone
	}

	var errs []error
	if a.Favorites != nil {
		if err := a.Favorites.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close favorites: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func closeDB(db *database.Database) {
	if err := db.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
