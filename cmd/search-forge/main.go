// Package main provides the CLI entry point for search-forge.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/lepinkainen/search-forge/internal/app"
	"github.com/lepinkainen/search-forge/internal/config"
	"github.com/lepinkainen/search-forge/internal/server"
	"github.com/lepinkainen/search-forge/pkg/paging"
	"github.com/lepinkainen/search-forge/pkg/preview"
)

// CLI structure
var CLI struct {
	Config string `help:"Configuration file path" default:"config.yaml"`
	Debug  bool   `help:"Enable debug logging" default:"false"`

	Search struct {
		Query  string `arg:"" optional:"" help:"Search query (taken from --cursor when omitted)"`
		Page   int    `help:"First page to load" default:"1"`
		Pages  int    `help:"Number of pages to load" default:"1"`
		Size   int    `help:"Results per page, 0 uses paging.page_size" default:"0"`
		Cursor string `help:"Continue from the cursor printed by an earlier search"`
		Format string `help:"Output format" enum:"table,json,yaml" default:"table"`
	} `cmd:"search" help:"Search images and videos."`

	Preview struct {
		Query string `arg:"" help:"Search query"`
		Size  int    `help:"Results per page, 0 uses paging.page_size" default:"0"`
	} `cmd:"preview" help:"Browse results interactively."`

	Serve struct {
		Addr string `help:"Listen address, empty uses server.addr"`
	} `cmd:"serve" help:"Serve the JSON HTTP API."`

	Cache struct {
		Clear struct {
			Query string `arg:"" help:"Query to drop from the cache"`
		} `cmd:"clear" help:"Remove one query from the cache."`

		Sweep struct {
			Vacuum bool `help:"Reclaim disk space after sweeping"`
		} `cmd:"sweep" help:"Remove expired queries from the cache."`

		Stats struct {
			Format string `help:"Output format" enum:"table,json,yaml" default:"table"`
		} `cmd:"stats" help:"Show cache statistics."`

		Show struct {
			Query  string `arg:"" help:"Cached query to show"`
			Format string `help:"Output format" enum:"table,json,yaml" default:"table"`
		} `cmd:"show" help:"Show every valid cached result of a query."`
	} `cmd:"cache" help:"Inspect and maintain the result cache."`

	Favorites struct {
		List struct {
			Filter string `help:"Fuzzy filter on titles"`
			Format string `help:"Output format" enum:"table,json,yaml" default:"table"`
		} `cmd:"list" help:"List favorite results."`
	} `cmd:"favorites" help:"Manage favorite results."`

	Init struct {
		Force bool `help:"Overwrite an existing file"`
	} `cmd:"init" help:"Write a default configuration file."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("search-forge"),
		kong.Description("Paginated image and video search with a local result cache."),
	)

	// Configure logging level based on debug flag
	if CLI.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		slog.SetLogLoggerLevel(slog.LevelWarn)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch ctx.Command() {
	case "search", "search <query>":
		err = runSearch(runCtx, os.Stdout)
	case "preview <query>":
		err = runPreview(runCtx)
	case "serve":
		err = runServe(runCtx)
	case "cache clear <query>":
		err = runCacheClear(runCtx, os.Stdout)
	case "cache sweep":
		err = runCacheSweep(runCtx, os.Stdout)
	case "cache stats":
		err = runCacheStats(runCtx, os.Stdout)
	case "cache show <query>":
		err = runCacheShow(runCtx, os.Stdout)
	case "favorites list":
		err = runFavoritesList(runCtx, os.Stdout)
	case "init":
		err = runInit(os.Stdout)
	default:
		panic(ctx.Command())
	}

	if err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(CLI.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openApp opens the full search pipeline.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg)
}

// openStorage opens only the stores, for commands that do not search.
func openStorage(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.OpenStorage(ctx, cfg)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Error("Failed to close", "error", err)
	}
}

func runSearch(ctx context.Context, w io.Writer) error {
	if CLI.Search.Query == "" && CLI.Search.Cursor == "" {
		return errors.New("a query or --cursor is required")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	pager, err := searchPager(a)
	if err != nil {
		return err
	}

	out, err := collectPages(ctx, pager, CLI.Search.Pages)
	if err != nil {
		return err
	}
	return writeSearch(w, CLI.Search.Format, out)
}

// searchPager positions a pager from the search flags.
func searchPager(a *app.App) (*paging.Pager, error) {
	if CLI.Search.Cursor != "" {
		pager, err := a.ResumePager(CLI.Search.Cursor, CLI.Search.Size)
		if err != nil {
			return nil, err
		}
		if CLI.Search.Query != "" && pager.Query() != CLI.Search.Query {
			return nil, fmt.Errorf("cursor belongs to query %q, not %q", pager.Query(), CLI.Search.Query)
		}
		return pager, nil
	}

	if CLI.Search.Page > 1 {
		cur := paging.Cursor{Session: paging.NewSession(CLI.Search.Query), Page: CLI.Search.Page}
		token, err := paging.EncodeCursor(cur)
		if err != nil {
			return nil, err
		}
		return a.ResumePager(token, CLI.Search.Size)
	}
	return a.NewPager(CLI.Search.Query, CLI.Search.Size)
}

func runPreview(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	pager, err := a.NewPager(CLI.Preview.Query, CLI.Preview.Size)
	if err != nil {
		return err
	}

	changes, cancel := a.Cache.Subscribe(16)
	defer cancel()

	if err := preview.Run(ctx, pager, a.Orchestrator, changes); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("preview failed: %w", err)
	}
	return nil
}

func runServe(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	addr := CLI.Serve.Addr
	if addr == "" {
		addr = a.Config.Server.Addr
	}

	handler := server.NewHandler(server.Deps{
		Searcher:  a.Orchestrator,
		Cache:     a.Cache,
		Bookmarks: a.Favorites,
		PageSize:  a.PageSize(),

		AllowedOrigins: a.Config.Server.AllowedOrigins,
	})
	return server.Run(ctx, server.New(addr, handler))
}

func runCacheClear(ctx context.Context, w io.Writer) error {
	a, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.Cache.Clear(ctx, CLI.Cache.Clear.Query); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cleared %q\n", CLI.Cache.Clear.Query)
	return nil
}

func runCacheSweep(ctx context.Context, w io.Writer) error {
	a, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	removed, err := a.Cache.SweepExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Removed %d expired queries\n", removed)

	if CLI.Cache.Sweep.Vacuum {
		if err := a.Vacuum(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "Vacuumed cache database")
	}
	return nil
}

func runCacheStats(ctx context.Context, w io.Writer) error {
	a, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	stats, err := a.Cache.GetStats(ctx)
	if err != nil {
		return err
	}
	entries, err := a.Cache.Entries(ctx)
	if err != nil {
		return err
	}
	info, err := a.StorageInfo(ctx)
	if err != nil {
		return err
	}
	return writeCacheStats(w, CLI.Cache.Stats.Format, cacheStatsOutput{Stats: stats, Entries: entries, Database: &info})
}

func runCacheShow(ctx context.Context, w io.Writer) error {
	a, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	items, err := a.Cache.Results(ctx, CLI.Cache.Show.Query)
	if err != nil {
		return err
	}
	return writeCachedResults(w, CLI.Cache.Show.Format, cachedOutput{Query: CLI.Cache.Show.Query, Items: items})
}

func runFavoritesList(ctx context.Context, w io.Writer) error {
	a, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	bookmarks, err := a.Favorites.Search(ctx, CLI.Favorites.List.Filter)
	if err != nil {
		return err
	}
	return writeFavorites(w, CLI.Favorites.List.Format, bookmarks)
}

func runInit(w io.Writer) error {
	if _, err := os.Stat(CLI.Config); err == nil && !CLI.Init.Force {
		return fmt.Errorf("%s already exists, use --force to overwrite", CLI.Config)
	}
	if err := config.SaveConfig(config.Default(), CLI.Config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(w, "Wrote %s\n", CLI.Config)
	return nil
}
