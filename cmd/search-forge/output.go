package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/search-forge/internal/favorites"
	"github.com/lepinkainen/search-forge/pkg/cache"
	"github.com/lepinkainen/search-forge/pkg/database"
	"github.com/lepinkainen/search-forge/pkg/paging"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

type pageOutput struct {
	Page      int                        `json:"page" yaml:"page"`
	PrevKey   int                        `json:"prev_key" yaml:"prev_key"`
	NextKey   int                        `json:"next_key" yaml:"next_key"`
	FromCache bool                       `json:"from_cache" yaml:"from_cache"`
	Items     []searchtypes.SearchResult `json:"items" yaml:"items"`
}

type searchOutput struct {
	Query  string       `json:"query" yaml:"query"`
	Pages  []pageOutput `json:"pages" yaml:"pages"`
	Cursor string       `json:"cursor,omitempty" yaml:"cursor,omitempty"`
}

type cacheStatsOutput struct {
	Stats    cache.Stats    `json:"stats" yaml:"stats"`
	Entries  []cache.Entry  `json:"entries" yaml:"entries"`
	Database *database.Info `json:"database,omitempty" yaml:"database,omitempty"`
}

type cachedOutput struct {
	Query string                     `json:"query" yaml:"query"`
	Items []searchtypes.SearchResult `json:"items" yaml:"items"`
}

// collectPages loads up to n pages, stopping early at the last one.
func collectPages(ctx context.Context, pager *paging.Pager, n int) (searchOutput, error) {
	out := searchOutput{Query: pager.Query(), Pages: []pageOutput{}}
	for i := 0; i < max(n, 1) && pager.HasMore(); i++ {
		page, err := pager.Next(ctx)
		if errors.Is(err, paging.ErrNoMorePages) {
			break
		}
		if err != nil {
			return out, err
		}
		items := page.Items
		if items == nil {
			items = []searchtypes.SearchResult{}
		}
		out.Pages = append(out.Pages, pageOutput{
			Page:      page.Number,
			PrevKey:   page.PrevKey,
			NextKey:   page.NextKey,
			FromCache: page.FromCache,
			Items:     items,
		})
	}

	cursor, err := pager.Cursor()
	if err != nil {
		return out, err
	}
	out.Cursor = cursor
	return out, nil
}

func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func writeSearch(w io.Writer, format string, out searchOutput) error {
	if done, err := writeStructured(w, format, out); done {
		return err
	}

	t := newTable("#", "PAGE", "TYPE", "FAV", "DATETIME", "TITLE", "SOURCE")
	n := 0
	for _, page := range out.Pages {
		for _, item := range page.Items {
			n++
			t.Row(strconv.Itoa(n), strconv.Itoa(page.Page), string(item.Type), favMark(item.IsFavorite), item.Datetime, item.Title, item.Source)
		}
	}

	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d results for %q\n", n, out.Query)
	if out.Cursor != "" {
		fmt.Fprintf(w, "More results: --cursor %s\n", out.Cursor)
	}
	return nil
}

func writeCachedResults(w io.Writer, format string, out cachedOutput) error {
	if out.Items == nil {
		out.Items = []searchtypes.SearchResult{}
	}
	if done, err := writeStructured(w, format, out); done {
		return err
	}

	t := newTable("#", "TYPE", "FAV", "DATETIME", "TITLE", "SOURCE")
	for i, item := range out.Items {
		t.Row(strconv.Itoa(i+1), string(item.Type), favMark(item.IsFavorite), item.Datetime, item.Title, item.Source)
	}
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d cached results for %q\n", len(out.Items), out.Query)
	return nil
}

func writeCacheStats(w io.Writer, format string, out cacheStatsOutput) error {
	if done, err := writeStructured(w, format, out); done {
		return err
	}

	fmt.Fprintf(w, "Queries: %d (%d valid, %d expired)\nResults: %d\nFavorites: %d\n",
		out.Stats.Queries, out.Stats.ValidQueries, out.Stats.ExpiredQueries, out.Stats.Results, out.Stats.Favorites)
	if out.Database != nil {
		fmt.Fprintf(w, "Database: %s (%d bytes, SQLite %s)\n", out.Database.Path, out.Database.FileSizeBytes, out.Database.SQLiteVersion)
	}
	if len(out.Entries) == 0 {
		return nil
	}

	t := newTable("QUERY", "RESULTS", "LAST SEARCH", "EXPIRES", "VALID")
	for _, e := range out.Entries {
		t.Row(e.Query, strconv.Itoa(e.Results), e.LastSearch.Format(time.DateTime), e.Expiration.Format(time.DateTime), strconv.FormatBool(e.Valid))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func writeFavorites(w io.Writer, format string, bookmarks []favorites.Bookmark) error {
	if bookmarks == nil {
		bookmarks = []favorites.Bookmark{}
	}
	if done, err := writeStructured(w, format, bookmarks); done {
		return err
	}

	t := newTable("BOOKMARKED", "TYPE", "TITLE", "SOURCE")
	for _, b := range bookmarks {
		t.Row(b.BookmarkedAt.Format(time.DateTime), string(b.Result.Type), b.Result.Title, b.Result.Source)
	}
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d favorites\n", len(bookmarks))
	return nil
}

func favMark(fav bool) string {
	if fav {
		return "★"
	}
	return ""
}
