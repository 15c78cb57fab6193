package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/search-forge/internal/favorites"
	"github.com/lepinkainen/search-forge/pkg/cache"
	"github.com/lepinkainen/search-forge/pkg/paging"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
	"github.com/lepinkainen/search-forge/pkg/testutil"
)

func fixtureOutput() searchOutput {
	return searchOutput{
		Query: "cat",
		Pages: []pageOutput{
			{
				Page:    1,
				NextKey: 2,
				Items: []searchtypes.SearchResult{
					{
						ID:           "video-1",
						ThumbnailURL: "https://tv.example.com/thumb/1.jpg",
						Title:        "Funny cat compilation",
						Source:       "https://tv.example.com/v/1",
						Datetime:     "2024-01-01 12:00:30",
						Type:         searchtypes.Video,
						IsFavorite:   true,
					},
					{
						ID:           "image-1",
						ThumbnailURL: "https://img.example.com/thumb/1.jpg",
						Title:        "Example News",
						Source:       "https://news.example.com/1",
						Datetime:     "2024-01-01 12:00:00",
						Type:         searchtypes.Image,
					},
				},
			},
		},
		Cursor: "eyJzIjp7InEiOiJjYXQifSwicCI6Mn0",
	}
}

func TestWriteSearchJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSearch(&buf, "json", fixtureOutput()); err != nil {
		t.Fatalf("writeSearch() error = %v", err)
	}
	testutil.CompareGoldenJSON(t, filepath.Join("testdata", "search.golden.json"), buf.Bytes())
}

func TestWriteSearchYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSearch(&buf, "yaml", fixtureOutput()); err != nil {
		t.Fatalf("writeSearch() error = %v", err)
	}

	var got searchOutput
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	want := fixtureOutput()
	if got.Query != want.Query || got.Cursor != want.Cursor || len(got.Pages) != 1 {
		t.Fatalf("decoded = %+v", got)
	}
	if got.Pages[0].Items[0] != want.Pages[0].Items[0] {
		t.Errorf("item = %+v, want %+v", got.Pages[0].Items[0], want.Pages[0].Items[0])
	}
	if !strings.Contains(buf.String(), "is_favorite: true") {
		t.Errorf("YAML keys not snake case:\n%s", buf.String())
	}
}

func TestWriteSearchTable(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSearch(&buf, "table", fixtureOutput()); err != nil {
		t.Fatalf("writeSearch() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"TITLE",
		"Funny cat compilation",
		"VIDEO",
		"★",
		"2024-01-01 12:00:00",
		"2 results for \"cat\"",
		"More results: --cursor eyJzIjp7InEiOiJjYXQifSwicCI6Mn0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteCacheStatsJSON(t *testing.T) {
	last := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := cacheStatsOutput{
		Stats: cache.Stats{Queries: 2, ValidQueries: 1, ExpiredQueries: 1, Results: 7, Favorites: 1},
		Entries: []cache.Entry{
			{Query: "cat", LastSearch: last, Expiration: last.Add(cache.TTL), Valid: true, Results: 4},
			{Query: "dog", LastSearch: last.Add(-time.Hour), Expiration: last.Add(-time.Hour + cache.TTL), Results: 3},
		},
	}

	var buf bytes.Buffer
	if err := writeCacheStats(&buf, "json", out); err != nil {
		t.Fatalf("writeCacheStats() error = %v", err)
	}
	testutil.CompareGoldenJSON(t, filepath.Join("testdata", "cache_stats.golden.json"), buf.Bytes())
}

func TestWriteFavoritesTable(t *testing.T) {
	bookmarks := []favorites.Bookmark{{
		Result:       searchtypes.SearchResult{ID: "image-1", Title: "Example News", Source: "https://news.example.com/1", Type: searchtypes.Image},
		BookmarkedAt: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	if err := writeFavorites(&buf, "table", bookmarks); err != nil {
		t.Fatalf("writeFavorites() error = %v", err)
	}
	for _, want := range []string{"2024-01-02 09:30:00", "Example News", "1 favorites"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("favorites output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := writeFavorites(&buf, "json", nil); err != nil {
		t.Fatalf("writeFavorites(nil) error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty favorites JSON = %q, want []", buf.String())
	}
}

type stubLoader struct {
	pages map[int]paging.Page
}

func (l stubLoader) Load(ctx context.Context, sess paging.Session, page, pageSize int) (paging.Page, paging.Session, error) {
	return l.pages[page], sess, nil
}

func TestCollectPages(t *testing.T) {
	loader := stubLoader{pages: map[int]paging.Page{
		1: {Query: "cat", Number: 1, NextKey: 2, Items: fixtureOutput().Pages[0].Items},
		2: {Query: "cat", Number: 2, PrevKey: 1, NextKey: 3},
		3: {Query: "cat", Number: 3, PrevKey: 2},
	}}

	tests := []struct {
		name       string
		pages      int
		wantPages  int
		wantCursor bool
	}{
		{name: "one page", pages: 1, wantPages: 1, wantCursor: true},
		{name: "zero means one", pages: 0, wantPages: 1, wantCursor: true},
		{name: "stops at last page", pages: 10, wantPages: 3, wantCursor: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := collectPages(context.Background(), paging.NewPager(loader, "cat", 2), tt.pages)
			if err != nil {
				t.Fatalf("collectPages() error = %v", err)
			}
			if len(out.Pages) != tt.wantPages {
				t.Errorf("pages = %d, want %d", len(out.Pages), tt.wantPages)
			}
			if (out.Cursor != "") != tt.wantCursor {
				t.Errorf("cursor = %q, want present=%v", out.Cursor, tt.wantCursor)
			}
			for _, p := range out.Pages {
				if p.Items == nil {
					t.Errorf("page %d items = nil, want empty slice", p.Page)
				}
			}
		})
	}
}

func TestRunInitAndCacheStats(t *testing.T) {
	dir := t.TempDir()
	CLI.Config = filepath.Join(dir, "config.yaml")
	CLI.Init.Force = false
	t.Setenv("KAKAO_REST_API_KEY", "")

	var buf bytes.Buffer
	if err := runInit(&buf); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}
	if err := runInit(&buf); err == nil {
		t.Error("second runInit() without --force error = nil")
	}

	// Point the stores into the temp dir
	content := "cache:\n  path: " + filepath.Join(dir, "cache.db") + "\nfavorites:\n  path: " + filepath.Join(dir, "favorites.db") + "\n"
	if err := os.WriteFile(CLI.Config, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	buf.Reset()
	CLI.Cache.Stats.Format = "table"
	if err := runCacheStats(context.Background(), &buf); err != nil {
		t.Fatalf("runCacheStats() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Queries: 0 (0 valid, 0 expired)") {
		t.Errorf("stats output = %q", buf.String())
	}

	if !strings.Contains(buf.String(), "Database: "+filepath.Join(dir, "cache.db")) {
		t.Errorf("stats output lacks the database path: %q", buf.String())
	}

	buf.Reset()
	CLI.Cache.Show.Query = "cat"
	CLI.Cache.Show.Format = "json"
	if err := runCacheShow(context.Background(), &buf); err != nil {
		t.Fatalf("runCacheShow() error = %v", err)
	}
	if got := strings.Join(strings.Fields(buf.String()), ""); got != `{"query":"cat","items":[]}` {
		t.Errorf("show output = %q", buf.String())
	}

	buf.Reset()
	CLI.Cache.Sweep.Vacuum = true
	if err := runCacheSweep(context.Background(), &buf); err != nil {
		t.Fatalf("runCacheSweep() error = %v", err)
	}
	if buf.String() != "Removed 0 expired queries\nVacuumed cache database\n" {
		t.Errorf("sweep output = %q", buf.String())
	}
}
