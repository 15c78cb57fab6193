package paging

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/search-forge/pkg/cache"
	"github.com/lepinkainen/search-forge/pkg/database"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

func openTestCache(t *testing.T) *cache.ResultCache {
	t.Helper()

	db, err := database.NewDatabase(database.Config{Path: filepath.Join(t.TempDir(), "paging.db")})
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c, err := cache.New(context.Background(), db)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	return c
}

func TestOrchestratorCacheHit(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	cached := append(
		results("img", 20, searchtypes.Image, baseTime, time.Hour),
		results("vid", 5, searchtypes.Video, baseTime.Add(-10*time.Minute), 2*time.Hour)...,
	)
	if _, err := c.SavePage(ctx, "cat", 1, cached); err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}

	image, video := staticSource(nil, true), staticSource(nil, true)
	o := NewOrchestrator(NewMerger(image, video), c)
	defer o.Wait()

	page, sess, err := o.Load(ctx, NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !page.FromCache {
		t.Error("FromCache = false, want cache hit")
	}
	if len(page.Items) != 25 {
		t.Errorf("items = %d, want 25", len(page.Items))
	}
	if page.NextKey != 2 || page.PrevKey != 0 {
		t.Errorf("keys = prev %d next %d, want prev 0 next 2", page.PrevKey, page.NextKey)
	}
	if image.calls()+video.calls() != 0 {
		t.Error("upstream called on cache hit")
	}
	if sess != NewSession("cat") {
		t.Errorf("session = %+v, want unchanged", sess)
	}
}

func TestOrchestratorShortCachedPageIsLast(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	if _, err := c.SavePage(ctx, "cat", 3, results("img", 7, searchtypes.Image, baseTime, time.Hour)); err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}

	o := NewOrchestrator(NewMerger(staticSource(nil, false), staticSource(nil, false)), c)
	defer o.Wait()

	page, _, err := o.Load(ctx, NewSession("cat"), 3, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if page.NextKey != 0 || page.PrevKey != 2 {
		t.Errorf("keys = prev %d next %d, want prev 2 next 0", page.PrevKey, page.NextKey)
	}
}

func TestOrchestratorLiveFetchIsCached(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	image := staticSource(results("img", 20, searchtypes.Image, baseTime, time.Hour), false)
	video := staticSource(results("vid", 5, searchtypes.Video, baseTime, 90*time.Minute), true)
	o := NewOrchestrator(NewMerger(image, video), c)

	first, sess, err := o.Load(ctx, NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if first.FromCache {
		t.Error("first load came from cache")
	}
	if !sess.VideoExhausted || sess.ImageExhausted {
		t.Errorf("session = %+v, want video exhausted only", sess)
	}
	o.Wait()

	second, _, err := o.Load(ctx, NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if !second.FromCache || len(second.Items) != 25 {
		t.Errorf("second load FromCache = %v, items = %d; want cached 25", second.FromCache, len(second.Items))
	}
	if image.calls() != 1 || video.calls() != 1 {
		t.Errorf("upstream calls = %d/%d, want 1/1", image.calls(), video.calls())
	}
	for i := range first.Items {
		if first.Items[i].ID != second.Items[i].ID {
			t.Fatalf("cached order differs at %d: %q vs %q", i, first.Items[i].ID, second.Items[i].ID)
		}
	}
}

func TestOrchestratorBothSourcesFail(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	o := NewOrchestrator(NewMerger(failingSource(errors.New("a")), failingSource(errors.New("b"))), c)

	_, sess, err := o.Load(ctx, NewSession("cat"), 1, 20)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Load() error = %v, want *LoadError", err)
	}
	if loadErr.Page != 1 || loadErr.Query != "cat" {
		t.Errorf("LoadError = %+v", loadErr)
	}
	if !errors.Is(err, ErrMergeFailed) {
		t.Errorf("Load() error = %v, want ErrMergeFailed", err)
	}
	if sess != NewSession("cat") {
		t.Errorf("session = %+v, want unchanged", sess)
	}

	o.Wait()
	if valid, _ := c.IsValid(ctx, "cat"); valid {
		t.Error("cache entry written for a failed load")
	}
}

func TestOrchestratorEmptyLiveResultNotCached(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	o := NewOrchestrator(NewMerger(staticSource(nil, true), staticSource(nil, true)), c)

	page, _, err := o.Load(ctx, NewSession("nothing"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(page.Items) != 0 || page.NextKey != 0 {
		t.Errorf("page = %+v, want empty terminal page", page)
	}

	o.Wait()
	if valid, _ := c.IsValid(ctx, "nothing"); valid {
		t.Error("cache entry written for an empty page")
	}
}

func TestOrchestratorBlankQuery(t *testing.T) {
	image := staticSource(results("img", 1, searchtypes.Image, baseTime, time.Hour), false)
	o := NewOrchestrator(NewMerger(image, image), &brokenCache{})
	defer o.Wait()

	page, _, err := o.Load(context.Background(), NewSession("  "), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(page.Items) != 0 || page.NextKey != 0 || page.PrevKey != 0 {
		t.Errorf("page = %+v, want empty terminal page", page)
	}
	if image.calls() != 0 {
		t.Error("upstream called for blank query")
	}
}

type brokenCache struct {
	mu     sync.Mutex
	writes int
}

func (b *brokenCache) GetPage(context.Context, string, int) ([]searchtypes.SearchResult, error) {
	return nil, errors.New("disk on fire")
}

func (b *brokenCache) SavePage(context.Context, string, int, []searchtypes.SearchResult) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	return 0, errors.New("disk on fire")
}

func (b *brokenCache) Clear(context.Context, string) error {
	return errors.New("disk on fire")
}

func TestOrchestratorCacheFailuresAreAbsorbed(t *testing.T) {
	broken := &brokenCache{}
	video := staticSource(results("vid", 4, searchtypes.Video, baseTime, time.Hour), false)
	o := NewOrchestrator(NewMerger(staticSource(nil, true), video), broken)

	page, _, err := o.Load(context.Background(), NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v, want cache errors absorbed", err)
	}
	if len(page.Items) != 4 || page.FromCache {
		t.Errorf("page = %d items FromCache %v, want 4 live", len(page.Items), page.FromCache)
	}

	o.Wait()
	broken.mu.Lock()
	defer broken.mu.Unlock()
	if broken.writes != 1 {
		t.Errorf("cache writes = %d, want 1", broken.writes)
	}
}

func TestOrchestratorWriteOutlivesCaller(t *testing.T) {
	c := openTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())

	video := newFakeSource(func(Request) (Batch, error) {
		return Batch{Items: results("vid", 3, searchtypes.Video, baseTime, time.Hour)}, nil
	})
	// The caller gives up as soon as the fetch has returned.
	fetcher := fetcherFunc(func(fctx context.Context, sess Session, page, size int) (Page, Session, error) {
		p, s, err := NewMerger(staticSource(nil, true), video).FetchPage(fctx, sess, page, size)
		cancel()
		return p, s, err
	})
	o := NewOrchestrator(fetcher, c)

	if _, _, err := o.Load(ctx, NewSession("cat"), 1, 20); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	o.Wait()

	got, err := c.GetPage(context.Background(), "cat", 1)
	if err != nil || len(got) != 3 {
		t.Errorf("GetPage() = %d items, %v; want 3 written after cancellation", len(got), err)
	}
}

type fetcherFunc func(ctx context.Context, sess Session, page, pageSize int) (Page, Session, error)

func (f fetcherFunc) FetchPage(ctx context.Context, sess Session, page, pageSize int) (Page, Session, error) {
	return f(ctx, sess, page, pageSize)
}

func TestOrchestratorSharedWriterForFirstPage(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)
	writer := NewWriter(c, time.Second)

	image := staticSource(results("img", 3, searchtypes.Image, baseTime, time.Hour), false)
	m := NewMerger(image, staticSource(nil, true), WithFirstPageNotifier(writer))
	o := NewOrchestrator(m, c, WithWriter(writer))

	if _, _, err := o.Load(ctx, NewSession("cat"), 1, 20); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	o.Wait()

	all, err := c.Results(ctx, "cat")
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("cached results = %d, want 3 after two writes of the same page", len(all))
	}
}

type fakeRegistry struct {
	mu    sync.Mutex
	marks map[string]bool
	err   error
}

func (r *fakeRegistry) IsFavorite(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	return r.marks[id], nil
}

func (r *fakeRegistry) SetFavorite(_ context.Context, item searchtypes.SearchResult, favorite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.marks == nil {
		r.marks = make(map[string]bool)
	}
	r.marks[item.ID] = favorite
	return nil
}

func (r *fakeRegistry) isMarked(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marks[id]
}

// flakyFavorites fails SetFavorite while err is set.
type flakyFavorites struct {
	FavoriteCache
	err error
}

func (f *flakyFavorites) SetFavorite(ctx context.Context, id string, favorite bool) error {
	if f.err != nil {
		return f.err
	}
	return f.FavoriteCache.SetFavorite(ctx, id, favorite)
}

func TestOrchestratorToggleFavorite(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)
	registry := &fakeRegistry{}

	video := staticSource(results("vid", 3, searchtypes.Video, baseTime, time.Hour), false)
	o := NewOrchestrator(NewMerger(staticSource(nil, true), video), c, WithFavorites(c, registry))

	page, _, err := o.Load(ctx, NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	o.Wait()

	id := page.Items[1].ID
	state, err := o.ToggleFavorite(ctx, id)
	if err != nil || !state {
		t.Fatalf("ToggleFavorite() = %v, %v; want true", state, err)
	}

	states, err := o.FavoriteStates(ctx, "cat")
	if err != nil {
		t.Fatalf("FavoriteStates() error = %v", err)
	}
	if !states[id] || states[page.Items[0].ID] {
		t.Errorf("FavoriteStates() = %v", states)
	}

	cached, _, err := o.Load(ctx, NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cached.Items[1].IsFavorite {
		t.Error("served page does not reflect the toggled favorite")
	}

	state, err = o.ToggleFavorite(ctx, id)
	if err != nil || state {
		t.Errorf("second ToggleFavorite() = %v, %v; want false", state, err)
	}

	if _, err := o.ToggleFavorite(ctx, "missing"); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("ToggleFavorite(missing) error = %v, want ErrResultNotFound", err)
	}

	registry.err = errors.New("bolt closed")
	if _, err := o.ToggleFavorite(ctx, id); err == nil {
		t.Error("ToggleFavorite() with failing registry error = nil")
	}
	states, _ = o.FavoriteStates(ctx, "cat")
	if states[id] {
		t.Error("cached flag changed although the registry failed")
	}
}

func TestOrchestratorToggleFavoriteRestoresOnCacheFailure(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)
	registry := &fakeRegistry{}
	favs := &flakyFavorites{FavoriteCache: c, err: errors.New("database is locked")}

	video := staticSource(results("vid", 2, searchtypes.Video, baseTime, time.Hour), false)
	o := NewOrchestrator(NewMerger(staticSource(nil, true), video), c, WithFavorites(favs, registry))

	page, _, err := o.Load(ctx, NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	o.Wait()
	id := page.Items[0].ID

	if _, err := o.ToggleFavorite(ctx, id); err == nil {
		t.Fatal("ToggleFavorite() with failing cache error = nil")
	}
	if registry.isMarked(id) {
		t.Error("bookmark kept although the cached flag could not be stored")
	}
	states, _ := c.FavoriteStates(ctx, "cat")
	if states[id] {
		t.Error("cached flag set although SetFavorite failed")
	}

	// A retry once the cache recovers performs the toggle the user asked for
	favs.err = nil
	state, err := o.ToggleFavorite(ctx, id)
	if err != nil || !state {
		t.Fatalf("retried ToggleFavorite() = %v, %v; want true", state, err)
	}
	if !registry.isMarked(id) {
		t.Error("registry not bookmarked after retry")
	}
	states, _ = c.FavoriteStates(ctx, "cat")
	if !states[id] {
		t.Error("cached flag not set after retry")
	}
}

func TestOrchestratorClearQuery(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t)

	image := staticSource(results("img", 20, searchtypes.Image, baseTime, time.Hour), false)
	o := NewOrchestrator(NewMerger(image, staticSource(nil, true)), c)

	if _, _, err := o.Load(ctx, NewSession("cat"), 1, 20); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	o.Wait()

	if err := o.ClearQuery(ctx, "cat"); err != nil {
		t.Fatalf("ClearQuery() error = %v", err)
	}

	page, _, err := o.Load(ctx, NewSession("cat"), 1, 20)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	o.Wait()
	if page.FromCache {
		t.Error("load after ClearQuery came from cache")
	}
	if image.calls() != 2 {
		t.Errorf("image calls = %d, want 2", image.calls())
	}
}
