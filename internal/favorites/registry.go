// Package favorites keeps bookmarked search results in a bbolt file.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	bolt "go.etcd.io/bbolt"

	"github.com/lepinkainen/search-forge/pkg/filesystem"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

var bucketBookmarks = []byte("bookmarks")

// ErrNotFound is returned for ids that are not bookmarked.
var ErrNotFound = errors.New("bookmark not found")

// Bookmark is a stored favorite.
type Bookmark struct {
	Result       searchtypes.SearchResult `json:"result" yaml:"result"`
	BookmarkedAt time.Time                `json:"bookmarked_at" yaml:"bookmarked_at"`
}

// Registry owns the favorite state of search results, keyed by result id.
type Registry struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the bookmark file at path.
func Open(path string) (*Registry, error) {
	if err := filesystem.EnsureDirectoryExists(path); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmarks %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBookmarks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bookmarks bucket: %w", err)
	}

	return &Registry{db: db, now: time.Now}, nil
}

// Close closes the bookmark file.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Toggle bookmarks item, or removes its bookmark if it already has one, and
// returns the new state.
func (r *Registry) Toggle(ctx context.Context, item searchtypes.SearchResult) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var state bool
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBookmarks)
		key := []byte(item.ID)

		if b.Get(key) != nil {
			state = false
			return b.Delete(key)
		}

		state = true
		return putBookmark(b, item, r.now())
	})
	if err != nil {
		return false, fmt.Errorf("failed to toggle bookmark %s: %w", item.ID, err)
	}

	slog.Debug("Toggled bookmark", "id", item.ID, "favorite", state)
	return state, nil
}

// SetFavorite makes the bookmark state of item equal to favorite. An existing
// bookmark keeps its original timestamp.
func (r *Registry) SetFavorite(ctx context.Context, item searchtypes.SearchResult, favorite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBookmarks)
		key := []byte(item.ID)

		if !favorite {
			return b.Delete(key)
		}
		if b.Get(key) != nil {
			return nil
		}
		return putBookmark(b, item, r.now())
	})
	if err != nil {
		return fmt.Errorf("failed to set bookmark %s: %w", item.ID, err)
	}

	slog.Debug("Set bookmark", "id", item.ID, "favorite", favorite)
	return nil
}

// Add bookmarks item. Adding an existing bookmark refreshes it.
func (r *Registry) Add(ctx context.Context, item searchtypes.SearchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.db.Update(func(tx *bolt.Tx) error {
		return putBookmark(tx.Bucket(bucketBookmarks), item, r.now())
	})
	if err != nil {
		return fmt.Errorf("failed to add bookmark %s: %w", item.ID, err)
	}
	return nil
}

// Remove deletes the bookmark of id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBookmarks)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

// IsFavorite reports whether id is bookmarked.
func (r *Registry) IsFavorite(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := r.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketBookmarks).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// Get returns the bookmark of id.
func (r *Registry) Get(ctx context.Context, id string) (Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return Bookmark{}, err
	}
	var bm Bookmark
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBookmarks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &bm)
	})
	return bm, err
}

// List returns every bookmark, newest first.
func (r *Registry) List(ctx context.Context) ([]Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bookmarks []Bookmark
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBookmarks).ForEach(func(_, v []byte) error {
			var bm Bookmark
			if err := json.Unmarshal(v, &bm); err != nil {
				return err
			}
			bookmarks = append(bookmarks, bm)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}

	slices.SortStableFunc(bookmarks, func(a, b Bookmark) int {
		return b.BookmarkedAt.Compare(a.BookmarkedAt)
	})
	return bookmarks, nil
}

// Count returns the number of bookmarks.
func (r *Registry) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := r.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketBookmarks).Stats().KeyN
		return nil
	})
	return n, err
}

// bookmarkIndex implements fuzzy.Source over bookmark titles
type bookmarkIndex struct {
	bookmarks   []Bookmark
	lowerTitles []string
}

func (idx *bookmarkIndex) String(i int) string { return idx.lowerTitles[i] }

func (idx *bookmarkIndex) Len() int { return len(idx.bookmarks) }

// Search fuzzy-matches pattern against bookmark titles, best match first.
// An empty pattern returns List.
func (r *Registry) Search(ctx context.Context, pattern string) ([]Bookmark, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return all, nil
	}

	idx := &bookmarkIndex{bookmarks: all, lowerTitles: make([]string, len(all))}
	for i, bm := range all {
		idx.lowerTitles[i] = strings.ToLower(bm.Result.Title)
	}

	matches := fuzzy.FindFrom(pattern, idx)
	found := make([]Bookmark, 0, len(matches))
	for _, m := range matches {
		found = append(found, idx.bookmarks[m.Index])
	}
	return found, nil
}

func putBookmark(b *bolt.Bucket, item searchtypes.SearchResult, at time.Time) error {
	item.IsFavorite = true
	data, err := json.Marshal(Bookmark{Result: item, BookmarkedAt: at})
	if err != nil {
		return err
	}
	return b.Put([]byte(item.ID), data)
}
