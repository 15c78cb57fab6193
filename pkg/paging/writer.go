package paging

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// PageWriter persists a fetched page.
type PageWriter interface {
	SavePage(ctx context.Context, query string, page int, items []searchtypes.SearchResult) (int, error)
}

// Writer performs cache writes in the background. Writes outlive the request
// that scheduled them and failures are only logged.
//
// Schedule may be called concurrently with Wait. A Schedule that arrives
// while Wait is draining blocks until Wait returns and is not waited for.
type Writer struct {
	cache   PageWriter
	timeout time.Duration

	mu sync.Mutex // orders wg.Add against wg.Wait
	wg sync.WaitGroup
}

// NewWriter returns a Writer bounding each write by timeout (zero for none).
func NewWriter(cache PageWriter, timeout time.Duration) *Writer {
	return &Writer{cache: cache, timeout: timeout}
}

// Schedule saves items for (query, page) in a new goroutine. ctx only
// contributes its values; its cancellation does not stop the write.
func (w *Writer) Schedule(ctx context.Context, query string, page int, items []searchtypes.SearchResult) {
	items = slices.Clone(items)

	w.mu.Lock()
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()

		writeCtx := context.WithoutCancel(ctx)
		if w.timeout > 0 {
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(writeCtx, w.timeout)
			defer cancel()
		}

		n, err := w.cache.SavePage(writeCtx, query, page, items)
		if err != nil {
			slog.Warn("Failed to write page to cache", "query", query, "page", page, "error", err)
			return
		}
		slog.Debug("Wrote page to cache", "query", query, "page", page, "inserted", n)
	}()
}

// NotifyFirstPage schedules a write of a merged first page.
func (w *Writer) NotifyFirstPage(query string, items []searchtypes.SearchResult) {
	w.Schedule(context.Background(), query, 1, items)
}

// Wait blocks until every scheduled write has finished.
func (w *Writer) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wg.Wait()
}
