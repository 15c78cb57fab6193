package paging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// FirstPageNotifier receives every non-empty merged first page.
// It is called from the merging goroutine and must not block.
type FirstPageNotifier interface {
	NotifyFirstPage(query string, items []searchtypes.SearchResult)
}

// Merger fetches one page from both sources and merges them by datetime.
type Merger struct {
	image        Source
	video        Source
	sort         Sort
	fetchTimeout time.Duration
	notifier     FirstPageNotifier
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithFetchTimeout bounds each source call. Zero means no bound beyond ctx.
func WithFetchTimeout(d time.Duration) MergerOption {
	return func(m *Merger) {
		m.fetchTimeout = d
	}
}

// WithSort sets the order requested from the sources.
func WithSort(s Sort) MergerOption {
	return func(m *Merger) {
		m.sort = s
	}
}

// WithFirstPageNotifier registers n for non-empty first pages.
func WithFirstPageNotifier(n FirstPageNotifier) MergerOption {
	return func(m *Merger) {
		m.notifier = n
	}
}

// NewMerger creates a merger over an image and a video source.
func NewMerger(image, video Source, opts ...MergerOption) *Merger {
	m := &Merger{
		image: image,
		video: video,
		sort:  SortRecency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type fetchOutcome struct {
	kind      searchtypes.ResultType
	attempted bool
	batch     Batch
	err       *SourceError
}

// FetchPage fetches page from every source not yet exhausted in sess and
// returns the merged page with the updated session. It fails only when every
// attempted source failed.
func (m *Merger) FetchPage(ctx context.Context, sess Session, page, pageSize int) (Page, Session, error) {
	if sess.Blank() {
		return emptyPage(sess.Query, page), sess, nil
	}
	if !validRequest(page, pageSize) {
		return Page{}, sess, fmt.Errorf("%w: page %d, size %d", ErrInvalidRequest, page, pageSize)
	}

	req := Request{
		Query: sess.Query,
		Sort:  m.sort,
		Page:  page,
		Size:  pageSize,
	}

	outcomes := []*fetchOutcome{
		{kind: searchtypes.Image},
		{kind: searchtypes.Video},
	}
	sources := map[searchtypes.ResultType]Source{
		searchtypes.Image: m.image,
		searchtypes.Video: m.video,
	}

	// Goroutines record their own failure and never return one, so a failing
	// source does not cancel the other.
	var g errgroup.Group
	for _, out := range outcomes {
		if sess.exhausted(out.kind) {
			slog.Debug("Skipping exhausted source", "query", sess.Query, "source", out.kind, "page", page)
			continue
		}
		out.attempted = true
		src := sources[out.kind]

		g.Go(func() error {
			fetchCtx := ctx
			if m.fetchTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, m.fetchTimeout)
				defer cancel()
			}

			batch, err := src.Search(fetchCtx, req)
			if err != nil {
				out.err = &SourceError{Source: out.kind, Page: page, Err: err}
				return nil
			}
			out.batch = batch
			return nil
		})
	}
	_ = g.Wait()

	next := sess
	var (
		items     []searchtypes.SearchResult
		failures  []*SourceError
		attempted int
	)
	for _, out := range outcomes {
		if !out.attempted {
			continue
		}
		attempted++
		if out.err != nil {
			slog.Warn("Source fetch failed", "query", sess.Query, "source", out.kind, "page", page, "error", out.err.Err)
			failures = append(failures, out.err)
			continue
		}
		items = append(items, out.batch.Items...)
		next = next.withExhausted(out.kind, out.batch.IsEnd)
	}

	if attempted > 0 && len(failures) == attempted {
		return Page{}, sess, &MergeError{Query: sess.Query, Page: page, Failures: failures}
	}

	if items == nil {
		items = []searchtypes.SearchResult{}
	}
	slices.SortStableFunc(items, func(a, b searchtypes.SearchResult) int {
		return strings.Compare(b.Datetime, a.Datetime)
	})

	result := Page{
		Query:   sess.Query,
		Number:  page,
		Items:   items,
		PrevKey: prevKey(page),
	}
	if !next.Exhausted() {
		result.NextKey = page + 1
	}

	slog.Debug("Merged page",
		"query", sess.Query,
		"page", page,
		"items", len(items),
		"image_exhausted", next.ImageExhausted,
		"video_exhausted", next.VideoExhausted,
		"failures", len(failures))

	if page == 1 && len(items) > 0 && m.notifier != nil {
		m.notifier.NotifyFirstPage(sess.Query, slices.Clone(items))
	}

	return result, next, nil
}
