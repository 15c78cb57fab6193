package paging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

type fakeSource struct {
	mu       sync.Mutex
	requests []Request
	respond  func(req Request) (Batch, error)
}

func newFakeSource(respond func(req Request) (Batch, error)) *fakeSource {
	return &fakeSource{respond: respond}
}

func (s *fakeSource) Search(ctx context.Context, req Request) (Batch, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	return s.respond(req)
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func staticSource(items []searchtypes.SearchResult, isEnd bool) *fakeSource {
	return newFakeSource(func(Request) (Batch, error) {
		return Batch{Items: items, IsEnd: isEnd}, nil
	})
}

func failingSource(err error) *fakeSource {
	return newFakeSource(func(Request) (Batch, error) {
		return Batch{}, err
	})
}

// results builds n items of typ whose datetimes start at start and go back
// step per item.
func results(prefix string, n int, typ searchtypes.ResultType, start time.Time, step time.Duration) []searchtypes.SearchResult {
	items := make([]searchtypes.SearchResult, n)
	for i := range items {
		items[i] = searchtypes.SearchResult{
			ID:           fmt.Sprintf("%s-%d", prefix, i),
			ThumbnailURL: fmt.Sprintf("https://thumb.example/%s/%d", prefix, i),
			Title:        fmt.Sprintf("%s %d", prefix, i),
			Source:       fmt.Sprintf("https://example.com/%s/%d", prefix, i),
			Datetime:     start.Add(-time.Duration(i) * step).Format(searchtypes.DatetimeLayout),
			Type:         typ,
		}
	}
	return items
}

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
