package paging

import (
	"context"
	"sync"
)

// Loader loads one page for a session. *Orchestrator implements it.
type Loader interface {
	Load(ctx context.Context, sess Session, page, pageSize int) (Page, Session, error)
}

// Pager walks one query page by page for a single consumer. Reset starts a
// new query; a load still in flight at that point is discarded.
type Pager struct {
	loader   Loader
	pageSize int

	mu         sync.Mutex
	session    Session
	next       int
	generation int
}

// NewPager creates a pager positioned before the first page of query.
func NewPager(loader Loader, query string, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{
		loader:   loader,
		pageSize: pageSize,
		session:  NewSession(query),
		next:     1,
	}
}

// ResumePager creates a pager positioned before the page named by c.
func ResumePager(loader Loader, c Cursor, pageSize int) *Pager {
	p := NewPager(loader, c.Session.Query, pageSize)
	p.session = c.Session
	p.next = c.Page
	return p
}

// Next loads the following page. After an error the same page is retried on
// the next call. It returns ErrNoMorePages once the last page was served.
func (p *Pager) Next(ctx context.Context) (Page, error) {
	p.mu.Lock()
	if p.next == 0 {
		p.mu.Unlock()
		return Page{}, ErrNoMorePages
	}
	sess, page, gen := p.session, p.next, p.generation
	p.mu.Unlock()

	result, updated, err := p.loader.Load(ctx, sess, page, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		return Page{}, ErrSessionReset
	}
	if err != nil {
		return Page{}, err
	}
	if p.next != page {
		// A concurrent Next already consumed this page.
		return result, nil
	}
	p.session = updated
	p.next = result.NextKey
	return result, nil
}

// HasMore reports whether Next can return another page.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next != 0
}

// Reset starts over at page 1 of query.
func (p *Pager) Reset(query string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = NewSession(query)
	p.next = 1
	p.generation++
}

// Query returns the query being paged.
func (p *Pager) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.Query
}

// Cursor returns a token that resumes paging at the next page, or "" when
// there are no more pages.
func (p *Pager) Cursor() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next == 0 {
		return "", nil
	}
	return EncodeCursor(Cursor{Session: p.session, Page: p.next})
}
