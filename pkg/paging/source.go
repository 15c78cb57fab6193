// Package paging merges two upstream search sources page by page and serves
// pages through a TTL cache.
package paging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// Sort is the upstream ordering requested from a source.
type Sort string

// Supported sort orders
const (
	SortRecency  Sort = "recency"
	SortAccuracy Sort = "accuracy"
)

// ParseSort validates a configured sort name. Empty means recency.
func ParseSort(s string) (Sort, error) {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRecency:
		return SortRecency, nil
	case SortAccuracy:
		return SortAccuracy, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Request asks one source for one page.
type Request struct {
	Query string
	Sort  Sort
	Page  int
	Size  int
}

// Batch is one source's answer to a Request.
type Batch struct {
	Items []searchtypes.SearchResult
	IsEnd bool
}

// Source is an upstream search endpoint returning items of a single type.
type Source interface {
	Search(ctx context.Context, req Request) (Batch, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req Request) (Batch, error)

// Search calls f.
func (f SourceFunc) Search(ctx context.Context, req Request) (Batch, error) {
	return f(ctx, req)
}

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid page request")
	ErrMergeFailed    = errors.New("all attempted sources failed")
	ErrNoMorePages    = errors.New("no more pages")
	ErrResultNotFound = errors.New("result not found")
	ErrSessionReset   = errors.New("pager was reset while loading")
)

// SourceError is the failure of one source for one page.
type SourceError struct {
	Source searchtypes.ResultType
	Page   int
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source page %d: %v", strings.ToLower(string(e.Source)), e.Page, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// MergeError reports that every source attempted for a page failed.
type MergeError struct {
	Query    string
	Page     int
	Failures []*SourceError
}

func (e *MergeError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%v for %q: %s", ErrMergeFailed, e.Query, strings.Join(parts, "; "))
}

// Unwrap exposes ErrMergeFailed and every source failure to errors.Is/As.
func (e *MergeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrMergeFailed)
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// LoadError is the only error a page load surfaces to callers.
type LoadError struct {
	Query string
	Page  int
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load page %d for %q: %v", e.Page, e.Query, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
