package paging

import "github.com/lepinkainen/search-forge/pkg/searchtypes"

// Page is one served page. Keys are page numbers and 0 means there is none.
type Page struct {
	Query     string
	Number    int
	Items     []searchtypes.SearchResult
	PrevKey   int
	NextKey   int
	FromCache bool
}

// IsLast reports whether no page follows this one.
func (p Page) IsLast() bool {
	return p.NextKey == 0
}

func emptyPage(query string, page int) Page {
	return Page{Query: query, Number: page, Items: []searchtypes.SearchResult{}}
}

func prevKey(page int) int {
	if page <= 1 {
		return 0
	}
	return page - 1
}

func validRequest(page, pageSize int) bool {
	return page >= 1 && pageSize > 0
}
