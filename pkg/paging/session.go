package paging

import (
	"strings"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// Session carries per-source exhaustion for one query. It is a value:
// loads return an updated copy and never modify the one passed in.
type Session struct {
	Query          string `json:"q"`
	ImageExhausted bool   `json:"ie,omitempty"`
	VideoExhausted bool   `json:"ve,omitempty"`
}

// NewSession starts pagination of query with both sources live.
func NewSession(query string) Session {
	return Session{Query: query}
}

// Blank reports whether the query has no searchable text.
func (s Session) Blank() bool {
	return strings.TrimSpace(s.Query) == ""
}

// Exhausted reports whether both sources have reported their last page.
func (s Session) Exhausted() bool {
	return s.ImageExhausted && s.VideoExhausted
}

func (s Session) exhausted(kind searchtypes.ResultType) bool {
	if kind == searchtypes.Image {
		return s.ImageExhausted
	}
	return s.VideoExhausted
}

func (s Session) withExhausted(kind searchtypes.ResultType, end bool) Session {
	if kind == searchtypes.Image {
		s.ImageExhausted = end
	} else {
		s.VideoExhausted = end
	}
	return s
}
