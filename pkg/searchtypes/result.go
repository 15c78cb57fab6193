// Package searchtypes provides shared type definitions used by search paging.
package searchtypes

import "fmt"

// ResultType identifies which upstream source produced a result.
type ResultType string

// Known result types
const (
	Image ResultType = "IMAGE"
	Video ResultType = "VIDEO"
)

// DatetimeLayout is the normalized display format for SearchResult.Datetime.
// Strings in this layout sort chronologically when compared lexically.
const DatetimeLayout = "2006-01-02 15:04:05"

// ParseResultType converts a stored type name back into a ResultType.
func ParseResultType(s string) (ResultType, error) {
	switch ResultType(s) {
	case Image, Video:
		return ResultType(s), nil
	default:
		return "", fmt.Errorf("unknown result type %q", s)
	}
}

// SearchResult is one merged item from either source.
type SearchResult struct {
	ID           string     `json:"id" yaml:"id"`
	ThumbnailURL string     `json:"thumbnail_url" yaml:"thumbnail_url"`
	Title        string     `json:"title" yaml:"title"`
	Source       string     `json:"source" yaml:"source"`
	Datetime     string     `json:"datetime" yaml:"datetime"`
	Type         ResultType `json:"type" yaml:"type"`
	IsFavorite   bool       `json:"is_favorite" yaml:"is_favorite"`
}
