package kakao

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// Mapper converts upstream documents into search results.
type Mapper struct {
	location *time.Location
	newID    func() string
}

// NewMapper returns a mapper formatting datetimes in loc (time.Local if nil).
func NewMapper(loc *time.Location) *Mapper {
	if loc == nil {
		loc = time.Local
	}
	return &Mapper{
		location: loc,
		newID:    uuid.NewString,
	}
}

// Image maps an image document.
func (m *Mapper) Image(doc ImageDocument) searchtypes.SearchResult {
	return searchtypes.SearchResult{
		ID:           m.newID(),
		ThumbnailURL: doc.ThumbnailURL,
		Title:        plainText(doc.DisplaySitename),
		Source:       doc.DocURL,
		Datetime:     m.formatDatetime(doc.Datetime),
		Type:         searchtypes.Image,
	}
}

// Video maps a video document.
func (m *Mapper) Video(doc VideoDocument) searchtypes.SearchResult {
	return searchtypes.SearchResult{
		ID:           m.newID(),
		ThumbnailURL: doc.Thumbnail,
		Title:        plainText(doc.Title),
		Source:       doc.URL,
		Datetime:     m.formatDatetime(doc.Datetime),
		Type:         searchtypes.Video,
	}
}

// formatDatetime normalizes an ISO-8601 timestamp. Unparsable values are
// kept as they are.
func (m *Mapper) formatDatetime(raw string) string {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}
	return t.In(m.location).Format(searchtypes.DatetimeLayout)
}

// plainText drops markup such as <b> highlights and decodes entities.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
