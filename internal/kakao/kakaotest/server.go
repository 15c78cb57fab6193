// Package kakaotest provides an in-process fake of the search API.
package kakaotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/search-forge/internal/kakao"
)

// APIKey is the key the fake server accepts.
const APIKey = "test-key"

// Server serves generated documents. Every source has Pages pages of
// PerPage documents; datetimes decrease with the page number.
type Server struct {
	*httptest.Server

	ImagePages int
	VideoPages int
	PerPage    int

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]int
}

// NewServer starts a fake server closed at the end of the test.
func NewServer(t testing.TB, imagePages, videoPages, perPage int) *Server {
	t.Helper()

	s := &Server{
		ImagePages: imagePages,
		VideoPages: videoPages,
		PerPage:    perPage,
		calls:      make(map[string]int),
		fail:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/search/image", s.handle("image"))
	mux.HandleFunc("/v2/search/vclip", s.handle("vclip"))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// FailWith makes every request to kind ("image" or "vclip") answer status.
// A zero status restores normal answers.
func (s *Server) FailWith(kind string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[kind] = status
}

// Calls returns how many requests kind has received.
func (s *Server) Calls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

func (s *Server) handle(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[kind]++
		status := s.fail[kind]
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "KakaoAK "+APIKey {
			http.Error(w, `{"errorType":"AccessDeniedError","message":"wrong key"}`, http.StatusUnauthorized)
			return
		}
		if status != 0 {
			http.Error(w, `{"errorType":"InternalError","message":"failing on purpose"}`, status)
			return
		}

		query := r.URL.Query().Get("query")
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}

		w.Header().Set("Content-Type", "application/json")
		var body any
		if kind == "image" {
			body = s.images(query, page)
		} else {
			body = s.videos(query, page)
		}
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (s *Server) images(query string, page int) kakao.ImageResponse {
	resp := kakao.ImageResponse{Meta: meta(page, s.ImagePages, s.PerPage)}
	if page > s.ImagePages {
		return resp
	}
	for i := range s.PerPage {
		n := (page-1)*s.PerPage + i
		resp.Documents = append(resp.Documents, kakao.ImageDocument{
			Collection:      "blog",
			Datetime:        datetime(n, 0),
			DisplaySitename: fmt.Sprintf("%s image %d", query, n),
			DocURL:          fmt.Sprintf("https://img.example.com/%s/doc/%d", slug(query), n),
			ThumbnailURL:    fmt.Sprintf("https://img.example.com/%s/thumb/%d.jpg", slug(query), n),
		})
	}
	return resp
}

func (s *Server) videos(query string, page int) kakao.VideoResponse {
	resp := kakao.VideoResponse{Meta: meta(page, s.VideoPages, s.PerPage)}
	if page > s.VideoPages {
		return resp
	}
	for i := range s.PerPage {
		n := (page-1)*s.PerPage + i
		resp.Documents = append(resp.Documents, kakao.VideoDocument{
			Author:    "channel",
			Datetime:  datetime(n, 30*time.Second),
			Thumbnail: fmt.Sprintf("https://tv.example.com/%s/thumb/%d.jpg", slug(query), n),
			Title:     fmt.Sprintf("<b>%s</b> video %d", query, n),
			URL:       fmt.Sprintf("https://tv.example.com/%s/v/%d", slug(query), n),
		})
	}
	return resp
}

func meta(page, pages, perPage int) kakao.Meta {
	return kakao.Meta{
		IsEnd:         page >= pages,
		PageableCount: pages * perPage,
		TotalCount:    pages * perPage,
	}
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// datetime is one minute older per document index.
func datetime(n int, offset time.Duration) string {
	return epoch.Add(-time.Duration(n)*time.Minute + offset).Format(time.RFC3339)
}

func slug(query string) string {
	return strings.ReplaceAll(strings.ToLower(query), " ", "-")
}
