// Package kakao implements the image and video search sources on top of the
// Kakao Daum search API.
package kakao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/lepinkainen/search-forge/pkg/api"
	"github.com/lepinkainen/search-forge/pkg/paging"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
	"github.com/lepinkainen/search-forge/pkg/urlutils"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://dapi.kakao.com"

// authScheme is the Authorization scheme for REST API keys.
const authScheme = "KakaoAK"

// ErrMissingAPIKey is returned when no REST API key is configured.
var ErrMissingAPIKey = errors.New("kakao REST API key is not set")

// endpoint describes the paths and the paging limits of one search API.
type endpoint struct {
	path    string
	maxPage int
	maxSize int
}

var (
	imageEndpoint = endpoint{path: "/v2/search/image", maxPage: 50, maxSize: 80}
	videoEndpoint = endpoint{path: "/v2/search/vclip", maxPage: 15, maxSize: 30}
)

// Config configures a Client.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
	RetryPolicy       *api.RetryPolicy
	Location          *time.Location
}

// Client calls the search API and maps documents into search results.
type Client struct {
	http    *api.EnhancedClient
	baseURL string
	mapper  *Mapper
}

// NewClient creates a client authenticating with cfg.APIKey.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !urlutils.IsValidURL(cfg.BaseURL) {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	token := &oauth2.Token{AccessToken: cfg.APIKey, TokenType: authScheme}
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   http.DefaultTransport,
		},
	}

	return &Client{
		http: api.NewEnhancedClient(&api.EnhancedClientConfig{
			BaseClient:  httpClient,
			RateLimiter: api.NewTokenBucketRateLimiter(cfg.RequestsPerSecond, 2),
			RetryPolicy: cfg.RetryPolicy,
			DefaultHeaders: map[string]string{
				"Accept": "application/json",
			},
		}),
		baseURL: cfg.BaseURL,
		mapper:  NewMapper(cfg.Location),
	}, nil
}

// SearchImages fetches one page of image results.
func (c *Client) SearchImages(ctx context.Context, req paging.Request) (paging.Batch, error) {
	var resp ImageResponse
	done, err := c.search(ctx, imageEndpoint, req, &resp)
	if err != nil || done {
		return paging.Batch{IsEnd: true}, err
	}

	items := make([]searchtypes.SearchResult, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		items = append(items, c.mapper.Image(doc))
	}
	return c.batch(imageEndpoint, req, items, resp.Meta), nil
}

// SearchVideos fetches one page of video clip results.
func (c *Client) SearchVideos(ctx context.Context, req paging.Request) (paging.Batch, error) {
	var resp VideoResponse
	done, err := c.search(ctx, videoEndpoint, req, &resp)
	if err != nil || done {
		return paging.Batch{IsEnd: true}, err
	}

	items := make([]searchtypes.SearchResult, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		items = append(items, c.mapper.Video(doc))
	}
	return c.batch(videoEndpoint, req, items, resp.Meta), nil
}

// Images returns the image search as a paging source.
func (c *Client) Images() paging.Source {
	return paging.SourceFunc(c.SearchImages)
}

// Videos returns the video search as a paging source.
func (c *Client) Videos() paging.Source {
	return paging.SourceFunc(c.SearchVideos)
}

// search performs the request. done is true when the page lies beyond what
// the endpoint can serve, in which case no request is made.
func (c *Client) search(ctx context.Context, ep endpoint, req paging.Request, target any) (done bool, err error) {
	if req.Page > ep.maxPage {
		slog.Debug("Page beyond endpoint limit", "path", ep.path, "page", req.Page, "max_page", ep.maxPage)
		return true, nil
	}

	u, err := urlutils.Endpoint(c.baseURL, ep.path, buildQuery(ep, req))
	if err != nil {
		return false, err
	}
	if err := c.http.GetAndDecode(ctx, u, target, nil); err != nil {
		return false, fmt.Errorf("failed to search %s: %w", ep.path, err)
	}
	return false, nil
}

func (c *Client) batch(ep endpoint, req paging.Request, items []searchtypes.SearchResult, meta Meta) paging.Batch {
	isEnd := meta.IsEnd || req.Page >= ep.maxPage
	slog.Debug("Fetched search page",
		"path", ep.path,
		"query", req.Query,
		"page", req.Page,
		"documents", len(items),
		"is_end", isEnd,
		"total", meta.TotalCount)
	return paging.Batch{Items: items, IsEnd: isEnd}
}

func buildQuery(ep endpoint, req paging.Request) url.Values {
	size := req.Size
	if size > ep.maxSize {
		size = ep.maxSize
	}
	sort := req.Sort
	if sort == "" {
		sort = paging.SortRecency
	}

	q := url.Values{}
	q.Set("query", req.Query)
	q.Set("sort", string(sort))
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("size", strconv.Itoa(size))
	return q
}
