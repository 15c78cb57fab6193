// Package api provides the rate-limited, retrying JSON client used for
// upstream search calls.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httputil "github.com/lepinkainen/search-forge/pkg/http"
)

// DefaultUserAgent is sent when no other User-Agent is configured
const DefaultUserAgent = "SearchForge/1.0"

// EnhancedClientConfig configures the enhanced HTTP client
type EnhancedClientConfig struct {
	BaseClient     *http.Client
	RateLimiter    RateLimiter
	RetryPolicy    *RetryPolicy
	UserAgent      string
	DefaultHeaders map[string]string
}

// EnhancedClient provides HTTP client functionality with rate limiting, retries, and standard headers
type EnhancedClient struct {
	client         *http.Client
	rateLimiter    RateLimiter
	retryPolicy    *RetryPolicy
	userAgent      string
	defaultHeaders map[string]string
}

// NewEnhancedClient creates a new enhanced HTTP client with the provided configuration
func NewEnhancedClient(config *EnhancedClientConfig) *EnhancedClient {
	if config == nil {
		config = &EnhancedClientConfig{}
	}
	if config.BaseClient == nil {
		config.BaseClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.RateLimiter == nil {
		config.RateLimiter = NewNoOpRateLimiter()
	}
	if config.RetryPolicy == nil {
		config.RetryPolicy = DefaultRetryPolicy()
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	headers := make(map[string]string, len(config.DefaultHeaders))
	for k, v := range config.DefaultHeaders {
		headers[k] = v
	}

	return &EnhancedClient{
		client:         config.BaseClient,
		rateLimiter:    config.RateLimiter,
		retryPolicy:    config.RetryPolicy,
		userAgent:      config.UserAgent,
		defaultHeaders: headers,
	}
}

// GetAndDecode performs an HTTP GET request with rate limiting, retries, and JSON decoding
func (ec *EnhancedClient) GetAndDecode(ctx context.Context, url string, target any, additionalHeaders map[string]string) error {
	operation := func(ctx context.Context) error {
		if err := ec.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("User-Agent", ec.userAgent)
		for key, value := range ec.defaultHeaders {
			req.Header.Set(key, value)
		}
		// Additional headers override defaults
		for key, value := range additionalHeaders {
			req.Header.Set(key, value)
		}

		start := time.Now()
		res, err := ec.client.Do(req)
		duration := time.Since(start)

		if err != nil {
			ec.logAPICall(url, duration, false, err)
			return fmt.Errorf("failed to perform GET request: %w", err)
		}
		defer func() { _ = res.Body.Close() }()

		if err := httputil.EnsureStatusOK(res); err != nil {
			httpErr := &HTTPError{
				StatusCode: res.StatusCode,
				Message:    httputil.ErrorMessage(res),
			}
			ec.logAPICall(url, duration, false, httpErr)
			return httpErr
		}

		if err := httputil.DecodeJSONResponse(res, target); err != nil {
			ec.logAPICall(url, duration, false, err)
			return err
		}

		ec.logAPICall(url, duration, true, nil)
		return nil
	}

	return ExecuteWithRetry(ctx, operation, ec.retryPolicy, "GET "+url)
}

// CanProceed returns true if a request can be made without rate limiting delay
func (ec *EnhancedClient) CanProceed() bool {
	return ec.rateLimiter.CanProceed()
}

// logAPICall logs API call statistics
func (ec *EnhancedClient) logAPICall(url string, duration time.Duration, success bool, err error) {
	status := "success"
	if !success {
		status = "failure"
	}

	fields := []any{
		"url", url,
		"duration", duration,
		"status", status,
	}

	if err != nil {
		fields = append(fields, "error", err)
	}

	if success {
		slog.Debug("API call completed", fields...)
	} else {
		slog.Warn("API call failed", fields...)
	}
}
