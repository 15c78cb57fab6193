// Package http holds small response helpers shared by the upstream clients.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

// DecodeJSONResponse decodes a 200 OK JSON response into target and closes the body
func DecodeJSONResponse(resp *http.Response, target any) error {
	defer closeBody(resp)

	if err := EnsureStatusOK(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode json response: %w", err)
	}
	return nil
}

// EnsureStatusOK checks if the response status is 200 OK
func EnsureStatusOK(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// ErrorMessage describes a failed response using the start of its body.
// The body is left open; callers still close it.
func ErrorMessage(resp *http.Response) string {
	msg := resp.Status
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if resp.Body == nil {
		return msg
	}

	snippet, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return msg
	}
	if body := strings.TrimSpace(string(snippet)); body != "" {
		msg += ": " + body
	}
	return msg
}

// IsRetryableStatusCode determines if an HTTP status code should be retried
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func closeBody(resp *http.Response) {
	if closeErr := resp.Body.Close(); closeErr != nil {
		slog.Error("Failed to close response body", "error", closeErr)
	}
}
