package http

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func newResponse(status int, body string) (*http.Response, *trackingBody) {
	tb := &trackingBody{Reader: strings.NewReader(body)}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       tb,
	}, tb
}

func TestEnsureStatusOK(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{name: "200 OK", statusCode: http.StatusOK, wantErr: false},
		{name: "201 Created", statusCode: http.StatusCreated, wantErr: true},
		{name: "401 Unauthorized", statusCode: http.StatusUnauthorized, wantErr: true},
		{name: "500 Internal Server Error", statusCode: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := newResponse(tt.statusCode, "")
			err := EnsureStatusOK(resp)
			if (err != nil) != tt.wantErr {
				t.Errorf("EnsureStatusOK() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeJSONResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
		wantValue  string
	}{
		{name: "valid json", statusCode: http.StatusOK, body: `{"value":"ok"}`, wantValue: "ok"},
		{name: "invalid json", statusCode: http.StatusOK, body: `{"value":`, wantErr: true},
		{name: "error status", statusCode: http.StatusBadRequest, body: `{"value":"ok"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := newResponse(tt.statusCode, tt.body)

			var target struct {
				Value string `json:"value"`
			}
			err := DecodeJSONResponse(resp, &target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSONResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && target.Value != tt.wantValue {
				t.Errorf("DecodeJSONResponse() value = %q, want %q", target.Value, tt.wantValue)
			}
			if !body.closed {
				t.Error("DecodeJSONResponse() did not close the body")
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{
			name:     "json body",
			status:   http.StatusUnauthorized,
			body:     `{"errorType":"AccessDeniedError","message":"wrong appKey"}`,
			expected: `Unauthorized: {"errorType":"AccessDeniedError","message":"wrong appKey"}`,
		},
		{name: "empty body", status: http.StatusBadGateway, body: "", expected: "Bad Gateway"},
		{name: "whitespace body", status: http.StatusBadRequest, body: "  \n", expected: "Bad Request"},
		{
			name:     "long body is truncated",
			status:   http.StatusInternalServerError,
			body:     strings.Repeat("x", 2*maxErrorBody),
			expected: "Internal Server Error: " + strings.Repeat("x", maxErrorBody),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := newResponse(tt.status, tt.body)
			if got := ErrorMessage(resp); got != tt.expected {
				t.Errorf("ErrorMessage() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		statusCode int
		expected   bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			if got := IsRetryableStatusCode(tt.statusCode); got != tt.expected {
				t.Errorf("IsRetryableStatusCode(%d) = %v, expected %v", tt.statusCode, got, tt.expected)
			}
		})
	}
}
