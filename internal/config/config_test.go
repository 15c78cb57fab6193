package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("KAKAO_REST_API_KEY", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Kakao.BaseURL != "https://dapi.kakao.com" {
		t.Errorf("Kakao.BaseURL = %q", cfg.Kakao.BaseURL)
	}
	if cfg.Kakao.Sort != "recency" {
		t.Errorf("Kakao.Sort = %q, want recency", cfg.Kakao.Sort)
	}
	if cfg.Kakao.RequestsPerSecond != 10 {
		t.Errorf("Kakao.RequestsPerSecond = %v, want 10", cfg.Kakao.RequestsPerSecond)
	}
	if cfg.Kakao.Timeout != 10*time.Second {
		t.Errorf("Kakao.Timeout = %v, want 10s", cfg.Kakao.Timeout)
	}
	if cfg.Paging.PageSize != 20 {
		t.Errorf("Paging.PageSize = %d, want 20", cfg.Paging.PageSize)
	}
	if cfg.Paging.FetchTimeout != 15*time.Second {
		t.Errorf("Paging.FetchTimeout = %v, want 15s", cfg.Paging.FetchTimeout)
	}
	if cfg.Cache.Path != "search-cache.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
	if cfg.Cache.SweepInterval != time.Minute {
		t.Errorf("Cache.SweepInterval = %v, want 1m", cfg.Cache.SweepInterval)
	}
	if cfg.Favorites.Path != "favorites.db" {
		t.Errorf("Favorites.Path = %q", cfg.Favorites.Path)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("KAKAO_REST_API_KEY", "")

	path := writeConfig(t, `
kakao:
  api_key: file-key
  sort: accuracy
  timeout: 3s
paging:
  page_size: 40
cache:
  path: /tmp/other.db
server:
  allowed_origins:
    - http://localhost:3000
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Kakao.APIKey != "file-key" {
		t.Errorf("Kakao.APIKey = %q, want file-key", cfg.Kakao.APIKey)
	}
	if cfg.Kakao.Sort != "accuracy" {
		t.Errorf("Kakao.Sort = %q, want accuracy", cfg.Kakao.Sort)
	}
	if cfg.Kakao.Timeout != 3*time.Second {
		t.Errorf("Kakao.Timeout = %v, want 3s", cfg.Kakao.Timeout)
	}
	if cfg.Paging.PageSize != 40 {
		t.Errorf("Paging.PageSize = %d, want 40", cfg.Paging.PageSize)
	}
	if cfg.Cache.Path != "/tmp/other.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	// Untouched keys keep their defaults
	if cfg.Favorites.Path != "favorites.db" {
		t.Errorf("Favorites.Path = %q, want default", cfg.Favorites.Path)
	}
}

func TestLoadConfig_EnvOverridesKey(t *testing.T) {
	t.Setenv("KAKAO_REST_API_KEY", "env-key")

	path := writeConfig(t, "kakao:\n  api_key: file-key\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Kakao.APIKey != "env-key" {
		t.Errorf("Kakao.APIKey = %q, want env-key", cfg.Kakao.APIKey)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad sort", content: "kakao:\n  sort: newest\n", wantErr: "kakao.sort"},
		{name: "zero page size", content: "paging:\n  page_size: 0\n", wantErr: "paging.page_size"},
		{name: "negative rate", content: "kakao:\n  requests_per_second: -1\n", wantErr: "requests_per_second"},
		{name: "malformed yaml", content: "kakao: [unclosed\n", wantErr: "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("KAKAO_REST_API_KEY", "")

	cfg := Default()
	cfg.Kakao.APIKey = "saved-key"
	cfg.Paging.PageSize = 30
	cfg.Cache.SweepInterval = 5 * time.Minute

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Kakao.APIKey != "saved-key" {
		t.Errorf("Kakao.APIKey = %q, want saved-key", loaded.Kakao.APIKey)
	}
	if loaded.Paging.PageSize != 30 {
		t.Errorf("Paging.PageSize = %d, want 30", loaded.Paging.PageSize)
	}
	if loaded.Cache.SweepInterval != 5*time.Minute {
		t.Errorf("Cache.SweepInterval = %v, want 5m", loaded.Cache.SweepInterval)
	}
}
