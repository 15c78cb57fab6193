package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lepinkainen/search-forge/pkg/filesystem"
	"github.com/spf13/viper"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "config.yaml"

// Config holds the central application configuration
type Config struct {
	// Kakao search API configuration
	Kakao struct {
		APIKey            string        `mapstructure:"api_key" yaml:"api_key"`                         // REST API key, KAKAO_REST_API_KEY overrides
		BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`                       // API root
		Sort              string        `mapstructure:"sort" yaml:"sort"`                               // recency or accuracy
		RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"` // 0 disables limiting
		Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`                         // per HTTP request
	} `mapstructure:"kakao" yaml:"kakao"`

	// Paging behaviour
	Paging struct {
		PageSize     int           `mapstructure:"page_size" yaml:"page_size"`
		FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"` // per source per page
		WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"` // background cache writes
	} `mapstructure:"paging" yaml:"paging"`

	// Result cache storage
	Cache struct {
		Path          string        `mapstructure:"path" yaml:"path"`
		SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"` // 0 disables the sweeper
	} `mapstructure:"cache" yaml:"cache"`

	// Favorites side-store
	Favorites struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"favorites" yaml:"favorites"`

	// HTTP API
	Server struct {
		Addr           string   `mapstructure:"addr" yaml:"addr"`
		AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"` // CORS, empty disables
	} `mapstructure:"server" yaml:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kakao.api_key", "")
	v.SetDefault("kakao.base_url", "https://dapi.kakao.com")
	v.SetDefault("kakao.sort", "recency")
	v.SetDefault("kakao.requests_per_second", 10)
	v.SetDefault("kakao.timeout", 10*time.Second)

	v.SetDefault("paging.page_size", 20)
	v.SetDefault("paging.fetch_timeout", 15*time.Second)
	v.SetDefault("paging.write_timeout", 10*time.Second)

	v.SetDefault("cache.path", "search-cache.db")
	v.SetDefault("cache.sweep_interval", time.Minute)

	v.SetDefault("favorites.path", "favorites.db")

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.allowed_origins", []string{})
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	_ = v.BindEnv("kakao.api_key", "KAKAO_REST_API_KEY")
	return v
}

// LoadConfig loads the configuration from a file. A missing file is not an
// error; defaults and the environment are used instead.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	// Relative paths: current directory first, then executable directory
	path = filesystem.FindExisting(path)

	v := newViper(path)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults always decode
	_ = v.Unmarshal(&config)
	return &config
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Kakao.Sort {
	case "recency", "accuracy":
	default:
		return fmt.Errorf("invalid kakao.sort %q: want recency or accuracy", c.Kakao.Sort)
	}
	if c.Kakao.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid kakao.requests_per_second %v: must not be negative", c.Kakao.RequestsPerSecond)
	}
	if c.Paging.PageSize < 1 {
		return fmt.Errorf("invalid paging.page_size %d: must be positive", c.Paging.PageSize)
	}
	if c.Cache.Path == "" {
		return errors.New("cache.path is required")
	}
	if c.Favorites.Path == "" {
		return errors.New("favorites.path is required")
	}
	return nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}
	if err := filesystem.EnsureDirectoryExists(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set values from config struct
	v.Set("kakao.api_key", config.Kakao.APIKey)
	v.Set("kakao.base_url", config.Kakao.BaseURL)
	v.Set("kakao.sort", config.Kakao.Sort)
	v.Set("kakao.requests_per_second", config.Kakao.RequestsPerSecond)
	v.Set("kakao.timeout", config.Kakao.Timeout.String())

	v.Set("paging.page_size", config.Paging.PageSize)
	v.Set("paging.fetch_timeout", config.Paging.FetchTimeout.String())
	v.Set("paging.write_timeout", config.Paging.WriteTimeout.String())

	v.Set("cache.path", config.Cache.Path)
	v.Set("cache.sweep_interval", config.Cache.SweepInterval.String())

	v.Set("favorites.path", config.Favorites.Path)

	v.Set("server.addr", config.Server.Addr)
	v.Set("server.allowed_origins", config.Server.AllowedOrigins)

	return v.WriteConfig()
}
