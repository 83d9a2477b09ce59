// Package config loads scraper settings from an optional YAML file and
// SCRAPER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/search-scraper/pkg/auth"
	"github.com/Sternrassler/search-scraper/pkg/client"
	"github.com/Sternrassler/search-scraper/pkg/logging"
	"github.com/Sternrassler/search-scraper/pkg/query"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// SCRAPER_RETRY_INTERVAL maps to the key retry.interval.
const EnvPrefix = "SCRAPER_"

// DefaultUserAgent is sent when http.useragent is not configured.
const DefaultUserAgent = "search-scraper/1.0"

// Config is the scraper configuration loaded by Load.
type Config struct {
	API    APIConfig    `koanf:"api"`
	HTTP   HTTPConfig   `koanf:"http"`
	Retry  RetryConfig  `koanf:"retry"`
	Stream StreamConfig `koanf:"stream"`
	Redis  RedisConfig  `koanf:"redis"`
	Log    LogConfig    `koanf:"log"`
}

// APIConfig holds the search endpoint and the explore page used for bootstrap.
type APIConfig struct {
	Endpoint string `koanf:"endpoint"`
	Explore  string `koanf:"explore"`
}

// HTTPConfig holds per-request HTTP settings.
type HTTPConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"useragent"`
}

// RetryConfig holds the fixed-interval retry policy.
type RetryConfig struct {
	Interval time.Duration `koanf:"interval"`
	Attempts int           `koanf:"attempts"` // 0 = unlimited
}

// StreamConfig holds result stream settings.
type StreamConfig struct {
	EmptyPages int `koanf:"emptypages"` // 0 = keep fetching
}

// RedisConfig enables shared rate limit pacing and the header cache when
// Addr is set.
type RedisConfig struct {
	Addr    string        `koanf:"addr"`
	TTL     time.Duration `koanf:"ttl"`
	Profile string        `koanf:"profile"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

var defaults = map[string]any{
	"api.endpoint":      query.DefaultEndpoint,
	"api.explore":       auth.DefaultExploreURL,
	"http.timeout":      "30s",
	"http.useragent":    DefaultUserAgent,
	"retry.interval":    "60s",
	"retry.attempts":    0,
	"stream.emptypages": 0,
	"redis.ttl":         auth.DefaultStoreTTL.String(),
	"log.level":         string(logging.LevelInfo),
	"log.pretty":        false,
}

// Load reads path (skipped when empty) and then the environment, which
// overrides the file. Unset keys fall back to their defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that the decoder cannot.
func (c *Config) Validate() error {
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.useragent must not be empty")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must be >= 0 (got %v)", c.HTTP.Timeout)
	}
	if c.Retry.Interval < 0 {
		return fmt.Errorf("retry.interval must be >= 0 (got %v)", c.Retry.Interval)
	}
	if c.Retry.Attempts < 0 {
		return fmt.Errorf("retry.attempts must be >= 0 (got %d)", c.Retry.Attempts)
	}
	if c.Stream.EmptyPages < 0 {
		return fmt.Errorf("stream.emptypages must be >= 0 (got %d)", c.Stream.EmptyPages)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl must be >= 0 (got %v)", c.Redis.TTL)
	}
	return nil
}

// ClientConfig builds the page client configuration. The Redis client is
// attached by the caller.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		UserAgent: c.HTTP.UserAgent,
		Timeout:   c.HTTP.Timeout,
		Retry: client.RetryConfig{
			Interval:    c.Retry.Interval,
			MaxAttempts: c.Retry.Attempts,
		},
	}
}

// LoggingConfig builds the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
