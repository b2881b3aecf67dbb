// Package config loads bom-server configuration from defaults, an optional YAML
// file, an optional .env file and environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/cache"
	"github.com/Sternrassler/bom-enricher/pkg/catalog"
	"github.com/Sternrassler/bom-enricher/pkg/ratelimit"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigFile           = "BOM_CONFIG"
	EnvPort                 = "PORT"
	EnvRedisURL             = "REDIS_URL"
	EnvRedisPassword        = "REDIS_PASSWORD"
	EnvCacheTTL             = "CACHE_TTL"
	EnvLogLevel             = "LOG_LEVEL"
	EnvLogPretty            = "LOG_PRETTY"
	EnvUserAgent            = "USER_AGENT"
	EnvCatalogRemoteURL     = "CATALOG_REMOTE_URL"
	EnvLimiterMaxConcurrent = "LIMITER_MAX_CONCURRENT"
	EnvLimiterDelay         = "LIMITER_DELAY"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Catalog CatalogConfig `yaml:"catalog"`
	Limiter LimiterConfig `yaml:"limiter"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxUploadBytes caps the size of an uploaded BOM file.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// RedisConfig configures the part cache. An empty URL disables caching.
type RedisConfig struct {
	// URL is either host:port or a redis:// URL.
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// CatalogConfig selects and configures the part catalog.
type CatalogConfig struct {
	// RemoteURL, when set, makes the server look parts up through another
	// deployed bom-server instead of calling JLCPCB directly.
	RemoteURL         string        `yaml:"remote_url"`
	Endpoint          string        `yaml:"endpoint"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// LimiterConfig configures the shared lookup queue.
type LimiterConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	Delay         time.Duration `yaml:"delay"`
}

// Default returns the built-in configuration.
func Default() *Config {
	jl := catalog.DefaultJLCPCBConfig()
	rl := ratelimit.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  10 << 20,
		},
		Redis: RedisConfig{
			CacheTTL: cache.DefaultTTL,
		},
		Log: LogConfig{
			Level: "info",
		},
		Catalog: CatalogConfig{
			Endpoint:          jl.Endpoint,
			UserAgent:         jl.UserAgent,
			Timeout:           jl.Timeout,
			RequestsPerSecond: jl.RequestsPerSecond,
		},
		Limiter: LimiterConfig{
			MaxConcurrent: rl.MaxConcurrent,
			Delay:         rl.Delay,
		},
	}
}

// Load builds the configuration.
//
// path names a YAML file; when empty, BOM_CONFIG is consulted, and when that is
// empty too no file is read. A .env file in the working directory is loaded if
// present; it never overrides variables already set in the process.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheTTL, err)
		}
		c.Redis.CacheTTL = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogPretty); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLogPretty, err)
		}
		c.Log.Pretty = b
	}
	if v := os.Getenv(EnvUserAgent); v != "" {
		c.Catalog.UserAgent = v
	}
	if v := os.Getenv(EnvCatalogRemoteURL); v != "" {
		c.Catalog.RemoteURL = v
	}
	if v := os.Getenv(EnvLimiterMaxConcurrent); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLimiterMaxConcurrent, err)
		}
		c.Limiter.MaxConcurrent = n
	}
	if v := os.Getenv(EnvLimiterDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLimiterDelay, err)
		}
		c.Limiter.Delay = d
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if c.Redis.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	if c.Catalog.RemoteURL == "" && c.Catalog.Endpoint == "" {
		return fmt.Errorf("catalog endpoint is required")
	}
	if c.Catalog.UserAgent == "" {
		return fmt.Errorf("user agent is required")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive")
	}
	if c.Catalog.RequestsPerSecond < 0 {
		return fmt.Errorf("catalog requests per second must not be negative")
	}

	if c.Limiter.MaxConcurrent < 1 {
		return fmt.Errorf("limiter max concurrent must be at least 1")
	}
	if c.Limiter.Delay < 0 {
		return fmt.Errorf("limiter delay must not be negative")
	}
	return nil
}

// RateLimit returns the limiter configuration.
func (c *Config) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		MaxConcurrent: c.Limiter.MaxConcurrent,
		Delay:         c.Limiter.Delay,
	}
}

// JLCPCB returns the direct catalog configuration.
func (c *Config) JLCPCB() catalog.JLCPCBConfig {
	return catalog.JLCPCBConfig{
		Endpoint:          c.Catalog.Endpoint,
		UserAgent:         c.Catalog.UserAgent,
		Timeout:           c.Catalog.Timeout,
		RequestsPerSecond: c.Catalog.RequestsPerSecond,
	}
}
