package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"racedash/internal/cache"
	"racedash/internal/charts"
)

// Config holds all configuration for the racedash service and CLI.
type Config struct {
	// Server configuration
	Port           string        `env:"PORT,default=8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=60s"`

	// Chart backend
	BackendURL     string        `env:"BACKEND_URL,required"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT,default=30s"`

	// Result cache
	CacheBackend  string        `env:"CACHE_BACKEND,default=memory"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	CacheTTL      time.Duration `env:"CACHE_TTL,default=5m"`
	CacheCapacity int           `env:"CACHE_CAPACITY,default=100"`

	// Dashboard behaviour
	PriorityCharts string  `env:"PRIORITY_CHARTS,default=wpm-distribution,performance-over-time,rolling-average"`
	ViewportHeight float64 `env:"VIEWPORT_HEIGHT,default=900"`
	BatchLimit     int     `env:"BATCH_CONCURRENCY,default=0"`

	// Service configuration
	Environment string `env:"ENV,default=production"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

// Load loads configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith loads configuration from l.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.CacheTTL <= 0 {
		return errors.New("config: CACHE_TTL must be positive")
	}
	if c.CacheCapacity <= 0 {
		return errors.New("config: CACHE_CAPACITY must be positive")
	}
	if c.ViewportHeight <= 0 {
		return errors.New("config: VIEWPORT_HEIGHT must be positive")
	}
	if _, err := c.Priority(); err != nil {
		return fmt.Errorf("config: PRIORITY_CHARTS: %w", err)
	}
	return nil
}

// Priority parses PriorityCharts.
func (c *Config) Priority() (charts.PrioritySet, error) {
	ids, err := charts.ParseList(c.PriorityCharts)
	if err != nil {
		return charts.PrioritySet{}, err
	}
	return charts.NewPrioritySet(ids...), nil
}

// Cache returns the cache settings for a session with the given prefix.
func (c *Config) Cache(prefix string) cache.Config {
	return cache.Config{
		Backend:  c.CacheBackend,
		TTL:      c.CacheTTL,
		Capacity: c.CacheCapacity,
		Prefix:   prefix,
	}
}
