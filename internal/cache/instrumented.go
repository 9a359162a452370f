package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/metrics"
	"racedash/pkg/logging/logging"
)

// Instrumented wraps a Cache with logging + metrics.
type Instrumented struct {
	inner  Cache
	logger *zap.Logger
}

// NewInstrumented returns a cache that logs and records metrics. A logger
// carried in the call context takes precedence over the one given here.
func NewInstrumented(inner Cache, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{inner: inner, logger: logger.Named("cache")}
}

// Unwrap returns the decorated cache.
func (c *Instrumented) Unwrap() Cache { return c.inner }

func (c *Instrumented) Get(ctx context.Context, key Key) (Entry, bool) {
	start := time.Now()
	entry, ok := c.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if ok {
		result = "hit"
		metrics.CacheHitsTotal.Inc()
	} else {
		metrics.CacheMissesTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("chart", string(key.Chart)),
		zap.Int("fingerprint_len", len(key.Fingerprint)),
		zap.String("cache_result", result), // hit | miss
		zap.Float64("latency_ms", latencyMs),
	}
	if ok {
		fields = append(fields, zap.Duration("age", time.Since(entry.StoredAt)))
	}
	c.loggerFor(ctx).Debug("cache_get", fields...)

	return entry, ok
}

func (c *Instrumented) Put(ctx context.Context, key Key, payload backend.ChartPayload) {
	start := time.Now()
	c.inner.Put(ctx, key, payload)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	c.loggerFor(ctx).Debug("cache_put",
		zap.String("chart", string(key.Chart)),
		zap.Int("fingerprint_len", len(key.Fingerprint)),
		zap.Int("series", len(payload.Data)),
		zap.Float64("latency_ms", latencyMs),
	)
}

func (c *Instrumented) loggerFor(ctx context.Context) *zap.Logger {
	if l, ok := logging.FromContextOK(ctx); ok {
		return l
	}
	return c.logger
}
