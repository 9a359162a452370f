package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Backend  string // "memory" or "redis"
	TTL      time.Duration
	Capacity int
	Prefix   string
}

// New builds the session cache for cfg and wraps it with logging and
// metrics. The redis backend needs a client; without one it falls back to
// memory.
func New(cfg Config, redisClient *redis.Client, logger *zap.Logger) Cache {
	if logger == nil {
		logger = zap.NewNop()
	}

	var inner Cache
	switch cfg.Backend {
	case "redis":
		if redisClient == nil {
			logger.Warn("redis cache requested without a client, using memory")
			inner = NewMemory(WithTTL(cfg.TTL), WithCapacity(cfg.Capacity))
			break
		}
		inner = NewRedis(redisClient, RedisConfig{
			Prefix:   cfg.Prefix,
			TTL:      cfg.TTL,
			Capacity: cfg.Capacity,
		}, logger)
	default:
		inner = NewMemory(WithTTL(cfg.TTL), WithCapacity(cfg.Capacity))
	}

	return NewInstrumented(inner, logger)
}
