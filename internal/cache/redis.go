package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/metrics"
)

// Compile-time check that Redis implements Cache.
var _ Cache = (*Redis)(nil)

// Redis implements Cache on a Redis server, scoped to one session by prefix.
//
// Entries are stored as JSON with a Redis TTL equal to the cache TTL. A sorted
// set keyed by StoredAt tracks insertion order so the capacity bound evicts
// the oldest entry, matching Memory.
type Redis struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	capacity int
	now      Clock
	logger   *zap.Logger
}

type RedisConfig struct {
	Prefix   string
	TTL      time.Duration
	Capacity int
	Clock    Clock
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client *redis.Client, config RedisConfig, logger *zap.Logger) *Redis {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client:   client,
		prefix:   config.Prefix,
		ttl:      config.TTL,
		capacity: config.Capacity,
		now:      config.Clock,
		logger:   logger.Named("cache.redis"),
	}
}

// key builds the final Redis key with prefix.
func (c *Redis) key(k Key) string {
	if c.prefix == "" {
		return k.String()
	}
	return c.prefix + ":" + k.String()
}

func (c *Redis) indexKey() string {
	if c.prefix == "" {
		return "index"
	}
	return c.prefix + ":index"
}

// Get retrieves an entry. Redis errors and undecodable values are logged and
// reported as a miss.
func (c *Redis) Get(ctx context.Context, key Key) (Entry, bool) {
	res, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		c.logger.Warn("redis get failed, treating as miss",
			zap.String("chart", string(key.Chart)),
			zap.Error(err),
		)
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(res, &e); err != nil {
		c.logger.Warn("redis entry undecodable, treating as miss",
			zap.String("chart", string(key.Chart)),
			zap.Error(err),
		)
		return Entry{}, false
	}

	// Redis expiry is second-granular; re-check against our own clock.
	if e.Expired(c.now(), c.ttl) {
		return Entry{}, false
	}
	return e, true
}

// Put stores payload and trims the session to capacity. Failures are logged
// and the write is dropped.
func (c *Redis) Put(ctx context.Context, key Key, payload backend.ChartPayload) {
	storedAt := c.now()
	data, err := json.Marshal(Entry{Payload: payload, StoredAt: storedAt})
	if err != nil {
		c.logger.Warn("redis entry marshal failed", zap.Error(err))
		return
	}

	redisKey := c.key(key)
	idx := c.indexKey()

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, redisKey, data, c.ttl)
	pipe.ZAdd(ctx, idx, redis.Z{Score: float64(storedAt.UnixNano()), Member: redisKey})
	pipe.Expire(ctx, idx, c.ttl)
	card := pipe.ZCard(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("redis set failed, dropping write",
			zap.String("chart", string(key.Chart)),
			zap.Error(err),
		)
		return
	}

	over := card.Val() - int64(c.capacity)
	if over <= 0 {
		return
	}

	popped, err := c.client.ZPopMin(ctx, idx, over).Result()
	if err != nil {
		c.logger.Warn("redis eviction failed", zap.Error(err))
		return
	}
	victims := make([]string, 0, len(popped))
	for _, z := range popped {
		if member, ok := z.Member.(string); ok {
			victims = append(victims, member)
		}
	}
	if len(victims) == 0 {
		return
	}
	if err := c.client.Del(ctx, victims...).Err(); err != nil {
		c.logger.Warn("redis eviction delete failed", zap.Error(err))
		return
	}
	metrics.CacheEvictionsTotal.Add(float64(len(victims)))
}

// Len returns the number of indexed entries, expired ones included.
func (c *Redis) Len(ctx context.Context) (int64, error) {
	return c.client.ZCard(ctx, c.indexKey()).Result()
}

// Clear removes every key owned by this session.
func (c *Redis) Clear(ctx context.Context) error {
	members, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	keys := append(members, c.indexKey())
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks if Redis connection is healthy.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
