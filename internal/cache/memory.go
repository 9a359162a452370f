package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"racedash/internal/backend"
	"racedash/internal/metrics"
)

// Compile-time check that Memory implements Cache.
var _ Cache = (*Memory)(nil)

// Memory is a bounded in-process cache with lazy TTL expiry.
//
// Reads use Peek so they never reorder entries; writes use Add, which moves a
// key to the newest position. The least recently added entry is therefore
// always the one with the smallest StoredAt, and that is what the LRU evicts
// once the capacity is exceeded.
type Memory struct {
	entries   *lru.Cache[Key, Entry]
	ttl       time.Duration
	now       Clock
	evictions atomic.Int64
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	ttl      time.Duration
	capacity int
	clock    Clock
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) MemoryOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(c Clock) MemoryOption {
	return func(o *memoryOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewMemory creates an empty in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	o := memoryOptions{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Memory{ttl: o.ttl, now: o.clock}

	// Capacity is always positive here, so the constructor cannot fail.
	entries, err := lru.NewWithEvict[Key, Entry](o.capacity, func(Key, Entry) {
		m.evictions.Add(1)
		metrics.CacheEvictionsTotal.Inc()
	})
	if err != nil {
		panic(err)
	}
	m.entries = entries
	return m
}

// Get returns the entry for key unless it is missing or expired. Expired
// entries are left in place until overwritten or evicted.
func (m *Memory) Get(_ context.Context, key Key) (Entry, bool) {
	e, ok := m.entries.Peek(key)
	if !ok || e.Expired(m.now(), m.ttl) {
		return Entry{}, false
	}
	return Entry{Payload: e.Payload.Clone(), StoredAt: e.StoredAt}, true
}

// Put stores payload under key stamped with the current time, evicting the
// oldest entry if this write exceeds capacity.
func (m *Memory) Put(_ context.Context, key Key, payload backend.ChartPayload) {
	m.entries.Add(key, Entry{Payload: payload.Clone(), StoredAt: m.now()})
}

// Len returns the number of entries held, expired ones included.
func (m *Memory) Len() int {
	return m.entries.Len()
}

// Evictions returns how many entries were dropped for capacity.
func (m *Memory) Evictions() int64 {
	return m.evictions.Load()
}

// Contains reports whether key is held, ignoring expiry.
func (m *Memory) Contains(key Key) bool {
	return m.entries.Contains(key)
}
