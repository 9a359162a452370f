// Package cache stores fetched chart payloads for the lifetime of a
// dashboard session.
package cache

import (
	"context"
	"time"

	"racedash/internal/backend"
)

const (
	// DefaultTTL is how long a stored payload stays servable.
	DefaultTTL = 5 * time.Minute
	// DefaultCapacity bounds the number of entries held at once.
	DefaultCapacity = 100
)

// Entry is one stored payload and the time it was written.
type Entry struct {
	Payload  backend.ChartPayload `json:"payload"`
	StoredAt time.Time            `json:"stored_at"`
}

// Expired reports whether the entry is stale at now. An entry exactly ttl old
// is stale.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) >= ttl
}

// Cache is the result cache shared by every chart coordinator of a session.
// Implementations never fail: backend trouble is treated as a miss.
type Cache interface {
	Get(ctx context.Context, key Key) (Entry, bool)
	Put(ctx context.Context, key Key, payload backend.ChartPayload)
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time
