package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"racedash/internal/backend"
	"racedash/internal/charts"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func payload(label string) backend.ChartPayload {
	return backend.ChartPayload{
		Data:        []json.RawMessage{json.RawMessage(`{"name":"` + label + `"}`)},
		Layout:      json.RawMessage(`{"height":400}`),
		Insights:    []string{label},
		HasInsights: true,
	}
}

func TestMemory_TTL(t *testing.T) {
	clock := newFakeClock()
	c := NewMemory(WithClock(clock.Now))
	ctx := context.Background()
	key := KeyFor(charts.WPMDistribution, "csv")

	c.Put(ctx, key, payload("a"))

	clock.Advance(4*time.Minute + 59*time.Second)
	got, hit := c.Get(ctx, key)
	if !hit {
		t.Fatalf("expected hit at 4:59")
	}
	if got.Payload.Insights[0] != "a" {
		t.Fatalf("unexpected payload: %#v", got.Payload)
	}

	clock.Advance(time.Second)
	if _, hit := c.Get(ctx, key); hit {
		t.Fatalf("expected miss at exactly 5:00")
	}

	// Expired entries are not purged by Get.
	if !c.Contains(key) {
		t.Fatalf("expired entry should remain until overwritten or evicted")
	}
}

func TestMemory_OverwriteRefreshesStoredAt(t *testing.T) {
	clock := newFakeClock()
	c := NewMemory(WithClock(clock.Now))
	ctx := context.Background()
	key := KeyFor(charts.TopTexts, "csv")

	c.Put(ctx, key, payload("old"))
	clock.Advance(4 * time.Minute)
	c.Put(ctx, key, payload("new"))
	clock.Advance(4 * time.Minute)

	got, hit := c.Get(ctx, key)
	if !hit {
		t.Fatalf("overwrite should restart the TTL")
	}
	if got.Payload.Insights[0] != "new" {
		t.Fatalf("expected overwritten payload, got %v", got.Payload.Insights)
	}
	if c.Len() != 1 {
		t.Fatalf("overwrite must not add an entry, len=%d", c.Len())
	}
}

func TestMemory_EvictsOldestOnOverflow(t *testing.T) {
	clock := newFakeClock()
	c := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	keys := make([]Key, 0, DefaultCapacity+1)
	for i := 0; i < DefaultCapacity; i++ {
		k := KeyFor(charts.WPMDistribution, fmt.Sprintf("dataset-%03d", i))
		keys = append(keys, k)
		c.Put(ctx, k, payload(k.Fingerprint))
		clock.Advance(time.Millisecond)
	}

	// Reading the oldest entry must not protect it from eviction.
	if _, hit := c.Get(ctx, keys[0]); !hit {
		t.Fatalf("expected oldest entry to be present before overflow")
	}

	extra := KeyFor(charts.WPMDistribution, "dataset-extra")
	c.Put(ctx, extra, payload("extra"))

	if c.Len() != DefaultCapacity {
		t.Fatalf("cache must hold exactly %d entries, got %d", DefaultCapacity, c.Len())
	}
	if c.Contains(keys[0]) {
		t.Fatalf("entry with the smallest StoredAt should have been evicted")
	}
	for _, k := range keys[1:] {
		if !c.Contains(k) {
			t.Fatalf("entry %q evicted unexpectedly", k.Fingerprint)
		}
	}
	if !c.Contains(extra) {
		t.Fatalf("new entry missing after insert")
	}
	if c.Evictions() != 1 {
		t.Fatalf("expected exactly one eviction, got %d", c.Evictions())
	}
}

func TestMemory_OverwrittenKeyIsNoLongerOldest(t *testing.T) {
	clock := newFakeClock()
	c := NewMemory(WithClock(clock.Now), WithCapacity(2))
	ctx := context.Background()

	a := KeyFor(charts.WPMDistribution, "a")
	b := KeyFor(charts.WPMDistribution, "b")
	d := KeyFor(charts.WPMDistribution, "d")

	c.Put(ctx, a, payload("a"))
	clock.Advance(time.Second)
	c.Put(ctx, b, payload("b"))
	clock.Advance(time.Second)
	c.Put(ctx, a, payload("a2")) // a is now newer than b
	clock.Advance(time.Second)
	c.Put(ctx, d, payload("d"))

	if c.Contains(b) {
		t.Fatalf("b had the smallest StoredAt and should be gone")
	}
	if !c.Contains(a) || !c.Contains(d) {
		t.Fatalf("a and d should remain")
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	key := KeyFor(charts.TopTexts, "csv")

	p := payload("orig")
	c.Put(ctx, key, p)
	p.Insights[0] = "mutated by producer"

	got, _ := c.Get(ctx, key)
	got.Payload.Insights[0] = "mutated by reader"

	again, _ := c.Get(ctx, key)
	if again.Payload.Insights[0] != "orig" {
		t.Fatalf("stored payload was aliased: %q", again.Payload.Insights[0])
	}
}

func TestKeyFingerprint(t *testing.T) {
	long := make([]byte, FingerprintLength+50)
	for i := range long {
		long[i] = 'x'
	}
	a := string(long)
	b := string(long[:FingerprintLength]) + "different suffix"

	if KeyFor(charts.TopTexts, a) != KeyFor(charts.TopTexts, b) {
		t.Fatalf("datasets sharing the fingerprint prefix should share a key")
	}
	if KeyFor(charts.TopTexts, a) == KeyFor(charts.RacersImpact, a) {
		t.Fatalf("different charts must not share a key")
	}
	if got := Fingerprint("short"); got != "short" {
		t.Fatalf("short datasets should be used whole, got %q", got)
	}
	if KeyFor(charts.TopTexts, "abc").String() != "chart:top-texts:abc" {
		t.Fatalf("unexpected key string %q", KeyFor(charts.TopTexts, "abc").String())
	}
}
