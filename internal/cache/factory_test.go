package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"racedash/internal/charts"
)

func TestNewDefaultsToMemory(t *testing.T) {
	c := New(Config{Backend: "memory", TTL: time.Minute}, nil, zaptest.NewLogger(t))

	inst, ok := c.(*Instrumented)
	if !ok {
		t.Fatalf("expected instrumented cache, got %T", c)
	}
	if _, ok := inst.Unwrap().(*Memory); !ok {
		t.Fatalf("expected memory backend, got %T", inst.Unwrap())
	}
}

func TestNewRedisWithoutClientFallsBack(t *testing.T) {
	c := New(Config{Backend: "redis"}, nil, zaptest.NewLogger(t))
	if _, ok := c.(*Instrumented).Unwrap().(*Memory); !ok {
		t.Fatalf("expected memory fallback without a redis client")
	}
}

func TestInstrumentedPassesThrough(t *testing.T) {
	c := NewInstrumented(NewMemory(), zaptest.NewLogger(t))
	ctx := context.Background()
	key := KeyFor(charts.DailyPerformance, "csv")

	if _, hit := c.Get(ctx, key); hit {
		t.Fatalf("expected miss")
	}
	c.Put(ctx, key, payload("p"))
	if _, hit := c.Get(ctx, key); !hit {
		t.Fatalf("expected hit after Put")
	}
}
