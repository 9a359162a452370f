// Package batch fetches many charts for one dataset at once, skipping the
// lazy loading path entirely.
package batch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"racedash/internal/backend"
	"racedash/internal/charts"
	"racedash/internal/metrics"
)

// Result is the outcome of one chart in a batch.
type Result struct {
	Payload  *backend.ChartPayload
	Err      error
	Duration time.Duration
}

type Option func(*Orchestrator)

// WithConcurrency caps the number of requests in flight. Zero or negative
// means no limit.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator issues chart requests concurrently. It never reads or writes
// a cache; callers decide what to keep.
type Orchestrator struct {
	fetcher backend.Fetcher
	limit   int
	logger  *zap.Logger
}

func New(f backend.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{fetcher: f, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("batch")
	return o
}

// FetchAll requests every chart in ids and returns the payloads that came
// back. Failed charts are absent from the map. An empty id list returns an
// empty map.
func (o *Orchestrator) FetchAll(ctx context.Context, ids []charts.ID, dataset string) map[charts.ID]*backend.ChartPayload {
	detailed := o.FetchAllDetailed(ctx, ids, dataset)
	out := make(map[charts.ID]*backend.ChartPayload, len(detailed))
	for id, r := range detailed {
		if r.Err == nil {
			out[id] = r.Payload
		}
	}
	return out
}

// FetchAllDetailed is FetchAll with per-chart errors and timings. Every id
// has an entry. Duplicate ids are requested once.
func (o *Orchestrator) FetchAllDetailed(ctx context.Context, ids []charts.ID, dataset string) map[charts.ID]Result {
	results := make(map[charts.ID]Result, len(ids))
	if len(ids) == 0 {
		return results
	}

	var mu sync.Mutex
	// Not errgroup.WithContext: one failure must not cancel its siblings.
	var g errgroup.Group
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}

	seen := make(map[charts.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			start := time.Now()
			p, err := o.fetcher.FetchChart(ctx, id, dataset)
			r := Result{Payload: p, Err: err, Duration: time.Since(start)}

			if err != nil {
				metrics.BatchFailuresTotal.WithLabelValues(string(id)).Inc()
				o.logger.Warn("chart fetch failed",
					zap.String("chart", string(id)),
					zap.Duration("elapsed", r.Duration),
					zap.Error(err),
				)
				r.Payload = nil
			}

			mu.Lock()
			results[id] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Debug("batch complete",
		zap.Int("requested", len(seen)),
		zap.Int("failed", countFailed(results)),
	)
	return results
}

func countFailed(results map[charts.ID]Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
