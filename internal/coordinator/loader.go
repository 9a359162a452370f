package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"racedash/internal/backend"
	"racedash/internal/cache"
	"racedash/internal/charts"
)

// Loader is shared by every coordinator of a session. It owns the session
// context that backend requests run under, so a request outlives the HTTP
// call that triggered it but not the session.
type Loader struct {
	cache   cache.Cache
	fetcher backend.Fetcher
	logger  *zap.Logger

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLoader(c cache.Cache, f backend.Fetcher, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		cache:   c,
		fetcher: f,
		logger:  logger.Named("loader"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Cache returns the session cache the loader writes to.
func (l *Loader) Cache() cache.Cache { return l.cache }

// Cached returns a copy of the cached payload for chart, if fresh.
func (l *Loader) Cached(ctx context.Context, chart charts.ID, dataset string) (*backend.ChartPayload, bool) {
	entry, ok := l.cache.Get(ctx, cache.KeyFor(chart, dataset))
	if !ok {
		return nil, false
	}
	p := entry.Payload.Clone()
	return &p, true
}

// Load fetches chart and stores the result in the cache. Concurrent loads of
// the same cache key share one backend request, and a load that starts after
// another finished is served from the cache. ctx only bounds how long the
// caller waits; the request itself is cancelled by Close.
func (l *Loader) Load(ctx context.Context, chart charts.ID, dataset string) (*backend.ChartPayload, error) {
	key := cache.KeyFor(chart, dataset)

	ch := l.group.DoChan(key.String(), func() (any, error) {
		// A flight that finished just before this one already filled the
		// cache.
		if entry, ok := l.cache.Get(l.ctx, key); ok {
			p := entry.Payload
			return &p, nil
		}

		start := time.Now()
		p, err := l.fetcher.FetchChart(l.ctx, chart, dataset)
		if err != nil {
			l.logger.Info("chart load failed",
				zap.String("chart", string(chart)),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return nil, err
		}
		l.cache.Put(l.ctx, key, *p)
		l.logger.Debug("chart loaded",
			zap.String("chart", string(chart)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Shared results are cloned so waiters never alias each other.
		p := res.Val.(*backend.ChartPayload).Clone()
		return &p, nil
	}
}

// Close cancels every in-flight backend request started by this loader.
func (l *Loader) Close() { l.cancel() }
