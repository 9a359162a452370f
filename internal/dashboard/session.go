// Package dashboard ties the loading pieces together for one uploaded
// dataset: a session cache, a coordinator per mounted chart, the visibility
// trigger that starts them and the batch path that loads everything at once.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/batch"
	"racedash/internal/cache"
	"racedash/internal/charts"
	"racedash/internal/coordinator"
	"racedash/internal/visibility"
	"racedash/pkg/logging/logging"
)

var (
	ErrSessionNotFound = errors.New("dashboard: session not found")
	ErrSessionClosed   = errors.New("dashboard: session closed")
	ErrNotMounted      = errors.New("dashboard: chart not mounted")
)

// Deps are the collaborators a session is built from.
type Deps struct {
	Backend     backend.Backend
	Cache       cache.Cache
	Priority    charts.PrioritySet
	Visibility  visibility.Options
	Concurrency int // batch limit, 0 for unbounded
	Logger      *zap.Logger
}

type mounted struct {
	coord *coordinator.Coordinator
	sub   *visibility.Subscription
}

// Session is one dashboard view over one dataset.
type Session struct {
	id      string
	dataset string
	backend backend.Backend
	cache   cache.Cache
	loader  *coordinator.Loader
	trigger *visibility.Trigger
	batch   *batch.Orchestrator
	logger  *zap.Logger
	ctx     context.Context

	mu     sync.Mutex
	closed bool
	charts map[charts.ID]*mounted
	order  []charts.ID

	statsMu sync.Mutex
	stats   *backend.StatsPayload
}

func NewSession(id, dataset string, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", id))

	c := deps.Cache
	if c == nil {
		c = cache.NewInstrumented(cache.NewMemory(), logger)
	}

	observer := visibility.NewObserver(deps.Visibility)
	return &Session{
		id:      id,
		dataset: dataset,
		backend: deps.Backend,
		cache:   c,
		loader:  coordinator.NewLoader(c, deps.Backend, logger),
		trigger: visibility.NewTrigger(observer, deps.Priority, logger),
		batch:   batch.New(deps.Backend, batch.WithConcurrency(deps.Concurrency), batch.WithLogger(logger)),
		logger:  logger,
		ctx:     logging.WithLogger(context.Background(), logger),
		charts:  make(map[charts.ID]*mounted),
	}
}

func (s *Session) ID() string { return s.id }

// Cache returns the session's result cache.
func (s *Session) Cache() cache.Cache { return s.cache }

// Mount creates the coordinator for chart and hands it to the visibility
// trigger. Mounting an already mounted chart returns the existing
// coordinator.
func (s *Session) Mount(chart charts.ID, target visibility.Target) (*coordinator.Coordinator, error) {
	if !chart.Valid() {
		return nil, fmt.Errorf("mount %q: %w", chart, charts.ErrUnknownChart)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if m, ok := s.charts[chart]; ok {
		return m.coord, nil
	}

	coord := coordinator.New(chart, s.dataset, s.loader, coordinator.WithLogger(s.logger))
	m := &mounted{coord: coord}
	s.charts[chart] = m
	s.order = append(s.order, chart)

	m.sub = s.trigger.Mount(chart, target, func() { coord.Trigger(s.ctx) })
	return coord, nil
}

// MountLayout mounts every catalog chart in its stacked page slot.
func (s *Session) MountLayout() error {
	for _, slot := range charts.Layout(0, charts.All()...) {
		target := visibility.Rect{Top: slot.Top, Height: slot.Height}
		if _, err := s.Mount(slot.Chart, target); err != nil {
			return err
		}
	}
	return nil
}

// Unmount disposes the chart's observation and closes its coordinator.
func (s *Session) Unmount(chart charts.ID) bool {
	s.mu.Lock()
	m, ok := s.charts[chart]
	if ok {
		delete(s.charts, chart)
		for i, id := range s.order {
			if id == chart {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	m.sub.Dispose()
	m.coord.Close()
	return true
}

// Scroll reports a new viewport to the visibility trigger.
func (s *Session) Scroll(viewport visibility.Rect) {
	s.trigger.Observer().Update(viewport)
}

// Chart returns the coordinator of a mounted chart.
func (s *Session) Chart(chart charts.ID) (*coordinator.Coordinator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.charts[chart]
	if !ok {
		return nil, fmt.Errorf("%s: %w", chart, ErrNotMounted)
	}
	return m.coord, nil
}

// States returns every mounted chart's state in mount order.
func (s *Session) States() []coordinator.State {
	s.mu.Lock()
	coords := make([]*coordinator.Coordinator, 0, len(s.order))
	for _, id := range s.order {
		coords = append(coords, s.charts[id].coord)
	}
	s.mu.Unlock()

	out := make([]coordinator.State, 0, len(coords))
	for _, c := range coords {
		out = append(out, c.State())
	}
	return out
}

// LoadAll loads every mounted chart that is neither Ready nor Loading in one
// concurrent batch. Successful payloads are written to the session cache so
// the coordinators pick them up as cache hits; charts whose batch request
// failed go through the normal trigger path and surface their own error. It
// returns once no chart is Loading or ctx is done.
func (s *Session) LoadAll(ctx context.Context) ([]coordinator.State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	var candidates []*mounted
	all := make([]*coordinator.Coordinator, 0, len(s.order))
	for _, id := range s.order {
		m := s.charts[id]
		all = append(all, m.coord)
		if !settledOrLoading(m.coord) {
			candidates = append(candidates, m)
		}
	}
	s.mu.Unlock()

	// Visibility may fire between the snapshot above and Dispose, so the
	// state is read again once the observation is gone. A chart whose
	// observation was already taken but is still NotTriggered has its fire
	// in progress; it loads through its coordinator, never the batch.
	var pending []charts.ID
	var trigger []*coordinator.Coordinator
	for _, m := range candidates {
		disposed := m.sub.Dispose()
		if settledOrLoading(m.coord) {
			continue
		}
		trigger = append(trigger, m.coord)
		if !disposed && m.coord.State().Status == coordinator.NotTriggered {
			continue
		}
		pending = append(pending, m.coord.Chart())
	}

	if len(pending) > 0 {
		loaded := s.batch.FetchAll(ctx, pending, s.dataset)
		for id, p := range loaded {
			s.cache.Put(ctx, cache.KeyFor(id, s.dataset), *p)
		}
		s.logger.Info("load all",
			zap.Int("requested", len(pending)),
			zap.Int("loaded", len(loaded)),
		)
	}
	for _, c := range trigger {
		c.Trigger(s.ctx)
	}

	states := make([]coordinator.State, 0, len(all))
	for _, c := range all {
		st, err := c.Wait(ctx)
		if err != nil && !errors.Is(err, coordinator.ErrClosed) {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

func settledOrLoading(c *coordinator.Coordinator) bool {
	switch c.State().Status {
	case coordinator.Ready, coordinator.Loading:
		return true
	}
	return false
}

// Stats returns the headline statistics, fetching them on first use. Errors
// are not remembered.
func (s *Session) Stats(ctx context.Context) (*backend.StatsPayload, error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.stats != nil {
		st := *s.stats
		return &st, nil
	}
	st, err := s.backend.FetchStats(ctx, s.dataset)
	if err != nil {
		return nil, err
	}
	s.stats = st
	out := *st
	return &out, nil
}

// Close unmounts every chart and cancels outstanding backend requests.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ids := append([]charts.ID(nil), s.order...)
	s.mu.Unlock()

	for _, id := range ids {
		s.Unmount(id)
	}
	s.loader.Close()
	s.clearCache()
	s.logger.Debug("session closed")
}

// clearCache drops shared-backend entries; memory caches simply go away
// with the session.
func (s *Session) clearCache() {
	c := s.cache
	if inst, ok := c.(*cache.Instrumented); ok {
		c = inst.Unwrap()
	}
	r, ok := c.(*cache.Redis)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Clear(ctx); err != nil {
		s.logger.Warn("session cache clear failed", zap.Error(err))
	}
}
