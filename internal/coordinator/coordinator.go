// Package coordinator drives the load lifecycle of a single mounted chart:
// NotTriggered, Loading, then Ready or Failed, with one manual retry path
// out of Failed.
package coordinator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/charts"
	"racedash/internal/metrics"
)

var (
	// ErrNotFailed is returned by Retry outside the Failed state.
	ErrNotFailed = errors.New("coordinator: retry is only allowed from failed")
	// ErrClosed is returned by Wait once the chart has been unmounted.
	ErrClosed = errors.New("coordinator: closed")
)

type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// Coordinator owns the state of one chart instance. All transitions happen
// under mu; subscriber callbacks run after it is released.
type Coordinator struct {
	chart   charts.ID
	dataset string
	loader  *Loader
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	closed  bool
	gen     uint64
	cancel  context.CancelFunc
	changed chan struct{}
	subs    map[uint64]func(State)
	nextSub uint64
}

func New(chart charts.ID, dataset string, loader *Loader, opts ...Option) *Coordinator {
	c := &Coordinator{
		chart:   chart,
		dataset: dataset,
		loader:  loader,
		logger:  zap.NewNop(),
		state:   State{Chart: chart, Status: NotTriggered},
		changed: make(chan struct{}),
		subs:    make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("chart", string(chart)))
	return c
}

// Chart returns the chart this coordinator loads.
func (c *Coordinator) Chart() charts.ID { return c.chart }

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Trigger starts loading unless a load is running or already succeeded. A
// fresh cache entry moves the chart to Ready before Trigger returns without
// touching the network. ctx carries request values only; its cancellation
// does not stop the load.
func (c *Coordinator) Trigger(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state.Status == Loading || c.state.Status == Ready {
		c.mu.Unlock()
		return
	}
	c.start(ctx)
}

// Retry re-runs the trigger logic from Failed. Any other state returns
// ErrNotFailed. After Close it does nothing.
func (c *Coordinator) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.state.Status != Failed {
		c.mu.Unlock()
		return ErrNotFailed
	}
	c.logger.Info("retrying chart load")
	c.start(ctx)
	return nil
}

// start must be called with c.mu held and releases it.
func (c *Coordinator) start(ctx context.Context) {
	if p, ok := c.loader.Cached(ctx, c.chart, c.dataset); ok {
		c.transition(State{Chart: c.chart, Status: Ready, Payload: p})
		return
	}

	c.gen++
	gen := c.gen
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.transition(State{Chart: c.chart, Status: Loading})

	// Started after the Loading notification so subscribers always see
	// Loading before the outcome.
	go c.run(loadCtx, gen)
}

func (c *Coordinator) run(ctx context.Context, gen uint64) {
	p, err := c.loader.Load(ctx, c.chart, c.dataset)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("dropping late chart result")
		return
	}
	c.cancel()
	c.cancel = nil

	if err != nil {
		c.transition(State{Chart: c.chart, Status: Failed, Message: backend.DisplayMessage(err)})
		return
	}
	c.transition(State{Chart: c.chart, Status: Ready, Payload: p})
}

// transition must be called with c.mu held and releases it before notifying
// subscribers.
func (c *Coordinator) transition(next State) {
	c.state = next
	close(c.changed)
	c.changed = make(chan struct{})

	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	metrics.ChartTransitionsTotal.WithLabelValues(next.Status.String()).Inc()
	c.logger.Debug("chart state changed", zap.Stringer("status", next.Status))

	for _, fn := range subs {
		fn(next)
	}
}

// Subscribe registers fn to be called after every transition. The returned
// function removes it.
func (c *Coordinator) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until the chart is not Loading and returns that state, or
// ErrClosed once Close has been called.
func (c *Coordinator) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		state, closed, changed := c.state, c.closed, c.changed
		c.mu.Unlock()

		if closed {
			return state, ErrClosed
		}
		if state.Status != Loading {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-changed:
		}
	}
}

// Close unmounts the chart. The pending wait is cancelled, a late result is
// discarded, and later Trigger and Retry calls are ignored. Safe to call more
// than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.subs = make(map[uint64]func(State))
	close(c.changed)
	c.changed = make(chan struct{})
}
