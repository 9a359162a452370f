// Package bench measures full dashboard loads against a live backend: one
// chart at a time, everything at once, and a cold then warm pass through a
// session cache.
package bench

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"racedash/internal/backend"
	"racedash/internal/batch"
	"racedash/internal/cache"
	"racedash/internal/charts"
	"racedash/internal/coordinator"
)

// DefaultConcurrency matches the worker count of the parallel scenario.
const DefaultConcurrency = 8

// ChartTiming is one chart request as seen by the dashboard.
type ChartTiming struct {
	Chart    charts.ID
	Duration time.Duration
	Err      error
	Cached   bool
}

// Run is the outcome of one scenario.
type Run struct {
	Name      string
	Total     time.Duration
	StatsTime time.Duration
	StatsErr  error
	Charts    []ChartTiming
}

func (r *Run) Succeeded() []ChartTiming { return r.filter(true) }
func (r *Run) Failed() []ChartTiming    { return r.filter(false) }

func (r *Run) filter(ok bool) []ChartTiming {
	var out []ChartTiming
	for _, c := range r.Charts {
		if (c.Err == nil) == ok {
			out = append(out, c)
		}
	}
	return out
}

// Summary holds descriptive statistics over successful chart times, in
// seconds.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

func (r *Run) Summary() Summary {
	ok := r.Succeeded()
	if len(ok) == 0 {
		return Summary{}
	}
	sample := make([]float64, len(ok))
	for i, c := range ok {
		sample[i] = c.Duration.Seconds()
	}
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)

	s := Summary{
		N:    len(sample),
		Mean: stat.Mean(sample, nil),
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
	}
	if len(sample) > 1 {
		s.StdDev = stat.StdDev(sample, nil)
	}
	return s
}

// Efficiency is the summed successful chart time over wall time. Values
// above 1 mean requests overlapped.
func (r *Run) Efficiency() float64 {
	if r.Total <= 0 {
		return 0
	}
	var sum time.Duration
	for _, c := range r.Succeeded() {
		sum += c.Duration
	}
	return sum.Seconds() / r.Total.Seconds()
}

// Warming compares a cold pass with a warm pass over the same cache.
type Warming struct {
	Cold *Run
	Warm *Run
}

// Speedup is cold wall time over warm wall time.
func (w *Warming) Speedup() float64 {
	if w.Warm == nil || w.Warm.Total <= 0 {
		return 0
	}
	return w.Cold.Total.Seconds() / w.Warm.Total.Seconds()
}

type Option func(*Runner)

// WithCharts limits the scenarios to ids. The default is the full catalog.
func WithCharts(ids ...charts.ID) Option {
	return func(r *Runner) { r.charts = ids }
}

func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Runner executes the benchmark scenarios for one dataset.
type Runner struct {
	backend     backend.Backend
	dataset     string
	charts      []charts.ID
	concurrency int
	logger      *zap.Logger
}

func NewRunner(b backend.Backend, dataset string, opts ...Option) *Runner {
	r := &Runner{
		backend:     b,
		dataset:     dataset,
		charts:      charts.All(),
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("bench")
	return r
}

func (r *Runner) stats(ctx context.Context, run *Run) {
	start := time.Now()
	_, run.StatsErr = r.backend.FetchStats(ctx, r.dataset)
	run.StatsTime = time.Since(start)
}

// Sequential loads stats, then each chart one after another.
func (r *Runner) Sequential(ctx context.Context) *Run {
	run := &Run{Name: "sequential"}
	start := time.Now()
	r.stats(ctx, run)

	for _, id := range r.charts {
		t0 := time.Now()
		_, err := r.backend.FetchChart(ctx, id, r.dataset)
		run.Charts = append(run.Charts, ChartTiming{Chart: id, Duration: time.Since(t0), Err: err})
	}

	run.Total = time.Since(start)
	r.log(run)
	return run
}

// Parallel loads stats, then every chart through the batch orchestrator.
func (r *Runner) Parallel(ctx context.Context) *Run {
	run := &Run{Name: "parallel"}
	start := time.Now()
	r.stats(ctx, run)

	o := batch.New(r.backend, batch.WithConcurrency(r.concurrency), batch.WithLogger(r.logger))
	results := o.FetchAllDetailed(ctx, r.charts, r.dataset)
	for _, id := range r.charts {
		res, ok := results[id]
		if !ok {
			continue
		}
		run.Charts = append(run.Charts, ChartTiming{Chart: id, Duration: res.Duration, Err: res.Err})
	}

	run.Total = time.Since(start)
	r.log(run)
	return run
}

// CacheWarming runs two sequential passes through a fresh session cache.
// The second pass should be served entirely from the cache.
func (r *Runner) CacheWarming(ctx context.Context) *Warming {
	loader := coordinator.NewLoader(cache.NewMemory(), r.backend, r.logger)
	defer loader.Close()

	pass := func(name string) *Run {
		run := &Run{Name: name}
		start := time.Now()
		r.stats(ctx, run)

		for _, id := range r.charts {
			t0 := time.Now()
			if _, ok := loader.Cached(ctx, id, r.dataset); ok {
				run.Charts = append(run.Charts, ChartTiming{Chart: id, Duration: time.Since(t0), Cached: true})
				continue
			}
			_, err := loader.Load(ctx, id, r.dataset)
			run.Charts = append(run.Charts, ChartTiming{Chart: id, Duration: time.Since(t0), Err: err})
		}

		run.Total = time.Since(start)
		r.log(run)
		return run
	}

	return &Warming{Cold: pass("cold cache"), Warm: pass("warm cache")}
}

// RunAll executes every scenario in order.
func (r *Runner) RunAll(ctx context.Context) *Report {
	return &Report{
		GeneratedAt: time.Now(),
		Dataset:     len(r.dataset),
		Sequential:  r.Sequential(ctx),
		Parallel:    r.Parallel(ctx),
		Warming:     r.CacheWarming(ctx),
	}
}

func (r *Runner) log(run *Run) {
	s := run.Summary()
	r.logger.Info("scenario finished",
		zap.String("scenario", run.Name),
		zap.Duration("total", run.Total),
		zap.Duration("stats", run.StatsTime),
		zap.Int("loaded", s.N),
		zap.Int("failed", len(run.Failed())),
		zap.Float64("mean_s", s.Mean),
	)
}
