package visibility

import (
	"go.uber.org/zap"

	"racedash/internal/charts"
)

// Trigger decides, per chart, whether to load at mount or on first
// visibility.
type Trigger struct {
	observer *Observer
	priority charts.PrioritySet
	logger   *zap.Logger
}

// NewTrigger builds a trigger over observer. Charts in priority skip
// observation entirely.
func NewTrigger(observer *Observer, priority charts.PrioritySet, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		observer: observer,
		priority: priority,
		logger:   logger.Named("visibility"),
	}
}

// Mount arranges for fire to run exactly once for this chart instance.
// Priority charts fire synchronously and get an inert subscription; the
// returned subscription is always safe to Dispose.
func (t *Trigger) Mount(chart charts.ID, target Target, fire func()) *Subscription {
	if t.priority.Contains(chart) {
		t.logger.Debug("priority chart, firing at mount", zap.String("chart", string(chart)))
		fire()
		return &Subscription{}
	}

	t.logger.Debug("observing chart", zap.String("chart", string(chart)))
	return t.observer.Observe(target, func() {
		t.logger.Debug("chart became visible", zap.String("chart", string(chart)))
		fire()
	})
}

// Observer returns the underlying observer.
func (t *Trigger) Observer() *Observer { return t.observer }
