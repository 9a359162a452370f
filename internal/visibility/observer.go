// Package visibility detects when chart containers scroll into view and
// emits a one-shot load signal per container.
package visibility

import (
	"sync"
)

const (
	// DefaultThreshold is the visible fraction of a target that counts as
	// "in view".
	DefaultThreshold = 0.10
	// DefaultMargin grows the viewport on both edges so loading starts
	// slightly before a chart is on screen.
	DefaultMargin = 50.0
)

// Rect is a vertical extent in page pixels. Containers span the full page
// width, so only the vertical axis matters.
type Rect struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Bounds lets a fixed Rect act as its own Target.
func (r Rect) Bounds() Rect { return r }

// Expand grows r by margin on both edges.
func (r Rect) Expand(margin float64) Rect {
	return Rect{Top: r.Top - margin, Height: r.Height + 2*margin}
}

// Target is anything with a current position on the page.
type Target interface {
	Bounds() Rect
}

// intersectionRatio is the fraction of target covered by root. A zero-height
// target counts as fully visible when it lies inside root.
func intersectionRatio(target, root Rect) float64 {
	if target.Height <= 0 {
		if target.Top >= root.Top && target.Top <= root.Bottom() {
			return 1
		}
		return 0
	}
	top := max(target.Top, root.Top)
	bottom := min(target.Bottom(), root.Bottom())
	if bottom <= top {
		return 0
	}
	return (bottom - top) / target.Height
}

type Options struct {
	Threshold float64 // default: 0.10
	Margin    float64 // default: 50px; negative values shrink the viewport
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = DefaultThreshold
	}
	if o.Margin == 0 {
		o.Margin = DefaultMargin
	}
	return o
}

// Observer tracks targets against the most recent viewport. Callbacks run on
// the goroutine that called Update or Observe, outside the observer's lock.
type Observer struct {
	opts Options

	mu          sync.Mutex
	viewport    Rect
	hasViewport bool
	subs        map[*Subscription]struct{}
}

// NewObserver creates an observer with no viewport yet.
func NewObserver(opts Options) *Observer {
	return &Observer{
		opts: opts.withDefaults(),
		subs: make(map[*Subscription]struct{}),
	}
}

// Options returns the effective tuning values.
func (o *Observer) Options() Options { return o.opts }

// Observe starts watching target. When a viewport is already known the target
// is checked against it immediately, so fire may run before Observe returns.
func (o *Observer) Observe(target Target, fire func()) *Subscription {
	s := &Subscription{observer: o, target: target, fire: fire}

	o.mu.Lock()
	o.subs[s] = struct{}{}
	visible := o.hasViewport && o.visible(target)
	o.mu.Unlock()

	if visible {
		s.deliver()
	}
	return s
}

// Update records a new viewport (scroll or resize) and fires every target
// that crossed the threshold.
func (o *Observer) Update(viewport Rect) {
	o.mu.Lock()
	o.viewport = viewport
	o.hasViewport = true
	var crossed []*Subscription
	for s := range o.subs {
		if o.visible(s.target) {
			crossed = append(crossed, s)
		}
	}
	o.mu.Unlock()

	for _, s := range crossed {
		s.deliver()
	}
}

// Viewport returns the last viewport passed to Update.
func (o *Observer) Viewport() (Rect, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewport, o.hasViewport
}

// Len returns the number of live observations.
func (o *Observer) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// visible must be called with o.mu held.
func (o *Observer) visible(target Target) bool {
	root := o.viewport.Expand(o.opts.Margin)
	return intersectionRatio(target.Bounds(), root) >= o.opts.Threshold
}

func (o *Observer) remove(s *Subscription) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.subs[s]; !ok {
		return false
	}
	delete(o.subs, s)
	return true
}

// Subscription is one live observation. Dispose must be called when the
// owning chart goes away, whether or not it ever fired.
type Subscription struct {
	observer *Observer
	target   Target
	fire     func()
}

// Dispose stops the observation. It is idempotent and reports true only for
// the call that actually removed it.
func (s *Subscription) Dispose() bool {
	if s == nil || s.observer == nil {
		return false
	}
	return s.observer.remove(s)
}

// Active reports whether the observation is still waiting to fire.
func (s *Subscription) Active() bool {
	if s == nil || s.observer == nil {
		return false
	}
	s.observer.mu.Lock()
	defer s.observer.mu.Unlock()
	_, ok := s.observer.subs[s]
	return ok
}

// deliver disposes first and fires only if this call won the disposal, which
// is what makes the signal one-shot under concurrent updates.
func (s *Subscription) deliver() {
	if s.Dispose() && s.fire != nil {
		s.fire()
	}
}
