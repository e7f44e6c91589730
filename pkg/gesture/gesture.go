// Package gesture dispatches pointer gestures to the host and tracks their
// asynchronous completion.
package gesture

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/observability"
)

// Defaults used when Options leaves a duration unset.
const (
	DefaultTapDuration       = 100 * time.Millisecond
	DefaultLongPressDuration = 1000 * time.Millisecond
	DefaultTimeout           = 5 * time.Second
)

var (
	// ErrNotDispatched is returned synchronously when the host rejects a gesture.
	ErrNotDispatched = apperrors.New(apperrors.ErrCodeGestureNotDispatched, "gesture was not accepted by the host")
	// ErrCancelled is returned by Wait when the host cancelled the gesture.
	ErrCancelled = apperrors.New(apperrors.ErrCodeGestureCancelled, "gesture was cancelled")
	// ErrTimeout is returned by Wait when no outcome arrived in time.
	ErrTimeout = apperrors.New(apperrors.ErrCodeGestureTimeout, "gesture did not complete in time")
)

// Point is a screen position in pixels.
type Point struct {
	X, Y int
}

// Size is the display extent in pixels.
type Size struct {
	Width, Height int
}

// Gesture is a single-stroke pointer path.
type Gesture struct {
	Path     []Point
	Duration time.Duration
}

// Tap is a zero-length stroke at p.
func Tap(p Point, d time.Duration) Gesture {
	return Gesture{Path: []Point{p}, Duration: d}
}

// Swipe is a straight stroke from one point to another.
func Swipe(from, to Point, d time.Duration) Gesture {
	return Gesture{Path: []Point{from, to}, Duration: d}
}

// Start returns the first point of the path.
func (g Gesture) Start() Point {
	if len(g.Path) == 0 {
		return Point{}
	}
	return g.Path[0]
}

// End returns the last point of the path.
func (g Gesture) End() Point {
	if len(g.Path) == 0 {
		return Point{}
	}
	return g.Path[len(g.Path)-1]
}

// Outcome is the terminal result reported by the host.
type Outcome int

const (
	Completed Outcome = iota + 1
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Host submits gestures. DispatchGesture returns false when the gesture was
// not accepted; otherwise done is invoked later, possibly on another
// goroutine, with the outcome.
type Host interface {
	DispatchGesture(g Gesture, done func(Outcome)) bool
}

// Options tunes gesture timings.
type Options struct {
	TapDuration       time.Duration
	LongPressDuration time.Duration
	// Timeout bounds Pending.Wait beyond the gesture's own duration.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TapDuration <= 0 {
		o.TapDuration = DefaultTapDuration
	}
	if o.LongPressDuration <= 0 {
		o.LongPressDuration = DefaultLongPressDuration
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Dispatcher clamps gestures to the display and submits them to the host.
type Dispatcher struct {
	host   Host
	size   func() Size
	opts   Options
	logger *logging.Logger
}

// NewDispatcher creates a dispatcher. size is consulted on every gesture so
// rotation changes are picked up.
func NewDispatcher(host Host, size func() Size, opts Options, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{host: host, size: size, opts: opts.withDefaults(), logger: logger}
}

// Tap taps (x, y).
func (d *Dispatcher) Tap(x, y int) (*Pending, error) {
	return d.dispatch("tap", Tap(Point{x, y}, d.opts.TapDuration))
}

// LongPress holds (x, y) for the long-press duration.
func (d *Dispatcher) LongPress(x, y int) (*Pending, error) {
	return d.dispatch("long_press", Tap(Point{x, y}, d.opts.LongPressDuration))
}

// Swipe strokes from one point to another over dur.
func (d *Dispatcher) Swipe(from, to Point, dur time.Duration) (*Pending, error) {
	if dur <= 0 {
		dur = d.opts.TapDuration
	}
	return d.dispatch("swipe", Swipe(from, to, dur))
}

func (d *Dispatcher) dispatch(kind string, g Gesture) (*Pending, error) {
	size := d.size()
	for i, p := range g.Path {
		g.Path[i] = clamp(p, size)
	}

	p := &Pending{
		kind:    kind,
		gesture: g,
		timeout: g.Duration + d.opts.Timeout,
		done:    make(chan struct{}),
	}
	if !d.host.DispatchGesture(g, p.resolve) {
		observability.Gestures.WithLabelValues(kind, "not_dispatched").Inc()
		d.logger.Warn(logging.CategoryGesture, "not_dispatched", "host rejected gesture", map[string]any{
			"kind":  kind,
			"start": g.Start(),
			"end":   g.End(),
		})
		return nil, ErrNotDispatched
	}
	d.logger.Debug(logging.CategoryGesture, "dispatched", "gesture submitted", map[string]any{
		"kind":        kind,
		"start":       g.Start(),
		"end":         g.End(),
		"duration_ms": g.Duration.Milliseconds(),
	})
	return p, nil
}

func clamp(p Point, s Size) Point {
	return Point{X: clampAxis(p.X, s.Width), Y: clampAxis(p.Y, s.Height)}
}

func clampAxis(v, extent int) int {
	if extent <= 0 {
		return max(v, 0)
	}
	return min(max(v, 0), extent-1)
}

// Pending tracks one dispatched gesture. Exactly one outcome is recorded;
// later host callbacks are ignored.
type Pending struct {
	kind    string
	gesture Gesture
	timeout time.Duration

	once    sync.Once
	outcome Outcome
	done    chan struct{}
}

// Gesture returns the clamped gesture that was submitted.
func (p *Pending) Gesture() Gesture { return p.gesture }

func (p *Pending) resolve(o Outcome) {
	p.once.Do(func() {
		p.outcome = o
		close(p.done)
	})
}

// Wait blocks until the host reports an outcome, the gesture times out or
// ctx ends. It returns nil only for Completed.
func (p *Pending) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		observability.Gestures.WithLabelValues(p.kind, "timeout").Inc()
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	observability.Gestures.WithLabelValues(p.kind, p.outcome.String()).Inc()
	if p.outcome != Completed {
		return ErrCancelled
	}
	return nil
}
