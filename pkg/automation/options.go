package automation

import (
	"time"

	"github.com/odvcencio/screenpilot/pkg/gesture"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

// Timing holds the engine's pacing and gesture parameters.
type Timing struct {
	// CommandDelay separates consecutive commands; none follows the last one.
	CommandDelay time.Duration
	// SettleDelay lets the UI react after focusing a field or filling the
	// clipboard.
	SettleDelay       time.Duration
	GestureTimeout    time.Duration
	TapDuration       time.Duration
	LongPressDuration time.Duration
	ScrollDuration    time.Duration
	// ScrollStart and ScrollEnd are the axis fractions used by simple scrolls.
	ScrollStart float64
	ScrollEnd   float64
}

// DefaultTiming returns the stock timings.
func DefaultTiming() Timing {
	return Timing{
		CommandDelay:      800 * time.Millisecond,
		SettleDelay:       300 * time.Millisecond,
		GestureTimeout:    gesture.DefaultTimeout,
		TapDuration:       gesture.DefaultTapDuration,
		LongPressDuration: gesture.DefaultLongPressDuration,
		ScrollDuration:    500 * time.Millisecond,
		ScrollStart:       0.3,
		ScrollEnd:         0.7,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.CommandDelay < 0 {
		t.CommandDelay = 0
	}
	if t.SettleDelay < 0 {
		t.SettleDelay = 0
	}
	if t.GestureTimeout <= 0 {
		t.GestureTimeout = d.GestureTimeout
	}
	if t.TapDuration <= 0 {
		t.TapDuration = d.TapDuration
	}
	if t.LongPressDuration <= 0 {
		t.LongPressDuration = d.LongPressDuration
	}
	if t.ScrollDuration <= 0 {
		t.ScrollDuration = d.ScrollDuration
	}
	if t.ScrollStart <= 0 || t.ScrollEnd >= 1 || t.ScrollStart >= t.ScrollEnd {
		t.ScrollStart, t.ScrollEnd = d.ScrollStart, d.ScrollEnd
	}
	return t
}

func (t Timing) gestureOptions() gesture.Options {
	return gesture.Options{
		TapDuration:       t.TapDuration,
		LongPressDuration: t.LongPressDuration,
		Timeout:           t.GestureTimeout,
	}
}

// ModelIDs names the models selected by the reasoning markers.
type ModelIDs struct {
	High string
	Low  string
}

// Options wires the engine's collaborators. Surface is required.
type Options struct {
	Surface Surface
	Models  ModelSelector
	Sink    StatusSink
	Logger  *logging.Logger
	Hub     *telemetry.Hub

	Timing   Timing
	ModelIDs ModelIDs
	// RefreshInterval throttles root fetches; zero means
	// viewtree.DefaultRefreshInterval and negative disables throttling.
	RefreshInterval time.Duration
	Sleeper         Sleeper
}

func (o Options) refreshInterval() time.Duration {
	switch {
	case o.RefreshInterval == 0:
		return viewtree.DefaultRefreshInterval
	case o.RefreshInterval < 0:
		return 0
	}
	return o.RefreshInterval
}
