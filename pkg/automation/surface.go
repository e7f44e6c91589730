// Package automation executes command batches against a live automation
// surface, resolving labels through the view tree and falling back to
// coordinate gestures.
package automation

import (
	"context"
	"time"

	"github.com/odvcencio/screenpilot/pkg/gesture"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

//go:generate mockgen -destination=mock_surface_test.go -package=automation . Surface

// GlobalAction is a system-wide action that needs no target node.
type GlobalAction int

const (
	GlobalHome GlobalAction = iota + 1
	GlobalBack
	GlobalRecents
	GlobalScreenshot
	GlobalEnter
)

func (a GlobalAction) String() string {
	switch a {
	case GlobalHome:
		return "home"
	case GlobalBack:
		return "back"
	case GlobalRecents:
		return "recents"
	case GlobalScreenshot:
		return "screenshot"
	case GlobalEnter:
		return "enter"
	}
	return "unknown"
}

// Surface is the host automation service. Implementations may be called
// from the engine goroutine only; DispatchGesture callbacks may arrive on
// any goroutine.
type Surface interface {
	// IsAvailable reports whether the host service is connected.
	IsAvailable() bool
	// Root returns the active window root, or nil when there is none.
	Root() viewtree.Node
	PerformAction(node viewtree.Node, action viewtree.Action, args viewtree.ActionArgs) bool
	DispatchGesture(g gesture.Gesture, done func(gesture.Outcome)) bool
	PerformGlobalAction(action GlobalAction) bool
	DisplaySize() gesture.Size
	SetClipboard(text string) bool
	LaunchApp(identifier string) bool
}

// ModelSelector switches the reasoning model used for subsequent turns.
// Calls are fire-and-forget.
type ModelSelector interface {
	SwitchTo(modelID string)
}

// Phase is the lifecycle stage carried by a status message.
type Phase string

const (
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseAborted   Phase = "aborted"
	PhaseCompleted Phase = "completed"
)

// StatusSink receives human-readable progress: one message per command and
// one per batch.
type StatusSink interface {
	Report(description string, phase Phase)
}

type nopSink struct{}

func (nopSink) Report(string, Phase) {}

// Sleeper paces the engine between commands.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealSleeper waits on a timer and returns early with ctx.Err().
var RealSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
})

type batchIDKey struct{}

// WithBatchID tags ctx with the batch being executed.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// BatchID returns the batch id stored by WithBatchID.
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey{}).(string)
	return id
}
