// Package simulator implements an automation surface over an in-memory view
// tree. It backs the replay and serve commands when no device is attached
// and records everything the engine asks of it.
package simulator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/odvcencio/screenpilot/pkg/automation"
	"github.com/odvcencio/screenpilot/pkg/gesture"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

// EventKind classifies a recorded interaction.
type EventKind string

const (
	EventAction    EventKind = "action"
	EventGesture   EventKind = "gesture"
	EventGlobal    EventKind = "global"
	EventClipboard EventKind = "clipboard"
	EventLaunch    EventKind = "launch"
)

// Event is one recorded interaction.
type Event struct {
	Kind     EventKind        `json:"kind"`
	Name     string           `json:"name"`
	Accepted bool             `json:"accepted"`
	NodeID   string           `json:"nodeId,omitempty"`
	NodeText string           `json:"nodeText,omitempty"`
	Text     string           `json:"text,omitempty"`
	Gesture  *gesture.Gesture `json:"gesture,omitempty"`
	At       time.Time        `json:"at"`
}

// Options configures a Device.
type Options struct {
	Root *viewtree.Element
	Size gesture.Size
	// Apps lists launchable identifiers. Empty accepts any identifier.
	Apps []string
	// GestureLatency delays gesture callbacks.
	GestureLatency time.Duration
	// GestureOutcome decides each gesture's outcome. Nil completes all.
	GestureOutcome func(gesture.Gesture) gesture.Outcome
	Logger         *logging.Logger
}

// Device is a simulated automation surface. It is safe for concurrent use.
type Device struct {
	mu         sync.Mutex
	root       *viewtree.Element
	size       gesture.Size
	apps       map[string]bool
	clipboard  string
	foreground string
	events     []Event
	rejecting  bool

	available atomic.Bool
	latency   time.Duration
	outcome   func(gesture.Gesture) gesture.Outcome
	logger    *logging.Logger
	wg        sync.WaitGroup
}

var _ automation.Surface = (*Device)(nil)

// New creates an available device.
func New(opts Options) *Device {
	d := &Device{
		root:    opts.Root,
		size:    opts.Size,
		latency: opts.GestureLatency,
		outcome: opts.GestureOutcome,
		logger:  opts.Logger,
	}
	if len(opts.Apps) > 0 {
		d.apps = make(map[string]bool, len(opts.Apps))
		for _, a := range opts.Apps {
			d.apps[a] = true
		}
	}
	if d.size == (gesture.Size{}) && opts.Root != nil {
		b := opts.Root.Bounds()
		d.size = gesture.Size{Width: b.Right, Height: b.Bottom}
	}
	d.available.Store(true)
	return d
}

// SetAvailable connects or disconnects the simulated service.
func (d *Device) SetAvailable(on bool) { d.available.Store(on) }

// SetRoot swaps the active window.
func (d *Device) SetRoot(root *viewtree.Element) {
	d.mu.Lock()
	d.root = root
	d.mu.Unlock()
}

// RejectGestures makes DispatchGesture refuse new gestures.
func (d *Device) RejectGestures(on bool) {
	d.mu.Lock()
	d.rejecting = on
	d.mu.Unlock()
}

func (d *Device) IsAvailable() bool { return d.available.Load() }

func (d *Device) Root() viewtree.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root == nil {
		return nil
	}
	return d.root
}

func (d *Device) DisplaySize() gesture.Size {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// PerformAction applies action to node when the node belongs to the active
// window and exposes the action.
func (d *Device) PerformAction(node viewtree.Node, action viewtree.Action, args viewtree.ActionArgs) bool {
	el, ok := node.(*viewtree.Element)

	d.mu.Lock()
	defer d.mu.Unlock()

	ev := Event{Kind: EventAction, Name: action.String(), Text: args.Text, At: time.Now()}
	if ok {
		ev.NodeID, ev.NodeText = el.ID(), el.Text()
	}
	accepted := ok && d.contains(el) && viewtree.HasAction(el, action) && el.Flags().Has(viewtree.FlagEnabled)
	if accepted {
		accepted = d.apply(el, action, args)
	}
	ev.Accepted = accepted
	d.record(ev)
	return accepted
}

func (d *Device) apply(el *viewtree.Element, action viewtree.Action, args viewtree.ActionArgs) bool {
	switch action {
	case viewtree.ActionClick:
		if el.Flags().Has(viewtree.FlagCheckable) {
			el.SetFlag(viewtree.FlagChecked, !el.Flags().Has(viewtree.FlagChecked))
		}
	case viewtree.ActionFocus:
		d.root.Walk(func(e *viewtree.Element) bool {
			e.SetFlag(viewtree.FlagFocused, false)
			return true
		})
		el.SetFlag(viewtree.FlagFocused, true)
	case viewtree.ActionSetText:
		if !el.Flags().Has(viewtree.FlagEditable) {
			return false
		}
		el.SetText(args.Text)
	case viewtree.ActionPaste:
		if !el.Flags().Has(viewtree.FlagEditable) || d.clipboard == "" {
			return false
		}
		el.SetText(el.Text() + d.clipboard)
	}
	return true
}

func (d *Device) contains(el *viewtree.Element) bool {
	if d.root == nil {
		return false
	}
	found := false
	d.root.Walk(func(e *viewtree.Element) bool {
		found = e == el
		return !found
	})
	return found
}

// DispatchGesture records g and reports its outcome asynchronously. A tap
// also records which clickable element sits under the finger.
func (d *Device) DispatchGesture(g gesture.Gesture, done func(gesture.Outcome)) bool {
	d.mu.Lock()
	ev := Event{Kind: EventGesture, Name: gestureName(g), Gesture: &g, At: time.Now(), Accepted: !d.rejecting}
	if len(g.Path) == 1 {
		if hit := d.hit(g.Start()); hit != nil {
			ev.NodeID, ev.NodeText = hit.ID(), hit.Text()
		}
	}
	d.record(ev)
	rejecting := d.rejecting
	d.mu.Unlock()

	if rejecting {
		return false
	}

	outcome := gesture.Completed
	if d.outcome != nil {
		outcome = d.outcome(g)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.latency > 0 {
			time.Sleep(d.latency)
		}
		done(outcome)
	}()
	return true
}

func gestureName(g gesture.Gesture) string {
	if len(g.Path) > 1 {
		return "swipe"
	}
	return "tap"
}

// hit returns the deepest clickable element containing p.
func (d *Device) hit(p gesture.Point) *viewtree.Element {
	if d.root == nil {
		return nil
	}
	var best *viewtree.Element
	d.root.Walk(func(e *viewtree.Element) bool {
		if e.Bounds().Contains(p.X, p.Y) && e.Flags().Has(viewtree.FlagClickable) {
			best = e
		}
		return true
	})
	return best
}

func (d *Device) PerformGlobalAction(action automation.GlobalAction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if action == automation.GlobalHome {
		d.foreground = ""
	}
	d.record(Event{Kind: EventGlobal, Name: action.String(), Accepted: true, At: time.Now()})
	return true
}

func (d *Device) SetClipboard(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboard = text
	d.record(Event{Kind: EventClipboard, Name: "set", Text: text, Accepted: true, At: time.Now()})
	return true
}

func (d *Device) LaunchApp(identifier string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ok := d.apps == nil || d.apps[identifier]
	if ok {
		d.foreground = identifier
	}
	d.record(Event{Kind: EventLaunch, Name: identifier, Accepted: ok, At: time.Now()})
	return ok
}

func (d *Device) record(ev Event) {
	d.events = append(d.events, ev)
	d.logger.Debug(logging.CategoryPilot, "simulator_"+string(ev.Kind), ev.Name, map[string]any{
		"accepted": ev.Accepted,
		"node":     ev.NodeID,
	})
}

// Events returns the recorded interactions in order.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// Clipboard returns the clipboard contents.
func (d *Device) Clipboard() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard
}

// Foreground returns the last launched app, or "" after home.
func (d *Device) Foreground() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground
}

// Wait blocks until every outstanding gesture callback has run.
func (d *Device) Wait() { d.wg.Wait() }
