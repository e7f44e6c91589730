package automation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/odvcencio/screenpilot/pkg/command"
	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/gesture"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/observability"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

const strategyCenterTap = "center_tap"

func (e *Engine) root() (viewtree.Node, *Status) {
	root, err := e.resolver.Refresh()
	if err != nil {
		e.hub.Publish(telemetry.Event{Type: telemetry.EventTreeRefreshFailed, Data: map[string]any{"error": err.Error()}})
		st := failed("No active window to inspect", err)
		return nil, &st
	}
	return root, nil
}

// clickLabel walks the label strategies, acting on the first node (or its
// nearest actionable ancestor) that accepts the action. When every direct
// action fails it taps the center of the first node found.
func (e *Engine) clickLabel(ctx context.Context, label string, long bool) Status {
	verb, action := "Clicked", viewtree.ActionClick
	if long {
		verb, action = "Long-clicked", viewtree.ActionLongClick
	}

	root, st := e.root()
	if st != nil {
		return *st
	}

	var found viewtree.Node
	for _, s := range viewtree.LabelStrategies() {
		n, ok := viewtree.Guarded(func() viewtree.Node { return s.Find(root, label) })
		if !ok || n == nil {
			observability.StrategyLookups.WithLabelValues(s.Name, "not_found").Inc()
			continue
		}
		if found == nil {
			found = n
		}
		if target := actionable(n, action); target != nil {
			if e.perform(target, action, viewtree.ActionArgs{}) {
				observability.StrategyLookups.WithLabelValues(s.Name, "acted").Inc()
				return succeeded(fmt.Sprintf("%s %q", verb, label), s.Name)
			}
		}
		observability.StrategyLookups.WithLabelValues(s.Name, "action_failed").Inc()
		e.logger.Debug(logging.CategoryResolver, "strategy_action_failed", "node found but action was not accepted", map[string]any{
			"strategy": s.Name,
			"label":    label,
		})
	}

	if found == nil {
		return failed(fmt.Sprintf("Could not find %q on screen", label),
			apperrors.Newf(apperrors.ErrCodeNodeNotFound, "no node matches %q", label).
				WithContext("strategies", len(viewtree.LabelStrategies())))
	}

	bounds, ok := viewtree.Guarded(found.Bounds)
	if !ok || bounds.Empty() {
		return failed(fmt.Sprintf("%q vanished before it could be tapped", label),
			apperrors.Newf(apperrors.ErrCodeNodeNotFound, "node for %q has no bounds", label))
	}
	x, y := bounds.Center()

	d := e.dispatcher()
	var (
		p   *gesture.Pending
		err error
	)
	if long {
		p, err = d.LongPress(x, y)
	} else {
		p, err = d.Tap(x, y)
	}
	if err == nil {
		err = p.Wait(ctx)
	}
	if err != nil {
		return failed(fmt.Sprintf("Could not tap %q at (%d, %d)", label, x, y), err)
	}
	return succeeded(fmt.Sprintf("%s %q at (%d, %d)", verb, label, x, y), strategyCenterTap)
}

// actionable returns n or its nearest ancestor exposing action.
func actionable(n viewtree.Node, action viewtree.Action) viewtree.Node {
	return viewtree.FindAncestor(n, func(cur viewtree.Node) bool {
		if viewtree.HasAction(cur, action) {
			return true
		}
		return action == viewtree.ActionClick && cur.Flags().Has(viewtree.FlagClickable)
	})
}

func (e *Engine) perform(n viewtree.Node, action viewtree.Action, args viewtree.ActionArgs) bool {
	ok, _ := viewtree.Guarded(func() bool { return e.surface.PerformAction(n, action, args) })
	return ok
}

func (e *Engine) tapCoordinates(ctx context.Context, c command.TapCoordinates) Status {
	size := e.surface.DisplaySize()
	x, y := c.X.Resolve(size.Width), c.Y.Resolve(size.Height)

	p, err := e.dispatcher().Tap(x, y)
	if err == nil {
		err = p.Wait(ctx)
	}
	if err != nil {
		return failed(fmt.Sprintf("Tap at (%d, %d) failed", x, y), err)
	}
	return succeeded(fmt.Sprintf("Tapped (%d, %d)", x, y), "gesture")
}

// scrollTarget returns the swipe end for a scroll starting at (x, y). The
// finger moves against the scroll direction.
func scrollTarget(dir command.Direction, x, y, dist int) (int, int) {
	switch dir {
	case command.DirectionDown:
		return x, y - dist
	case command.DirectionUp:
		return x, y + dist
	case command.DirectionRight:
		return x - dist, y
	default:
		return x + dist, y
	}
}

func (e *Engine) scrollFrom(ctx context.Context, c command.ScrollFromCoordinates) Status {
	size := e.surface.DisplaySize()
	x, y := c.X.Resolve(size.Width), c.Y.Resolve(size.Height)
	extent := size.Width
	if c.Direction.Vertical() {
		extent = size.Height
	}
	ex, ey := scrollTarget(c.Direction, x, y, c.Distance.Resolve(extent))
	return e.swipe(ctx, c.Direction, gesture.Point{X: x, Y: y}, gesture.Point{X: ex, Y: ey}, c.Duration)
}

func (e *Engine) simpleScroll(ctx context.Context, dir command.Direction) Status {
	t := e.Timing()
	size := e.surface.DisplaySize()
	at := func(extent int, frac float64) int { return int(math.Round(float64(extent) * frac)) }

	var from, to gesture.Point
	switch dir {
	case command.DirectionDown:
		from = gesture.Point{X: size.Width / 2, Y: at(size.Height, t.ScrollEnd)}
		to = gesture.Point{X: size.Width / 2, Y: at(size.Height, t.ScrollStart)}
	case command.DirectionUp:
		from = gesture.Point{X: size.Width / 2, Y: at(size.Height, t.ScrollStart)}
		to = gesture.Point{X: size.Width / 2, Y: at(size.Height, t.ScrollEnd)}
	case command.DirectionRight:
		from = gesture.Point{X: at(size.Width, t.ScrollEnd), Y: size.Height / 2}
		to = gesture.Point{X: at(size.Width, t.ScrollStart), Y: size.Height / 2}
	default:
		from = gesture.Point{X: at(size.Width, t.ScrollStart), Y: size.Height / 2}
		to = gesture.Point{X: at(size.Width, t.ScrollEnd), Y: size.Height / 2}
	}
	return e.swipe(ctx, dir, from, to, t.ScrollDuration)
}

func (e *Engine) swipe(ctx context.Context, dir command.Direction, from, to gesture.Point, d time.Duration) Status {
	p, err := e.dispatcher().Swipe(from, to, d)
	if err == nil {
		err = p.Wait(ctx)
	}
	if err != nil {
		return failed(fmt.Sprintf("Scroll %s failed", dir), err)
	}
	return succeeded(fmt.Sprintf("Scrolled %s", dir), "gesture")
}

// writeText fills the focused editable field, or focuses the first one.
// It tries setting the text directly before pasting through the clipboard.
func (e *Engine) writeText(ctx context.Context, text string) Status {
	root, st := e.root()
	if st != nil {
		return *st
	}
	settle := e.Timing().SettleDelay

	field := viewtree.FindFocusedEditable(root)
	if field == nil {
		field = viewtree.FindFirstEditable(root)
		if field == nil {
			return failed("No text field to type into",
				apperrors.New(apperrors.ErrCodeNodeNotFound, "no editable node"))
		}
		e.perform(field, viewtree.ActionFocus, viewtree.ActionArgs{})
		if err := e.sleeper.Sleep(ctx, settle); err != nil {
			return failed("Typing interrupted", err)
		}
	}

	if e.perform(field, viewtree.ActionSetText, viewtree.ActionArgs{Text: text}) {
		return succeeded(fmt.Sprintf("Typed %q", text), "set_text")
	}

	copied, _ := viewtree.Guarded(func() bool { return e.surface.SetClipboard(text) })
	if copied {
		if err := e.sleeper.Sleep(ctx, settle); err != nil {
			return failed("Typing interrupted", err)
		}
		if e.perform(field, viewtree.ActionPaste, viewtree.ActionArgs{}) {
			return succeeded(fmt.Sprintf("Pasted %q", text), "paste")
		}
	}
	return failed(fmt.Sprintf("Could not type %q", text),
		apperrors.New(apperrors.ErrCodeActionFailed, "set text and paste were both rejected"))
}

func (e *Engine) openApp(id string) Status {
	ok, _ := viewtree.Guarded(func() bool { return e.surface.LaunchApp(id) })
	if !ok {
		return failed(fmt.Sprintf("Could not open %s", id),
			apperrors.New(apperrors.ErrCodeActionFailed, "launch rejected").WithContext("app", id))
	}
	return succeeded(fmt.Sprintf("Opened %s", id), "launch")
}

func (e *Engine) global(a GlobalAction, desc string) Status {
	ok, _ := viewtree.Guarded(func() bool { return e.surface.PerformGlobalAction(a) })
	if !ok {
		return failed(fmt.Sprintf("Global action %s was rejected", a),
			apperrors.New(apperrors.ErrCodeActionFailed, "global action rejected").WithContext("action", a.String()))
	}
	return succeeded(desc, "global")
}

func (e *Engine) switchModel(id, tier string) Status {
	if e.models != nil && id != "" {
		e.models.SwitchTo(id)
	}
	return succeeded(fmt.Sprintf("Switched to %s reasoning model", tier), "model")
}
