// Package command defines the closed set of UI commands that the directive
// parser produces and the automation engine executes.
//
// Commands are plain immutable values. They never hold references into the
// view tree; resolution against the live UI happens only at execution time.
package command

import (
	"fmt"
	"strconv"
	"time"
)

// Kind names a command variant.
type Kind string

const (
	KindClickButton           Kind = "click_button"
	KindLongClickButton       Kind = "long_click_button"
	KindTapCoordinates        Kind = "tap_coordinates"
	KindTakeScreenshot        Kind = "take_screenshot"
	KindPressHome             Kind = "press_home"
	KindPressBack             Kind = "press_back"
	KindShowRecentApps        Kind = "show_recent_apps"
	KindScrollUp              Kind = "scroll_up"
	KindScrollDown            Kind = "scroll_down"
	KindScrollLeft            Kind = "scroll_left"
	KindScrollRight           Kind = "scroll_right"
	KindScrollFromCoordinates Kind = "scroll_from_coordinates"
	KindPressEnterKey         Kind = "press_enter_key"
	KindOpenApp               Kind = "open_app"
	KindWriteText             Kind = "write_text"
	KindUseHighReasoningModel Kind = "use_high_reasoning_model"
	KindUseLowReasoningModel  Kind = "use_low_reasoning_model"
)

// Command is implemented only by the variants in this package.
type Command interface {
	Kind() Kind
	// String renders the command in directive syntax.
	String() string
	isCommand()
}

// Direction is a scroll direction.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Vertical reports whether the direction scrolls along the y axis.
func (d Direction) Vertical() bool {
	return d == DirectionUp || d == DirectionDown
}

func (d Direction) directive() string {
	switch d {
	case DirectionUp:
		return "scrollUp"
	case DirectionDown:
		return "scrollDown"
	case DirectionLeft:
		return "scrollLeft"
	case DirectionRight:
		return "scrollRight"
	}
	return "scroll"
}

// ClickButton clicks the element best matching Label.
type ClickButton struct{ Label string }

// LongClickButton long-clicks the element best matching Label.
type LongClickButton struct{ Label string }

// TapCoordinates taps a point given in absolute or percent coordinates.
type TapCoordinates struct{ X, Y Coordinate }

// ScrollFromCoordinates swipes from (X, Y) by Distance in Direction.
type ScrollFromCoordinates struct {
	Direction Direction
	X, Y      Coordinate
	Distance  Coordinate
	Duration  time.Duration
}

// OpenApp launches the app with the given identifier or display name.
type OpenApp struct{ Identifier string }

// WriteText types Text into the focused (or first) editable field.
type WriteText struct{ Text string }

type (
	TakeScreenshot        struct{}
	PressHome             struct{}
	PressBack             struct{}
	ShowRecentApps        struct{}
	ScrollUp              struct{}
	ScrollDown            struct{}
	ScrollLeft            struct{}
	ScrollRight           struct{}
	PressEnterKey         struct{}
	UseHighReasoningModel struct{}
	UseLowReasoningModel  struct{}
)

func (ClickButton) Kind() Kind           { return KindClickButton }
func (LongClickButton) Kind() Kind       { return KindLongClickButton }
func (TapCoordinates) Kind() Kind        { return KindTapCoordinates }
func (ScrollFromCoordinates) Kind() Kind { return KindScrollFromCoordinates }
func (OpenApp) Kind() Kind               { return KindOpenApp }
func (WriteText) Kind() Kind             { return KindWriteText }
func (TakeScreenshot) Kind() Kind        { return KindTakeScreenshot }
func (PressHome) Kind() Kind             { return KindPressHome }
func (PressBack) Kind() Kind             { return KindPressBack }
func (ShowRecentApps) Kind() Kind        { return KindShowRecentApps }
func (ScrollUp) Kind() Kind              { return KindScrollUp }
func (ScrollDown) Kind() Kind            { return KindScrollDown }
func (ScrollLeft) Kind() Kind            { return KindScrollLeft }
func (ScrollRight) Kind() Kind           { return KindScrollRight }
func (PressEnterKey) Kind() Kind         { return KindPressEnterKey }
func (UseHighReasoningModel) Kind() Kind { return KindUseHighReasoningModel }
func (UseLowReasoningModel) Kind() Kind  { return KindUseLowReasoningModel }

func (c ClickButton) String() string     { return "click(" + strconv.Quote(c.Label) + ")" }
func (c LongClickButton) String() string { return "longClick(" + strconv.Quote(c.Label) + ")" }
func (c TapCoordinates) String() string {
	return fmt.Sprintf("tapAtCoordinates(%s, %s)", c.X, c.Y)
}
func (c ScrollFromCoordinates) String() string {
	return fmt.Sprintf("%s(%s, %s, %s, %d)", c.Direction.directive(), c.X, c.Y, c.Distance, c.Duration.Milliseconds())
}
func (c OpenApp) String() string             { return "openApp(" + strconv.Quote(c.Identifier) + ")" }
func (c WriteText) String() string           { return "writeText(" + strconv.Quote(c.Text) + ")" }
func (TakeScreenshot) String() string        { return "takeScreenshot()" }
func (PressHome) String() string             { return "home()" }
func (PressBack) String() string             { return "back()" }
func (ShowRecentApps) String() string        { return "recentApps()" }
func (ScrollUp) String() string              { return "scrollUp()" }
func (ScrollDown) String() string            { return "scrollDown()" }
func (ScrollLeft) String() string            { return "scrollLeft()" }
func (ScrollRight) String() string           { return "scrollRight()" }
func (PressEnterKey) String() string         { return "enter()" }
func (UseHighReasoningModel) String() string { return "useHighReasoningModel()" }
func (UseLowReasoningModel) String() string  { return "useLowReasoningModel()" }

func (ClickButton) isCommand()           {}
func (LongClickButton) isCommand()       {}
func (TapCoordinates) isCommand()        {}
func (ScrollFromCoordinates) isCommand() {}
func (OpenApp) isCommand()               {}
func (WriteText) isCommand()             {}
func (TakeScreenshot) isCommand()        {}
func (PressHome) isCommand()             {}
func (PressBack) isCommand()             {}
func (ShowRecentApps) isCommand()        {}
func (ScrollUp) isCommand()              {}
func (ScrollDown) isCommand()            {}
func (ScrollLeft) isCommand()            {}
func (ScrollRight) isCommand()           {}
func (PressEnterKey) isCommand()         {}
func (UseHighReasoningModel) isCommand() {}
func (UseLowReasoningModel) isCommand()  {}

// SimpleScroll returns the zero-payload scroll command for d.
func SimpleScroll(d Direction) Command {
	switch d {
	case DirectionUp:
		return ScrollUp{}
	case DirectionDown:
		return ScrollDown{}
	case DirectionLeft:
		return ScrollLeft{}
	default:
		return ScrollRight{}
	}
}

// ScrollDirection reports the direction of any scroll command.
func ScrollDirection(c Command) (Direction, bool) {
	switch v := c.(type) {
	case ScrollUp:
		return DirectionUp, true
	case ScrollDown:
		return DirectionDown, true
	case ScrollLeft:
		return DirectionLeft, true
	case ScrollRight:
		return DirectionRight, true
	case ScrollFromCoordinates:
		return v.Direction, true
	}
	return "", false
}
