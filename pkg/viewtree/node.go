// Package viewtree models the accessibility view hierarchy exposed by the
// host and provides breadth-first lookups over it.
package viewtree

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Key identifies a node for visited-set bookkeeping during traversal.
type Key uint64

// Flags is a bitset of node properties.
type Flags uint16

const (
	FlagClickable Flags = 1 << iota
	FlagLongClickable
	FlagCheckable
	FlagChecked
	FlagEditable
	FlagFocusable
	FlagFocused
	FlagScrollable
	FlagEnabled
	FlagVisible
)

// Has reports whether every bit in f is set.
func (fl Flags) Has(f Flags) bool { return fl&f == f }

// Action is a node-level accessibility action.
type Action int

const (
	ActionClick Action = iota + 1
	ActionLongClick
	ActionFocus
	ActionSetText
	ActionPaste
	ActionScrollForward
	ActionScrollBackward
)

func (a Action) String() string {
	switch a {
	case ActionClick:
		return "click"
	case ActionLongClick:
		return "long_click"
	case ActionFocus:
		return "focus"
	case ActionSetText:
		return "set_text"
	case ActionPaste:
		return "paste"
	case ActionScrollForward:
		return "scroll_forward"
	case ActionScrollBackward:
		return "scroll_backward"
	}
	return "unknown"
}

// ActionArgs carries action parameters. Only ActionSetText reads Text.
type ActionArgs struct {
	Text string
}

// Rect is a screen-space rectangle; Right and Bottom are exclusive.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Center returns the midpoint of r.
func (r Rect) Center() (x, y int) {
	return r.Left + r.Width()/2, r.Top + r.Height()/2
}

// Contains reports whether (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x < r.Right && y >= r.Top && y < r.Bottom
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Node is a read-only view of one element in a host view tree. Host
// implementations may panic when a node vanished underneath them; the
// lookups in this package treat that as "not found".
type Node interface {
	Key() Key
	Text() string
	Description() string
	ID() string
	Bounds() Rect
	Flags() Flags
	Actions() []Action
	Children() []Node
	// Parent returns nil at the root.
	Parent() Node
}

// HasAction reports whether n exposes a.
func HasAction(n Node, a Action) bool {
	for _, have := range n.Actions() {
		if have == a {
			return true
		}
	}
	return false
}

// LocalID strips the package prefix of a resource id ("pkg:id/ok" -> "ok").
func LocalID(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// DefaultActions derives the action list a host would expose for flags.
func DefaultActions(f Flags) []Action {
	var actions []Action
	if f.Has(FlagClickable) {
		actions = append(actions, ActionClick)
	}
	if f.Has(FlagLongClickable) {
		actions = append(actions, ActionLongClick)
	}
	if f.Has(FlagFocusable) || f.Has(FlagEditable) {
		actions = append(actions, ActionFocus)
	}
	if f.Has(FlagEditable) {
		actions = append(actions, ActionSetText, ActionPaste)
	}
	if f.Has(FlagScrollable) {
		actions = append(actions, ActionScrollForward, ActionScrollBackward)
	}
	return actions
}

var nextKey atomic.Uint64

// Attrs describes an Element at construction time. Nil Actions are derived
// from Flags.
type Attrs struct {
	Text        string
	Description string
	ID          string
	Bounds      Rect
	Flags       Flags
	Actions     []Action
}

// Element is an in-memory Node. The parent pointer is a back-reference used
// only for upward queries; children own the subtree.
type Element struct {
	key Key

	mu       sync.RWMutex
	attrs    Attrs
	parent   *Element
	children []*Element
}

// NewElement builds an element and adopts children.
func NewElement(a Attrs, children ...*Element) *Element {
	if a.Actions == nil {
		a.Actions = DefaultActions(a.Flags)
	}
	e := &Element{key: Key(nextKey.Add(1)), attrs: a}
	for _, c := range children {
		e.AppendChild(c)
	}
	return e
}

func (e *Element) Key() Key { return e.key }

func (e *Element) Text() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs.Text
}

func (e *Element) Description() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs.Description
}

func (e *Element) ID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs.ID
}

func (e *Element) Bounds() Rect {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs.Bounds
}

func (e *Element) Flags() Flags {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attrs.Flags
}

func (e *Element) Actions() []Action {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Action(nil), e.attrs.Actions...)
}

func (e *Element) Children() []Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Node, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out
}

func (e *Element) Parent() Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// Elements returns the concrete children.
func (e *Element) Elements() []*Element {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Element(nil), e.children...)
}

// AppendChild attaches c as the last child of e.
func (e *Element) AppendChild(c *Element) {
	c.mu.Lock()
	c.parent = e
	c.mu.Unlock()

	e.mu.Lock()
	e.children = append(e.children, c)
	e.mu.Unlock()
}

// RemoveChild detaches c. It is a no-op if c is not a child of e.
func (e *Element) RemoveChild(c *Element) {
	e.mu.Lock()
	for i, have := range e.children {
		if have == c {
			e.children = append(e.children[:i:i], e.children[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	c.mu.Lock()
	if c.parent == e {
		c.parent = nil
	}
	c.mu.Unlock()
}

// SetText replaces the node text.
func (e *Element) SetText(text string) {
	e.mu.Lock()
	e.attrs.Text = text
	e.mu.Unlock()
}

// SetFlag sets or clears f.
func (e *Element) SetFlag(f Flags, on bool) {
	e.mu.Lock()
	if on {
		e.attrs.Flags |= f
	} else {
		e.attrs.Flags &^= f
	}
	e.mu.Unlock()
}

// Walk visits e and its descendants depth-first in document order.
func (e *Element) Walk(fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.Elements() {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}
