package viewtree

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/time/rate"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/observability"
)

// DefaultRefreshInterval is the minimum spacing between root fetches.
const DefaultRefreshInterval = 250 * time.Millisecond

// ErrNoActiveRoot is returned when the host has no window to inspect.
var ErrNoActiveRoot = apperrors.New(apperrors.ErrCodeNoActiveRoot, "no active window root")

// Guarded runs fn and reports ok=false if it panicked, which host nodes do
// when they vanish mid-access.
func Guarded[T any](fn func() T) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	return fn(), true
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// walk visits nodes breadth-first from root until visit returns true, and
// returns that node. Nodes whose access panics are skipped.
func walk(root Node, visit func(Node) bool) Node {
	if root == nil {
		return nil
	}
	queue := []Node{root}
	visited := make(map[Key]struct{})
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == nil {
			continue
		}

		key, ok := Guarded(n.Key)
		if !ok {
			continue
		}
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		if hit, ok := Guarded(func() bool { return visit(n) }); ok && hit {
			return n
		}
		if children, ok := Guarded(n.Children); ok {
			queue = append(queue, children...)
		}
	}
	return nil
}

// maxAncestorDepth bounds upward walks when a host reports a parent chain
// longer than any real hierarchy.
const maxAncestorDepth = 512

// FindAncestor returns n or its nearest ancestor satisfying match. A parent
// chain that loops back on itself ends the walk with nil, as does a node whose
// access panics.
func FindAncestor(n Node, match func(Node) bool) Node {
	found, _ := Guarded(func() Node {
		visited := make(map[Key]struct{})
		for cur, depth := n, 0; cur != nil && depth < maxAncestorDepth; cur, depth = cur.Parent(), depth+1 {
			key := cur.Key()
			if _, seen := visited[key]; seen {
				return nil
			}
			visited[key] = struct{}{}
			if match(cur) {
				return cur
			}
		}
		return nil
	})
	return found
}

// IsInteractive reports whether n or one of its ancestors is clickable.
func IsInteractive(n Node) bool {
	return FindAncestor(n, func(cur Node) bool {
		return cur.Flags().Has(FlagClickable) || HasAction(cur, ActionClick)
	}) != nil
}

func findBy(root Node, needle string, requireInteractive bool, field func(Node) string, match func(have, want string) bool) Node {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return nil
	}
	want := fold(needle)
	return walk(root, func(n Node) bool {
		if !match(field(n), want) {
			return false
		}
		return !requireInteractive || IsInteractive(n)
	})
}

func containsFolded(have, want string) bool {
	return have != "" && strings.Contains(fold(have), want)
}

func equalLocalID(have, want string) bool {
	return have != "" && fold(LocalID(have)) == LocalID(want)
}

// FindByText returns the first node, breadth-first, whose text contains text
// ignoring case.
func FindByText(root Node, text string, requireInteractive bool) Node {
	return findBy(root, text, requireInteractive, Node.Text, containsFolded)
}

// FindByDescription matches the content description the same way.
func FindByDescription(root Node, desc string, requireInteractive bool) Node {
	return findBy(root, desc, requireInteractive, Node.Description, containsFolded)
}

// FindByID matches the local part of the resource id exactly, ignoring case.
func FindByID(root Node, id string, requireInteractive bool) Node {
	return findBy(root, id, requireInteractive, Node.ID, equalLocalID)
}

// FindAllInteractive returns every clickable node in breadth-first order.
func FindAllInteractive(root Node) []Node {
	var out []Node
	walk(root, func(n Node) bool {
		if n.Flags().Has(FlagClickable) || HasAction(n, ActionClick) {
			out = append(out, n)
		}
		return false
	})
	return out
}

// FindFocusedEditable returns the editable node holding input focus.
func FindFocusedEditable(root Node) Node {
	return walk(root, func(n Node) bool {
		return n.Flags().Has(FlagEditable | FlagFocused)
	})
}

// FindFirstEditable returns the first editable node breadth-first.
func FindFirstEditable(root Node) Node {
	return walk(root, func(n Node) bool {
		return n.Flags().Has(FlagEditable)
	})
}

// Strategy is one label lookup in the click fallback chain.
type Strategy struct {
	Name string
	Find func(root Node, label string) Node
}

var labelStrategies = []Strategy{
	{Name: "text", Find: func(root Node, label string) Node { return FindByText(root, label, true) }},
	{Name: "description", Find: func(root Node, label string) Node { return FindByDescription(root, label, false) }},
	{Name: "id", Find: func(root Node, label string) Node { return FindByID(root, label, false) }},
}

// LabelStrategies returns the ordered label lookups: interactive text, then
// content description, then resource id.
func LabelStrategies() []Strategy {
	return append([]Strategy(nil), labelStrategies...)
}

// RootSource yields the active window root, or nil when there is none.
type RootSource interface {
	Root() Node
}

// RootSourceFunc adapts a function to RootSource.
type RootSourceFunc func() Node

func (f RootSourceFunc) Root() Node { return f() }

// Resolver caches the host root and limits how often it is re-fetched.
type Resolver struct {
	source  RootSource
	limiter *rate.Limiter
	logger  *logging.Logger

	mu     sync.Mutex
	cached Node
}

// NewResolver creates a resolver. A non-positive interval disables throttling.
func NewResolver(source RootSource, interval time.Duration, logger *logging.Logger) *Resolver {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Resolver{
		source:  source,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Refresh returns the current root. Calls closer together than the refresh
// interval reuse the cached root.
func (r *Resolver) Refresh() (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := r.limiter.Allow()
	if !allowed && r.cached != nil {
		observability.TreeRefreshes.WithLabelValues("throttled").Inc()
		return r.cached, nil
	}

	root, ok := Guarded(r.source.Root)
	if !ok || root == nil {
		r.cached = nil
		observability.TreeRefreshes.WithLabelValues("no_root").Inc()
		r.logger.Warn(logging.CategoryResolver, "no_active_root", "host returned no window root", nil)
		return nil, ErrNoActiveRoot
	}
	r.cached = root
	observability.TreeRefreshes.WithLabelValues("fetched").Inc()
	return root, nil
}

// Invalidate drops the cached root so the next Refresh fetches, subject to
// the rate limit.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}
