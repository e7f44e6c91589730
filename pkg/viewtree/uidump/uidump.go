// Package uidump loads uiautomator XML hierarchy dumps into view trees.
package uidump

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

type xmlNode struct {
	Text          string    `xml:"text,attr"`
	ResourceID    string    `xml:"resource-id,attr"`
	Class         string    `xml:"class,attr"`
	Package       string    `xml:"package,attr"`
	ContentDesc   string    `xml:"content-desc,attr"`
	Checkable     string    `xml:"checkable,attr"`
	Checked       string    `xml:"checked,attr"`
	Clickable     string    `xml:"clickable,attr"`
	Enabled       string    `xml:"enabled,attr"`
	Focusable     string    `xml:"focusable,attr"`
	Focused       string    `xml:"focused,attr"`
	Scrollable    string    `xml:"scrollable,attr"`
	LongClickable string    `xml:"long-clickable,attr"`
	Bounds        string    `xml:"bounds,attr"`
	Nodes         []xmlNode `xml:"node"`
}

type hierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

var boundsRe = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseBounds parses the "[l,t][r,b]" bounds attribute.
func ParseBounds(s string) (viewtree.Rect, error) {
	m := boundsRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return viewtree.Rect{}, fmt.Errorf("invalid bounds %q", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return viewtree.Rect{}, fmt.Errorf("invalid bounds %q: %w", s, err)
		}
		v[i] = n
	}
	return viewtree.Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

// Parse reads a dump. Leading or trailing shell noise around the XML
// document is ignored. A dump with several top-level nodes is wrapped in a
// synthetic container spanning all of them.
func Parse(r io.Reader) (*viewtree.Element, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "failed to read UI dump")
	}
	return ParseBytes(raw)
}

// ParseFile reads a dump from path.
func ParseFile(path string) (*viewtree.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "failed to open UI dump").
			WithContext("path", path)
	}
	defer f.Close()
	return Parse(f)
}

// ParseBytes parses an in-memory dump.
func ParseBytes(raw []byte) (*viewtree.Element, error) {
	if i := bytes.Index(raw, []byte("<?xml")); i > 0 {
		raw = raw[i:]
	} else if i := bytes.Index(raw, []byte("<hierarchy")); i > 0 {
		raw = raw[i:]
	}
	if i := bytes.LastIndexByte(raw, '>'); i >= 0 {
		raw = raw[:i+1]
	}

	var h hierarchy
	if err := xml.Unmarshal(raw, &h); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to parse UI dump")
	}
	if len(h.Nodes) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "UI dump has no nodes")
	}

	if len(h.Nodes) == 1 {
		return build(h.Nodes[0])
	}

	children := make([]*viewtree.Element, 0, len(h.Nodes))
	var union viewtree.Rect
	for i, n := range h.Nodes {
		child, err := build(n)
		if err != nil {
			return nil, err
		}
		b := child.Bounds()
		if i == 0 {
			union = b
		} else {
			union = viewtree.Rect{
				Left:   min(union.Left, b.Left),
				Top:    min(union.Top, b.Top),
				Right:  max(union.Right, b.Right),
				Bottom: max(union.Bottom, b.Bottom),
			}
		}
		children = append(children, child)
	}
	return viewtree.NewElement(viewtree.Attrs{
		Bounds: union,
		Flags:  viewtree.FlagEnabled | viewtree.FlagVisible,
	}, children...), nil
}

func build(n xmlNode) (*viewtree.Element, error) {
	var bounds viewtree.Rect
	if n.Bounds != "" {
		b, err := ParseBounds(n.Bounds)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "bad node bounds").
				WithContext("resource_id", n.ResourceID)
		}
		bounds = b
	}

	children := make([]*viewtree.Element, 0, len(n.Nodes))
	for _, c := range n.Nodes {
		child, err := build(c)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	return viewtree.NewElement(viewtree.Attrs{
		Text:        n.Text,
		Description: n.ContentDesc,
		ID:          n.ResourceID,
		Bounds:      bounds,
		Flags:       flagsOf(n),
	}, children...), nil
}

func flagsOf(n xmlNode) viewtree.Flags {
	var f viewtree.Flags
	set := func(attr string, flag viewtree.Flags) {
		if attr == "true" {
			f |= flag
		}
	}
	set(n.Clickable, viewtree.FlagClickable)
	set(n.LongClickable, viewtree.FlagLongClickable)
	set(n.Checkable, viewtree.FlagCheckable)
	set(n.Checked, viewtree.FlagChecked)
	set(n.Focusable, viewtree.FlagFocusable)
	set(n.Focused, viewtree.FlagFocused)
	set(n.Scrollable, viewtree.FlagScrollable)
	if n.Enabled != "false" {
		f |= viewtree.FlagEnabled
	}
	f |= viewtree.FlagVisible
	if strings.HasSuffix(n.Class, "EditText") {
		f |= viewtree.FlagEditable
	}
	return f
}
