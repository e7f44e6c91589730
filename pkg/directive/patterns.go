// Package directive turns streamed model output into command batches.
//
// Model text embeds function-call-like directives such as click("OK") or
// scrollDown(50%, 50%, 30%, 300). A Parser accumulates chunks, matches every
// pattern in the table against the whole buffer and resolves overlapping
// matches leftmost-first.
package directive

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/screenpilot/pkg/command"
)

// Category groups patterns for per-batch deduplication.
type Category int

const (
	CategoryDefault Category = iota
	// CategoryScreenshot is single-instance: at most one accepted match per parse.
	CategoryScreenshot
)

// SingleInstance reports whether at most one command of this category may be
// accepted per parse call.
func (c Category) SingleInstance() bool {
	return c == CategoryScreenshot
}

// Builder constructs a command from a regexp match. It must be pure.
type Builder func(m Submatch) (command.Command, error)

// Pattern is one entry of the directive table.
type Pattern struct {
	ID       string
	Category Category
	re       *regexp.Regexp
	build    Builder
}

// NewPattern compiles expr into a table entry. It panics on an invalid
// expression because tables are built once at startup.
func NewPattern(id, expr string, category Category, build Builder) Pattern {
	return Pattern{
		ID:       id,
		Category: category,
		re:       regexp.MustCompile(expr),
		build:    build,
	}
}

// Submatch exposes the capture groups of one match.
type Submatch struct {
	text string
	idx  []int
}

// Group returns capture group i and whether it participated in the match.
func (m Submatch) Group(i int) (string, bool) {
	if 2*i+1 >= len(m.idx) || m.idx[2*i] < 0 {
		return "", false
	}
	return m.text[m.idx[2*i]:m.idx[2*i+1]], true
}

// quoted returns the first participating group among the two alternatives
// of the quoted-argument fragment starting at group i.
func (m Submatch) quoted(i int) string {
	if s, ok := m.Group(i); ok {
		return s
	}
	s, _ := m.Group(i + 1)
	return s
}

// Expression fragments. Quoted arguments accept either quote style and
// capture two alternative groups; loose arguments are validated by builders.
const (
	quotedArg = `\s*(?:"([^"]*)"|'([^']*)')\s*`
	looseArg  = `\s*([^,()]+?)\s*`
	noArgs    = `\(\s*\)`
)

var patternTable = buildPatternTable()

// DefaultPatterns returns the built-in directive table. The slice is shared
// and must not be modified.
func DefaultPatterns() []Pattern {
	return patternTable
}

func buildPatternTable() []Pattern {
	patterns := []Pattern{
		NewPattern("click", `\bclick\(`+quotedArg+`\)`, CategoryDefault, func(m Submatch) (command.Command, error) {
			return command.ClickButton{Label: m.quoted(1)}, nil
		}),
		NewPattern("long_click", `\blongClick\(`+quotedArg+`\)`, CategoryDefault, func(m Submatch) (command.Command, error) {
			return command.LongClickButton{Label: m.quoted(1)}, nil
		}),
		NewPattern("tap_coordinates", `\btapAtCoordinates\(`+looseArg+`,`+looseArg+`\)`, CategoryDefault, buildTap),
		NewPattern("take_screenshot", `\btakeScreenshot`+noArgs, CategoryScreenshot, marker(command.TakeScreenshot{})),
		NewPattern("press_home", `\b(?:pressHome|home)`+noArgs, CategoryDefault, marker(command.PressHome{})),
		NewPattern("press_back", `\b(?:pressBack|back)`+noArgs, CategoryDefault, marker(command.PressBack{})),
		NewPattern("recent_apps", `\b(?:showRecentApps|recentApps)`+noArgs, CategoryDefault, marker(command.ShowRecentApps{})),
		NewPattern("press_enter", `\b(?:pressEnterKey|pressEnter|enter)`+noArgs, CategoryDefault, marker(command.PressEnterKey{})),
		NewPattern("open_app", `\bopenApp\(`+quotedArg+`\)`, CategoryDefault, func(m Submatch) (command.Command, error) {
			id := strings.TrimSpace(m.quoted(1))
			if id == "" {
				return nil, fmt.Errorf("openApp requires an identifier")
			}
			return command.OpenApp{Identifier: id}, nil
		}),
		NewPattern("write_text", `\bwriteText\(`+quotedArg+`\)`, CategoryDefault, func(m Submatch) (command.Command, error) {
			return command.WriteText{Text: m.quoted(1)}, nil
		}),
		NewPattern("use_high_reasoning_model", `\buseHighReasoningModel`+noArgs, CategoryDefault, marker(command.UseHighReasoningModel{})),
		NewPattern("use_low_reasoning_model", `\buseLowReasoningModel`+noArgs, CategoryDefault, marker(command.UseLowReasoningModel{})),
	}

	for _, d := range []struct {
		name string
		dir  command.Direction
	}{
		{"scrollUp", command.DirectionUp},
		{"scrollDown", command.DirectionDown},
		{"scrollLeft", command.DirectionLeft},
		{"scrollRight", command.DirectionRight},
	} {
		id := "scroll_" + string(d.dir)
		patterns = append(patterns,
			NewPattern(id, `\b`+d.name+noArgs, CategoryDefault, marker(command.SimpleScroll(d.dir))),
			NewPattern(id+"_from", `\b`+d.name+`\(`+looseArg+`,`+looseArg+`,`+looseArg+`,`+looseArg+`\)`, CategoryDefault, scrollBuilder(d.dir)),
		)
	}
	return patterns
}

func marker(c command.Command) Builder {
	return func(Submatch) (command.Command, error) { return c, nil }
}

func buildTap(m Submatch) (command.Command, error) {
	xs, _ := m.Group(1)
	ys, _ := m.Group(2)
	x, err := command.ParseCoordinate(xs)
	if err != nil {
		return nil, err
	}
	y, err := command.ParseCoordinate(ys)
	if err != nil {
		return nil, err
	}
	return command.TapCoordinates{X: x, Y: y}, nil
}

func scrollBuilder(dir command.Direction) Builder {
	return func(m Submatch) (command.Command, error) {
		coords := make([]command.Coordinate, 3)
		for i := range coords {
			raw, _ := m.Group(i + 1)
			c, err := command.ParseCoordinate(raw)
			if err != nil {
				return nil, err
			}
			coords[i] = c
		}
		rawDuration, _ := m.Group(4)
		ms, err := strconv.Atoi(strings.TrimSpace(rawDuration))
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", rawDuration, err)
		}
		if ms <= 0 {
			return nil, fmt.Errorf("duration must be positive, got %d", ms)
		}
		return command.ScrollFromCoordinates{
			Direction: dir,
			X:         coords[0],
			Y:         coords[1],
			Distance:  coords[2],
			Duration:  time.Duration(ms) * time.Millisecond,
		}, nil
	}
}
