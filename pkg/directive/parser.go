package directive

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/odvcencio/screenpilot/pkg/command"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/observability"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
)

// Discard reasons used in metrics and log details.
const (
	reasonBuildError     = "build_error"
	reasonOverlap        = "overlap"
	reasonSingleInstance = "single_instance"
)

// Options configures a Parser. Zero values are valid.
type Options struct {
	// Patterns overrides the directive table; nil means DefaultPatterns().
	Patterns []Pattern
	Logger   *logging.Logger
	Hub      *telemetry.Hub
}

// Parser accumulates streamed text and extracts command batches.
//
// The buffer keeps growing until a parse yields at least one command; the
// next non-empty chunk after that starts a fresh buffer. A Parser is safe for
// concurrent use but callers are expected to feed a single stream.
type Parser struct {
	patterns []Pattern
	logger   *logging.Logger
	hub      *telemetry.Hub

	mu        sync.Mutex
	buffer    strings.Builder
	clearNext bool
	// pending is the separator owed by a chunk that ended in whitespace:
	// 0, ' ' or '\n'. It is written only before the next non-blank text.
	pending byte
}

// NewParser creates a parser over the configured pattern table.
func NewParser(opts Options) *Parser {
	patterns := opts.Patterns
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &Parser{
		patterns: patterns,
		logger:   opts.Logger,
		hub:      opts.Hub,
	}
}

type match struct {
	start, end int
	pattern    *Pattern
	cmd        command.Command
}

// Feed parses a chunk without forcing a clear.
func (p *Parser) Feed(chunk string) []command.Command {
	return p.Parse(chunk, false)
}

// Clear drops the buffered text and the pending clear flag.
func (p *Parser) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

func (p *Parser) reset() {
	p.buffer.Reset()
	p.clearNext = false
	p.pending = 0
}

// Buffered returns the current accumulated text.
func (p *Parser) Buffered() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.String()
}

// Parse appends chunk to the buffer and returns the commands found in the
// whole buffer, in textual order. It returns nil when nothing was accepted.
func (p *Parser) Parse(chunk string, forceClear bool) []command.Command {
	p.mu.Lock()
	defer p.mu.Unlock()

	if forceClear {
		p.reset()
	}

	lead, trail := edgeSeparators(chunk)
	normalized := Normalize(chunk)
	if normalized == "" {
		if !p.clearNext && p.buffer.Len() > 0 {
			p.pending = mergeSeparators(p.pending, lead)
		}
		return nil
	}
	if p.clearNext {
		p.reset()
	}
	if p.buffer.Len() > 0 {
		if sep := mergeSeparators(p.pending, lead); sep != 0 {
			p.buffer.WriteByte(sep)
		}
	}
	p.buffer.WriteString(normalized)
	p.pending = trail

	text := p.buffer.String()
	accepted := p.resolve(text, p.collect(text))
	if len(accepted) == 0 {
		return nil
	}
	p.clearNext = true

	cmds := make([]command.Command, len(accepted))
	ids := make([]string, len(accepted))
	for i, m := range accepted {
		cmds[i] = m.cmd
		ids[i] = m.pattern.ID
		observability.DirectivesMatched.WithLabelValues(m.pattern.ID).Inc()
	}

	p.logger.Debug(logging.CategoryParser, "batch_parsed", "directives extracted", map[string]any{
		"count":    len(cmds),
		"patterns": ids,
	})
	p.hub.Publish(telemetry.Event{
		Type: telemetry.EventDirectiveParsed,
		Data: map[string]any{
			"count":    len(cmds),
			"commands": command.ToRecords(cmds),
		},
	})
	return cmds
}

// collect runs every pattern over text. Builder failures are logged and
// skipped without affecting other matches.
func (p *Parser) collect(text string) []match {
	var matches []match
	for i := range p.patterns {
		pat := &p.patterns[i]
		for _, idx := range pat.re.FindAllStringSubmatchIndex(text, -1) {
			cmd, err := pat.build(Submatch{text: text, idx: idx})
			if err != nil {
				p.discard(pat, reasonBuildError, text[idx[0]:idx[1]], err)
				continue
			}
			matches = append(matches, match{
				start:   idx[0],
				end:     idx[1],
				pattern: pat,
				cmd:     cmd,
			})
		}
	}
	return matches
}

// resolve orders matches by start offset and keeps the leftmost
// non-overlapping ones.
func (p *Parser) resolve(text string, matches []match) []match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].start < matches[j].start
	})

	var accepted []match
	seen := make(map[Category]bool)
	cursor := 0
	for _, m := range matches {
		if m.start < cursor {
			p.discard(m.pattern, reasonOverlap, text[m.start:m.end], nil)
			continue
		}
		cursor = m.end
		if m.pattern.Category.SingleInstance() {
			if seen[m.pattern.Category] {
				p.discard(m.pattern, reasonSingleInstance, text[m.start:m.end], nil)
				continue
			}
			seen[m.pattern.Category] = true
		}
		accepted = append(accepted, m)
	}
	return accepted
}

func (p *Parser) discard(pat *Pattern, reason, fragment string, err error) {
	observability.DirectivesDiscarded.WithLabelValues(pat.ID, reason).Inc()

	details := map[string]any{
		"pattern":  pat.ID,
		"reason":   reason,
		"fragment": fragment,
	}
	if err != nil {
		details["error"] = err.Error()
		p.logger.Warn(logging.CategoryParser, "directive_discarded", "directive could not be built", details)
	} else {
		p.logger.Debug(logging.CategoryParser, "directive_discarded", "overlapping directive skipped", details)
	}
	p.hub.Publish(telemetry.Event{Type: telemetry.EventDirectiveDropped, Data: details})
}

// Normalize unifies line breaks to "\n", collapses other whitespace runs to
// a single space and trims both ends. A run that contains a line break
// collapses to a single "\n".
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inSpace := false
	newline := false
	flush := func() {
		if !inSpace {
			return
		}
		if newline {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
		inSpace, newline = false, false
	}

	for _, r := range s {
		switch {
		case isLineBreak(r):
			inSpace, newline = true, true
		case unicode.IsSpace(r):
			inSpace = true
		default:
			flush()
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029' || r == '\u0085'
}

// edgeSeparators reports the separator implied by the whitespace at each end
// of a chunk, so text split at a space joins the same way it would unsplit.
func edgeSeparators(s string) (lead, trail byte) {
	head := s[:len(s)-len(strings.TrimLeftFunc(s, unicode.IsSpace))]
	tail := s[len(strings.TrimRightFunc(s, unicode.IsSpace)):]
	return separatorFor(head), separatorFor(tail)
}

func separatorFor(run string) byte {
	if run == "" {
		return 0
	}
	if strings.IndexFunc(run, isLineBreak) >= 0 {
		return '\n'
	}
	return ' '
}

// mergeSeparators combines two adjacent whitespace runs; a line break wins.
func mergeSeparators(a, b byte) byte {
	if a == '\n' || b == '\n' {
		return '\n'
	}
	if a != 0 {
		return a
	}
	return b
}
