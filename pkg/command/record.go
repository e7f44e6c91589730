package command

// Record is the JSON projection of a command used by the CLI, the HTTP API
// and the run journal.
type Record struct {
	Kind      Kind           `json:"kind"`
	Directive string         `json:"directive"`
	Args      map[string]any `json:"args,omitempty"`
}

// ToRecord projects c into a Record.
func ToRecord(c Command) Record {
	r := Record{Kind: c.Kind(), Directive: c.String()}
	switch v := c.(type) {
	case ClickButton:
		r.Args = map[string]any{"label": v.Label}
	case LongClickButton:
		r.Args = map[string]any{"label": v.Label}
	case TapCoordinates:
		r.Args = map[string]any{"x": v.X.String(), "y": v.Y.String()}
	case ScrollFromCoordinates:
		r.Args = map[string]any{
			"direction":   string(v.Direction),
			"x":           v.X.String(),
			"y":           v.Y.String(),
			"distance":    v.Distance.String(),
			"duration_ms": v.Duration.Milliseconds(),
		}
	case OpenApp:
		r.Args = map[string]any{"identifier": v.Identifier}
	case WriteText:
		r.Args = map[string]any{"text": v.Text}
	}
	return r
}

// ToRecords projects a command slice.
func ToRecords(cmds []Command) []Record {
	out := make([]Record, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, ToRecord(c))
	}
	return out
}
