package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is either an absolute pixel value or a percentage of the
// target extent. Percent coordinates are resolved only at execution time.
type Coordinate struct {
	Value   float64
	Percent bool
}

// Abs returns an absolute coordinate.
func Abs(v float64) Coordinate { return Coordinate{Value: v} }

// Pct returns a percent coordinate.
func Pct(v float64) Coordinate { return Coordinate{Value: v, Percent: true} }

// maxCoordinate bounds parsed values and resolved pixels.
const maxCoordinate = math.MaxInt32

// ParseCoordinate accepts "120", "12.5" or "50%" (surrounding spaces allowed).
func ParseCoordinate(s string) (Coordinate, error) {
	raw := strings.TrimSpace(s)
	percent := strings.HasSuffix(raw, "%")
	if percent {
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	}
	if raw == "" {
		return Coordinate{}, fmt.Errorf("empty coordinate %q", s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > maxCoordinate {
		return Coordinate{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return Coordinate{Value: v, Percent: percent}, nil
}

// Resolve maps the coordinate onto an axis of the given extent in pixels.
// Results saturate at [-maxCoordinate, maxCoordinate].
func (c Coordinate) Resolve(extent int) int {
	v := c.Value
	if c.Percent {
		v = math.Round(float64(extent) * v / 100)
	}
	return saturate(v)
}

func saturate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= maxCoordinate:
		return maxCoordinate
	case v <= -maxCoordinate:
		return -maxCoordinate
	}
	return int(v)
}

func (c Coordinate) String() string {
	s := strconv.FormatFloat(c.Value, 'f', -1, 64)
	if c.Percent {
		return s + "%"
	}
	return s
}
