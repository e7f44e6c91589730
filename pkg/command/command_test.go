package command

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in      string
		want    Coordinate
		wantErr bool
	}{
		{in: "50%", want: Pct(50)},
		{in: " 12.5 % ", want: Pct(12.5)},
		{in: "300", want: Abs(300)},
		{in: "0", want: Abs(0)},
		{in: "", wantErr: true},
		{in: "%", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "2147483647", want: Abs(2147483647)},
		{in: "1e30", wantErr: true},
		{in: "1e30%", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCoordinate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoordinateResolve(t *testing.T) {
	assert.Equal(t, 500, Pct(50).Resolve(1000))
	assert.Equal(t, 1600, Pct(80).Resolve(2000))
	assert.Equal(t, 333, Pct(33.3).Resolve(1000))
	assert.Equal(t, 42, Abs(42.9).Resolve(1000))
}

func TestCoordinateResolveSaturates(t *testing.T) {
	// Values built directly, not through ParseCoordinate.
	assert.Equal(t, math.MaxInt32, Abs(1e30).Resolve(1000))
	assert.Equal(t, math.MaxInt32, Pct(1e30).Resolve(2000))
	assert.Equal(t, -math.MaxInt32, Abs(-1e30).Resolve(1000))
	assert.Equal(t, 0, Abs(math.NaN()).Resolve(1000))
}

func TestCommandStringRoundTripsDirectiveSyntax(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{ClickButton{Label: "OK"}, `click("OK")`},
		{LongClickButton{Label: "Photo"}, `longClick("Photo")`},
		{TapCoordinates{X: Pct(50), Y: Abs(800)}, `tapAtCoordinates(50%, 800)`},
		{ScrollFromCoordinates{Direction: DirectionDown, X: Pct(50), Y: Pct(50), Distance: Pct(30), Duration: 300 * time.Millisecond}, `scrollDown(50%, 50%, 30%, 300)`},
		{OpenApp{Identifier: "Settings"}, `openApp("Settings")`},
		{WriteText{Text: `say "hi"`}, `writeText("say \"hi\"")`},
		{TakeScreenshot{}, "takeScreenshot()"},
		{PressEnterKey{}, "enter()"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cmd.String())
	}
}

func TestScrollDirection(t *testing.T) {
	for _, d := range []Direction{DirectionUp, DirectionDown, DirectionLeft, DirectionRight} {
		got, ok := ScrollDirection(SimpleScroll(d))
		require.True(t, ok)
		assert.Equal(t, d, got)
	}
	got, ok := ScrollDirection(ScrollFromCoordinates{Direction: DirectionLeft})
	require.True(t, ok)
	assert.Equal(t, DirectionLeft, got)

	_, ok = ScrollDirection(PressHome{})
	assert.False(t, ok)

	assert.True(t, DirectionUp.Vertical())
	assert.False(t, DirectionRight.Vertical())
}

func TestToRecord(t *testing.T) {
	r := ToRecord(ScrollFromCoordinates{Direction: DirectionUp, X: Abs(10), Y: Pct(90), Distance: Pct(20), Duration: time.Second})
	assert.Equal(t, KindScrollFromCoordinates, r.Kind)
	assert.Equal(t, "up", r.Args["direction"])
	assert.Equal(t, "90%", r.Args["y"])
	assert.Equal(t, int64(1000), r.Args["duration_ms"])

	r = ToRecord(PressBack{})
	assert.Nil(t, r.Args)
	assert.Equal(t, "back()", r.Directive)

	assert.Len(t, ToRecords([]Command{PressHome{}, PressBack{}}), 2)
}
