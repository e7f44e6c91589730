package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/odvcencio/screenpilot/pkg/command"
	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/gesture"
	"github.com/odvcencio/screenpilot/pkg/observability"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

var screen = gesture.Size{Width: 1000, Height: 2000}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type sinkMessage struct {
	desc  string
	phase Phase
}

type recordingSink struct {
	mu       sync.Mutex
	messages []sinkMessage
}

func (s *recordingSink) Report(desc string, phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sinkMessage{desc, phase})
}

type recordingSelector struct{ switched []string }

func (r *recordingSelector) SwitchTo(id string) { r.switched = append(r.switched, id) }

type harness struct {
	surface  *MockSurface
	sleeper  *recordingSleeper
	sink     *recordingSink
	selector *recordingSelector
	engine   *Engine
}

// newHarness wires an engine over a mock surface that is always available
// and serves root.
func newHarness(t *testing.T, root viewtree.Node) *harness {
	ctrl := gomock.NewController(t)
	h := &harness{
		surface:  NewMockSurface(ctrl),
		sleeper:  &recordingSleeper{},
		sink:     &recordingSink{},
		selector: &recordingSelector{},
	}
	h.surface.EXPECT().IsAvailable().Return(true).AnyTimes()
	h.surface.EXPECT().Root().Return(root).AnyTimes()
	h.surface.EXPECT().DisplaySize().Return(screen).AnyTimes()

	h.engine = NewEngine(Options{
		Surface:         h.surface,
		Models:          h.selector,
		Sink:            h.sink,
		Sleeper:         h.sleeper,
		RefreshInterval: -1,
		ModelIDs:        ModelIDs{High: "reasoning-large", Low: "reasoning-small"},
	})
	return h
}

// expectGesture completes every dispatched gesture asynchronously and
// returns a func yielding the gestures seen so far.
func (h *harness) expectGesture(outcome gesture.Outcome) func() []gesture.Gesture {
	var (
		mu   sync.Mutex
		seen []gesture.Gesture
	)
	h.surface.EXPECT().DispatchGesture(gomock.Any(), gomock.Any()).
		DoAndReturn(func(g gesture.Gesture, done func(gesture.Outcome)) bool {
			mu.Lock()
			seen = append(seen, g)
			mu.Unlock()
			go done(outcome)
			return true
		}).AnyTimes()
	return func() []gesture.Gesture {
		mu.Lock()
		defer mu.Unlock()
		return append([]gesture.Gesture(nil), seen...)
	}
}

func okTree() (root, ok *viewtree.Element) {
	ok = viewtree.NewElement(viewtree.Attrs{
		Text:   "OK",
		Bounds: viewtree.Rect{Left: 400, Top: 1800, Right: 600, Bottom: 1900},
		Flags:  viewtree.FlagClickable | viewtree.FlagEnabled | viewtree.FlagVisible,
	})
	root = viewtree.NewElement(viewtree.Attrs{Bounds: viewtree.Rect{Right: 1000, Bottom: 2000}},
		viewtree.NewElement(viewtree.Attrs{Text: "Delete this file?"}),
		ok,
	)
	return root, ok
}

func TestClickResolvesByText(t *testing.T) {
	root, ok := okTree()
	h := newHarness(t, root)
	h.surface.EXPECT().PerformAction(ok, viewtree.ActionClick, viewtree.ActionArgs{}).Return(true)

	report := h.engine.Run(context.Background(), []command.Command{command.ClickButton{Label: "OK"}})

	require.Len(t, report.Results, 1)
	assert.Equal(t, PhaseSucceeded, report.Results[0].Phase)
	assert.Equal(t, "text", report.Results[0].Strategy)
	assert.Equal(t, 1, report.Succeeded)
	assert.False(t, report.Aborted)
}

func TestClickNotFoundDispatchesNothing(t *testing.T) {
	root := viewtree.NewElement(viewtree.Attrs{},
		viewtree.NewElement(viewtree.Attrs{Text: "Cancel", Flags: viewtree.FlagClickable}),
	)
	h := newHarness(t, root)
	// No PerformAction or DispatchGesture expectations: any call fails the test.

	report := h.engine.Run(context.Background(), []command.Command{command.ClickButton{Label: "OK"}})

	require.Len(t, report.Results, 1)
	st := report.Results[0]
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.True(t, apperrors.IsCode(st.Err, apperrors.ErrCodeNodeNotFound))
	assert.Equal(t, 1, report.Failed)
}

func TestClickFallsBackToCenterTap(t *testing.T) {
	menu := viewtree.NewElement(viewtree.Attrs{
		Description: "More options",
		Bounds:      viewtree.Rect{Left: 900, Top: 100, Right: 1000, Bottom: 200},
	})
	root := viewtree.NewElement(viewtree.Attrs{}, menu)
	h := newHarness(t, root)
	gestures := h.expectGesture(gesture.Completed)

	report := h.engine.Run(context.Background(), []command.Command{command.ClickButton{Label: "more options"}})

	require.Len(t, report.Results, 1)
	assert.Equal(t, PhaseSucceeded, report.Results[0].Phase)
	assert.Equal(t, strategyCenterTap, report.Results[0].Strategy)
	require.Len(t, gestures(), 1)
	assert.Equal(t, []gesture.Point{{X: 950, Y: 150}}, gestures()[0].Path)
}

func TestClickRejectedActionFallsBackToTap(t *testing.T) {
	root, ok := okTree()
	h := newHarness(t, root)
	h.surface.EXPECT().PerformAction(ok, viewtree.ActionClick, gomock.Any()).Return(false).AnyTimes()
	gestures := h.expectGesture(gesture.Completed)

	report := h.engine.Run(context.Background(), []command.Command{command.ClickButton{Label: "OK"}})

	assert.Equal(t, PhaseSucceeded, report.Results[0].Phase)
	require.Len(t, gestures(), 1)
	assert.Equal(t, []gesture.Point{{X: 500, Y: 1850}}, gestures()[0].Path)
}

func TestLongClickUsesLongPressFallback(t *testing.T) {
	root, _ := okTree()
	h := newHarness(t, root)
	gestures := h.expectGesture(gesture.Completed)

	report := h.engine.Run(context.Background(), []command.Command{command.LongClickButton{Label: "OK"}})

	assert.Equal(t, PhaseSucceeded, report.Results[0].Phase)
	require.Len(t, gestures(), 1)
	assert.Equal(t, gesture.DefaultLongPressDuration, gestures()[0].Duration)
}

func TestTapCoordinatesResolvesPercentages(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	gestures := h.expectGesture(gesture.Completed)

	report := h.engine.Run(context.Background(), []command.Command{
		command.TapCoordinates{X: command.Pct(50), Y: command.Pct(80)},
	})

	assert.Equal(t, PhaseSucceeded, report.Results[0].Phase)
	require.Len(t, gestures(), 1)
	assert.Equal(t, []gesture.Point{{X: 500, Y: 1600}}, gestures()[0].Path)
}

func TestTapCoordinatesHugeValueClampsToFarEdge(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	gestures := h.expectGesture(gesture.Completed)

	h.engine.Run(context.Background(), []command.Command{
		command.TapCoordinates{X: command.Abs(1e30), Y: command.Abs(5)},
	})

	require.Len(t, gestures(), 1)
	assert.Equal(t, []gesture.Point{{X: 999, Y: 5}}, gestures()[0].Path)
}

func TestScrollFromCoordinates(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	gestures := h.expectGesture(gesture.Completed)

	report := h.engine.Run(context.Background(), []command.Command{
		command.ScrollFromCoordinates{
			Direction: command.DirectionDown,
			X:         command.Pct(50),
			Y:         command.Pct(50),
			Distance:  command.Pct(30),
			Duration:  300 * time.Millisecond,
		},
	})

	assert.Equal(t, PhaseSucceeded, report.Results[0].Phase)
	require.Len(t, gestures(), 1)
	g := gestures()[0]
	assert.Equal(t, []gesture.Point{{X: 500, Y: 1000}, {X: 500, Y: 400}}, g.Path)
	assert.Equal(t, 300*time.Millisecond, g.Duration)
}

func TestScrollTargets(t *testing.T) {
	tests := []struct {
		dir    command.Direction
		ex, ey int
	}{
		{command.DirectionDown, 500, 700},
		{command.DirectionUp, 500, 1300},
		{command.DirectionRight, 200, 1000},
		{command.DirectionLeft, 800, 1000},
	}
	for _, tt := range tests {
		x, y := scrollTarget(tt.dir, 500, 1000, 300)
		assert.Equal(t, tt.ex, x, tt.dir)
		assert.Equal(t, tt.ey, y, tt.dir)
	}
}

func TestSimpleScrollSwipesAgainstDirection(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	gestures := h.expectGesture(gesture.Completed)

	h.engine.Run(context.Background(), []command.Command{command.ScrollDown{}, command.ScrollLeft{}})

	got := gestures()
	require.Len(t, got, 2)
	assert.Equal(t, []gesture.Point{{X: 500, Y: 1400}, {X: 500, Y: 600}}, got[0].Path)
	assert.Equal(t, []gesture.Point{{X: 300, Y: 1000}, {X: 700, Y: 1000}}, got[1].Path)
}

func TestGestureCancelledFails(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	h.expectGesture(gesture.Cancelled)

	report := h.engine.Run(context.Background(), []command.Command{command.TapCoordinates{X: command.Abs(1), Y: command.Abs(1)}})
	assert.Equal(t, PhaseFailed, report.Results[0].Phase)
	assert.ErrorIs(t, report.Results[0].Err, gesture.ErrCancelled)
}

func TestGestureRejectedFails(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	h.surface.EXPECT().DispatchGesture(gomock.Any(), gomock.Any()).Return(false)

	report := h.engine.Run(context.Background(), []command.Command{command.ScrollUp{}})
	assert.Equal(t, PhaseFailed, report.Results[0].Phase)
	assert.ErrorIs(t, report.Results[0].Err, gesture.ErrNotDispatched)
}

func TestPacingBetweenCommandsOnly(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	h.surface.EXPECT().PerformGlobalAction(GlobalHome).Return(true)
	h.surface.EXPECT().PerformGlobalAction(GlobalBack).Return(true)
	h.surface.EXPECT().PerformGlobalAction(GlobalRecents).Return(true)

	report := h.engine.Run(context.Background(), []command.Command{
		command.PressHome{}, command.PressBack{}, command.ShowRecentApps{},
	})

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 800 * time.Millisecond}, h.sleeper.Delays())

	// One message per command plus the batch summary.
	require.Len(t, h.sink.messages, 4)
	assert.Equal(t, PhaseCompleted, h.sink.messages[3].phase)
}

func TestAbortWhenSurfaceUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	surface := NewMockSurface(ctrl)
	gomock.InOrder(
		surface.EXPECT().IsAvailable().Return(true),
		surface.EXPECT().PerformGlobalAction(GlobalHome).Return(true),
		surface.EXPECT().IsAvailable().Return(false),
	)
	sink := &recordingSink{}
	sleeper := &recordingSleeper{}
	engine := NewEngine(Options{Surface: surface, Sink: sink, Sleeper: sleeper})

	report := engine.Run(context.Background(), []command.Command{
		command.PressHome{}, command.PressBack{}, command.TakeScreenshot{},
	})

	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, sleeper.Delays(), "no pacing delay once the surface is gone")
	require.Len(t, sink.messages, 2)
	assert.Equal(t, PhaseAborted, sink.messages[1].phase)
	assert.Contains(t, sink.messages[1].desc, "2 skipped")
}

func TestAbortWhenSurfaceLostWhilePacing(t *testing.T) {
	ctrl := gomock.NewController(t)
	surface := NewMockSurface(ctrl)
	gomock.InOrder(
		surface.EXPECT().IsAvailable().Return(true),
		surface.EXPECT().PerformGlobalAction(GlobalHome).Return(true),
		surface.EXPECT().IsAvailable().Return(true),
		surface.EXPECT().IsAvailable().Return(false),
	)
	sleeper := &recordingSleeper{}
	engine := NewEngine(Options{Surface: surface, Sink: &recordingSink{}, Sleeper: sleeper})

	report := engine.Run(context.Background(), []command.Command{
		command.PressHome{}, command.PressBack{},
	})

	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []time.Duration{800 * time.Millisecond}, sleeper.Delays())
}

// selfParented reports itself as its own parent.
type selfParented struct{ *viewtree.Element }

func (n selfParented) Parent() viewtree.Node { return n }

func TestActionableStopsOnParentCycle(t *testing.T) {
	n := selfParented{viewtree.NewElement(viewtree.Attrs{Text: "OK"})}

	done := make(chan viewtree.Node, 1)
	go func() { done <- actionable(n, viewtree.ActionClick) }()
	select {
	case got := <-done:
		assert.Nil(t, got)
	case <-time.After(time.Second):
		t.Fatal("actionable did not return on a cyclic parent chain")
	}
}

func TestWriteTextFallsBackToPaste(t *testing.T) {
	field := viewtree.NewElement(viewtree.Attrs{ID: "app:id/query", Flags: viewtree.FlagEditable})
	root := viewtree.NewElement(viewtree.Attrs{}, field)
	h := newHarness(t, root)

	gomock.InOrder(
		h.surface.EXPECT().PerformAction(field, viewtree.ActionFocus, viewtree.ActionArgs{}).Return(true),
		h.surface.EXPECT().PerformAction(field, viewtree.ActionSetText, viewtree.ActionArgs{Text: "pizza"}).Return(false),
		h.surface.EXPECT().SetClipboard("pizza").Return(true),
		h.surface.EXPECT().PerformAction(field, viewtree.ActionPaste, viewtree.ActionArgs{}).Return(true),
	)

	report := h.engine.Run(context.Background(), []command.Command{command.WriteText{Text: "pizza"}})

	assert.Equal(t, PhaseSucceeded, report.Results[0].Phase)
	assert.Equal(t, "paste", report.Results[0].Strategy)
	settle := DefaultTiming().SettleDelay
	assert.Equal(t, []time.Duration{settle, settle}, h.sleeper.Delays())
}

func TestWriteTextUsesFocusedField(t *testing.T) {
	first := viewtree.NewElement(viewtree.Attrs{Flags: viewtree.FlagEditable})
	focused := viewtree.NewElement(viewtree.Attrs{Flags: viewtree.FlagEditable | viewtree.FlagFocused})
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}, first, focused))
	h.surface.EXPECT().PerformAction(focused, viewtree.ActionSetText, viewtree.ActionArgs{Text: "hi"}).Return(true)

	report := h.engine.Run(context.Background(), []command.Command{command.WriteText{Text: "hi"}})
	assert.Equal(t, "set_text", report.Results[0].Strategy)
	assert.Empty(t, h.sleeper.Delays())
}

func TestWriteTextWithoutField(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	report := h.engine.Run(context.Background(), []command.Command{command.WriteText{Text: "hi"}})
	assert.True(t, apperrors.IsCode(report.Results[0].Err, apperrors.ErrCodeNodeNotFound))
}

func TestModelMarkersAlwaysSucceed(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	report := h.engine.Run(context.Background(), []command.Command{
		command.UseHighReasoningModel{}, command.UseLowReasoningModel{},
	})
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, []string{"reasoning-large", "reasoning-small"}, h.selector.switched)
}

func TestOpenApp(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	h.surface.EXPECT().LaunchApp("Settings").Return(true)
	h.surface.EXPECT().LaunchApp("Nope").Return(false)

	report := h.engine.Run(context.Background(), []command.Command{
		command.OpenApp{Identifier: "Settings"}, command.OpenApp{Identifier: "Nope"},
	})
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
}

func TestHostPanicBecomesFailure(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	h.surface.EXPECT().PerformGlobalAction(GlobalBack).DoAndReturn(func(GlobalAction) bool {
		panic("service died")
	})

	report := h.engine.Run(context.Background(), []command.Command{command.PressBack{}})
	assert.Equal(t, PhaseFailed, report.Results[0].Phase)
}

func TestExecuteStreamsStatuses(t *testing.T) {
	defer goleak.VerifyNone(t)

	root, ok := okTree()
	h := newHarness(t, root)
	h.surface.EXPECT().PerformAction(ok, viewtree.ActionClick, gomock.Any()).Return(true)
	h.surface.EXPECT().PerformGlobalAction(GlobalHome).Return(true)

	var got []Status
	for st := range h.engine.Execute(context.Background(), []command.Command{
		command.ClickButton{Label: "OK"}, command.PressHome{},
	}) {
		got = append(got, st)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, command.KindPressHome, got[1].Command.Kind())
}

func TestCancelledContextSkipsRemaining(t *testing.T) {
	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	h.surface.EXPECT().PerformGlobalAction(GlobalHome).Return(true)

	ctx, cancel := context.WithCancel(context.Background())
	h.engine.sleeper = SleeperFunc(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	})

	report := h.engine.Run(ctx, []command.Command{command.PressHome{}, command.PressBack{}})
	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, "cancelled", report.Reason)
}

func TestCommandSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := newHarness(t, viewtree.NewElement(viewtree.Attrs{}))
	h.surface.EXPECT().PerformGlobalAction(GlobalScreenshot).Return(true)

	ctx := WithBatchID(context.Background(), "batch-1")
	h.engine.Run(ctx, []command.Command{command.TakeScreenshot{}})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "command.take_screenshot", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "batch-1", attrs[string(observability.AttrBatchID)])
	assert.Equal(t, "succeeded", attrs[string(observability.AttrOutcome)])
}
