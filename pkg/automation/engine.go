package automation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/screenpilot/pkg/command"
	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/gesture"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/observability"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
	"github.com/odvcencio/screenpilot/pkg/viewtree"
)

// Status is the terminal state of one command.
type Status struct {
	Index       int             `json:"index"`
	Command     command.Command `json:"-"`
	Phase       Phase           `json:"phase"`
	Description string          `json:"description"`
	// Strategy names how a successful command was carried out, for example
	// "text", "center_tap" or "paste".
	Strategy string        `json:"strategy,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the command reached its goal.
func (s Status) Succeeded() bool { return s.Phase == PhaseSucceeded }

// Report summarizes a batch.
type Report struct {
	BatchID   string
	Results   []Status
	Succeeded int
	Failed    int
	// Skipped counts commands never attempted because the batch aborted.
	Skipped int
	Aborted bool
	// Reason explains an abort.
	Reason string
}

// Summary renders the batch line reported to the status sink.
func (r Report) Summary() string {
	if r.Aborted {
		return fmt.Sprintf("Batch aborted (%s): %d of %d commands ran, %d skipped",
			r.Reason, r.Succeeded+r.Failed, r.Succeeded+r.Failed+r.Skipped, r.Skipped)
	}
	return fmt.Sprintf("Batch finished: %d succeeded, %d failed", r.Succeeded, r.Failed)
}

var errSurfaceUnavailable = apperrors.New(apperrors.ErrCodeSurfaceUnavailable, "automation surface unavailable")

// Engine runs command batches one command at a time.
type Engine struct {
	surface  Surface
	models   ModelSelector
	sink     StatusSink
	logger   *logging.Logger
	hub      *telemetry.Hub
	sleeper  Sleeper
	modelIDs ModelIDs

	resolver *viewtree.Resolver
	timing   *atomic.Pointer[Timing]
}

// NewEngine builds an engine. A zero Timing selects DefaultTiming.
func NewEngine(opts Options) *Engine {
	timing := opts.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}
	timing = timing.withDefaults()

	e := &Engine{
		surface:  opts.Surface,
		models:   opts.Models,
		sink:     opts.Sink,
		logger:   opts.Logger,
		hub:      opts.Hub,
		sleeper:  opts.Sleeper,
		modelIDs: opts.ModelIDs,
		resolver: viewtree.NewResolver(opts.Surface, opts.refreshInterval(), opts.Logger),
		timing:   &atomic.Pointer[Timing]{},
	}
	if e.sink == nil {
		e.sink = nopSink{}
	}
	if e.sleeper == nil {
		e.sleeper = RealSleeper
	}
	e.timing.Store(&timing)
	return e
}

// WithSink returns an engine sharing e's state but reporting to sink.
func (e *Engine) WithSink(sink StatusSink) *Engine {
	clone := *e
	if sink == nil {
		sink = nopSink{}
	}
	clone.sink = sink
	return &clone
}

// Timing returns the active timings.
func (e *Engine) Timing() Timing { return *e.timing.Load() }

// SetTiming swaps timings; it takes effect from the next command.
func (e *Engine) SetTiming(t Timing) {
	t = t.withDefaults()
	e.timing.Store(&t)
	e.logger.Info(logging.CategoryEngine, "timing_updated", "engine timings updated", map[string]any{
		"command_delay_ms": t.CommandDelay.Milliseconds(),
		"settle_delay_ms":  t.SettleDelay.Milliseconds(),
	})
}

// Run executes cmds synchronously and returns the batch report.
func (e *Engine) Run(ctx context.Context, cmds []command.Command) Report {
	return e.run(ctx, cmds, nil)
}

// Stream executes cmds synchronously, handing each command status to fn
// as soon as it is known, and returns the batch report.
func (e *Engine) Stream(ctx context.Context, cmds []command.Command, fn func(Status)) Report {
	return e.run(ctx, cmds, fn)
}

// Execute runs cmds on a new goroutine and streams each command status. The
// channel is closed once the batch has finished.
func (e *Engine) Execute(ctx context.Context, cmds []command.Command) <-chan Status {
	out := make(chan Status, len(cmds))
	go func() {
		defer close(out)
		e.run(ctx, cmds, func(s Status) { out <- s })
	}()
	return out
}

func (e *Engine) run(ctx context.Context, cmds []command.Command, emit func(Status)) Report {
	batchID := BatchID(ctx)
	report := Report{BatchID: batchID, Results: make([]Status, 0, len(cmds))}
	if len(cmds) == 0 {
		return report
	}

	e.hub.Publish(telemetry.Event{
		Type:    telemetry.EventBatchStarted,
		BatchID: batchID,
		Data:    map[string]any{"commands": command.ToRecords(cmds)},
	})
	e.logger.Log(logging.Event{
		Level:     logging.LevelInfo,
		Category:  logging.CategoryEngine,
		EventType: "batch_started",
		BatchID:   batchID,
		Message:   "executing command batch",
		Details:   map[string]any{"count": len(cmds)},
	})

	for i, cmd := range cmds {
		if !e.available() {
			return e.abort(ctx, report, len(cmds)-i, errSurfaceUnavailable)
		}
		if i > 0 {
			if err := e.sleeper.Sleep(ctx, e.Timing().CommandDelay); err != nil {
				return e.abort(ctx, report, len(cmds)-i, err)
			}
			// The surface can go away while pacing.
			if !e.available() {
				return e.abort(ctx, report, len(cmds)-i, errSurfaceUnavailable)
			}
		}

		st := e.execute(ctx, i, cmd)
		report.Results = append(report.Results, st)
		if st.Succeeded() {
			report.Succeeded++
		} else {
			report.Failed++
		}
		e.sink.Report(st.Description, st.Phase)
		if emit != nil {
			emit(st)
		}
	}

	e.sink.Report(report.Summary(), PhaseCompleted)
	e.hub.Publish(telemetry.Event{
		Type:    telemetry.EventBatchCompleted,
		BatchID: batchID,
		Data:    map[string]any{"succeeded": report.Succeeded, "failed": report.Failed},
	})
	e.logger.Log(logging.Event{
		Level:     logging.LevelInfo,
		Category:  logging.CategoryEngine,
		EventType: "batch_completed",
		BatchID:   batchID,
		Message:   report.Summary(),
	})
	return report
}

func (e *Engine) available() bool {
	ok, _ := viewtree.Guarded(e.surface.IsAvailable)
	return ok
}

func (e *Engine) abort(ctx context.Context, report Report, remaining int, cause error) Report {
	report.Aborted = true
	report.Skipped = remaining
	report.Reason = cause.Error()
	if ctx.Err() != nil {
		report.Reason = "cancelled"
	}
	observability.BatchesAborted.Inc()

	e.sink.Report(report.Summary(), PhaseAborted)
	e.hub.Publish(telemetry.Event{
		Type:    telemetry.EventBatchAborted,
		BatchID: report.BatchID,
		Data:    map[string]any{"skipped": remaining, "reason": report.Reason},
	})
	e.logger.Log(logging.Event{
		Level:     logging.LevelWarn,
		Category:  logging.CategoryEngine,
		EventType: "batch_aborted",
		BatchID:   BatchID(ctx),
		Message:   "batch aborted",
		Details:   map[string]any{"skipped": remaining, "reason": report.Reason},
	})
	return report
}

// execute runs one command and converts any failure, including a panic in
// host code, into a Status.
func (e *Engine) execute(ctx context.Context, idx int, cmd command.Command) (st Status) {
	kind := string(cmd.Kind())
	batchID := BatchID(ctx)
	ctx, span := observability.StartSpan(ctx, "command."+kind, trace.WithAttributes(
		observability.AttrBatchID.String(batchID),
		observability.AttrCommandKind.String(kind),
		observability.AttrCommandIdx.Int(idx),
		observability.AttrDirective.String(cmd.String()),
	))
	start := time.Now()

	e.hub.Publish(telemetry.Event{
		Type:    telemetry.EventCommandStarted,
		BatchID: batchID,
		Data:    map[string]any{"index": idx, "command": command.ToRecord(cmd)},
	})

	defer func() {
		if r := recover(); r != nil {
			err := apperrors.Newf(apperrors.ErrCodeInternal, "command panicked: %v", r)
			st = Status{Phase: PhaseFailed, Description: fmt.Sprintf("%s failed unexpectedly", cmd), Err: err}
		}
		st.Index = idx
		st.Command = cmd
		st.Duration = time.Since(start)
		e.finish(ctx, span, batchID, st)
	}()

	return e.dispatch(ctx, cmd)
}

func (e *Engine) finish(ctx context.Context, span trace.Span, batchID string, st Status) {
	kind := string(st.Command.Kind())
	observability.Commands.WithLabelValues(kind, string(st.Phase)).Inc()
	observability.CommandLatency.WithLabelValues(kind).Observe(st.Duration.Seconds())

	span.SetAttributes(observability.AttrOutcome.String(string(st.Phase)))
	if st.Strategy != "" {
		span.SetAttributes(observability.AttrStrategy.String(st.Strategy))
	}

	data := map[string]any{
		"index":       st.Index,
		"kind":        kind,
		"description": st.Description,
		"duration_ms": st.Duration.Milliseconds(),
	}
	if st.Strategy != "" {
		data["strategy"] = st.Strategy
	}

	eventType := telemetry.EventCommandSucceeded
	level := logging.LevelInfo
	if !st.Succeeded() {
		eventType = telemetry.EventCommandFailed
		level = logging.LevelWarn
		if st.Err != nil {
			data["error"] = st.Err.Error()
			data["code"] = string(apperrors.GetCode(st.Err))
			span.RecordError(st.Err)
		}
		span.SetStatus(codes.Error, st.Description)
	}
	span.End()

	e.hub.Publish(telemetry.Event{Type: eventType, BatchID: batchID, Data: data})
	e.logger.Log(logging.Event{
		Level:     level,
		Category:  logging.CategoryEngine,
		EventType: "command_" + string(st.Phase),
		BatchID:   BatchID(ctx),
		Message:   st.Description,
		Details:   data,
	})
}

func (e *Engine) dispatch(ctx context.Context, cmd command.Command) Status {
	switch c := cmd.(type) {
	case command.ClickButton:
		return e.clickLabel(ctx, c.Label, false)
	case command.LongClickButton:
		return e.clickLabel(ctx, c.Label, true)
	case command.TapCoordinates:
		return e.tapCoordinates(ctx, c)
	case command.ScrollFromCoordinates:
		return e.scrollFrom(ctx, c)
	case command.ScrollUp, command.ScrollDown, command.ScrollLeft, command.ScrollRight:
		dir, _ := command.ScrollDirection(c)
		return e.simpleScroll(ctx, dir)
	case command.WriteText:
		return e.writeText(ctx, c.Text)
	case command.OpenApp:
		return e.openApp(c.Identifier)
	case command.TakeScreenshot:
		return e.global(GlobalScreenshot, "Took a screenshot")
	case command.PressHome:
		return e.global(GlobalHome, "Pressed home")
	case command.PressBack:
		return e.global(GlobalBack, "Pressed back")
	case command.ShowRecentApps:
		return e.global(GlobalRecents, "Opened recent apps")
	case command.PressEnterKey:
		return e.global(GlobalEnter, "Pressed enter")
	case command.UseHighReasoningModel:
		return e.switchModel(e.modelIDs.High, "high")
	case command.UseLowReasoningModel:
		return e.switchModel(e.modelIDs.Low, "low")
	}
	return failed(fmt.Sprintf("Unsupported command %s", cmd),
		apperrors.Newf(apperrors.ErrCodeInvalidInput, "unsupported command kind %s", cmd.Kind()))
}

func (e *Engine) dispatcher() *gesture.Dispatcher {
	return gesture.NewDispatcher(e.surface, e.surface.DisplaySize, e.Timing().gestureOptions(), e.logger)
}

func succeeded(desc, strategy string) Status {
	return Status{Phase: PhaseSucceeded, Description: desc, Strategy: strategy}
}

func failed(desc string, err error) Status {
	return Status{Phase: PhaseFailed, Description: desc, Err: err}
}
