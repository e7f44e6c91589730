// Package status provides the sinks that carry the engine's human-readable
// progress lines to logs, the telemetry hub, the message bus and terminals.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odvcencio/screenpilot/pkg/automation"
	"github.com/odvcencio/screenpilot/pkg/bus"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
)

// Line is one status message as published on the bus and recorded for
// API responses.
type Line struct {
	BatchID     string           `json:"batchId"`
	Seq         int64            `json:"seq"`
	Phase       automation.Phase `json:"phase"`
	Description string           `json:"description"`
	Time        time.Time        `json:"time"`
}

// Multi fans a report out to every non-nil sink in order.
func Multi(sinks ...automation.StatusSink) automation.StatusSink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []automation.StatusSink

func (m multi) Report(desc string, phase automation.Phase) {
	for _, s := range m {
		s.Report(desc, phase)
	}
}

// Func adapts a function to a StatusSink.
type Func func(desc string, phase automation.Phase)

func (f Func) Report(desc string, phase automation.Phase) { f(desc, phase) }

// LogSink writes status lines to the session log.
type LogSink struct {
	Logger  *logging.Logger
	BatchID string
}

func (s LogSink) Report(desc string, phase automation.Phase) {
	level := logging.LevelInfo
	if phase == automation.PhaseFailed || phase == automation.PhaseAborted {
		level = logging.LevelWarn
	}
	s.Logger.Log(logging.Event{
		Level:     level,
		Category:  logging.CategoryEngine,
		EventType: "status",
		BatchID:   s.BatchID,
		Message:   desc,
		Details:   map[string]any{"phase": string(phase)},
	})
}

// HubSink publishes status lines as telemetry events.
type HubSink struct {
	Hub     *telemetry.Hub
	BatchID string
}

func (s HubSink) Report(desc string, phase automation.Phase) {
	s.Hub.Publish(telemetry.Event{
		Type:    telemetry.EventCommandStatus,
		BatchID: s.BatchID,
		Data:    map[string]any{"description": desc, "phase": string(phase)},
	})
}

// BusSink publishes each line as JSON on the batch's status subject.
// Publish failures go to OnError and never reach the engine.
type BusSink struct {
	ctx     context.Context
	bus     bus.MessageBus
	subject string
	batchID string
	seq     atomic.Int64
	onError func(error)
}

// NewBusSink returns a sink publishing to subjects.Status(batchID).
func NewBusSink(ctx context.Context, b bus.MessageBus, subjects bus.Subjects, batchID string, onError func(error)) *BusSink {
	return &BusSink{
		ctx:     ctx,
		bus:     b,
		subject: subjects.Status(batchID),
		batchID: batchID,
		onError: onError,
	}
}

func (s *BusSink) Report(desc string, phase automation.Phase) {
	line := Line{
		BatchID:     s.batchID,
		Seq:         s.seq.Add(1),
		Phase:       phase,
		Description: desc,
		Time:        time.Now(),
	}
	data, err := json.Marshal(line)
	if err == nil {
		err = s.bus.Publish(s.ctx, s.subject, data)
	}
	if err != nil && s.onError != nil {
		s.onError(fmt.Errorf("publish status to %s: %w", s.subject, err))
	}
}

// WriterSink prints lines to w, one per report.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink printing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Report(desc string, phase automation.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%-9s %s\n", phase, desc)
}

// Recorder keeps every line it receives.
type Recorder struct {
	mu      sync.Mutex
	batchID string
	lines   []Line
}

// NewRecorder returns a recorder stamping lines with batchID.
func NewRecorder(batchID string) *Recorder {
	return &Recorder{batchID: batchID}
}

func (r *Recorder) Report(desc string, phase automation.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, Line{
		BatchID:     r.batchID,
		Seq:         int64(len(r.lines) + 1),
		Phase:       phase,
		Description: desc,
		Time:        time.Now(),
	})
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}
