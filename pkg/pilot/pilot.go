// Package pilot wires the directive parser to the execution engine. Chunks
// are parsed on the caller's goroutine; the resulting batches run one at a
// time on a single worker so commands never interleave.
package pilot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/screenpilot/pkg/automation"
	"github.com/odvcencio/screenpilot/pkg/bus"
	"github.com/odvcencio/screenpilot/pkg/command"
	"github.com/odvcencio/screenpilot/pkg/directive"
	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/journal"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/status"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
)

const defaultQueueSize = 16

// ErrClosed is returned by Feed after Close.
var ErrClosed = apperrors.New(apperrors.ErrCodeClosed, "pilot closed")

// Options configures a Pilot.
type Options struct {
	Parser *directive.Parser
	Engine *automation.Engine
	// Journal is optional.
	Journal *journal.Journal
	// Bus is optional; when set, status lines are published per batch.
	Bus       bus.MessageBus
	Subjects  bus.Subjects
	Hub       *telemetry.Hub
	Logger    *logging.Logger
	SessionID string
	// Sinks receive every batch's status lines in addition to the built-in
	// log, hub and bus sinks.
	Sinks     []automation.StatusSink
	QueueSize int
}

// Submission is the receipt for one accepted chunk.
type Submission struct {
	BatchID  string           `json:"batchId,omitempty"`
	Commands []command.Record `json:"commands"`

	done chan automation.Report
}

// Queued reports whether the chunk produced a batch.
func (s Submission) Queued() bool { return s.done != nil }

// Wait blocks until the batch finishes or ctx ends.
func (s Submission) Wait(ctx context.Context) (automation.Report, error) {
	if s.done == nil {
		return automation.Report{}, nil
	}
	select {
	case r, ok := <-s.done:
		if !ok {
			return automation.Report{}, ErrClosed
		}
		return r, nil
	case <-ctx.Done():
		return automation.Report{}, ctx.Err()
	}
}

type job struct {
	id     string
	source string
	cmds   []command.Command
	done   chan automation.Report
}

// Pilot owns the parser buffer and the batch worker.
type Pilot struct {
	parser  *directive.Parser
	engine  *automation.Engine
	journal *journal.Journal
	bus     bus.MessageBus
	subj    bus.Subjects
	hub     *telemetry.Hub
	logger  *logging.Logger
	session string
	sinks   []automation.StatusSink

	feedMu sync.Mutex
	queue  chan job

	// mu is held for reading while sending on queue so Close can close it
	// safely once it holds the write lock.
	mu         sync.RWMutex
	closed     bool
	stop       chan struct{}
	stopOnce   sync.Once
	startOnce  sync.Once
	workerDone chan struct{}
	wg         sync.WaitGroup
}

// New creates a pilot. Call Start before feeding it.
func New(opts Options) *Pilot {
	if opts.Parser == nil {
		opts.Parser = directive.NewParser(directive.Options{Logger: opts.Logger, Hub: opts.Hub})
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Pilot{
		parser:     opts.Parser,
		engine:     opts.Engine,
		journal:    opts.Journal,
		bus:        opts.Bus,
		subj:       opts.Subjects,
		hub:        opts.Hub,
		logger:     opts.Logger,
		session:    opts.SessionID,
		sinks:      opts.Sinks,
		queue:      make(chan job, size),
		stop:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}
}

// Start launches the worker. It stops when ctx ends or Close is called; a
// batch in flight when ctx ends is aborted.
func (p *Pilot) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.work(ctx)
	})
}

// Close stops accepting chunks, lets queued batches finish and waits for
// the worker.
func (p *Pilot) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)

		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		// Batches queued after the worker quit, or with no worker at all.
		for j := range p.queue {
			close(j.done)
		}
	})
}

// Feed parses chunk and queues the commands it completes, if any.
func (p *Pilot) Feed(ctx context.Context, chunk string, clear bool, source string) (Submission, error) {
	p.feedMu.Lock()
	defer p.feedMu.Unlock()

	cmds := p.parser.Parse(chunk, clear)
	sub := Submission{Commands: command.ToRecords(cmds)}
	if len(cmds) == 0 {
		return sub, nil
	}

	j := job{
		id:     ulid.Make().String(),
		source: source,
		cmds:   cmds,
		done:   make(chan automation.Report, 1),
	}
	if err := p.enqueue(ctx, j); err != nil {
		return sub, err
	}
	sub.BatchID, sub.done = j.id, j.done
	return sub, nil
}

func (p *Pilot) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-p.workerDone:
		return ErrClosed
	default:
	}

	select {
	case p.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrClosed
	case <-p.workerDone:
		return ErrClosed
	}
}

// Clear drops buffered text without executing anything.
func (p *Pilot) Clear() {
	p.feedMu.Lock()
	p.parser.Clear()
	p.feedMu.Unlock()
}

// Buffered returns the text waiting for more input.
func (p *Pilot) Buffered() string {
	p.feedMu.Lock()
	defer p.feedMu.Unlock()
	return p.parser.Buffered()
}

func (p *Pilot) work(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.workerDone)
	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			j.done <- p.runBatch(ctx, j)
			close(j.done)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

// drain releases callers waiting on batches that will never run.
func (p *Pilot) drain() {
	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			close(j.done)
		default:
			return
		}
	}
}

func (p *Pilot) runBatch(ctx context.Context, j job) automation.Report {
	ctx = automation.WithBatchID(ctx, j.id)

	sinks := []automation.StatusSink{
		status.LogSink{Logger: p.logger, BatchID: j.id},
		status.HubSink{Hub: p.hub, BatchID: j.id},
	}
	if p.bus != nil {
		sinks = append(sinks, status.NewBusSink(ctx, p.bus, p.subj, j.id, p.reportError("bus_publish_failed")))
	}
	sinks = append(sinks, p.sinks...)

	p.recordBatch(ctx, j)
	report := p.engine.WithSink(status.Multi(sinks...)).Stream(ctx, j.cmds, func(st automation.Status) {
		p.recordResult(ctx, j.id, st)
	})
	p.finishBatch(ctx, j.id, report)
	return report
}

func (p *Pilot) recordBatch(ctx context.Context, j job) {
	if p.journal == nil {
		return
	}
	err := p.journal.RecordBatch(context.WithoutCancel(ctx), journal.Batch{
		ID:        j.id,
		SessionID: p.session,
		Source:    j.source,
		Commands:  len(j.cmds),
		StartedAt: time.Now(),
	})
	p.reportError("journal_write_failed")(err)
}

func (p *Pilot) recordResult(ctx context.Context, batchID string, st automation.Status) {
	if p.journal == nil {
		return
	}
	r := journal.Result{
		BatchID:     batchID,
		Index:       st.Index,
		Description: st.Description,
		Strategy:    st.Strategy,
		Succeeded:   st.Succeeded(),
		Duration:    st.Duration,
	}
	if st.Command != nil {
		r.Kind = string(st.Command.Kind())
		r.Command = st.Command.String()
	}
	if st.Err != nil {
		r.Error = st.Err.Error()
	}
	p.reportError("journal_write_failed")(p.journal.RecordResult(context.WithoutCancel(ctx), r))
}

func (p *Pilot) finishBatch(ctx context.Context, batchID string, report automation.Report) {
	if p.journal == nil {
		return
	}
	err := p.journal.FinishBatch(context.WithoutCancel(ctx), batchID, journal.Outcome{
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
		Aborted:   report.Aborted,
		Reason:    report.Reason,
	})
	p.reportError("journal_write_failed")(err)
}

func (p *Pilot) reportError(eventType string) func(error) {
	category := logging.CategoryJournal
	if eventType == "bus_publish_failed" {
		category = logging.CategoryPilot
	}
	return func(err error) {
		if err == nil {
			return
		}
		details := map[string]any{"error": err.Error()}
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			details["code"] = string(appErr.Code)
		}
		p.logger.Warn(category, eventType, "side channel write failed", details)
	}
}
