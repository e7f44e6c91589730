// Package telemetry fans out automation events to in-process subscribers
// such as the websocket event stream and the status sinks.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventDirectiveParsed   EventType = "directive.parsed"
	EventDirectiveDropped  EventType = "directive.dropped"
	EventBatchStarted      EventType = "batch.started"
	EventBatchCompleted    EventType = "batch.completed"
	EventBatchAborted      EventType = "batch.aborted"
	EventCommandStarted    EventType = "command.started"
	EventCommandSucceeded  EventType = "command.succeeded"
	EventCommandFailed     EventType = "command.failed"
	EventCommandStatus     EventType = "command.status"
	EventModelSwitched     EventType = "model.switched"
	EventTreeRefreshFailed EventType = "tree.refresh_failed"
)

// Event describes automation telemetry that UIs and API clients can consume.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	BatchID   string         `json:"batchId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

const subscriberBuffer = 64

// Filter selects the events a subscriber receives. Nil accepts all.
type Filter func(Event) bool

// ForBatch accepts events of one batch. An empty id accepts everything.
func ForBatch(batchID string) Filter {
	if batchID == "" {
		return nil
	}
	return func(ev Event) bool { return ev.BatchID == batchID }
}

type subscriber struct {
	events chan Event
	filter Filter
}

// Hub fans events out to subscribers without ever blocking the publisher.
// A subscriber that falls behind loses events; Dropped counts them.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	closed  bool
	dropped atomic.Uint64
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish stamps event and offers it to every matching subscriber.
// Publishing on a nil hub is a no-op.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe receives every future event until the returned cancel runs.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	return h.SubscribeFiltered(nil)
}

// SubscribeFiltered receives future events accepted by filter. On a closed
// hub the channel is already closed.
func (h *Hub) SubscribeFiltered(filter Filter) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		done := make(chan Event)
		close(done)
		return done, func() {}
	}

	sub := &subscriber{events: make(chan Event, subscriberBuffer), filter: filter}
	h.subs[sub] = struct{}{}
	return sub.events, func() { h.remove(sub) }
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.events)
}

// SubscriberCount reports the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close ends every subscription; later publications are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.events)
		delete(h.subs, sub)
	}
}
