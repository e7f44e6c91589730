package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

const memoryBufferSize = 256

// MemoryBus is an in-process MessageBus for single-process deployments and
// tests. Wildcards and request/reply behave as on NATS. Nothing is
// persisted: a subscriber whose buffer is full loses the message, and the
// loss is counted.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*memorySubscription
	nextID atomic.Uint64
	closed atomic.Bool

	dropped atomic.Uint64
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[uint64]*memorySubscription)}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.deliver(&Message{Subject: subject, Data: data})
	return nil
}

// deliver queues msg on every live matching subscription and reports
// whether there was one. Sends happen under the read lock so Unsubscribe
// cannot close a channel mid-send.
func (b *MemoryBus) deliver(msg *Message) bool {
	subject := strings.Split(msg.Subject, ".")

	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := false
	for _, sub := range b.subs {
		if !matchTokens(sub.pattern, subject) {
			continue
		}
		matched = true
		select {
		case sub.messages <- msg:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
	return matched
}

// Dropped reports how many deliveries were lost to full buffers.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *MemoryBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		id:       b.nextID.Add(1),
		subject:  subject,
		pattern:  strings.Split(subject, "."),
		messages: make(chan *Message, memoryBufferSize),
		handler:  handler,
		bus:      b,
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

func (b *MemoryBus) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	inbox := "_INBOX." + ulid.Make().String()
	replies := make(chan []byte, 1)
	sub, err := b.Subscribe(ctx, inbox, func(msg *Message) []byte {
		select {
		case replies <- msg.Data:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if !b.deliver(&Message{Subject: subject, Data: data, ReplyTo: inbox}) {
		return nil, ErrNoResponders
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends every subscription. A second Close returns ErrClosed.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.messages)
		delete(b.subs, id)
	}
	return nil
}

type memorySubscription struct {
	id       uint64
	subject  string
	pattern  []string
	messages chan *Message
	handler  MessageHandler
	bus      *MemoryBus
	dropped  atomic.Uint64
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; !ok {
		return nil
	}
	delete(s.bus.subs, s.id)
	close(s.messages)
	return nil
}

func (s *memorySubscription) Subject() string {
	return s.subject
}

// run handles messages in arrival order and publishes non-nil replies.
func (s *memorySubscription) run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-s.messages:
			if !ok {
				return
			}
			if reply := s.handler(msg); reply != nil && msg.ReplyTo != "" {
				_ = s.bus.Publish(ctx, msg.ReplyTo, reply)
			}
		case <-ctx.Done():
			return
		}
	}
}

// matchSubject reports whether subject matches pattern. "*" matches one
// token and a trailing ">" matches one or more.
func matchSubject(pattern, subject string) bool {
	return matchTokens(strings.Split(pattern, "."), strings.Split(subject, "."))
}

func matchTokens(pattern, subject []string) bool {
	for i, tok := range pattern {
		if tok == ">" {
			return i == len(pattern)-1 && len(subject) > i
		}
		if i >= len(subject) {
			return false
		}
		if tok != "*" && tok != subject[i] {
			return false
		}
	}
	return len(pattern) == len(subject)
}
