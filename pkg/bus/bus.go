// Package bus carries directive chunks in and batch status out over a
// subject-based message bus. NATS backs it in deployments; MemoryBus serves
// a single process and tests.
package bus

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors shared by every MessageBus implementation.
var (
	ErrTimeout      = errors.New("bus: request timed out")
	ErrNoResponders = errors.New("bus: no responders")
	ErrClosed       = errors.New("bus: closed")
)

// MessageBus moves directive chunks in and status lines out. Wildcards
// follow NATS: "*" matches one token and a trailing ">" the rest.
// Implementations are safe for concurrent use.
type MessageBus interface {
	// Publish is fire and forget.
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe delivers each subscription's messages one at a time, in
	// publish order.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)
	// Request publishes with a reply inbox and waits for the first answer.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

// MessageHandler handles one message. A non-nil return is sent back when
// the message carries a reply subject.
type MessageHandler func(msg *Message) []byte

// Message is one delivery.
type Message struct {
	Subject string
	Data    []byte
	ReplyTo string
}

// Subscription is a live interest in a subject pattern.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// ConnState names a transition of a networked bus connection.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnReconnected  ConnState = "reconnected"
	ConnClosed       ConnState = "closed"
)

// Config selects and tunes the bus.
type Config struct {
	// URL of the NATS server; empty keeps the bus in-process.
	URL string
	// Name identifies this client on the server.
	Name string
	// Timeout bounds connecting and flushing.
	Timeout       time.Duration
	ReconnectWait time.Duration
	// OnStateChange observes connection transitions. It may be nil.
	OnStateChange func(state ConnState, err error)
}

func DefaultConfig() Config {
	return Config{
		Name:          "screenpilot",
		Timeout:       10 * time.Second,
		ReconnectWait: time.Second,
	}
}

// Open connects to NATS when cfg.URL is set and falls back to an in-memory
// bus otherwise.
func Open(cfg Config) (MessageBus, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return NewMemoryBus(), nil
	}
	return NewNATSBus(cfg)
}

// Subjects names the subjects under one prefix.
type Subjects struct {
	Prefix string
}

// Directives is where producers publish raw output chunks.
func (s Subjects) Directives() string { return s.Prefix + ".directives" }

// Clear is the request subject that resets the directive buffer.
func (s Subjects) Clear() string { return s.Prefix + ".control.clear" }

// Status is where status lines for one batch are published.
func (s Subjects) Status(batchID string) string {
	return s.Prefix + ".status." + sanitizeToken(batchID)
}

// AllStatus matches the status subjects of every batch.
func (s Subjects) AllStatus() string { return s.Prefix + ".status.*" }

// sanitizeToken keeps a value usable as a single subject token.
func sanitizeToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, v)
}
