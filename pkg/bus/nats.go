package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
)

// NATSBus is a MessageBus on core NATS subjects. Reconnects are unbounded
// so a restarted server picks up producers and observers again.
type NATSBus struct {
	nc     *nats.Conn
	closed atomic.Bool
}

// NewNATSBus dials cfg.URL. Unset fields take DefaultConfig values.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	defaults := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}

	nc, err := nats.Connect(cfg.URL, natsOptions(cfg)...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeBusUnavailable, "connecting to NATS").
			WithContext("url", cfg.URL).
			WithRetryable(true)
	}
	return &NATSBus{nc: nc}, nil
}

func natsOptions(cfg Config) []nats.Option {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(-1),
	}
	notify := cfg.OnStateChange
	if notify == nil {
		return opts
	}
	return append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) { notify(ConnDisconnected, err) }),
		nats.ReconnectHandler(func(*nats.Conn) { notify(ConnReconnected, nil) }),
		nats.ClosedHandler(func(nc *nats.Conn) { notify(ConnClosed, nc.LastError()) }),
	)
}

func (b *NATSBus) Publish(_ context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.nc.Publish(subject, data)
}

func (b *NATSBus) Subscribe(_ context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	// Callbacks of one nats.Subscription run serially, which is what keeps
	// directive chunks in order.
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		reply := handler(&Message{Subject: m.Subject, Data: m.Data, ReplyTo: m.Reply})
		if reply != nil && m.Reply != "" {
			_ = m.Respond(reply)
		}
	})
	if err != nil {
		return nil, err
	}
	return natsSubscription{sub}, nil
}

func (b *NATSBus) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m, err := b.nc.RequestWithContext(ctx, subject, data)
	switch {
	case err == nil:
		return m.Data, nil
	case errors.Is(err, nats.ErrNoResponders):
		return nil, ErrNoResponders
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return nil, ErrTimeout
	default:
		return nil, err
	}
}

// Close drains in-flight messages, falling back to a hard close.
func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
	return nil
}

type natsSubscription struct {
	*nats.Subscription
}

func (s natsSubscription) Subject() string {
	return s.Subscription.Subject
}
