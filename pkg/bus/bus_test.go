package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect subscribes to pattern and returns the received payloads.
func collect(t *testing.T, b MessageBus, pattern string) <-chan string {
	t.Helper()
	got := make(chan string, 16)
	sub, err := b.Subscribe(context.Background(), pattern, func(msg *Message) []byte {
		got <- msg.Subject + "=" + string(msg.Data)
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return got
}

func drain(ch <-chan string, settle time.Duration) []string {
	var out []string
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-time.After(settle):
			return out
		}
	}
}

func TestMemoryBus_DeliversToMatchingSubscriptions(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	exact := collect(t, b, "screenpilot.directives")
	status := collect(t, b, "screenpilot.status.*")
	everything := collect(t, b, "screenpilot.>")

	require.NoError(t, b.Publish(ctx, "screenpilot.directives", []byte("click('OK')")))
	require.NoError(t, b.Publish(ctx, "screenpilot.status.abc", []byte("1")))
	require.NoError(t, b.Publish(ctx, "screenpilot.status.abc.extra", []byte("2")))
	require.NoError(t, b.Publish(ctx, "other.status.abc", []byte("3")))

	settle := 100 * time.Millisecond
	assert.Equal(t, []string{"screenpilot.directives=click('OK')"}, drain(exact, settle))
	assert.Equal(t, []string{"screenpilot.status.abc=1"}, drain(status, settle))
	assert.Len(t, drain(everything, settle), 3)
}

func TestMemoryBus_FansOutToEverySubscriber(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		sub, err := b.Subscribe(context.Background(), "fanout", func(*Message) []byte {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()
	}

	require.NoError(t, b.Publish(context.Background(), "fanout", nil))
	assert.Eventually(t, func() bool { return count.Load() == 3 }, time.Second, 10*time.Millisecond)
}

func TestMemoryBus_RequestReply(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "screenpilot.control.clear", func(msg *Message) []byte {
		return append([]byte("cleared:"), msg.Data...)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	reply, err := b.Request(ctx, "screenpilot.control.clear", []byte("now"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "cleared:now", string(reply))
}

func TestMemoryBus_RequestErrors(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	_, err := b.Request(ctx, "nobody.home", nil, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoResponders)

	sub, err := b.Subscribe(ctx, "silent", func(*Message) []byte { return nil })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = b.Request(ctx, "silent", nil, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMemoryBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	var received atomic.Int32
	sub, err := b.Subscribe(ctx, "test", func(*Message) []byte {
		received.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "test", sub.Subject())

	require.NoError(t, b.Publish(ctx, "test", []byte("1")))
	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe(), "second unsubscribe is a no-op")
	require.NoError(t, b.Publish(ctx, "test", []byte("2")))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestMemoryBus_PreservesOrderPerSubscription(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	got := collect(t, b, "screenpilot.directives")
	chunks := []string{"clic", "k('OK')", " pressHome()"}
	for _, c := range chunks {
		require.NoError(t, b.Publish(context.Background(), "screenpilot.directives", []byte(c)))
	}

	for i, want := range chunks {
		select {
		case msg := <-got:
			assert.Equal(t, "screenpilot.directives="+want, msg, "chunk %d", i)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for chunk %d", i)
		}
	}
}

func TestMemoryBus_CountsDroppedDeliveries(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	taken := make(chan struct{}, 1)
	release := make(chan struct{})
	sub, err := b.Subscribe(ctx, "slow", func(*Message) []byte {
		select {
		case taken <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	defer close(release)

	require.NoError(t, b.Publish(ctx, "slow", nil))
	<-taken

	// The handler holds one message, so the buffer fills and the rest drop.
	for i := 0; i < memoryBufferSize+10; i++ {
		require.NoError(t, b.Publish(ctx, "slow", nil))
	}
	assert.Equal(t, uint64(10), b.Dropped())
	assert.Equal(t, uint64(10), sub.(*memorySubscription).dropped.Load())
}

func TestMemoryBus_ClosedOperations(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Close(), ErrClosed)

	ctx := context.Background()
	assert.ErrorIs(t, b.Publish(ctx, "test", nil), ErrClosed)
	_, err := b.Subscribe(ctx, "test", nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Request(ctx, "test", nil, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"foo", "foo", true},
		{"foo", "bar", false},
		{"foo.*", "foo.bar", true},
		{"foo.*", "foo.bar.baz", false},
		{"foo.>", "foo", false},
		{"foo.>", "foo.bar.baz", true},
		{"*.bar", "baz.bar", true},
		{"foo.>.baz", "foo.bar.baz", false},
		{"screenpilot.status.*", "screenpilot.status", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject), "%s vs %s", tt.pattern, tt.subject)
	}
}

func TestSubjects(t *testing.T) {
	s := Subjects{Prefix: "screenpilot"}

	assert.Equal(t, "screenpilot.directives", s.Directives())
	assert.Equal(t, "screenpilot.control.clear", s.Clear())
	assert.Equal(t, "screenpilot.status.01HX_a_b", s.Status("01HX.a*b"))
	assert.Equal(t, "screenpilot.status._", s.Status(""))
	assert.True(t, matchSubject(s.AllStatus(), s.Status("01HX")))
}

func TestOpenWithoutURLUsesMemoryBus(t *testing.T) {
	b, err := Open(Config{})
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &MemoryBus{}, b)
}

func TestNATSOptionsWireStateCallbacks(t *testing.T) {
	plain := natsOptions(DefaultConfig())

	cfg := DefaultConfig()
	cfg.OnStateChange = func(ConnState, error) {}
	assert.Len(t, natsOptions(cfg), len(plain)+3)
}
