package gesture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	mu       sync.Mutex
	accept   bool
	outcomes []Outcome
	async    bool
	got      []Gesture
}

func (h *fakeHost) DispatchGesture(g Gesture, done func(Outcome)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accept {
		return false
	}
	h.got = append(h.got, g)
	outcomes := append([]Outcome(nil), h.outcomes...)
	report := func() {
		for _, o := range outcomes {
			done(o)
		}
	}
	if h.async {
		go report()
	} else {
		report()
	}
	return true
}

func fixedSize(w, h int) func() Size {
	return func() Size { return Size{Width: w, Height: h} }
}

func TestTapCompletes(t *testing.T) {
	host := &fakeHost{accept: true, outcomes: []Outcome{Completed}, async: true}
	d := NewDispatcher(host, fixedSize(1000, 2000), Options{}, nil)

	p, err := d.Tap(500, 1600)
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))

	require.Len(t, host.got, 1)
	assert.Equal(t, []Point{{500, 1600}}, host.got[0].Path)
	assert.Equal(t, DefaultTapDuration, host.got[0].Duration)
}

func TestDispatchClampsToDisplay(t *testing.T) {
	host := &fakeHost{accept: true, outcomes: []Outcome{Completed}}
	d := NewDispatcher(host, fixedSize(1000, 2000), Options{}, nil)

	p, err := d.Swipe(Point{-20, 500}, Point{1500, 2600}, 300*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []Point{{0, 500}, {999, 1999}}, p.Gesture().Path)
	assert.Equal(t, 300*time.Millisecond, p.Gesture().Duration)
}

func TestDispatchRejected(t *testing.T) {
	d := NewDispatcher(&fakeHost{accept: false}, fixedSize(1000, 2000), Options{}, nil)
	p, err := d.Tap(1, 1)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrNotDispatched))
}

func TestCancelledOutcome(t *testing.T) {
	host := &fakeHost{accept: true, outcomes: []Outcome{Cancelled}, async: true}
	d := NewDispatcher(host, fixedSize(100, 100), Options{}, nil)

	p, err := d.Tap(10, 10)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Wait(context.Background()), ErrCancelled)
}

func TestDuplicateCallbacksIgnored(t *testing.T) {
	host := &fakeHost{accept: true, outcomes: []Outcome{Completed, Cancelled, Cancelled}}
	d := NewDispatcher(host, fixedSize(100, 100), Options{}, nil)

	p, err := d.LongPress(10, 10)
	require.NoError(t, err)
	assert.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, DefaultLongPressDuration, p.Gesture().Duration)
}

func TestWaitTimesOut(t *testing.T) {
	host := &fakeHost{accept: true}
	d := NewDispatcher(host, fixedSize(100, 100), Options{
		TapDuration: time.Millisecond,
		Timeout:     10 * time.Millisecond,
	}, nil)

	p, err := d.Tap(10, 10)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Wait(context.Background()), ErrTimeout)
}

func TestWaitHonorsContext(t *testing.T) {
	d := NewDispatcher(&fakeHost{accept: true}, fixedSize(100, 100), Options{Timeout: time.Hour}, nil)
	p, err := d.Tap(10, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
