package model

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/screenpilot/pkg/telemetry"
)

func TestSelectorSwitchPublishesAndRecords(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	s := NewSelector("low", hub, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	var seen []Switch
	s.OnSwitch(func(sw Switch) { seen = append(seen, sw) })

	s.SwitchTo("high")

	assert.Equal(t, "high", s.Current())
	require.Len(t, seen, 1)
	assert.Equal(t, Switch{From: "low", To: "high", At: fixed}, seen[0])
	assert.Equal(t, seen, s.History())

	select {
	case ev := <-events:
		assert.Equal(t, telemetry.EventModelSwitched, ev.Type)
		assert.Equal(t, "high", ev.Data["to"])
		assert.Equal(t, "low", ev.Data["from"])
	case <-time.After(time.Second):
		t.Fatal("expected a model.switched event")
	}
}

func TestSelectorIgnoresEmptyID(t *testing.T) {
	s := NewSelector("low", nil, nil)
	s.SwitchTo("")
	assert.Equal(t, "low", s.Current())
	assert.Empty(t, s.History())
}

func TestSelectorRecordsRepeatedSelection(t *testing.T) {
	s := NewSelector("low", nil, nil)
	s.SwitchTo("low")
	require.Len(t, s.History(), 1)
	assert.Equal(t, "low", s.History()[0].From)
}

func TestSelectorHistoryIsBounded(t *testing.T) {
	s := NewSelector("m0", nil, nil)
	for i := 0; i < maxHistory+5; i++ {
		if i%2 == 0 {
			s.SwitchTo("high")
		} else {
			s.SwitchTo("low")
		}
	}
	assert.Len(t, s.History(), maxHistory)
}

func TestSelectorConcurrentSwitches(t *testing.T) {
	s := NewSelector("low", nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SwitchTo("high")
			_ = s.Current()
		}()
	}
	wg.Wait()
	assert.Equal(t, "high", s.Current())
}
