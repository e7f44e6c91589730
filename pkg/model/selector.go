// Package model tracks which reasoning model the producer of directives
// should use. The engine flips it when it executes a model marker.
package model

import (
	"sync"
	"time"

	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
)

const maxHistory = 32

// Switch records one change of the active model.
type Switch struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// SwitchHook observes a model change.
type SwitchHook func(Switch)

// Selector holds the active model id.
type Selector struct {
	mu      sync.RWMutex
	current string
	history []Switch
	hooks   []SwitchHook

	hub    *telemetry.Hub
	logger *logging.Logger
	now    func() time.Time
}

// NewSelector creates a selector starting on initial.
func NewSelector(initial string, hub *telemetry.Hub, logger *logging.Logger) *Selector {
	return &Selector{
		current: initial,
		hub:     hub,
		logger:  logger,
		now:     time.Now,
	}
}

// OnSwitch registers a hook called after each change.
func (s *Selector) OnSwitch(hook SwitchHook) {
	if s == nil || hook == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// Current returns the active model id.
func (s *Selector) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// History returns recent switches, oldest first.
func (s *Selector) History() []Switch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Switch(nil), s.history...)
}

// SwitchTo makes id the active model. Selecting the active model again is
// recorded as well, since the marker is an explicit request.
func (s *Selector) SwitchTo(id string) {
	if s == nil || id == "" {
		return
	}

	s.mu.Lock()
	sw := Switch{From: s.current, To: id, At: s.now()}
	s.current = id
	s.history = append(s.history, sw)
	if len(s.history) > maxHistory {
		s.history = append([]Switch(nil), s.history[len(s.history)-maxHistory:]...)
	}
	hooks := append([]SwitchHook(nil), s.hooks...)
	s.mu.Unlock()

	s.logger.Info(logging.CategoryEngine, "model_switched", "reasoning model changed", map[string]any{
		"from": sw.From,
		"to":   sw.To,
	})
	s.hub.Publish(telemetry.Event{
		Type:      telemetry.EventModelSwitched,
		Timestamp: sw.At,
		Data:      map[string]any{"from": sw.From, "to": sw.To},
	})
	for _, hook := range hooks {
		hook(sw)
	}
}
