package pilot

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/odvcencio/screenpilot/pkg/bus"
	"github.com/odvcencio/screenpilot/pkg/logging"
)

// Chunk is the JSON payload accepted on the directives subject. Producers
// may also publish raw text.
type Chunk struct {
	Text  string `json:"text"`
	Clear bool   `json:"clear,omitempty"`
}

// Ack is the reply to a clear request, and to directive chunks published
// with a reply subject.
type Ack struct {
	OK      bool   `json:"ok"`
	BatchID string `json:"batchId,omitempty"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// BusBridge feeds directive chunks arriving on the bus into a Pilot.
type BusBridge struct {
	pilot    *Pilot
	bus      bus.MessageBus
	subjects bus.Subjects
	logger   *logging.Logger

	mu   sync.Mutex
	subs []bus.Subscription
}

// NewBusBridge creates a bridge between the bus and p.
func NewBusBridge(p *Pilot, b bus.MessageBus, subjects bus.Subjects, logger *logging.Logger) *BusBridge {
	return &BusBridge{pilot: p, bus: b, subjects: subjects, logger: logger}
}

// Start subscribes to the directive and clear subjects.
func (br *BusBridge) Start(ctx context.Context) error {
	directives, err := br.bus.Subscribe(ctx, br.subjects.Directives(), br.handleChunk(ctx))
	if err != nil {
		return err
	}
	br.mu.Lock()
	br.subs = append(br.subs, directives)
	br.mu.Unlock()

	clearSub, err := br.bus.Subscribe(ctx, br.subjects.Clear(), func(*bus.Message) []byte {
		br.pilot.Clear()
		return encodeAck(Ack{OK: true})
	})
	if err != nil {
		br.Stop()
		return err
	}
	br.mu.Lock()
	br.subs = append(br.subs, clearSub)
	br.mu.Unlock()

	br.logger.Info(logging.CategoryPilot, "bus_bridge_started", "listening for directives", map[string]any{
		"subject": br.subjects.Directives(),
	})
	return nil
}

// Stop unsubscribes from all subjects.
func (br *BusBridge) Stop() {
	br.mu.Lock()
	defer br.mu.Unlock()
	for _, sub := range br.subs {
		_ = sub.Unsubscribe()
	}
	br.subs = nil
}

func (br *BusBridge) handleChunk(ctx context.Context) bus.MessageHandler {
	return func(msg *bus.Message) []byte {
		chunk := decodeChunk(msg.Data)
		sub, err := br.pilot.Feed(ctx, chunk.Text, chunk.Clear, "bus")
		ack := Ack{OK: err == nil, BatchID: sub.BatchID, Count: len(sub.Commands)}
		if err != nil {
			ack.Error = err.Error()
			br.logger.Warn(logging.CategoryPilot, "bus_feed_failed", "could not queue directive chunk", map[string]any{
				"error": err.Error(),
			})
		}
		if msg.ReplyTo == "" {
			return nil
		}
		return encodeAck(ack)
	}
}

// decodeChunk accepts a Chunk object or raw text.
func decodeChunk(data []byte) Chunk {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var c Chunk
		if err := json.Unmarshal(data, &c); err == nil {
			return c
		}
	}
	return Chunk{Text: string(data)}
}

func encodeAck(a Ack) []byte {
	data, err := json.Marshal(a)
	if err != nil {
		return []byte(`{"ok":false}`)
	}
	return data
}
