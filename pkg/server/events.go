package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
)

const (
	wsPingInterval = 20 * time.Second
	wsPingTimeout  = 5 * time.Second
	wsWriteTimeout = 15 * time.Second
)

// handleEvents streams telemetry events as JSON websocket messages.
// ?batch=<id> limits the stream to one batch.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.eventClients.Acquire() {
		respondError(w, http.StatusServiceUnavailable,
			apperrors.New(apperrors.ErrCodeClosed, "too many event streams").WithRetryable(true))
		return
	}
	defer s.eventClients.Release()

	// Subscribe before the upgrade so nothing published after the handshake
	// is missed.
	events, unsubscribe := s.telemetry.SubscribeFiltered(telemetry.ForBatch(r.URL.Query().Get("batch")))
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(logging.CategoryServer, "ws_accept_failed", "event stream upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	conn.SetReadLimit(maxWSReadBytes)
	metricEventClients.Inc()
	defer metricEventClients.Dec()

	ctx := conn.CloseRead(r.Context())
	startWSPing(ctx, conn)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutdown")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug(logging.CategoryServer, "ws_write_failed", "event stream write failed", map[string]any{
						"error": err.Error(),
					})
				}
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev telemetry.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		// Unencodable event data is skipped.
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func startWSPing(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
				_ = conn.Ping(pingCtx)
				cancel()
			}
		}
	}()
}
