package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"verdant/internal/events"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

var pingFrame = []byte(`{"type":"ping"}`)

// wsConn adapts a websocket connection to the broadcast Conn interface.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Write(ctx context.Context, payload []byte) error {
	return w.c.Write(ctx, websocket.MessageText, payload)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "server closing")
}

// handleWS upgrades the connection and registers it with the broadcast
// manager. withSnapshot sends the latest cached payload on connect; the
// alerts feed skips it because alerts are edges, not state.
func (s *Server) handleWS(topic events.Topic, withSnapshot bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		conn := &wsConn{c: c}

		if withSnapshot {
			if snapshot, ok := s.latest.get(topic); ok {
				ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
				err := conn.Write(ctx, snapshot)
				cancel()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}

		id := s.manager.Connect(topic, conn)
		defer s.manager.Disconnect(topic, id)

		// The client never sends application data; this read only
		// notices the close handshake.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := c.Read(r.Context()); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-readDone:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
				err := conn.Write(ctx, pingFrame)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}
}
