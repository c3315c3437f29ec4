package httpadapter

import (
	"net/http"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamReadLimit  = 512
)

type streamMessage struct {
	Type string      `json:"type"`
	Feed domain.Feed `json:"feed"`
}

// handleStream upgrades to a websocket and pushes every published feed. The
// current feed, if any, is sent on connect. Clients only ever receive the
// latest feed; intermediate versions are skipped when a client falls behind.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	feeds, unsubscribe := s.deps.Store.Subscribe()
	s.metrics.StreamClients.Inc()
	s.logger.Debug("stream client connected", "remote", r.RemoteAddr)

	defer func() {
		unsubscribe()
		s.metrics.StreamClients.Dec()
		s.logger.Debug("stream client disconnected", "remote", r.RemoteAddr)
	}()

	go s.readPump(conn, unsubscribe)
	s.writePump(conn, feeds)
}

// readPump discards client messages and unsubscribes once the peer goes
// away, which ends writePump.
func (s *Server) readPump(conn *websocket.Conn, unsubscribe func()) {
	defer unsubscribe()

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("stream read error", "error", err)
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, feeds <-chan domain.Feed) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close() //nolint:errcheck // connection is being discarded
	}()

	for {
		select {
		case feed, ok := <-feeds:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(streamMessage{Type: "feed", Feed: feed}); err != nil {
				s.logger.Debug("stream write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
