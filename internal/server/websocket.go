package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trailhound/trailhound/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API carries no cookies, so cross-origin reads leak nothing
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams an investigation's progress events over a
// websocket. The stream closes after the terminal event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, unsubscribe, err := s.coordinator.Subscribe(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		unsubscribe()
		s.logger.Warn("websocket upgrade failed", "investigation_id", id, "error", err)
		return
	}
	s.logger.Debug("progress stream opened", "investigation_id", id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer unsubscribe()
	defer conn.Close()

	// Reads only serve to notice the peer going away
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				deadline := time.Now().Add(wsWriteWait)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "investigation finished")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
			if err := s.writeEvent(conn, ev); err != nil {
				s.logger.Debug("progress stream dropped", "investigation_id", id, "error", err)
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev models.ProgressEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}
