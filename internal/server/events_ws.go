package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// handleEvents upgrades the connection to a WebSocket and streams bus
// events (job progress, advisory notices, backups) until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Single-user tool on a trusted network, browser dashboards
		// may run on another port.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	events, cancel := s.bus.Subscribe()
	defer cancel()

	// CloseRead surfaces client disconnects through ctx cancellation;
	// we never expect inbound messages.
	ctx := conn.CloseRead(r.Context())

	s.log.Debug().Msg("事件流客户端已连接")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "bus closed")
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			writeCancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("事件流写入失败，断开客户端")
				return
			}
		}
	}
}
