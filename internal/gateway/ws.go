package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsFrame mirrors the SSE framing over WebSocket: the event name plus
// the same JSON payload.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsSink pushes session events over a WebSocket connection. Keep-alive
// uses a control ping instead of a comment frame.
type wsSink struct {
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

func (s *wsSink) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(wsFrame{Event: event, Data: data})
}

func (s *wsSink) KeepAlive() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}
