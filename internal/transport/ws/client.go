package ws

import (
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one WebSocket connection. Outbound writes go through the send
// channel so the writer pump is the only goroutine touching the socket for
// writes.
type Client struct {
	conn *websocket.Conn
	send chan outboundMessage

	// Guarded by the hub mutex once the client enters a room.
	sessionID string
	userID    string
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan outboundMessage, 32),
	}
}

// writePump drains the send channel onto the socket. It exits when the send
// channel closes or a write fails.
func (c *Client) writePump(logger *zap.Logger) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			logger.Debug("ws write error", zap.Error(err))
			return
		}
	}
}
