package hub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Conn is one websocket connection owned by the hub. A user can hold
// several connections at once (one per device).
type Conn struct {
	conn     *websocket.Conn
	userID   string
	coupleID string
	in       chan *Envelope
	hub      *Hub
	ticker   *time.Ticker
	logger   *slog.Logger
}

func (c *Conn) UserID() string {
	return c.userID
}

func (c *Conn) CoupleID() string {
	return c.coupleID
}

func (c *Conn) pass() chan<- *Envelope {
	return c.in
}

func (c *Conn) close() {
	close(c.in)
}

func (c *Conn) readLoop() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
		c.logger.Debug("exited read loop", slog.String("user.id", c.userID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if mt != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message type: %d", mt))
			continue
		}

		env, err := decodeEnvelope(r)
		if err != nil {
			c.logger.Error(fmt.Sprintf("DecodeEnvelope: %v", err))
			continue
		}

		c.hub.pass(&InPacket{
			SenderID: c.userID,
			CoupleID: c.coupleID,
			Event:    env.Event,
			Data:     env.Data,
		})
	}
}

func (c *Conn) writeLoop() {
	var err error
	defer func() {
		c.ticker.Stop()
		if err != nil {
			c.conn.Close()
		}
		c.logger.Debug("exited write loop", slog.String("user.id", c.userID))
	}()

	for {
		select {
		case env, ok := <-c.in:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err = c.conn.WriteJSON(env); err != nil {
				c.logger.Error(fmt.Sprintf("WriteJSON: %v", err))
				return
			}
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		}
	}
}
