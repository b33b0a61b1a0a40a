package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collabtext/protocol"
)

// Client is one participant connected to this instance.
type Client struct {
	id   string
	room string
	hub  *Hub
	conn *websocket.Conn
	// codec is the one negotiated for this connection.
	codec protocol.Codec
	send  chan []byte

	closeOnce sync.Once
}

// closeSend must be called with the hub lock held.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump publishes the client's updates to its room, stamped with
// the client's id, until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(ctx, c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Info("client read failed", "client", c.id, "error", err)
			}
			return
		}
		msg, err := c.codec.Decode(frame)
		if err != nil {
			c.hub.logger.Warn("dropping undecodable frame", "client", c.id, "error", err)
			continue
		}
		if msg.Event != protocol.EventUpdate {
			c.hub.logger.Debug("ignoring event", "client", c.id, "event", msg.Event)
			continue
		}
		stamped, err := c.stamp(msg)
		if err != nil {
			c.hub.logger.Warn("restamping update", "client", c.id, "error", err)
			continue
		}
		if err := c.hub.broker.Publish(ctx, c.room, stamped); err != nil {
			c.hub.logger.Error("publishing update", "room", c.room, "error", err)
		}
	}
}

// stamp marks msg as sent by c and frames it for the broker.
func (c *Client) stamp(msg protocol.Message) ([]byte, error) {
	if c.codec.Subprotocol() == c.hub.codec.Subprotocol() {
		return c.codec.Restamp(msg, c.id)
	}
	msg.From = c.id
	return protocol.Transcode(msg, c.hub.codec)
}

func (c *Client) writePump() {
	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(messageType, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
