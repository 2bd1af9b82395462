package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait.
	pingPeriod = 54 * time.Second

	// Maximum inbound frame size in bytes.
	maxFrameSize = 4096

	// Outbound queue depth per connection. A connection that falls this
	// far behind a broadcast is dropped as a slow client.
	sendQueueSize = 256
)

// Client adapts one gorilla/websocket connection to the hub's Conn
// interface. The read pump decodes frames into hub events; the write pump
// drains the send queue in FIFO order, which preserves per-room broadcast
// ordering for this recipient.
type Client struct {
	id     uuid.UUID
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	logger zerolog.Logger
}

// NewClient wraps an upgraded WebSocket connection. The caller registers it
// with the hub and then calls Start.
func NewClient(hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	id := uuid.New()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		logger: logger.With().Str("component", "client").Str("conn", id.String()).Logger(),
	}
}

// ID returns the connection's opaque identifier.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Enqueue offers a frame to the send queue without blocking.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close shuts the send queue, which makes the write pump send a close frame
// and tear the connection down. Idempotent; only called from the hub loop.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads frames from the peer and dispatches them as hub events.
// When the read side fails the connection is unregistered, which is what
// turns a dropped socket into a disconnect event.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to set read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("unexpected read error")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Warn().Err(err).Msg("invalid frame; dropped")
			continue
		}
		if f.Event == "" {
			c.logger.Warn().Msg("frame without event name; dropped")
			continue
		}

		c.hub.Dispatch(Event{ConnID: c.id, Name: f.Event, Data: f.Data})
	}
}

// writePump drains the send queue to the peer and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// Hub closed the queue.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
