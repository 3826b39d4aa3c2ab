package fanout

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 30 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum inbound message size (resume payloads are small)
	maxMessageSize = 64 * 1024
)

// ResumeFunc routes an inbound resume message to the execution manager.
type ResumeFunc func(executionID, nodeID string, data any) error

// Client represents one WebSocket subscriber.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	executionID string
	send        chan []byte
	resume      ResumeFunc
	log         Logger
}

// NewClient creates a client bound to one execution.
func NewClient(hub *Hub, conn *websocket.Conn, executionID string, resume ResumeFunc, log Logger) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		executionID: executionID,
		send:        make(chan []byte, 512),
		resume:      resume,
		log:         log,
	}
}

// inboundMessage is what subscribers may send upstream.
type inboundMessage struct {
	Type   string `json:"type"`
	NodeID string `json:"nodeId"`
	Data   any    `json:"data"`
}

// readPump consumes inbound frames: resume messages route to the manager,
// everything else keeps the connection alive and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", "error", err)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "resume" {
			continue
		}

		if err := c.resume(c.executionID, msg.NodeID, msg.Data); err != nil {
			c.log.Warn("resume via websocket failed",
				"execution_id", c.executionID,
				"node_id", msg.NodeID,
				"error", err)
		}
	}
}

// writePump pushes event frames from the hub to the connection. Each event
// goes out as its own text frame so clients can parse frames individually.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
