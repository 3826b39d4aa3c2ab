// Package fanout pushes execution events to WebSocket subscribers and
// routes inbound resume messages back to the execution manager.
package fanout

import (
	"encoding/json"
	"sync"

	"github.com/flowscript/flowscript/common/events"
)

// Logger is the narrow logging interface fanout depends on.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Message is an event frame bound for one execution's subscribers.
type Message struct {
	ExecutionID string
	Data        []byte
}

// Hub maintains active WebSocket connections per execution and broadcasts
// event frames to them.
type Hub struct {
	connections map[string][]*Client
	mutex       sync.RWMutex
	log         Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
}

// NewHub creates a hub.
func NewHub(log Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		log:         log,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	h.log.Info("fanout hub started")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToExecution(message)
		}
	}
}

// Attach subscribes the hub to an execution's emitter. Matches the
// manager's Observer signature; events flow to any connected clients.
func (h *Hub) Attach(executionID string, emitter *events.Emitter) {
	emitter.SubscribeAll(func(ev events.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.log.Warn("failed to marshal event", "event", ev.Name, "error", err)
			return
		}
		select {
		case h.broadcast <- &Message{ExecutionID: executionID, Data: data}:
		default:
			h.log.Warn("fanout broadcast buffer full, dropping event",
				"execution_id", executionID,
				"event", ev.Name)
		}
	})
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.connections[client.executionID] = append(h.connections[client.executionID], client)
	h.log.Debug("client registered",
		"execution_id", client.executionID,
		"total", len(h.connections[client.executionID]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients := h.connections[client.executionID]
	for i, c := range clients {
		if c == client {
			h.connections[client.executionID] = append(clients[:i], clients[i+1:]...)
			close(client.send)

			if len(h.connections[client.executionID]) == 0 {
				delete(h.connections, client.executionID)
			}

			h.log.Debug("client unregistered", "execution_id", client.executionID)
			break
		}
	}
}

func (h *Hub) broadcastToExecution(message *Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range h.connections[message.ExecutionID] {
		select {
		case client.send <- message.Data:
		default:
			// Client's send buffer is full, drop the frame
			h.log.Warn("client send buffer full, dropping frame",
				"execution_id", client.executionID)
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}
