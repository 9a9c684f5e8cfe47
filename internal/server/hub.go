package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/metrics"
	"github.com/gorilla/websocket"
)

type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Hub fans session and health updates out to websocket clients. Clients
// that cannot keep up are dropped rather than slowing the broadcaster.
type Hub struct {
	upgrader websocket.Upgrader
	// greeting, when set, is sent to every client right after it connects.
	greeting func() Message

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(greeting func() Message) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// same policy as the CORS middleware
				return true
			},
		},
		greeting: greeting,
		clients:  map[*client]struct{}{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	if h.greeting != nil {
		if b, err := encode(h.greeting()); err == nil {
			c.send <- b
		}
	}
	h.addClient(c)

	go h.writePump(c)
	h.readPump(c)
}

func encode(msg Message) ([]byte, error) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	return json.Marshal(msg)
}

func (h *Hub) Broadcast(msgType string, data any) {
	b, err := encode(Message{Type: msgType, Data: data})
	if err != nil {
		slog.Error("failed to encode websocket message", "type", msgType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			slog.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			h.dropLocked(c)
		}
	}
}

// size is the number of connected clients.
func (h *Hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
