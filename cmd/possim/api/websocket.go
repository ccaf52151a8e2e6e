package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/history"
	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Hub streams every published event to connected WebSocket clients as JSON
// records. Clients that fall behind are dropped.
type Hub struct {
	logger *slog.Logger
	detach func()

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn       *websocket.Conn
	deviceType model.DeviceType
	send       chan []byte
	once       sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.send) })
}

// NewHub subscribes a hub to all events of hist.
func NewHub(hist *history.History, logger *slog.Logger) *Hub {
	h := &Hub{logger: logger, clients: make(map[*client]struct{})}
	h.detach = hist.SubscribeAll(h.broadcast)
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request. The optional device_type query parameter
// restricts the stream to one device type.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		conn:       conn,
		deviceType: model.DeviceType(r.URL.Query().Get("device_type")),
		send:       make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Debug("websocket client connected", "remote", r.RemoteAddr, "deviceType", c.deviceType)
	}

	go h.writeLoop(c)

	// Read until the peer goes away; inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *Hub) broadcast(e model.Event) {
	msg, err := json.Marshal(e.Record())
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("websocket encode failed", "event", e.String(), "error", err)
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.deviceType != "" && c.deviceType != e.DeviceType() {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			c.stop()
			if h.logger != nil {
				h.logger.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			}
		}
	}
}

// Close unsubscribes from the history and disconnects every client.
func (h *Hub) Close() {
	h.detach()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
}
