package daemon

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wedge/internal/api"
	"wedge/internal/logging"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	go c.writePump()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// hub fans scan events out to every connected websocket client.
type hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logging.NewComponentLogger(logger, "ws-hub"),
		clients: make(map[*wsClient]bool),
	}
}

func (h *hub) add(conn *websocket.Conn) *wsClient {
	c := newWSClient(conn)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// send queues msg for one client. A client that cannot keep up is dropped.
func (h *hub) send(c *wsClient, msg api.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("websocket message encode failed", logging.Error(err))
		return
	}
	h.deliver(c, data)
}

func (h *hub) broadcast(msg api.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("websocket message encode failed", logging.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, data)
	}
}

func (h *hub) deliver(c *wsClient, data []byte) {
	h.mu.RLock()
	_, ok := h.clients[c]
	if ok {
		select {
		case c.send <- data:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()
	if !ok {
		return
	}
	logging.Warn(h.logger, "websocket client too slow; disconnecting", logging.Problem{
		Event:  "ws_client_dropped",
		Impact: "client stops receiving scans until it reconnects",
		Hint:   "check the browser surface for a stalled event loop",
	})
	h.remove(c)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
