// Package broadcast implements the realtime push channel: a websocket hub
// that fans an executeScript event out to every connected session when a
// rule triggers or an operator force-executes a snippet.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tracklight/internal/telemetry"
)

// Event is the wire payload sent to connected sessions.
type Event struct {
	Event       string `json:"event"`
	SnippetID   string `json:"snippetId"`
	SnippetCode string `json:"snippetCode"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// upgrader accepts any origin: the channel is consumed by beacons embedded
// in arbitrary third-party pages.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected sessions and broadcasts events to all of them.
// Delivery is at-most-once: a session with a full send buffer is dropped
// rather than blocking the trigger path.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     log,
	}
}

// ExecuteScript broadcasts an executeScript event carrying the snippet body
// to every connected session. Fire-and-forget.
func (h *Hub) ExecuteScript(snippetID, code string) {
	payload, err := json.Marshal(Event{Event: "executeScript", SnippetID: snippetID, SnippetCode: code})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow client; it will catch up through the pull path.
		}
	}
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and registers the session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	telemetry.RealtimeClients.Inc()
	h.log.Debug().Int("clients", h.ClientCount()).Msg("realtime client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		telemetry.RealtimeClients.Dec()
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// readPump discards inbound frames; the channel is server-to-client only.
// It exists to process control frames and detect closed connections.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
