// WebSocket fan-out of engine events to local UI clients.
package main

import (
	"encoding/json"
	"net/http"
	"strings"
	stdsync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reptrack/backend/internal/logging"
	"github.com/reptrack/backend/internal/models"
	syncpkg "github.com/reptrack/backend/internal/sync"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The daemon serves a local UI only.
		return strings.HasPrefix(r.Host, "localhost") || strings.HasPrefix(r.Host, "127.0.0.1")
	},
}

// WSEnvelope wraps every message pushed to clients.
type WSEnvelope struct {
	Type      string             `json:"type"`
	Status    *models.SyncStatus `json:"status,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// WSClient is one connected UI client.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub tracks connected clients and fans engine events out to them.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	mu         stdsync.RWMutex
}

// NewWSHub creates the hub and starts its dispatch loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
	go hub.run()
	return hub
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client connected",
				map[string]interface{}{"id": client.id, "total": total})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected",
				map[string]interface{}{"id": client.id, "total": total})

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full, drop the client.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent pushes an engine event to every connected client. Wired to
// the engine via Subscribe.
func (h *WSHub) BroadcastEvent(ev syncpkg.Event) {
	status := ev.Status
	envelope := WSEnvelope{
		Type:      string(ev.Type),
		Status:    &status,
		Error:     ev.Error,
		Timestamp: time.Now().Unix(),
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal WebSocket event", err)
		return
	}

	select {
	case h.broadcast <- bytes:
	default:
		logging.Warn("WebSocket broadcast buffer full, event dropped",
			map[string]interface{}{"type": string(ev.Type)})
	}
}

// readPump drains client messages; the protocol is push-only, so anything
// received besides control frames is ignored.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("WebSocket read error",
					map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
}

// writePump pushes queued messages and keepalive pings to the client.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("WebSocket upgrade failed",
				map[string]interface{}{"error": err.Error()})
			return
		}

		client := &WSClient{
			id:   time.Now().Format("20060102150405.000000000") + "-" + r.RemoteAddr,
			conn: conn,
			send: make(chan []byte, 256),
			hub:  hub,
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
