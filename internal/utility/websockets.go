package utility

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// RefreshMessage tells a browser tab to reload its plan and chart data.
const RefreshMessage = "REFRESH"

// DefaultWriteWait bounds a single push so a stalled tab cannot hold the hub.
const DefaultWriteWait = 2 * time.Second

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin is left nil: handshakes whose Origin host differs from the
	// request host are rejected.
}

// Hub holds the open connections of every session. A session may have
// several tabs open, each with its own connection.
type Hub struct {
	mu        sync.Mutex
	clients   map[string]map[*websocket.Conn]struct{}
	writeWait time.Duration
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]map[*websocket.Conn]struct{}),
		writeWait: DefaultWriteWait,
	}
}

// Register a new client connection
func (h *Hub) Register(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[sessionID]
	if !ok {
		conns = make(map[*websocket.Conn]struct{})
		h.clients[sessionID] = conns
	}
	conns[conn] = struct{}{}
	log.Info().Str("session_id", sessionID).Int("tabs", len(conns)).Msg("WebSocket Client Connected")
}

// Unregister a client (when they close the tab)
func (h *Hub) Unregister(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, conn)
}

func (h *Hub) removeLocked(sessionID string, conn *websocket.Conn) {
	conns, ok := h.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := conns[conn]; !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, sessionID)
	}
	log.Info().Str("session_id", sessionID).Msg("WebSocket Client Disconnected")
}

// Notify sends REFRESH to every open tab of the session. Connections that
// fail the write, or do not accept it within the write wait, are closed and
// dropped.
func (h *Hub) Notify(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients[sessionID] {
		err := conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err == nil {
			err = conn.WriteMessage(websocket.TextMessage, []byte(RefreshMessage))
		}
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to send WS message, removing client")
			conn.Close()
			h.removeLocked(sessionID, conn)
		}
	}
}

// CloseSession closes every connection of an ended session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients[sessionID] {
		conn.Close()
	}
	delete(h.clients, sessionID)
}

// Count returns the number of open connections for the session.
func (h *Hub) Count(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}
