package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 5 * time.Second
	wsReadLimit = 512
)

// The API is served to the local operator console only.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type WSMessage struct {
	Type  string `json:"type"`
	TieID string `json:"tieId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type WSClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *WSClient) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// WSHub fans computation results out to every connected client.
type WSHub struct {
	mu       sync.RWMutex
	clients  map[*WSClient]struct{}
	log      *slog.Logger
	onChange func(n int)
}

func NewWSHub(log *slog.Logger, onChange func(n int)) *WSHub {
	return &WSHub{clients: make(map[*WSClient]struct{}), log: log, onChange: onChange}
}

func (h *WSHub) Add(conn *websocket.Conn) *WSClient {
	c := &WSClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.changed(n)
	return c
}

func (h *WSHub) Remove(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		h.changed(n)
	}
}

func (h *WSHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHub) changed(n int) {
	if h.onChange != nil {
		h.onChange(n)
	}
}

// Broadcast sends msg to all clients and drops those that fail.
func (h *WSHub) Broadcast(msg WSMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode ws message", "type", msg.Type, "err", err)
		return
	}
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(b); err != nil {
			h.log.Debug("dropping ws client", "err", err)
			h.Remove(c)
		}
	}
}

// handleWSTie streams landtie, bias and error events for every tie. Clients
// only listen; the read loop exists to notice the close.
func (s *Server) handleWSTie(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)
	c := s.hub.Add(conn)
	defer s.hub.Remove(c)
	s.log.Debug("ws client connected", "remote", r.RemoteAddr)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
