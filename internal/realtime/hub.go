// Package realtime relays board mutation notifications between the
// websocket connections subscribed to a board.
package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Client to server events.
const (
	EventJoinBoard  = "join-board"
	EventLeaveBoard = "leave-board"
	EventCardUpdate = "card-update"
	EventCardMove   = "card-move"
	EventListUpdate = "list-update"
)

// Server to client events.
const (
	EventCardUpdated = "card-updated"
	EventCardMoved   = "card-moved"
	EventListUpdated = "list-updated"
	EventError       = "error"
)

var relayed = map[string]string{
	EventCardUpdate: EventCardUpdated,
	EventCardMove:   EventCardMoved,
	EventListUpdate: EventListUpdated,
}

// Message is a single frame on the channel in either direction.
type Message struct {
	Event   string          `json:"event"`
	BoardID string          `json:"boardId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BoardAuthorizer decides whether a user may join a board's channel.
type BoardAuthorizer interface {
	CanAccessBoard(ctx context.Context, userID, boardID string) error
}

// Hub tracks which connections are subscribed to which board.
type Hub struct {
	auth     BoardAuthorizer
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	boards  map[string]map[*Client]struct{}
}

// NewHub builds a hub. allowedOrigin, when non-empty, must match the
// Origin header of upgrade requests.
func NewHub(auth BoardAuthorizer, allowedOrigin string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Hub{
		auth:    auth,
		logger:  logger,
		clients: map[*Client]struct{}{},
		boards:  map[string]map[*Client]struct{}{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || origin == "" || origin == allowedOrigin
		},
	}
	return h
}

// ServeWS upgrades an already authenticated request and blocks until the
// connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	c := newClient(h, conn, userID)
	h.register(c)
	h.logger.Debug("websocket connected", "user_id", userID)

	go c.writePump()
	c.readPump()
}

// Subscribers reports how many connections have joined boardID.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[boardID])
}

// Close disconnects every client. Used on shutdown since hijacked
// connections outlive http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister removes c from every channel and closes its send queue. After
// it returns no broadcast can reach c.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	for boardID := range c.boards {
		h.removeLocked(boardID, c)
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

func (h *Hub) join(boardID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.boards[boardID]
	if !ok {
		subs = map[*Client]struct{}{}
		h.boards[boardID] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) leave(boardID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(boardID, c)
}

func (h *Hub) removeLocked(boardID string, c *Client) {
	subs := h.boards[boardID]
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.boards, boardID)
	}
}

// broadcast queues frame for every subscriber of boardID except sender.
// Subscribers whose queue is full miss the frame.
func (h *Hub) broadcast(boardID string, sender *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.boards[boardID] {
		if c == sender {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping realtime frame for slow client", "board_id", boardID, "user_id", c.userID)
		}
	}
}
