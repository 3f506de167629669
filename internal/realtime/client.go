package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
	authTimeout    = 5 * time.Second
)

// Client is one websocket connection. boards is owned by the read pump.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	boards map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		boards: map[string]struct{}{},
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		c.hub.logger.Debug("websocket disconnected", "user_id", c.userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.fail("", "malformed frame")
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	if msg.BoardID == "" {
		c.fail(msg.BoardID, "boardId is required")
		return
	}

	switch msg.Event {
	case EventJoinBoard:
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		err := c.hub.auth.CanAccessBoard(ctx, c.userID, msg.BoardID)
		cancel()
		if err != nil {
			c.hub.logger.Info("board join denied", "user_id", c.userID, "board_id", msg.BoardID, "error", err)
			c.fail(msg.BoardID, "Access denied")
			return
		}
		c.boards[msg.BoardID] = struct{}{}
		c.hub.join(msg.BoardID, c)

	case EventLeaveBoard:
		delete(c.boards, msg.BoardID)
		c.hub.leave(msg.BoardID, c)

	default:
		out, ok := relayed[msg.Event]
		if !ok {
			c.fail(msg.BoardID, "unknown event "+msg.Event)
			return
		}
		if _, joined := c.boards[msg.BoardID]; !joined {
			c.fail(msg.BoardID, "join the board before publishing")
			return
		}
		frame, err := json.Marshal(Message{Event: out, BoardID: msg.BoardID, UserID: c.userID, Data: msg.Data})
		if err != nil {
			c.fail(msg.BoardID, "malformed data")
			return
		}
		c.hub.broadcast(msg.BoardID, c, frame)
	}
}

// fail queues an error frame for this client only.
func (c *Client) fail(boardID, message string) {
	data, _ := json.Marshal(map[string]string{"message": message})
	frame, _ := json.Marshal(Message{Event: EventError, BoardID: boardID, Data: data})
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.logger.Debug("websocket write failed", "user_id", c.userID, "error", err)
				}
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
