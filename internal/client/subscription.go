package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/realtime"
)

const subscriptionWriteWait = 10 * time.Second

// Subscription is a realtime connection feeding a Store. It also publishes
// the Store's successful mutations.
type Subscription struct {
	conn   *websocket.Conn
	store  *Store
	logger *slog.Logger

	writeMu sync.Mutex
	done    chan struct{}
}

// Dial opens the realtime channel at wsURL with a bearer session token and
// starts feeding events into st.
func Dial(ctx context.Context, wsURL, token string, st *Store, logger *slog.Logger) (*Subscription, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	sub := &Subscription{conn: conn, store: st, logger: logger, done: make(chan struct{})}
	go sub.readLoop()
	return sub, nil
}

func (s *Subscription) Join(boardID string) error {
	return s.write(realtime.Message{Event: realtime.EventJoinBoard, BoardID: boardID})
}

func (s *Subscription) Leave(boardID string) error {
	return s.write(realtime.Message{Event: realtime.EventLeaveBoard, BoardID: boardID})
}

// Publish sends a client event such as card-update to boardID's channel.
func (s *Subscription) Publish(event, boardID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	return s.write(realtime.Message{Event: event, BoardID: boardID, Data: raw})
}

// Done is closed once the connection has gone away. To recover, Dial again,
// Join the open board and call Store.Resync.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(subscriptionWriteWait))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *Subscription) write(msg realtime.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(subscriptionWriteWait))
	return s.conn.WriteJSON(msg)
}

func (s *Subscription) readLoop() {
	defer close(s.done)
	for {
		var msg realtime.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("realtime read ended", "error", err)
			}
			return
		}
		if msg.Event == realtime.EventError {
			s.logger.Warn("realtime error", "board_id", msg.BoardID, "data", string(msg.Data))
			continue
		}
		s.store.ApplyEvent(msg)
	}
}
