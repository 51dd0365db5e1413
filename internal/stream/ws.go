package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qaml-ai/camel-go/internal/log"
)

// WSChannel is the WebSocket implementation of PushChannel. The server
// sends one JSON frame per event: {"event": "...", "data": ...}. The session
// state machine is transport-agnostic, so deployments behind proxies that
// buffer SSE can switch to this channel without other changes.
type WSChannel struct {
	events chan Event
	conn   *websocket.Conn
	logger log.Logger
	done   chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// wsFrame is the wire shape of one WebSocket event frame.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OpenWS dials the thread's WebSocket endpoint and starts the read loop.
func OpenWS(ctx context.Context, url string, creds CredentialProvider, logger log.Logger) (*WSChannel, error) {
	token, err := creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain credential: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dial event socket: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	ch := &WSChannel{
		events: make(chan Event, 16),
		conn:   conn,
		logger: logger,
		done:   make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// Events implements PushChannel.
func (c *WSChannel) Events() <-chan Event {
	return c.events
}

// Close implements PushChannel.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
		c.conn.Close()
	})
	return nil
}

// Err implements PushChannel.
func (c *WSChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *WSChannel) readLoop() {
	defer close(c.events)

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				c.logger.Warn("event socket read error", "error", err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			// Malformed frames are dropped; the socket stays open.
			c.logger.Warn("drop malformed event frame", "error", err)
			continue
		}

		// Deliver without blocking past Close: a consumer that stopped
		// reading must not strand this goroutine on a full buffer.
		select {
		case c.events <- Event{Type: EventType(frame.Event), Data: frame.Data}:
		case <-c.done:
			return
		}
	}
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}
