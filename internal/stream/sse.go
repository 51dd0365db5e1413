package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/qaml-ai/camel-go/internal/log"
)

// SSEChannel is the Server-Sent Events implementation of PushChannel.
type SSEChannel struct {
	events chan Event
	cancel context.CancelFunc
	body   io.ReadCloser
	logger log.Logger

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// OpenSSE connects to the thread's event stream and starts the read loop.
// The request carries the bearer credential from creds.
func OpenSSE(ctx context.Context, client *http.Client, url string, creds CredentialProvider, logger log.Logger) (*SSEChannel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	token, err := creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req) //nolint:bodyclose // closed by the read loop or Close
	if err != nil {
		return nil, fmt.Errorf("connect event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	ch := &SSEChannel{
		events: make(chan Event, 16),
		cancel: cancel,
		body:   resp.Body,
		logger: logger,
	}
	go ch.readLoop(readCtx, resp.Body)
	return ch, nil
}

// Events implements PushChannel.
func (c *SSEChannel) Events() <-chan Event {
	return c.events
}

// Close implements PushChannel. It cancels the read loop; the events
// channel closes once the loop drains.
func (c *SSEChannel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.body.Close()
	})
	return nil
}

// Err implements PushChannel.
func (c *SSEChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// readLoop parses the SSE wire format: "event:"/"data:" lines accumulate
// until a blank line terminates the event. Unknown field names and comments
// are skipped per the SSE spec.
func (c *SSEChannel) readLoop(ctx context.Context, body io.ReadCloser) {
	defer close(c.events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	eventType := string(EventMessage)
	var eventData bytes.Buffer

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			// A blank line after only comments carries nothing to dispatch.
			if eventData.Len() > 0 || eventType != string(EventMessage) {
				data := strings.TrimSuffix(eventData.String(), "\n")
				c.dispatch(ctx, eventType, data)
			}

			eventType = string(EventMessage)
			eventData.Reset()
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = fieldValue(line, "event:")
		case strings.HasPrefix(line, "data:"):
			eventData.WriteString(fieldValue(line, "data:"))
			eventData.WriteByte('\n')
		case strings.HasPrefix(line, ":"):
			// Comment line; keep-alive heartbeats arrive this way.
		default:
			// id:/retry: fields are not used by this protocol.
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.logger.Warn("event stream read error", "error", err)
	}
}

// fieldValue strips the field name plus the single optional space the SSE
// format allows after the colon.
func fieldValue(line, field string) string {
	return strings.TrimPrefix(strings.TrimPrefix(line, field), " ")
}

func (c *SSEChannel) dispatch(ctx context.Context, eventType, data string) {
	select {
	case c.events <- Event{Type: EventType(eventType), Data: []byte(data)}:
	case <-ctx.Done():
	}
}
