package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaml-ai/camel-go/internal/log"
)

// collectEvents drains the channel until it closes or the timeout fires.
func collectEvents(t *testing.T, ch PushChannel, want int) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(5 * time.Second)
	for len(events) < want {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", want, len(events))
		}
	}
	return events
}

func TestOpenSSE(t *testing.T) {
	t.Run("parses events in delivery order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)

			fmt.Fprint(w, "event: message\ndata: {\"id\":\"m1\"}\n\n")
			fmt.Fprint(w, ": keep-alive comment\n")
			fmt.Fprint(w, "event: status_update\ndata: \"Running SQL\"\n\n")
			fmt.Fprint(w, "event: streamEnded\ndata: \n\n")
			flusher.Flush()
		}))
		defer srv.Close()

		ch, err := OpenSSE(context.Background(), srv.Client(), srv.URL, StaticCredential("tok"), log.NewNop())
		require.NoError(t, err)
		defer ch.Close()

		events := collectEvents(t, ch, 3)
		require.Len(t, events, 3)
		assert.Equal(t, EventMessage, events[0].Type)
		assert.Equal(t, `{"id":"m1"}`, string(events[0].Data))
		assert.Equal(t, EventStatusUpdate, events[1].Type)
		assert.Equal(t, `"Running SQL"`, string(events[1].Data))
		assert.Equal(t, EventStreamEnded, events[2].Type)
	})

	t.Run("multi-line data joins with newlines", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: message\ndata: line one\ndata: line two\n\n")
		}))
		defer srv.Close()

		ch, err := OpenSSE(context.Background(), srv.Client(), srv.URL, StaticCredential("tok"), log.NewNop())
		require.NoError(t, err)
		defer ch.Close()

		events := collectEvents(t, ch, 1)
		assert.Equal(t, "line one\nline two", string(events[0].Data))
	})

	t.Run("field value without space after colon", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event:status_update\ndata:\"charting\"\n\n")
		}))
		defer srv.Close()

		ch, err := OpenSSE(context.Background(), srv.Client(), srv.URL, StaticCredential("tok"), log.NewNop())
		require.NoError(t, err)
		defer ch.Close()

		events := collectEvents(t, ch, 1)
		assert.Equal(t, EventStatusUpdate, events[0].Type)
		assert.Equal(t, `"charting"`, string(events[0].Data))
	})

	t.Run("event without name defaults to message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"id\":\"m1\"}\n\n")
		}))
		defer srv.Close()

		ch, err := OpenSSE(context.Background(), srv.Client(), srv.URL, StaticCredential("tok"), log.NewNop())
		require.NoError(t, err)
		defer ch.Close()

		events := collectEvents(t, ch, 1)
		assert.Equal(t, EventMessage, events[0].Type)
	})

	t.Run("non-200 response fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := OpenSSE(context.Background(), srv.Client(), srv.URL, StaticCredential("tok"), log.NewNop())
		assert.Error(t, err)
	})

	t.Run("events channel closes when server ends the stream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: streamEnded\ndata: \n\n")
		}))
		defer srv.Close()

		ch, err := OpenSSE(context.Background(), srv.Client(), srv.URL, StaticCredential("tok"), log.NewNop())
		require.NoError(t, err)

		_ = collectEvents(t, ch, 1)

		select {
		case _, ok := <-ch.Events():
			assert.False(t, ok, "events channel should close")
		case <-time.After(5 * time.Second):
			t.Fatal("events channel did not close")
		}
		assert.NoError(t, ch.Err())
	})
}
