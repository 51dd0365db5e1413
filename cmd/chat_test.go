package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qaml-ai/camel-go/internal/log"
	"github.com/qaml-ai/camel-go/internal/stream"
)

// stubChannel is an in-memory push channel fed by the test.
type stubChannel struct {
	events chan stream.Event
	once   sync.Once
}

func (s *stubChannel) Events() <-chan stream.Event { return s.events }
func (s *stubChannel) Err() error                  { return nil }

func (s *stubChannel) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

// TestTurnWaitAfterFailedSend reproduces the REPL's turn accounting: a send
// that fails signals turnDone synchronously via OnRetry, and without the
// drain the next successful turn's wait would return before the stream ends.
func TestTurnWaitAfterFailedSend(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"threadId": "abc"})
	}))
	t.Cleanup(srv.Close)

	client, err := stream.NewAPIClient(stream.APIConfig{
		BaseURL:     srv.URL,
		Credentials: stream.StaticCredential("tok"),
		Logger:      log.NewNop(),
	})
	require.NoError(t, err)

	ch := &stubChannel{events: make(chan stream.Event, 4)}
	turnDone := make(chan struct{}, 2)

	session, err := stream.NewSession(stream.Options{
		API:    client,
		Logger: log.NewNop(),
		Callback: stream.Callbacks{
			OnStreamEnded: func() { turnDone <- struct{}{} },
			OnRetry:       func(stream.RetryDescriptor) { turnDone <- struct{}{} },
		},
		OpenChannel: func(ctx context.Context, threadID string) (stream.PushChannel, error) {
			return ch, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	require.Error(t, session.Send(context.Background(), "hi", false))

	drainTurnSignals(turnDone)

	fail.Store(false)
	require.NoError(t, session.Send(context.Background(), "hi again", false))

	select {
	case <-turnDone:
		t.Fatal("turn signal fired before the stream ended")
	case <-time.After(100 * time.Millisecond):
	}

	ch.events <- stream.Event{Type: stream.EventStreamEnded}

	select {
	case <-turnDone:
	case <-time.After(5 * time.Second):
		t.Fatal("no turn signal after streamEnded")
	}
}
