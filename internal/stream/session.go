package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/qaml-ai/camel-go/internal/log"
	"github.com/qaml-ai/camel-go/internal/thread"
)

// State is the session's position in the per-thread protocol.
type State int

const (
	// StateIdle means no turn is in flight.
	StateIdle State = iota

	// StateSending means the send request has been issued and not yet
	// acknowledged.
	StateSending

	// StateConnecting means the push channel is being opened.
	StateConnecting

	// StateStreaming means the push channel is delivering events.
	StateStreaming
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// User-facing copy for retry descriptors. The quota message is distinct so
// the surface never shows generic copy for a 402.
const (
	QuotaErrorMessage   = "You have reached your message quota. Upgrade your plan or try again later."
	GenericErrorMessage = "Something went wrong while sending your message. Please try again."

	// ContinueMessage is the sentinel replay message recorded after a
	// server-signaled error: resubmitting it asks the server to resume the
	// interrupted turn instead of reprocessing the original input.
	ContinueMessage = "continue"
)

// Sentinel errors for session operations.
var (
	// ErrEmptyMessage indicates Send was invoked without text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNothingToRetry indicates Retry was invoked with no stored
	// descriptor.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// RetryDescriptor is the recorded failed-send pair the surface shows next
// to a retry affordance. Resolved only by explicit user action; the session
// never auto-retries.
type RetryDescriptor struct {
	OriginalMessage string
	ErrorMessage    string
}

// Callbacks notify collaborators of session changes. All fields are
// optional. Callbacks fire sequentially: transcript and status callbacks
// run on the channel-consumer goroutine in event delivery order.
type Callbacks struct {
	OnThreadCreated func(threadID string)
	OnThreadRenamed func(threadID, title string)
	OnTranscript    func(transcript []thread.Message)
	OnStatus        func(currentTool string, loading bool)
	OnStreamEnded   func()
	OnRetry         func(desc RetryDescriptor)
}

// Options configures a Session.
type Options struct {
	API      *APIClient
	Logger   log.Logger
	Thread   thread.Thread // model + selected sources; ID empty for a new conversation
	Callback Callbacks

	// OpenChannel overrides the push-channel transport. Defaults to the
	// API client's SSE channel.
	OpenChannel func(ctx context.Context, threadID string) (PushChannel, error)

	// IdleTimeout, when positive, surfaces a retry affordance if the push
	// channel delivers no event for the window. Zero disables it, matching
	// the protocol's default of treating transport stalls as log-only.
	IdleTimeout time.Duration
}

func (o Options) validate() error {
	if o.API == nil {
		return errors.New("API client is required")
	}
	if o.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Session drives one conversation thread through the streaming protocol:
// it sends user messages, owns the thread's single push channel, and folds
// delivered events into the transcript via the replace-or-append merge rule.
//
// All exported methods are safe for concurrent use, though the protocol
// itself is sequential: one turn streams at a time.
type Session struct {
	api         *APIClient
	logger      log.Logger
	cb          Callbacks
	openChannel func(ctx context.Context, threadID string) (PushChannel, error)
	idleTimeout time.Duration

	mu          sync.Mutex
	state       State
	th          thread.Thread
	transcript  []thread.Message
	channel     PushChannel
	currentTool string
	loading     bool
	retry       *RetryDescriptor
	lastSent    string

	wg sync.WaitGroup
}

// NewSession creates a session for one thread.
func NewSession(opts Options) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}

	s := &Session{
		api:         opts.API,
		logger:      opts.Logger.With("component", "session"),
		cb:          opts.Callback,
		openChannel: opts.OpenChannel,
		idleTimeout: opts.IdleTimeout,
		th:          opts.Thread,
		state:       StateIdle,
	}
	if s.openChannel == nil {
		s.openChannel = s.api.OpenChannel
	}
	return s, nil
}

// Send submits a user message and, on success, ensures the thread's push
// channel is open. A local user message with a temporary id is appended to
// the transcript before any network activity and is never rolled back; a
// failed send only records a retry descriptor.
func (s *Session) Send(ctx context.Context, message string, autograph bool) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	return s.send(ctx, message, autograph, true)
}

// Retry resubmits the stored retry descriptor. The optimistic append is
// skipped: the user's text (or the continue sentinel's antecedent) is
// already in the transcript from the original attempt.
func (s *Session) Retry(ctx context.Context, autograph bool) error {
	s.mu.Lock()
	desc := s.retry
	s.retry = nil
	s.mu.Unlock()

	if desc == nil {
		return ErrNothingToRetry
	}
	return s.send(ctx, desc.OriginalMessage, autograph, false)
}

func (s *Session) send(ctx context.Context, message string, autograph bool, optimistic bool) error {
	s.mu.Lock()
	if optimistic {
		local := thread.Message{
			ID:   "local-" + uuid.NewString(),
			Role: thread.RoleUser,
			Text: message,
		}
		s.transcript = thread.Merge(s.transcript, local)
	}
	s.state = StateSending
	s.retry = nil
	s.lastSent = message
	req := SendRequest{
		ThreadID:        s.th.ID,
		Model:           s.th.Model,
		Message:         message,
		SelectedSources: s.th.Sources,
		AutographMode:   autograph,
	}
	snapshot := s.transcriptLocked()
	s.mu.Unlock()

	if optimistic {
		s.notifyTranscript(snapshot)
	}

	resp, err := s.api.SendMessage(ctx, req)
	if err != nil {
		s.failSend(message, err)
		return err
	}

	s.mu.Lock()
	created := false
	if s.th.ID == "" {
		s.th.ID = resp.ThreadID
		created = true
	}
	threadID := s.th.ID
	// One push channel per thread: an open or connecting channel is reused,
	// never duplicated.
	needChannel := s.channel == nil
	if needChannel {
		s.state = StateConnecting
	} else {
		s.state = StateStreaming
	}
	s.mu.Unlock()

	if created && s.cb.OnThreadCreated != nil {
		s.cb.OnThreadCreated(threadID)
	}

	if needChannel {
		ch, err := s.openChannel(ctx, threadID)
		if err != nil {
			s.failSend(message, err)
			return fmt.Errorf("open push channel: %w", err)
		}

		s.mu.Lock()
		s.channel = ch
		s.loading = true
		s.mu.Unlock()

		s.wg.Add(1)
		go s.consume(ch)
	}
	return nil
}

// Cancel asks the server to stop the current turn. A no-op when no thread
// id exists yet. Local state is untouched: the channel closes itself when
// the server emits streamEnded. Request failures are logged only.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	threadID := s.th.ID
	s.mu.Unlock()

	if threadID == "" {
		return
	}

	ok, err := s.api.CancelStream(ctx, threadID)
	if err != nil {
		s.logger.Warn("cancel request failed", "thread", threadID, "error", err)
		return
	}
	if !ok {
		s.logger.Warn("cancel request rejected", "thread", threadID)
	}
}

// Close tears down the push channel and waits for the consumer goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	s.wg.Wait()
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ThreadID returns the server-assigned thread id, or "" before assignment.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.th.ID
}

// Transcript returns a copy of the current transcript.
func (s *Session) Transcript() []thread.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

// Groups returns the transcript's display groups.
func (s *Session) Groups() []thread.DisplayGroup {
	return thread.Groups(s.Transcript())
}

// CurrentTool returns the label from the latest status_update, or "".
func (s *Session) CurrentTool() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTool
}

// Loading reports whether the turn is between tool calls.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// RetryState returns the stored retry descriptor, or nil.
func (s *Session) RetryState() *RetryDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retry == nil {
		return nil
	}
	desc := *s.retry
	return &desc
}

func (s *Session) transcriptLocked() []thread.Message {
	out := make([]thread.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// failSend records a retry descriptor and returns the session to Idle. The
// quota outcome carries its own copy; everything else is generic.
func (s *Session) failSend(message string, cause error) {
	errMsg := GenericErrorMessage
	if errors.Is(cause, ErrQuotaExceeded) {
		errMsg = QuotaErrorMessage
	}
	desc := RetryDescriptor{OriginalMessage: message, ErrorMessage: errMsg}

	s.mu.Lock()
	s.state = StateIdle
	s.retry = &desc
	s.mu.Unlock()

	s.logger.Warn("send failed", "error", cause)
	if s.cb.OnRetry != nil {
		s.cb.OnRetry(desc)
	}
}

// consume processes events from one push channel in delivery order.
func (s *Session) consume(ch PushChannel) {
	defer s.wg.Done()
	events := ch.Events()

	for {
		var (
			ev Event
			ok bool
		)
		if s.idleTimeout > 0 {
			timer := time.NewTimer(s.idleTimeout)
			select {
			case ev, ok = <-events:
				timer.Stop()
			case <-timer.C:
				s.logger.Warn("push channel idle timeout")
				s.surfaceTransportLoss(ch)
				return
			}
		} else {
			ev, ok = <-events
		}

		if !ok {
			s.channelClosed(ch)
			return
		}
		s.handleEvent(ev)
	}
}

// channelClosed handles transport termination without a terminal event.
// Per protocol, a transport-level error alone is logged and is not a state
// transition; only an explicit serverError event surfaces a retry.
func (s *Session) channelClosed(ch PushChannel) {
	if err := ch.Err(); err != nil {
		s.logger.Warn("push channel terminated", "error", err)
	} else {
		s.logger.Debug("push channel closed")
	}

	s.mu.Lock()
	if s.channel == ch {
		s.channel = nil
	}
	s.mu.Unlock()
}

// surfaceTransportLoss is the opt-in liveness policy: treat a silent stall
// as a failed send so the user gets a retry affordance instead of a hang.
func (s *Session) surfaceTransportLoss(ch PushChannel) {
	ch.Close()

	s.mu.Lock()
	if s.channel == ch {
		s.channel = nil
	}
	s.state = StateIdle
	s.currentTool = ""
	s.loading = false
	message := s.lastSent
	desc := RetryDescriptor{OriginalMessage: message, ErrorMessage: GenericErrorMessage}
	s.retry = &desc
	s.mu.Unlock()

	if s.cb.OnRetry != nil {
		s.cb.OnRetry(desc)
	}
}

func (s *Session) handleEvent(ev Event) {
	// Any delivered event confirms the channel: Connecting → Streaming.
	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateStreaming
	}
	s.mu.Unlock()

	switch ev.Type {
	case EventMessage:
		s.handleMessage(ev.Data)
	case EventStatusUpdate:
		s.handleStatus(statusLabel(ev.Data), false)
	case EventClearStatus:
		s.handleStatus("", true)
	case EventThreadRenamed:
		s.handleRename(ev.Data)
	case EventStreamEnded:
		s.handleStreamEnded()
	case EventServerError:
		s.handleServerError(ev.Data)
	default:
		s.logger.Debug("ignore unknown event", "type", string(ev.Type))
	}
}

func (s *Session) handleMessage(data []byte) {
	var m thread.Message
	if err := json.Unmarshal(data, &m); err != nil {
		// Malformed payloads are dropped; the channel stays open.
		s.logger.Warn("drop malformed message event", "error", err)
		return
	}

	s.mu.Lock()
	s.transcript = thread.Merge(s.transcript, m)
	snapshot := s.transcriptLocked()
	s.mu.Unlock()

	s.notifyTranscript(snapshot)
}

func (s *Session) handleStatus(tool string, loading bool) {
	s.mu.Lock()
	s.currentTool = tool
	s.loading = loading
	s.mu.Unlock()

	if s.cb.OnStatus != nil {
		s.cb.OnStatus(tool, loading)
	}
}

func (s *Session) handleRename(data []byte) {
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("drop malformed thread_renamed event", "error", err)
		return
	}
	if s.cb.OnThreadRenamed != nil {
		s.cb.OnThreadRenamed(p.ThreadID, p.Title)
	}
}

func (s *Session) handleStreamEnded() {
	s.mu.Lock()
	s.state = StateIdle
	s.currentTool = ""
	s.loading = false
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if s.cb.OnStreamEnded != nil {
		s.cb.OnStreamEnded()
	}
}

func (s *Session) handleServerError(data []byte) {
	s.mu.Lock()
	wasStreaming := s.state == StateStreaming
	if !wasStreaming {
		s.mu.Unlock()
		s.logger.Warn("server error outside streaming", "payload", string(data))
		return
	}

	// The replay message is the continue sentinel: on retry the server
	// resumes the interrupted turn rather than reprocessing the input.
	desc := RetryDescriptor{
		OriginalMessage: ContinueMessage,
		ErrorMessage:    serverErrorMessage(data),
	}
	s.retry = &desc
	s.state = StateIdle
	s.currentTool = ""
	s.loading = false
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if s.cb.OnRetry != nil {
		s.cb.OnRetry(desc)
	}
}

func (s *Session) notifyTranscript(snapshot []thread.Message) {
	if s.cb.OnTranscript != nil {
		s.cb.OnTranscript(snapshot)
	}
}

// statusLabel decodes a status_update payload, which arrives either as a
// JSON-encoded string or as raw text.
func statusLabel(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if v := gjson.ParseBytes(trimmed); v.Type == gjson.String {
			return v.Str
		}
	}
	return string(trimmed)
}

// serverErrorMessage extracts display copy from a serverError payload.
// The payload shape is implementation-defined; common fields are probed
// and anything else falls back to generic copy.
func serverErrorMessage(data []byte) string {
	for _, field := range []string{"message", "error", "detail"} {
		if v := gjson.GetBytes(data, field); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return GenericErrorMessage
}
