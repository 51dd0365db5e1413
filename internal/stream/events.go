// Package stream implements the client side of the per-thread session
// protocol: the HTTP calls that start and cancel an assistant turn, the
// long-lived push channel that delivers message deltas and status events,
// and the session state machine that folds those events into a transcript.
package stream

// EventType names the server-push event kinds. Event names are part of the
// wire protocol and must match the server exactly.
type EventType string

const (
	// EventMessage carries a full message object to merge into the transcript.
	EventMessage EventType = "message"

	// EventStatusUpdate carries the label of the tool the assistant is
	// currently running, as a JSON string or raw text.
	EventStatusUpdate EventType = "status_update"

	// EventClearStatus clears the tool label and marks the turn as loading.
	EventClearStatus EventType = "clear_status"

	// EventThreadRenamed announces a server-side title change.
	EventThreadRenamed EventType = "thread_renamed"

	// EventStreamEnded terminates the assistant's turn.
	EventStreamEnded EventType = "streamEnded"

	// EventServerError signals an unrecoverable server-side failure.
	EventServerError EventType = "serverError"
)

// Event is one delivery on a push channel.
type Event struct {
	Type EventType
	Data []byte
}

// PushChannel is the transport-agnostic server-push stream for one thread's
// active turn. Implementations close the Events channel when the underlying
// transport terminates; Err reports the transport error, if any, after the
// channel closes. Events are delivered in server order.
type PushChannel interface {
	// Events returns the delivery channel. Closed on termination.
	Events() <-chan Event

	// Close tears down the transport. Safe to call more than once.
	Close() error

	// Err returns the transport error that terminated the channel, or nil
	// after a clean shutdown.
	Err() error
}

// renamePayload is the thread_renamed event body.
type renamePayload struct {
	ThreadID string `json:"threadId"`
	Title    string `json:"title"`
}
