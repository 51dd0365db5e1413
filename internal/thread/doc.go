// Package thread models one conversation between the user and the
// assistant: the wire-level Message and Artifact types, the reconciliation
// rule that folds streamed message deltas into a stable transcript, and the
// pure transform/group pipeline that prepares the transcript for display.
//
// All operations here are pure functions over transcript slices. Callers own
// synchronization; the streaming session applies events one at a time.
package thread
