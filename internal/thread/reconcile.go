package thread

// Merge folds one incoming message into the transcript and returns the
// result. An entry with the same ID is replaced in place, preserving its
// position; otherwise the message is appended. Merge never deletes or
// reorders settled entries, and delivering the same final state twice is a
// no-op, so the operation is safe under event re-delivery.
//
// The input slice is not mutated; callers keep prior transcript snapshots
// valid for memoized grouping.
func Merge(transcript []Message, incoming Message) []Message {
	for i, m := range transcript {
		if m.ID == incoming.ID {
			out := make([]Message, len(transcript))
			copy(out, transcript)
			out[i] = incoming
			return out
		}
	}

	out := make([]Message, len(transcript), len(transcript)+1)
	copy(out, transcript)
	return append(out, incoming)
}
