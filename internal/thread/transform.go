package thread

import "fmt"

// Transform rewrites a raw transcript for display: every "think" tool
// invocation is split into its own synthetic message so each planning step
// renders as a standalone unit, while the remaining content of the source
// message stays together. Synthetic ids are the source id suffixed with a
// sequential part index, so the transform is a pure function of its input:
// re-running it over the same transcript yields identical ids and ordering.
func Transform(transcript []Message) []Message {
	out := make([]Message, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, splitThink(m)...)
	}
	return out
}

// splitThink decomposes one message. A message without think parts (or with
// a plain string body) stays a single unit with suffix _part_0.
func splitThink(m Message) []Message {
	partID := func(n int) string { return fmt.Sprintf("%s_part_%d", m.ID, n) }

	if m.Parts == nil {
		single := m
		single.ID = partID(0)
		return []Message{single}
	}

	var (
		out []Message
		buf []ContentPart
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, Message{
			ID:    partID(len(out)),
			Role:  m.Role,
			Parts: buf,
		})
		buf = nil
	}

	for _, p := range m.Parts {
		if p.IsThink() {
			flush()
			out = append(out, Message{
				ID:    partID(len(out)),
				Role:  m.Role,
				Parts: []ContentPart{p},
			})
			continue
		}
		buf = append(buf, p)
	}
	flush()

	if len(out) == 0 {
		// Parts was empty but non-nil: keep the message as one unit.
		single := m
		single.ID = partID(0)
		return []Message{single}
	}

	// The artifact list stays with the non-think remainder when one exists,
	// otherwise with the last planning step, so no references are dropped.
	if m.Artifacts != nil {
		attached := false
		for i := len(out) - 1; i >= 0; i-- {
			if !out[i].HasToolCalls() {
				out[i].Artifacts = m.Artifacts
				attached = true
				break
			}
		}
		if !attached {
			out[len(out)-1].Artifacts = m.Artifacts
		}
	}
	return out
}
