package thread

// DisplayGroup clusters consecutive same-role messages for rendering. Tool
// invocations collect in ToolMessages; the plain message that closes the
// block becomes Final. Derived state only, never persisted.
type DisplayGroup struct {
	ID           string
	Role         Role
	ToolMessages []Message
	Final        *Message
}

// Group clusters a transformed transcript into display groups. A new group
// starts whenever the role changes relative to the current group. Messages
// with tool calls append to the group's tool list; a message without tool
// calls becomes the group's final message, the latest one winning when a
// block carries several.
//
// Hidden and developer messages keep their transcript position but take no
// part in role transitions and appear in no group.
func Group(transcript []Message) []DisplayGroup {
	var groups []DisplayGroup

	for _, m := range transcript {
		if m.Role == RoleHidden || m.Role == RoleDeveloper {
			continue
		}

		if len(groups) == 0 || groups[len(groups)-1].Role != m.Role {
			groups = append(groups, DisplayGroup{ID: m.ID, Role: m.Role})
		}
		g := &groups[len(groups)-1]

		if m.HasToolCalls() {
			g.ToolMessages = append(g.ToolMessages, m)
		} else {
			m := m
			g.Final = &m
		}
	}

	return groups
}

// Groups is the full display pipeline: think-split transform followed by
// consecutive-role grouping. Pure function of the transcript, so results can
// be memoized on transcript identity.
func Groups(transcript []Message) []DisplayGroup {
	return Group(Transform(transcript))
}
