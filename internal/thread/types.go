package thread

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

// Valid message roles. Hidden and developer messages stay in the transcript
// but are never rendered.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleHidden    Role = "hidden"
	RoleDeveloper Role = "developer"
)

// PartKind tags a ContentPart.
type PartKind string

const (
	PartText    PartKind = "text"
	PartToolUse PartKind = "tool_use"
)

// ContentPart is one element of a structured message body: either a text
// fragment or a tool invocation.
type ContentPart struct {
	Kind PartKind `json:"type"`

	// Text fields (Kind == PartText).
	Text string `json:"text,omitempty"`

	// Tool-use fields (Kind == PartToolUse).
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// IsThink reports whether the part is a planning-step tool invocation.
func (p ContentPart) IsThink() bool {
	return p.Kind == PartToolUse && p.Name == "think"
}

// Artifact is a named, addressable output produced during an assistant turn.
// Identity is the integer ID referenced from markdown links and tool results.
type Artifact struct {
	ID                    int             `json:"id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	IsChart               bool            `json:"is_chart"`
	AreConnectionsDeleted bool            `json:"are_connections_deleted"`
	TableHTML             string          `json:"table_html,omitempty"`
	ChartSpec             json.RawMessage `json:"chart_spec,omitempty"`
	Code                  string          `json:"code,omitempty"`
	Query                 string          `json:"query,omitempty"`
}

// Thread holds the client-side identity of one conversation. ID is empty
// until the server assigns one on the first successful send, and immutable
// afterwards.
type Thread struct {
	ID      string
	Model   string
	Sources []string
}

// Message is one transcript entry. The wire content field is a tagged
// union: either a plain string or an ordered list of content parts. Exactly
// one of Text/Parts is meaningful; Parts wins when non-nil.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Parts     []ContentPart
	Artifacts []Artifact
}

// HasToolCalls reports whether any content part is a tool invocation.
func (m Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if p.Kind == PartToolUse {
			return true
		}
	}
	return false
}

// PlainText returns the message's displayable text: the plain string body,
// or the concatenation of text parts for structured content.
func (m Message) PlainText() string {
	if m.Parts == nil {
		return m.Text
	}
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// wireMessage mirrors the JSON shape with content left raw so the union can
// be decoded in a second pass.
type wireMessage struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content"`
	Artifacts []Artifact      `json:"artifacts,omitempty"`
}

// UnmarshalJSON decodes the content union: a JSON string becomes Text, an
// array becomes Parts. Null/absent content yields an empty message body.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	m.ID = w.ID
	m.Role = w.Role
	m.Artifacts = w.Artifacts
	m.Text = ""
	m.Parts = nil

	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}

	switch w.Content[0] {
	case '"':
		if err := json.Unmarshal(w.Content, &m.Text); err != nil {
			return fmt.Errorf("decode message content string: %w", err)
		}
	case '[':
		if err := json.Unmarshal(w.Content, &m.Parts); err != nil {
			return fmt.Errorf("decode message content parts: %w", err)
		}
	default:
		return fmt.Errorf("decode message %s: unsupported content shape", w.ID)
	}
	return nil
}

// MarshalJSON encodes content back to the wire union shape.
func (m Message) MarshalJSON() ([]byte, error) {
	var content any
	if m.Parts != nil {
		content = m.Parts
	} else {
		content = m.Text
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode message content: %w", err)
	}
	return json.Marshal(wireMessage{
		ID:        m.ID,
		Role:      m.Role,
		Content:   raw,
		Artifacts: m.Artifacts,
	})
}
