// Package message implements the kernel's append-only, content-addressed
// message history: Message, MessageStore, MessageRegistry, VersionManager,
// and MessageList.
package message

import (
	"time"

	"github.com/kadirpekel/agentkernel/pkg/id"
)

// Role is one of the four message roles the LLM tool-call protocol requires.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of content a Part carries.
type PartType string

const (
	PartText     PartType = "text"
	PartTemplate PartType = "template"
	PartImage    PartType = "image"
	PartFile     PartType = "file"
)

// Part is one typed piece of message content. Template parts carry a
// template string that the caller (an external template renderer, outside
// the kernel's own scope) expands against the agent's context at render
// time; the kernel only transports it.
type Part struct {
	Type PartType `json:"type"`
	// Text holds literal text for PartText, or the template source for
	// PartTemplate.
	Text string `json:"text,omitempty"`
	// URI references external content for PartImage/PartFile (e.g. a data
	// URI or a storage handle). The kernel does not interpret it.
	URI string `json:"uri,omitempty"`
	// MIMEType is an optional hint for PartImage/PartFile consumers.
	MIMEType string `json:"mime_type,omitempty"`
}

// ToolCall is one tool invocation request emitted by an assistant Message.
type ToolCall struct {
	CallID        string `json:"call_id"`
	ToolName      string `json:"tool_name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// Message is an immutable record of one turn of conversation or one tool
// result. Callers must never mutate a Message's exported fields after it
// has been handed to a MessageStore — "editing" means constructing a new
// Message with a fresh Identifier.
type Message struct {
	ID           id.ID          `json:"id"`
	Role         Role           `json:"role"`
	ContentParts []Part         `json:"content_parts"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID   string         `json:"tool_call_id,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	// IterationIndex is the execute-loop iteration that produced this
	// message, if any (nil for user-authored and pre-existing messages).
	IterationIndex *int      `json:"iteration_index,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// New constructs a Message with a fresh Identifier.
func New(role Role, parts ...Part) Message {
	return Message{
		ID:           id.New(),
		Role:         role,
		ContentParts: parts,
		CreatedAt:    time.Now(),
	}
}

// WithMetadata returns a copy of m with metadata key set to value. Because
// Message is a value type with slice/map fields, copying it shares the
// underlying ContentParts/ToolCalls backing arrays — callers that need an
// independent copy should use Clone.
func (m Message) WithMetadata(key string, value any) Message {
	out := m
	out.Metadata = cloneMeta(m.Metadata)
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[key] = value
	return out
}

// Clone returns a deep-enough copy of m suitable for re-parenting into a
// forked Agent: a fresh backing array for ContentParts/ToolCalls/Metadata,
// but the same Identifier (fork re-parents messages under new ownership
// without creating new Identifiers — it is not an edit).
func (m Message) Clone() Message {
	out := m
	if m.ContentParts != nil {
		out.ContentParts = append([]Part(nil), m.ContentParts...)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	out.Metadata = cloneMeta(m.Metadata)
	return out
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TextContent concatenates every PartText/PartTemplate part's Text.
func (m Message) TextContent() string {
	var sb []byte
	for _, p := range m.ContentParts {
		if p.Type == PartText || p.Type == PartTemplate {
			sb = append(sb, p.Text...)
		}
	}
	return string(sb)
}

// HasToolCalls reports whether this assistant Message carries tool calls.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
