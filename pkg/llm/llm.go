// Package llm defines the LLM adapter contract the kernel consumes. The
// kernel never sees a wire format — it hands the adapter rendered messages,
// tool signatures, and an opaque config map, and consumes the structured
// Response. Concrete providers live outside the kernel.
package llm

import (
	"context"

	"github.com/kadirpekel/agentkernel/pkg/message"
)

// ToolSignature is one LLM-visible tool: its name, description, and the
// JSON schema of its parameters after Hidden stripping and adapter
// transformation.
type ToolSignature struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token accounting for one completion, as the provider counts
// it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the structured outcome of one Complete call.
type Response struct {
	Content   string
	ToolCalls []message.ToolCall
	Usage     Usage
	// Raw preserves the provider's unmodified response payload for hosts
	// that need provider-specific fields; the kernel never inspects it.
	Raw any
}

// Chunk is one streaming delta. A terminal chunk carries FinishReason and
// final Usage.
type Chunk struct {
	ContentDelta string
	// ToolCallDelta is a partial tool call accumulated by index across
	// chunks; nil when this chunk carries no tool-call data.
	ToolCallDelta *ToolCallDelta
	FinishReason  string
	Usage         *Usage
}

// ToolCallDelta is a partial tool call within a stream.
type ToolCallDelta struct {
	Index         int
	CallID        string
	ToolName      string
	ArgumentsJSON string
}

// Adapter is the boundary a host registers to connect a concrete LLM
// provider. Config is the adapter's own overrides map, passed through
// opaquely by the kernel.
type Adapter interface {
	Complete(ctx context.Context, rendered []message.Message, tools []ToolSignature, config map[string]any) (Response, error)
	Stream(ctx context.Context, rendered []message.Message, tools []ToolSignature, config map[string]any) (<-chan Chunk, error)
	SupportsParallelToolCalls(model string) bool
	SupportsStreaming(model string) bool
}
