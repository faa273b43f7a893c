package llm

import (
	"context"
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
	"github.com/kadirpekel/agentkernel/pkg/message"
)

// Mock is a scripted Adapter for tests and offline development: each
// Complete call consumes the next queued Response in order. It records the
// rendered messages and tool signatures it was handed so tests can assert
// on what the kernel actually sent.
type Mock struct {
	mu        sync.Mutex
	responses []Response
	calls     []MockCall

	Parallel  bool
	Streaming bool
}

// MockCall captures the inputs of one Complete invocation.
type MockCall struct {
	Rendered []message.Message
	Tools    []ToolSignature
	Config   map[string]any
}

// NewMock constructs a Mock that will return responses in order.
func NewMock(responses ...Response) *Mock {
	return &Mock{responses: responses}
}

// Queue appends further scripted responses.
func (m *Mock) Queue(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Calls returns every recorded Complete invocation so far.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) Complete(ctx context.Context, rendered []message.Message, tools []ToolSignature, config map[string]any) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, kernelerr.Wrap(kernelerr.Cancelled, "Mock.Complete", "context cancelled", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Rendered: rendered, Tools: tools, Config: config})
	if len(m.responses) == 0 {
		return Response{}, kernelerr.New(kernelerr.Adapter, "Mock.Complete", "no scripted responses remaining")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

// Stream replays the next scripted Response as one content chunk (omitted
// when Content is empty), one ToolCallDelta chunk per tool call, and a
// terminal chunk carrying FinishReason and Usage.
func (m *Mock) Stream(ctx context.Context, rendered []message.Message, tools []ToolSignature, config map[string]any) (<-chan Chunk, error) {
	resp, err := m.Complete(ctx, rendered, tools, config)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk, len(resp.ToolCalls)+2)
	if resp.Content != "" {
		ch <- Chunk{ContentDelta: resp.Content}
	}
	for i, tc := range resp.ToolCalls {
		ch <- Chunk{ToolCallDelta: &ToolCallDelta{
			Index:         i,
			CallID:        tc.CallID,
			ToolName:      tc.ToolName,
			ArgumentsJSON: tc.ArgumentsJSON,
		}}
	}
	ch <- Chunk{FinishReason: "stop", Usage: &resp.Usage}
	close(ch)
	return ch, nil
}

func (m *Mock) SupportsParallelToolCalls(model string) bool { return m.Parallel }
func (m *Mock) SupportsStreaming(model string) bool         { return m.Streaming }
