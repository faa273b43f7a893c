package agent

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
	"github.com/kadirpekel/agentkernel/pkg/llm"
	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/tool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteOptions bounds one invocation of the agentic loop.
type ExecuteOptions struct {
	MaxIterations    int
	AutoExecuteTools bool
}

// DefaultExecuteOptions is what Call uses.
func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{MaxIterations: 10, AutoExecuteTools: true}
}

// Call runs one convenience turn: append input as a user message, drive the
// execute loop to completion, and return the final assistant message with
// all tool calls resolved.
func (a *Agent) Call(ctx context.Context, input string) (message.Message, error) {
	if _, err := a.AppendText(ctx, message.RoleUser, input); err != nil {
		return message.Message{}, err
	}

	var final message.Message
	var found bool
	for msg, err := range a.Execute(ctx, DefaultExecuteOptions()) {
		if err != nil {
			return message.Message{}, err
		}
		if msg.Role == message.RoleAssistant {
			final = msg
			found = true
		}
	}
	if !found {
		return message.Message{}, kernelerr.New(kernelerr.Adapter, "Agent.Call", "execute produced no assistant message")
	}
	return final, nil
}

// Execute drives the iterative LLM-call-then-tool-dispatch cycle, producing
// only the messages newly generated during this call — never pre-existing
// history. The sequence is lazy: each iteration's messages are yielded as
// they are appended, and breaking out of the range stops the loop at the
// next yield.
func (a *Agent) Execute(ctx context.Context, opts ExecuteOptions) iter.Seq2[message.Message, error] {
	return func(yield func(message.Message, error) bool) {
		if s := a.State(); s != StateReady {
			yield(message.Message{}, kernelerr.New(kernelerr.Validation, "Agent.Execute", "agent is not ready: "+string(s)))
			return
		}

		ctx, span := a.tracer.Start(ctx, "agent.Execute")
		defer span.End()

		a.setState(ctx, StateExecuting)
		defer a.setState(ctx, StateReady)

		ec := a.events.Apply(ctx, event.ExecuteBefore, map[string]any{"max_iterations": opts.MaxIterations})
		if abort, _ := ec.Parameters["abort"].(bool); abort {
			return
		}
		defer a.events.Apply(ctx, event.ExecuteAfter, nil)

		for i := 0; i < opts.MaxIterations; i++ {
			if err := ctx.Err(); err != nil {
				yield(message.Message{}, kernelerr.Wrap(kernelerr.Cancelled, "Agent.Execute", "cancelled between iterations", err))
				return
			}

			// Scheduled mode transitions apply at this safe point, before
			// the iteration builds its LLM request.
			if t := a.modes.TakeScheduled(); t != nil {
				var merr error
				if t.Exit {
					merr = a.modes.Exit(ctx)
				} else {
					merr = a.modes.Enter(ctx, t.Switch)
				}
				if merr != nil {
					a.events.Apply(ctx, event.ModeError, map[string]any{"error": merr})
				}
			}

			a.events.Apply(ctx, event.ExecuteIterationBefore, map[string]any{"iteration": i})

			assistant, toolMsgs, done, err := a.iteration(ctx, i, opts.AutoExecuteTools)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				a.events.Apply(ctx, event.ExecuteIterationError, map[string]any{"iteration": i, "error": err})
				a.events.Apply(ctx, event.ExecuteError, map[string]any{"error": err})
				yield(message.Message{}, err)
				return
			}

			if !yield(assistant, nil) {
				return
			}
			for _, tm := range toolMsgs {
				if !yield(tm, nil) {
					return
				}
			}

			a.events.Apply(ctx, event.ExecuteIterationAfter, map[string]any{"iteration": i})
			if done {
				return
			}
		}
	}
}

// iteration performs one turn: render, complete, append the assistant
// message, and (when tool calls are present and auto-execution is on)
// dispatch the tools. done reports that the loop should stop — no tool
// calls remained to feed a next iteration.
func (a *Agent) iteration(ctx context.Context, i int, autoExecuteTools bool) (assistant message.Message, toolMsgs []message.Message, done bool, err error) {
	ctx, span := a.tracer.Start(ctx, "agent.iteration",
		trace.WithAttributes(attribute.Int("iteration", i)))
	defer span.End()

	rendered, err := a.renderMessages(ctx)
	if err != nil {
		return message.Message{}, nil, false, err
	}
	sigs, err := a.toolSignatures(ctx)
	if err != nil {
		return message.Message{}, nil, false, err
	}

	if a.adapter == nil {
		return message.Message{}, nil, false,
			kernelerr.New(kernelerr.Adapter, "Agent.Execute", "no LLM adapter configured")
	}

	a.events.Apply(ctx, event.LLMCompleteBefore, map[string]any{"iteration": i})
	resp, err := a.adapter.Complete(ctx, rendered, sigs, a.Config())
	if err != nil {
		a.events.Apply(ctx, event.LLMCompleteError, map[string]any{"iteration": i, "error": err})
		return message.Message{}, nil, false,
			kernelerr.Wrap(kernelerr.Adapter, "Agent.Execute", "llm completion failed", err)
	}
	a.events.Apply(ctx, event.LLMCompleteAfter, map[string]any{"iteration": i, "usage": resp.Usage})

	if len(resp.ToolCalls) == 0 || !autoExecuteTools {
		assistant = a.assistantMessage(resp.Content, resp.ToolCalls, resp.Usage, i)
		if err := a.Append(ctx, assistant); err != nil {
			return message.Message{}, nil, false, err
		}
		return assistant, nil, true, nil
	}

	if a.adapter.SupportsParallelToolCalls(a.Model()) {
		assistant, toolMsgs, err = a.runToolsParallel(ctx, resp, i)
	} else {
		assistant, toolMsgs, err = a.runToolsPairwise(ctx, resp, i)
	}
	if err != nil {
		return message.Message{}, nil, false, err
	}
	return assistant, toolMsgs, false, nil
}

// runToolsParallel emits one assistant Message carrying all tool calls,
// invokes the tools concurrently, and appends the N tool messages as a
// single batch Extend so the final Version satisfies the tool-call
// sequencing invariant.
func (a *Agent) runToolsParallel(ctx context.Context, resp llm.Response, i int) (message.Message, []message.Message, error) {
	assistant := a.assistantMessage(resp.Content, resp.ToolCalls, resp.Usage, i)
	if err := a.Append(ctx, assistant); err != nil {
		return message.Message{}, nil, err
	}

	reqs := make([]tool.Request, len(resp.ToolCalls))
	for k, tc := range resp.ToolCalls {
		reqs[k] = toolRequest(tc)
		a.events.Apply(ctx, event.ToolCallBefore, map[string]any{
			"tool_name": tc.ToolName, "call_id": tc.CallID,
		})
	}

	responses := a.invoker.InvokeMany(tool.Context{Context: ctx, AgentHandle: a}, reqs)

	toolMsgs := make([]message.Message, len(responses))
	for k, tr := range responses {
		a.fireToolResult(ctx, tr)
		toolMsgs[k] = a.toolMessage(tr, i)
	}
	if err := a.extend(ctx, toolMsgs); err != nil {
		return message.Message{}, nil, err
	}
	return assistant, toolMsgs, nil
}

// runToolsPairwise is the fallback for models without parallel tool-call
// support: one assistant/tool pair per call, each assistant Message carrying
// a single tool call immediately followed by its tool Message. The
// response's text content rides on the first pair only.
func (a *Agent) runToolsPairwise(ctx context.Context, resp llm.Response, i int) (message.Message, []message.Message, error) {
	var first message.Message
	var toolMsgs []message.Message

	for k, tc := range resp.ToolCalls {
		content := ""
		if k == 0 {
			content = resp.Content
		}
		assistant := a.assistantMessage(content, []message.ToolCall{tc}, resp.Usage, i)
		if err := a.Append(ctx, assistant); err != nil {
			return message.Message{}, nil, err
		}
		if k == 0 {
			first = assistant
		} else {
			toolMsgs = append(toolMsgs, assistant)
		}

		a.events.Apply(ctx, event.ToolCallBefore, map[string]any{
			"tool_name": tc.ToolName, "call_id": tc.CallID,
		})
		tr := a.invoker.Invoke(tool.Context{Context: ctx, AgentHandle: a}, toolRequest(tc))
		a.fireToolResult(ctx, tr)

		tm := a.toolMessage(tr, i)
		if err := a.Append(ctx, tm); err != nil {
			return message.Message{}, nil, err
		}
		toolMsgs = append(toolMsgs, tm)
	}
	return first, toolMsgs, nil
}

func (a *Agent) fireToolResult(ctx context.Context, tr tool.Response) {
	if tr.Success {
		a.events.Apply(ctx, event.ToolCallAfter, map[string]any{
			"tool_name": tr.ToolName, "call_id": tr.ToolCallID, "response": tr.Response,
		})
		return
	}
	a.events.Apply(ctx, event.ToolCallError, map[string]any{
		"tool_name": tr.ToolName, "call_id": tr.ToolCallID, "error": tr.Error,
	})
}

func toolRequest(tc message.ToolCall) tool.Request {
	args := make(map[string]any)
	if tc.ArgumentsJSON != "" {
		// A malformed arguments payload becomes an empty args map; the
		// tool's own schema validation reports the structured error.
		_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &args)
	}
	return tool.Request{ToolCallID: tc.CallID, ToolName: tc.ToolName, Args: args}
}

func (a *Agent) assistantMessage(content string, calls []message.ToolCall, usage llm.Usage, i int) message.Message {
	var parts []message.Part
	if content != "" {
		parts = append(parts, message.Part{Type: message.PartText, Text: content})
	}
	msg := message.New(message.RoleAssistant, parts...)
	msg.ToolCalls = calls
	msg.IterationIndex = &i
	msg.Metadata = map[string]any{"usage": usage}
	return msg
}

// toolMessage converts a tool invocation outcome into a tool Message. A
// failed invocation is converted to data, not an error — the execute loop
// continues and the LLM may see the failure and recover.
func (a *Agent) toolMessage(tr tool.Response, i int) message.Message {
	text := tr.Error
	if tr.Success {
		if data, err := json.Marshal(tr.Response); err == nil {
			text = string(data)
		}
	}
	msg := message.New(message.RoleTool, message.Part{Type: message.PartText, Text: text})
	msg.ToolCallID = tr.ToolCallID
	msg.ToolName = tr.ToolName
	msg.IterationIndex = &i
	msg.Metadata = map[string]any{"success": tr.Success}
	if tr.Error != "" {
		msg.Metadata["error"] = tr.Error
	}
	if tr.ParametersRecorded != nil {
		msg.Metadata["parameters"] = tr.ParametersRecorded
	}
	return msg
}

// renderMessages resolves the current Version into concrete messages and
// fires the message:render event pair. Handlers (template renderers,
// citation annotators) may rewrite the rendered sequence by setting the
// EventContext's Output to a []message.Message; the kernel itself does not
// interpret template syntax.
func (a *Agent) renderMessages(ctx context.Context) ([]message.Message, error) {
	msgs, err := a.list.Messages()
	if err != nil {
		return nil, err
	}
	ec := a.events.Apply(ctx, event.MessageRenderBefore, map[string]any{
		"messages": msgs,
		"context":  a.EffectiveContext(ctx),
	})
	if rewritten, ok := ec.Output.([]message.Message); ok {
		msgs = rewritten
	}
	a.events.Apply(ctx, event.MessageRenderAfter, map[string]any{"messages": msgs})
	return msgs, nil
}

// toolSignatures collects the effective LLM-visible tool signatures: every
// registered tool's schema, transformed by the first matching adapter, then
// offered to tools:provide handlers for final rewriting.
func (a *Agent) toolSignatures(ctx context.Context) ([]llm.ToolSignature, error) {
	var sigs []llm.ToolSignature
	for _, t := range a.tools.List() {
		schema, err := t.Signature()
		if err != nil {
			return nil, kernelerr.Wrap(kernelerr.Validation, "Agent.Execute", "signature for "+t.Name(), err)
		}
		for _, ad := range a.adapters {
			if !ad.ShouldAdapt(t) {
				continue
			}
			adapted, err := ad.AdaptSignature(t, schema)
			if err != nil {
				return nil, kernelerr.Wrap(kernelerr.Tool, "Agent.Execute", "adapt signature for "+t.Name(), err)
			}
			schema = adapted
			break
		}
		sigs = append(sigs, llm.ToolSignature{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schema,
		})
	}

	ec := a.events.Apply(ctx, event.ToolsProvide, map[string]any{"signatures": sigs})
	if rewritten, ok := ec.Output.([]llm.ToolSignature); ok {
		sigs = rewritten
	}
	return sigs, nil
}
