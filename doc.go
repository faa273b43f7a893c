// Package agentkernel is the core of an agent runtime library: a framework
// for building LLM-driven agents with pluggable tools, extensions, message
// versioning, and hierarchical execution modes.
//
// The kernel is the concurrent event bus, the versioned message store, the
// tool invocation pipeline, and the mode/context lifecycle that ties them
// together. Concrete LLM providers, tool suites, template renderers, and
// CLIs are external collaborators that plug in through the contracts in
// pkg/llm, pkg/tool, and pkg/component.
//
// # Packages
//
//   - pkg/agent: the root aggregate — the execute loop, Call/Execute/Fork,
//     lifecycle, and mode isolation
//   - pkg/event: priority-ordered pub/sub with mutable event contexts
//   - pkg/syncbridge: blocking callers bridged into the dispatch loop with
//     deadlock detection
//   - pkg/message: messages, the append-only store, version history, and
//     the mutable list view
//   - pkg/tool: tools, schemas, scoped tool sets, invocation, adapters
//   - pkg/mode: scoped handler sessions with isolation levels
//   - pkg/task: lifecycle-managed background tasks
//   - pkg/component: the extension contract
//   - pkg/llm: the LLM adapter boundary and a scripted mock
//
// # Quick Start
//
//	a := agent.New(
//		agent.WithLLM(myAdapter),
//		agent.WithModel("my-model"),
//	)
//	if err := a.Init(ctx); err != nil {
//		return err
//	}
//	defer a.Close(ctx)
//
//	reply, err := a.Call(ctx, "What's the weather in Paris?")
package agentkernel
