// Package agent implements the root aggregate: one Agent owns a message
// list and its version history, an event router, a tool manager, a mode
// manager, a task registry, and an ordered list of installed components.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/kadirpekel/agentkernel/pkg/component"
	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/id"
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
	"github.com/kadirpekel/agentkernel/pkg/llm"
	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/mode"
	"github.com/kadirpekel/agentkernel/pkg/task"
	"github.com/kadirpekel/agentkernel/pkg/tool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// State is the agent's lifecycle state.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateExecuting    State = "executing"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
)

// ConfigModel is the config key holding the model identifier handed to the
// LLM adapter's capability queries.
const ConfigModel = "model"

// Agent is the Host components see during Install.
var _ component.Host = (*Agent)(nil)

// Agent is the root runtime object. Construct with New, then Init before
// use; Close releases tasks, modes, and the event router's bridge loop.
type Agent struct {
	id id.ID

	mu     sync.Mutex
	state  State
	config map[string]any

	ctxMu        sync.RWMutex
	contextVals  map[string]any
	contextFuncs []func(ctx context.Context) map[string]any

	store    message.Store
	registry *message.Registry[Agent]
	versions *message.VersionManager
	list     *message.List

	events  *event.Router
	tools   *tool.Manager
	invoker *tool.Invoker
	modes   *mode.Manager
	tasks   *task.Registry

	adapter    llm.Adapter
	adapters   []tool.Adapter
	components []component.Component

	tracer trace.Tracer
}

// Option configures New.
type Option func(*Agent)

// WithLLM sets the LLM adapter.
func WithLLM(adapter llm.Adapter) Option {
	return func(a *Agent) { a.adapter = adapter }
}

// WithConfig merges config entries (model identifier, temperature, and any
// adapter-specific overrides) into the agent's opaque config map.
func WithConfig(config map[string]any) Option {
	return func(a *Agent) {
		for k, v := range config {
			a.config[k] = v
		}
	}
}

// WithModel sets the model identifier config key.
func WithModel(model string) Option {
	return func(a *Agent) { a.config[ConfigModel] = model }
}

// WithComponents appends components to install during Init, in order.
func WithComponents(components ...component.Component) Option {
	return func(a *Agent) { a.components = append(a.components, components...) }
}

// WithToolAdapters registers tool adapters, applied in registration order.
func WithToolAdapters(adapters ...tool.Adapter) Option {
	return func(a *Agent) { a.adapters = append(a.adapters, adapters...) }
}

// WithCache installs a write-through persistence hook on the message store.
func WithCache(cache message.Cache) Option {
	return func(a *Agent) { a.store = message.NewInMemoryStore(cache) }
}

// New constructs an Agent with fully isolated registries: its own store,
// version manager, event router, tool manager, mode manager, and task
// registry. Nothing is shared across agents unless a host wires it so.
func New(opts ...Option) *Agent {
	a := &Agent{
		id:          id.New(),
		state:       StateInitializing,
		config:      make(map[string]any),
		contextVals: make(map[string]any),
		store:       message.NewInMemoryStore(nil),
		registry:    message.NewRegistry[Agent](),
		versions:    message.NewVersionManager(),
		events:      event.NewRouter(),
		tools:       tool.NewManager(),
		tasks:       task.NewRegistry(),
		tracer:      otel.Tracer("agentkernel/agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.list = message.NewList(a.store, a.versions, a.registry)
	a.invoker = tool.NewInvoker(a.tools, a.adapters...)
	a.modes = mode.NewManager(&isolator{agent: a}, a.events)
	return a
}

// ID returns the agent's Identifier.
func (a *Agent) ID() id.ID { return a.id }

// State returns the agent's lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(ctx context.Context, next State) {
	a.mu.Lock()
	prev := a.state
	a.state = next
	a.mu.Unlock()
	if prev != next {
		a.events.Apply(ctx, event.AgentStateChange, map[string]any{
			"from": string(prev), "to": string(next),
		})
	}
}

// Events returns the agent's EventRouter.
func (a *Agent) Events() *event.Router { return a.events }

// Tools returns the agent's ToolManager.
func (a *Agent) Tools() *tool.Manager { return a.tools }

// Tasks returns the agent's TaskRegistry.
func (a *Agent) Tasks() *task.Registry { return a.tasks }

// Modes returns the agent's ModeManager.
func (a *Agent) Modes() *mode.Manager { return a.modes }

// Messages returns the agent's MessageList view.
func (a *Agent) Messages() *message.List { return a.list }

// Versions returns the agent's VersionManager.
func (a *Agent) Versions() *message.VersionManager { return a.versions }

// Config returns a copy of the agent's config map.
func (a *Agent) Config() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]any, len(a.config))
	for k, v := range a.config {
		out[k] = v
	}
	return out
}

// SetConfig writes one config key.
func (a *Agent) SetConfig(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config[key] = value
}

// Model returns the configured model identifier, or "".
func (a *Agent) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, _ := a.config[ConfigModel].(string)
	return m
}

// SetContext writes a key into the context available to templates and
// context providers.
func (a *Agent) SetContext(key string, value any) {
	a.ctxMu.Lock()
	defer a.ctxMu.Unlock()
	a.contextVals[key] = value
}

// GetContext reads a context key.
func (a *Agent) GetContext(key string) (any, bool) {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	v, ok := a.contextVals[key]
	return v, ok
}

// AddContextProvider registers a provider consulted at render time; its
// returned keys are merged into the effective context.
func (a *Agent) AddContextProvider(provider func(ctx context.Context) map[string]any) {
	a.ctxMu.Lock()
	defer a.ctxMu.Unlock()
	a.contextFuncs = append(a.contextFuncs, provider)
}

// EffectiveContext merges the static context values with every provider's
// contribution, later providers winning on key collision.
func (a *Agent) EffectiveContext(ctx context.Context) map[string]any {
	a.ctxMu.RLock()
	out := make(map[string]any, len(a.contextVals))
	for k, v := range a.contextVals {
		out[k] = v
	}
	providers := append([]func(ctx context.Context) map[string]any(nil), a.contextFuncs...)
	a.ctxMu.RUnlock()

	for _, p := range providers {
		for k, v := range p(ctx) {
			out[k] = v
		}
	}
	return out
}

// Init installs all components, waits for their wait-on-ready tasks, and
// transitions the agent to ready. Components declaring handlers statically
// (HandlerDeclarer) get each declaration registered through the EventRouter,
// wrapped so a disabled component's handlers opt out at dispatch time.
func (a *Agent) Init(ctx context.Context) error {
	if s := a.State(); s != StateInitializing {
		return kernelerr.New(kernelerr.Validation, "Agent.Init", "agent is not initializing: "+string(s))
	}

	a.events.Apply(ctx, event.AgentInitBefore, map[string]any{"agent_id": a.id.String()})

	for _, c := range a.components {
		if decl, ok := c.(component.HandlerDeclarer); ok {
			for _, d := range decl.Handlers() {
				a.events.On(d.Event, guardEnabled(c, d.Handler), d.Priority)
			}
		}
		if err := c.Install(ctx, a); err != nil {
			return kernelerr.Wrap(kernelerr.Handler, "Agent.Init", "install component "+c.Name(), err)
		}
	}

	// A wait-on-ready task that fails still releases the gate; a failed
	// initialization task must not wedge the agent.
	if err := a.tasks.ReadyGate(0); err != nil {
		return err
	}

	a.setState(ctx, StateReady)
	a.events.Apply(ctx, event.AgentInitAfter, map[string]any{"agent_id": a.id.String()})
	return nil
}

func guardEnabled(c component.Component, h event.Handler) event.Handler {
	return event.HandlerFunc(func(ctx context.Context, ec *event.Context) error {
		if !c.Enabled() {
			return nil
		}
		return h.Handle(ctx, ec)
	})
}

// RegisterMode registers a mode on the agent's ModeManager. For a mode
// declared invokable, an LLM-visible tool named enter_mode_<name> is
// auto-generated; calling it schedules the switch for the execute loop's
// next safe point rather than transitioning mid-iteration.
func (a *Agent) RegisterMode(info mode.Info, handler mode.Handler) error {
	if err := a.modes.Register(info, handler); err != nil {
		return err
	}
	if !info.Invokable {
		return nil
	}
	name := info.Name
	t, err := tool.NewFunc(tool.Config{
		Name:        "enter_mode_" + name,
		Description: "Switch into the " + name + " mode at the next opportunity.",
		Tags:        []string{"mode"},
	}, func(tc tool.Context, args struct{}) (any, error) {
		if err := a.modes.ScheduleSwitch(tc, name); err != nil {
			return nil, err
		}
		return map[string]any{"mode": name, "scheduled": true}, nil
	})
	if err != nil {
		return err
	}
	return a.tools.Register(t)
}

// Append inserts msg into the message list, firing message:append events. A
// system-role message is routed through SetSystem: a second system message
// replaces the first at index 0 rather than occupying a later position.
func (a *Agent) Append(ctx context.Context, msg message.Message) error {
	if msg.ID.IsNil() {
		return kernelerr.New(kernelerr.Validation, "Agent.Append", "message has a nil Identifier")
	}
	ec := a.events.Apply(ctx, event.MessageAppendBefore, map[string]any{"message": msg})
	if replaced, ok := ec.Parameters["message"].(message.Message); ok {
		msg = replaced
	}

	var err error
	if msg.Role == message.RoleSystem {
		err = a.list.SetSystem(msg)
	} else {
		err = a.list.Append(msg)
	}
	if err != nil {
		return err
	}
	a.registry.Register(msg.ID, a)
	a.events.Apply(ctx, event.MessageAppendAfter, map[string]any{"message": msg})
	return nil
}

// AppendText wraps user-facing content creation: it builds a Message with a
// single text part under role, fires message:create events, and appends it.
func (a *Agent) AppendText(ctx context.Context, role message.Role, text string) (message.Message, error) {
	a.events.Apply(ctx, event.MessageCreateBefore, map[string]any{"role": string(role), "text": text})
	msg := message.New(role, message.Part{Type: message.PartText, Text: text})
	a.events.Apply(ctx, event.MessageCreateAfter, map[string]any{"message": msg})
	if err := a.Append(ctx, msg); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

// extend batch-appends msgs as one new Version, registering ownership and
// firing append events per message.
func (a *Agent) extend(ctx context.Context, msgs []message.Message) error {
	for _, m := range msgs {
		a.events.Apply(ctx, event.MessageAppendBefore, map[string]any{"message": m})
	}
	if err := a.list.Extend(msgs); err != nil {
		return err
	}
	for _, m := range msgs {
		a.registry.Register(m.ID, a)
		a.events.Apply(ctx, event.MessageAppendAfter, map[string]any{"message": m})
	}
	return nil
}

// Fork creates a sibling agent with a fresh event router, an independent
// version manager, and (when includeMessages is true) deep-copied messages
// owned by the fork. Mutations on the fork never affect the parent.
func (a *Agent) Fork(ctx context.Context, includeMessages bool) (*Agent, error) {
	a.events.Apply(ctx, event.AgentForkBefore, map[string]any{"agent_id": a.id.String()})

	fork := New(WithConfig(a.Config()), WithToolAdapters(a.adapters...))
	if a.adapter != nil {
		fork.adapter = a.adapter
	}

	if includeMessages {
		cur := a.versions.CurrentIndex()
		if cur >= 0 {
			forked, err := a.versions.ForkAt(cur)
			if err != nil {
				return nil, err
			}
			fork.versions = forked
			fork.list = message.NewList(fork.store, fork.versions, fork.registry)
			// Deep-copy each message in the forked history into the fork's
			// own store, re-parented under the fork's ownership. Identifiers
			// are preserved — re-parenting is not an edit.
			seen := make(map[id.ID]bool)
			for _, v := range forked.History() {
				for _, msgID := range v.IDs {
					if seen[msgID] {
						continue
					}
					seen[msgID] = true
					m, err := a.store.Get(msgID)
					if err != nil {
						return nil, err
					}
					clone := m.Clone()
					if err := fork.store.Put(clone); err != nil {
						return nil, err
					}
					fork.registry.Register(clone.ID, fork)
				}
			}
		}
	}

	fork.setState(ctx, StateReady)
	a.events.Apply(ctx, event.AgentForkAfter, map[string]any{
		"agent_id": a.id.String(), "fork_id": fork.id.String(),
	})
	return fork, nil
}

// Close tears the agent down: unwinds the mode stack, cancels all pending
// background tasks, uninstalls components, and closes the event router's
// bridge loop. Idempotent on an already-closed agent.
func (a *Agent) Close(ctx context.Context) error {
	if s := a.State(); s == StateClosed || s == StateClosing {
		return nil
	}
	a.events.Apply(ctx, event.AgentCloseBefore, map[string]any{"agent_id": a.id.String()})
	a.setState(ctx, StateClosing)

	if err := a.modes.ExitAll(ctx); err != nil {
		a.events.Apply(ctx, event.ModeError, map[string]any{"error": err})
	}
	if err := a.tasks.CancelAll(5 * time.Second); err != nil {
		a.events.Apply(ctx, event.ExecuteError, map[string]any{"error": err})
	}
	for i := len(a.components) - 1; i >= 0; i-- {
		if u, ok := a.components[i].(component.Uninstaller); ok {
			if err := u.Uninstall(ctx, a); err != nil {
				a.events.Apply(ctx, event.ExecuteError, map[string]any{"error": err})
			}
		}
	}

	a.events.Apply(ctx, event.AgentCloseAfter, map[string]any{"agent_id": a.id.String()})
	a.setState(ctx, StateClosed)
	a.events.Join(0)
	a.events.Close()
	return nil
}
