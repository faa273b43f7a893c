// Package component defines the plugin contract for extending an Agent at
// construction time. A component contributes tools, event handlers, and
// context providers during Install; the kernel also discovers declarative
// handler metadata (the Go analog of the source's decorator-annotated
// methods) from any component implementing HandlerDeclarer.
//
// The package deliberately depends on a narrow Host interface rather than
// the concrete Agent so component authors never import pkg/agent and the
// dependency stays one-directional.
package component

import (
	"context"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/task"
	"github.com/kadirpekel/agentkernel/pkg/tool"
)

// Host is the slice of an Agent a component sees during Install.
type Host interface {
	// Events returns the agent's EventRouter for imperative registration.
	Events() *event.Router
	// Tools returns the agent's ToolManager.
	Tools() *tool.Manager
	// Tasks returns the agent's TaskRegistry; components spawn
	// wait-on-ready initialization work here.
	Tasks() *task.Registry
	// SetContext writes a key into the agent's template/provider context.
	SetContext(key string, value any)
	// GetContext reads a key from the agent's context.
	GetContext(key string) (any, bool)
	// AddContextProvider registers a function consulted when the agent
	// renders messages; returned keys are merged into the context.
	AddContextProvider(provider func(ctx context.Context) map[string]any)
}

// Component is a plugin installed onto an Agent.
type Component interface {
	Name() string
	// Install registers the component's contributions. It may spawn
	// wait-on-ready tasks on host.Tasks(); the agent blocks its ready
	// transition on them.
	Install(ctx context.Context, host Host) error
	// Enabled reports whether the component's handlers should act.
	// Handlers registered by a disabled component stay subscribed but are
	// expected to consult this flag and opt out at dispatch time.
	Enabled() bool
}

// Uninstaller is implemented by components that need teardown on agent
// close.
type Uninstaller interface {
	Uninstall(ctx context.Context, host Host) error
}

// Declaration is one statically-declared event handler: the Go rendition of
// a decorator-annotated component method. On install the kernel reads these
// and registers each via the EventRouter, producing the same internal
// record as imperative On calls.
type Declaration struct {
	Event    string
	Priority int
	Handler  event.Handler
}

// HandlerDeclarer is implemented by components that declare handlers
// statically instead of (or in addition to) registering them inside
// Install.
type HandlerDeclarer interface {
	Handlers() []Declaration
}

// Base provides Name/Enabled bookkeeping for embedding in concrete
// components.
type Base struct {
	ComponentName string
	Disabled      bool
}

func (b *Base) Name() string { return b.ComponentName }

func (b *Base) Enabled() bool { return !b.Disabled }

// Enable flips the component on.
func (b *Base) Enable() { b.Disabled = false }

// Disable flips the component off; its handlers should start opting out.
func (b *Base) Disable() { b.Disabled = true }

func (b *Base) Install(ctx context.Context, host Host) error { return nil }
