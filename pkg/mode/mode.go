// Package mode implements the ModeManager: named, scoped handler sessions
// with setup/teardown symmetry, a stack with scoped state shadowing, and
// deferred transitions applied by the execute loop at safe points.
//
// A mode behaves like a suspend-once scoped session: setup runs, control
// returns to the kernel while the mode is active, teardown runs on exit.
// Handler models that as a pair of callbacks plus a stateful Session.
package mode

import (
	"context"
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
)

// Isolation declares how a mode's mutations affect the parent on exit.
type Isolation string

const (
	// IsolationNone: all mutations to messages/config persist on exit.
	IsolationNone Isolation = "none"
	// IsolationConfig: LLM configuration and tool set are snapshot on entry
	// and restored on exit; message history is shared with the parent.
	IsolationConfig Isolation = "config"
	// IsolationThread: message history is snapshot on entry and restored on
	// exit, except a final assistant message produced immediately before
	// exit, which is appended to the parent.
	IsolationThread Isolation = "thread"
	// IsolationFork: full isolation; all changes during the mode are
	// discarded on exit.
	IsolationFork Isolation = "fork"
)

// Session is the stateful object threaded through a mode's setup and
// teardown. State reads search the mode stack from the top downward, so an
// inner mode shadows an outer one; writes always land on this session's own
// frame and disappear when the mode exits.
type Session struct {
	Name string

	mgr   *Manager
	state map[string]any
}

// Set writes a scoped state value on this session's frame.
func (s *Session) Set(key string, value any) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	s.state[key] = value
}

// Get reads a scoped state value, searching from the top of the stack down.
func (s *Session) Get(key string) (any, bool) {
	return s.mgr.GetState(key)
}

// Handler is a mode's setup/teardown pair. Setup runs when the mode is
// entered (pushed on the stack); Teardown runs when it exits. A Teardown
// must run on every exit path, normal or error — Manager guarantees the
// call, handlers guarantee their own cleanup is idempotent.
type Handler interface {
	Setup(ctx context.Context, s *Session) error
	Teardown(ctx context.Context, s *Session) error
}

// Funcs adapts a pair of plain functions to Handler. Either may be nil.
type Funcs struct {
	SetupFn    func(ctx context.Context, s *Session) error
	TeardownFn func(ctx context.Context, s *Session) error
}

func (f Funcs) Setup(ctx context.Context, s *Session) error {
	if f.SetupFn == nil {
		return nil
	}
	return f.SetupFn(ctx, s)
}

func (f Funcs) Teardown(ctx context.Context, s *Session) error {
	if f.TeardownFn == nil {
		return nil
	}
	return f.TeardownFn(ctx, s)
}

// Info is a registered mode's static description.
type Info struct {
	Name      string
	Isolation Isolation
	// Invokable marks whether an LLM-visible tool to enter this mode should
	// be auto-generated by the host agent.
	Invokable bool
	Metadata  map[string]any
}

type registration struct {
	info    Info
	handler Handler
}

// frame is one active entry on the mode stack.
type frame struct {
	reg     *registration
	session *Session
	// restore undoes this mode's isolation snapshot; nil for IsolationNone.
	restore func() error
}

// Isolator is supplied by the host agent: Snapshot captures whatever state
// level requires and returns a restore function run after teardown. The
// manager itself has no knowledge of messages, versions, or tool sets.
type Isolator interface {
	Snapshot(level Isolation) (restore func() error, err error)
}

// Transition is a deferred mode change consumed by the execute loop.
type Transition struct {
	// Switch names the mode to enter; empty means exit the current mode.
	Switch string
	Exit   bool
}

// Manager owns mode registration, the active mode stack, scoped state, and
// scheduled transitions for one Agent.
type Manager struct {
	mu         sync.Mutex
	registered map[string]*registration
	stack      []*frame
	scheduled  *Transition

	isolator Isolator
	events   *event.Router
}

// NewManager constructs a Manager. isolator and events may be nil (no
// isolation support, no mode events) — the host agent supplies both.
func NewManager(isolator Isolator, events *event.Router) *Manager {
	return &Manager{
		registered: make(map[string]*registration),
		isolator:   isolator,
		events:     events,
	}
}

// Register records a mode under info.Name. Re-registering a name replaces
// the previous handler.
func (m *Manager) Register(info Info, handler Handler) error {
	if info.Name == "" {
		return kernelerr.New(kernelerr.Validation, "Manager.Register", "mode name is required")
	}
	if handler == nil {
		return kernelerr.New(kernelerr.Validation, "Manager.Register", "mode handler is required")
	}
	if info.Isolation == "" {
		info.Isolation = IsolationNone
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[info.Name] = &registration{info: info, handler: handler}
	return nil
}

// List returns the names of all registered modes.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.registered))
	for name := range m.registered {
		out = append(out, name)
	}
	return out
}

// GetInfo returns a registered mode's static description.
func (m *Manager) GetInfo(name string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registered[name]
	if !ok {
		return Info{}, false
	}
	return reg.info, true
}

// Current returns the active (topmost) mode's name, or "" when no mode is
// active.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return ""
	}
	return m.stack[len(m.stack)-1].reg.info.Name
}

// Stack returns the active mode names, outermost first.
func (m *Manager) Stack() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.stack))
	for i, f := range m.stack {
		out[i] = f.reg.info.Name
	}
	return out
}

// InMode reports whether name is anywhere on the active stack.
func (m *Manager) InMode(name string) bool {
	for _, n := range m.Stack() {
		if n == name {
			return true
		}
	}
	return false
}

// GetState reads a scoped state value, searching frames from the top of the
// stack downward so inner modes shadow outer ones.
func (m *Manager) GetState(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.stack) - 1; i >= 0; i-- {
		if v, ok := m.stack[i].session.state[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// SetState writes a scoped state value on the active mode's frame.
func (m *Manager) SetState(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return kernelerr.New(kernelerr.Validation, "Manager.SetState", "no active mode")
	}
	m.stack[len(m.stack)-1].session.state[key] = value
	return nil
}

func (m *Manager) apply(ctx context.Context, name string, params map[string]any) {
	if m.events != nil {
		m.events.Apply(ctx, name, params)
	}
}

// Enter pushes name onto the stack and runs its setup. Entering the
// currently-active mode is a no-op. If setup fails, the isolation snapshot
// is rolled back and the stack is left unchanged.
func (m *Manager) Enter(ctx context.Context, name string) error {
	m.mu.Lock()
	reg, ok := m.registered[name]
	if !ok {
		m.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "Manager.Enter", "mode not registered: "+name)
	}
	if len(m.stack) > 0 && m.stack[len(m.stack)-1].reg.info.Name == name {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.apply(ctx, event.ModeEntering, map[string]any{"mode": name})

	var restore func() error
	if m.isolator != nil && reg.info.Isolation != IsolationNone {
		var err error
		restore, err = m.isolator.Snapshot(reg.info.Isolation)
		if err != nil {
			m.apply(ctx, event.ModeError, map[string]any{"mode": name, "error": err})
			return kernelerr.Wrap(kernelerr.Handler, "Manager.Enter", "isolation snapshot failed", err)
		}
	}

	f := &frame{
		reg:     reg,
		session: &Session{Name: name, mgr: m, state: make(map[string]any)},
		restore: restore,
	}

	m.mu.Lock()
	m.stack = append(m.stack, f)
	m.mu.Unlock()

	if err := reg.handler.Setup(ctx, f.session); err != nil {
		m.mu.Lock()
		m.stack = m.stack[:len(m.stack)-1]
		m.mu.Unlock()
		if restore != nil {
			if rerr := restore(); rerr != nil {
				m.apply(ctx, event.ModeError, map[string]any{"mode": name, "error": rerr})
			}
		}
		m.apply(ctx, event.ModeError, map[string]any{"mode": name, "error": err})
		return kernelerr.Wrap(kernelerr.Handler, "Manager.Enter", "mode setup failed", err)
	}

	m.apply(ctx, event.ModeEntered, map[string]any{"mode": name})
	return nil
}

// Exit pops the top mode, running its teardown and then its isolation
// restore. Teardown failure does not skip the restore.
func (m *Manager) Exit(ctx context.Context) error {
	m.mu.Lock()
	if len(m.stack) == 0 {
		m.mu.Unlock()
		return kernelerr.New(kernelerr.Validation, "Manager.Exit", "no active mode to exit")
	}
	f := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	m.mu.Unlock()

	name := f.reg.info.Name
	m.apply(ctx, event.ModeExiting, map[string]any{"mode": name})

	terr := f.reg.handler.Teardown(ctx, f.session)
	if terr != nil {
		m.apply(ctx, event.ModeError, map[string]any{"mode": name, "error": terr})
	}

	if f.restore != nil {
		if rerr := restoreErr(f.restore); rerr != nil {
			m.apply(ctx, event.ModeError, map[string]any{"mode": name, "error": rerr})
			if terr == nil {
				terr = rerr
			}
		}
	}

	m.apply(ctx, event.ModeExited, map[string]any{"mode": name})
	if terr != nil {
		return kernelerr.Wrap(kernelerr.Handler, "Manager.Exit", "mode teardown failed", terr)
	}
	return nil
}

func restoreErr(restore func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = kernelerr.New(kernelerr.Handler, "Manager.Exit", "panic during isolation restore")
		}
	}()
	return restore()
}

// Scope enters name and returns a closer that exits it, for use with defer
// so teardown runs on every exit path including panics.
func (m *Manager) Scope(ctx context.Context, name string) (close func() error, err error) {
	if err := m.Enter(ctx, name); err != nil {
		return nil, err
	}
	return func() error { return m.Exit(ctx) }, nil
}

// ScheduleSwitch defers entering name until the execute loop's next safe
// point (between iterations). A later schedule overwrites an earlier one.
func (m *Manager) ScheduleSwitch(ctx context.Context, name string) error {
	m.mu.Lock()
	_, ok := m.registered[name]
	if !ok {
		m.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "Manager.ScheduleSwitch", "mode not registered: "+name)
	}
	m.scheduled = &Transition{Switch: name}
	m.mu.Unlock()
	m.apply(ctx, event.ModeTransition, map[string]any{"mode": name, "deferred": true})
	return nil
}

// ScheduleExit defers exiting the current mode until the next safe point.
func (m *Manager) ScheduleExit(ctx context.Context) {
	m.mu.Lock()
	m.scheduled = &Transition{Exit: true}
	m.mu.Unlock()
	m.apply(ctx, event.ModeTransition, map[string]any{"exit": true, "deferred": true})
}

// TakeScheduled consumes and returns the pending transition, if any. The
// execute loop calls this between iterations.
func (m *Manager) TakeScheduled() *Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.scheduled
	m.scheduled = nil
	return t
}

// ExitAll unwinds the entire stack, used on agent close. Errors from
// individual teardowns are collected into the last one observed.
func (m *Manager) ExitAll(ctx context.Context) error {
	var last error
	for m.Current() != "" {
		if err := m.Exit(ctx); err != nil {
			last = err
		}
	}
	return last
}
