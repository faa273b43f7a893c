package tool

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
)

type entry struct {
	tool Tool
}

// Manager is a name-keyed collection of Tools with scoped, stack-based
// temporary overrides (Scope): entering a scope snapshots the current tool
// set, applies a transformation, and the returned closer restores the prior
// snapshot unconditionally, including on panic and error paths.
type Manager struct {
	mu    sync.RWMutex
	items map[string]entry
	// stack holds a snapshot of items for every currently open Scope, in
	// nesting order; each call of a closer returned by Scope pops the
	// topmost one.
	stack []map[string]entry
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{items: make(map[string]entry)}
}

// Register adds or replaces a Tool under its own Name.
func (m *Manager) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return kernelerr.New(kernelerr.Validation, "Manager.Register", "tool must have a non-empty name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[t.Name()] = entry{tool: t}
	return nil
}

// Unregister removes a Tool by name. Unregistering an unknown name is a
// no-op.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, name)
}

// Get resolves a Tool by name.
func (m *Manager) Get(name string) (Tool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Has reports whether name is currently registered.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[name]
	return ok
}

// List returns the currently visible Tools, ordered by Priority (descending)
// then Name.
func (m *Manager) List() []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tool, 0, len(m.items))
	for _, e := range m.items {
		out = append(out, e.tool)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Find resolves tools by pattern: an exact name, a name wildcard
// ("get_*"), or a tag pattern ("tag:search", "tag:*"). Results are ordered
// like List. An unmatched pattern returns an empty slice.
func (m *Manager) Find(pattern string) []Tool {
	var out []Tool
	if tagPattern, ok := strings.CutPrefix(pattern, "tag:"); ok {
		for _, t := range m.List() {
			for _, tag := range t.Tags() {
				if matched, _ := path.Match(tagPattern, tag); matched {
					out = append(out, t)
					break
				}
			}
		}
		return out
	}
	for _, t := range m.List() {
		if t.Name() == pattern {
			out = append(out, t)
			continue
		}
		if matched, _ := path.Match(pattern, t.Name()); matched {
			out = append(out, t)
		}
	}
	return out
}

// Len reports how many Tools are currently visible.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Mode selects how Scope combines its argument tools with the Manager's
// current tool set.
type Mode string

const (
	// ModeReplace discards the current tool set for the scope's duration.
	ModeReplace Mode = "replace"
	// ModeAppend adds to the current tool set without removing anything.
	ModeAppend Mode = "append"
	// ModeFilter keeps only tools for which filterFn returns true.
	ModeFilter Mode = "filter"
)

// ScopeOptions configures Scope.
type ScopeOptions struct {
	Mode Mode
	// Tools is used by ModeReplace and ModeAppend.
	Tools []Tool
	// Filter is used by ModeFilter; it receives each currently visible
	// tool's name and Tool.
	Filter func(name string, t Tool) bool
}

// Scope snapshots the current tool set, applies opts, and returns a closer
// that restores the snapshot. Restoration happens regardless of whether the
// caller's deferred close runs after a normal return or a panic.
func (m *Manager) Scope(opts ScopeOptions) (close func(), err error) {
	if opts.Mode == "" {
		opts.Mode = ModeReplace
	}

	m.mu.Lock()
	snapshot := make(map[string]entry, len(m.items))
	for k, v := range m.items {
		snapshot[k] = v
	}

	switch opts.Mode {
	case ModeReplace:
		next := make(map[string]entry, len(opts.Tools))
		for _, t := range opts.Tools {
			next[t.Name()] = entry{tool: t}
		}
		m.items = next
	case ModeAppend:
		for _, t := range opts.Tools {
			m.items[t.Name()] = entry{tool: t}
		}
	case ModeFilter:
		if opts.Filter == nil {
			m.mu.Unlock()
			return nil, kernelerr.New(kernelerr.Validation, "Manager.Scope", "filter mode requires a Filter function")
		}
		next := make(map[string]entry)
		for k, v := range m.items {
			if opts.Filter(k, v.tool) {
				next[k] = v
			}
		}
		m.items = next
	default:
		m.mu.Unlock()
		return nil, kernelerr.New(kernelerr.Validation, "Manager.Scope", "unknown scope mode")
	}
	m.stack = append(m.stack, snapshot)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		n := len(m.stack)
		if n == 0 {
			return
		}
		m.items = m.stack[n-1]
		m.stack = m.stack[:n-1]
	}, nil
}
