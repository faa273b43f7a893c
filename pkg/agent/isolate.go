package agent

import (
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/mode"
	"github.com/kadirpekel/agentkernel/pkg/tool"
)

// isolator applies a mode's declared isolation level on entry and hands the
// ModeManager a restore function to run after teardown. The manager itself
// knows nothing about messages, versions, or tool sets.
type isolator struct {
	agent *Agent
}

func (iso *isolator) Snapshot(level mode.Isolation) (func() error, error) {
	a := iso.agent
	switch level {
	case mode.IsolationNone:
		return nil, nil

	case mode.IsolationConfig:
		restoreConfig := a.snapshotConfig()
		restoreTools, err := a.tools.Scope(tool.ScopeOptions{Mode: tool.ModeAppend})
		if err != nil {
			return nil, err
		}
		return func() error {
			restoreTools()
			restoreConfig()
			return nil
		}, nil

	case mode.IsolationThread:
		snapIdx := a.versions.CurrentIndex()
		return func() error { return a.restoreThread(snapIdx) }, nil

	case mode.IsolationFork:
		restoreConfig := a.snapshotConfig()
		restoreTools, err := a.tools.Scope(tool.ScopeOptions{Mode: tool.ModeAppend})
		if err != nil {
			return nil, err
		}
		prevVersions, prevList := a.versions, a.list

		forked, err := forkVersions(a.versions)
		if err != nil {
			restoreTools()
			return nil, err
		}
		a.versions = forked
		a.list = message.NewList(a.store, a.versions, a.registry)

		return func() error {
			a.versions = prevVersions
			a.list = prevList
			restoreTools()
			restoreConfig()
			return nil
		}, nil
	}
	return nil, kernelerr.New(kernelerr.Validation, "Agent.Snapshot", "unknown isolation level: "+string(level))
}

// snapshotConfig deep-copies the config map and returns a restore.
func (a *Agent) snapshotConfig() func() {
	a.mu.Lock()
	snap := make(map[string]any, len(a.config))
	for k, v := range a.config {
		snap[k] = v
	}
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		a.config = snap
		a.mu.Unlock()
	}
}

// restoreThread reverts the message history to the pre-entry version,
// preserving only a final assistant message produced immediately before
// exit — that one is re-appended onto the parent sequence.
func (a *Agent) restoreThread(snapIdx int) error {
	var final *message.Message
	cur := a.versions.Current()

	var snapLen int
	if snapIdx >= 0 {
		snap, err := a.versions.GetVersion(snapIdx)
		if err != nil {
			return err
		}
		snapLen = len(snap)
	}

	if len(cur) > snapLen {
		last, err := a.store.Get(cur[len(cur)-1])
		if err == nil && last.Role == message.RoleAssistant {
			final = &last
		}
	}

	if snapIdx < 0 {
		// History was empty on entry; a new empty version discards the
		// mode's messages from the active sequence.
		if err := a.list.Clear(); err != nil {
			return err
		}
	} else if _, err := a.versions.RevertTo(snapIdx); err != nil {
		return err
	}

	if final != nil {
		return a.list.Append(*final)
	}
	return nil
}

// forkVersions deep-copies vm's history into a fresh manager; an empty
// manager forks to another empty manager.
func forkVersions(vm *message.VersionManager) (*message.VersionManager, error) {
	cur := vm.CurrentIndex()
	if cur < 0 {
		return message.NewVersionManager(), nil
	}
	return vm.ForkAt(cur)
}
