package message

import (
	"sync"
	"time"

	"github.com/kadirpekel/agentkernel/pkg/id"
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
)

// Version is an immutable ordered list of Identifiers representing the full
// message sequence at one point in history.
type Version struct {
	IDs      []id.ID
	Metadata map[string]any
	At       time.Time
}

// VersionManager owns the version history for one Agent's MessageList. It
// is mutated only through MessageList.
//
// RevertTo and TruncateAfter coexist without additional coordination beyond
// the mutex below: the kernel requires single-writer discipline from
// callers and documents it here rather than guessing at concurrent-writer
// semantics.
type VersionManager struct {
	mu       sync.RWMutex
	versions []Version
	current  int // index into versions, -1 when empty
}

// NewVersionManager constructs an empty VersionManager.
func NewVersionManager() *VersionManager {
	return &VersionManager{current: -1}
}

// AddVersion appends a new Version and returns its index. ids is copied
// defensively so later caller mutation cannot affect stored history.
func (vm *VersionManager) AddVersion(ids []id.ID, metadata map[string]any) int {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	v := Version{
		IDs:      append([]id.ID(nil), ids...),
		Metadata: cloneMeta(metadata),
		At:       time.Now(),
	}
	vm.versions = append(vm.versions, v)
	vm.current = len(vm.versions) - 1
	return vm.current
}

// Current returns a defensive copy of the current version's id list.
func (vm *VersionManager) Current() []id.ID {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.current < 0 {
		return nil
	}
	return append([]id.ID(nil), vm.versions[vm.current].IDs...)
}

// CurrentIndex returns the current version index, or -1 when empty.
func (vm *VersionManager) CurrentIndex() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.current
}

// resolveIndex supports negative indexing (−1 is the last version) under
// the caller's held lock.
func (vm *VersionManager) resolveIndex(index int) (int, error) {
	n := len(vm.versions)
	if n == 0 {
		if index == -1 {
			return -1, nil
		}
		return 0, kernelerr.New(kernelerr.Validation, "VersionManager", "no versions exist")
	}
	i := index
	if i < 0 {
		i = n + i
	}
	if i < 0 || i >= n {
		return 0, kernelerr.New(kernelerr.Validation, "VersionManager", "version index out of range")
	}
	return i, nil
}

// GetVersion returns a defensive copy of version index's id list, supporting
// negative indexing. GetVersion(-1) on an empty manager returns an empty
// (non-nil) slice rather than erroring.
func (vm *VersionManager) GetVersion(index int) ([]id.ID, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	if len(vm.versions) == 0 && index == -1 {
		return []id.ID{}, nil
	}
	i, err := vm.resolveIndex(index)
	if err != nil {
		return nil, err
	}
	return append([]id.ID(nil), vm.versions[i].IDs...), nil
}

// RevertTo is non-destructive: it creates a new version whose contents equal
// the target version, annotated with {reverted_from, reverted_to}. Earlier
// versions, including the target, are retained unchanged.
func (vm *VersionManager) RevertTo(index int) (int, error) {
	vm.mu.Lock()
	i, err := vm.resolveIndex(index)
	if err != nil {
		vm.mu.Unlock()
		return 0, err
	}
	target := append([]id.ID(nil), vm.versions[i].IDs...)
	fromIdx := vm.current
	vm.mu.Unlock()

	newIdx := vm.AddVersion(target, map[string]any{
		"reverted_from": fromIdx,
		"reverted_to":   i,
	})
	return newIdx, nil
}

// ForkAt deep-copies versions 0..index (inclusive) into a brand-new
// VersionManager, for use by Agent.Fork.
func (vm *VersionManager) ForkAt(index int) (*VersionManager, error) {
	vm.mu.RLock()
	i, err := vm.resolveIndex(index)
	if err != nil {
		vm.mu.RUnlock()
		return nil, err
	}
	out := &VersionManager{current: i}
	out.versions = make([]Version, i+1)
	for k := 0; k <= i; k++ {
		out.versions[k] = Version{
			IDs:      append([]id.ID(nil), vm.versions[k].IDs...),
			Metadata: cloneMeta(vm.versions[k].Metadata),
			At:       vm.versions[k].At,
		}
	}
	vm.mu.RUnlock()
	return out, nil
}

// TruncateAfter is destructive: it drops all versions after index. If the
// current index was beyond index, it is clamped to index.
func (vm *VersionManager) TruncateAfter(index int) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	i, err := vm.resolveIndex(index)
	if err != nil {
		return err
	}
	vm.versions = vm.versions[:i+1]
	if vm.current > i {
		vm.current = i
	}
	return nil
}

// ChangesBetween returns the set diff of identifiers between version a and
// version b: ids present in b but not a (added), and ids present in a but
// not b (removed).
func (vm *VersionManager) ChangesBetween(a, b int) (added, removed []id.ID, err error) {
	vm.mu.RLock()
	ia, err := vm.resolveIndex(a)
	if err != nil {
		vm.mu.RUnlock()
		return nil, nil, err
	}
	ib, err := vm.resolveIndex(b)
	if err != nil {
		vm.mu.RUnlock()
		return nil, nil, err
	}
	setA := make(map[id.ID]bool, len(vm.versions[ia].IDs))
	for _, x := range vm.versions[ia].IDs {
		setA[x] = true
	}
	setB := make(map[id.ID]bool, len(vm.versions[ib].IDs))
	for _, x := range vm.versions[ib].IDs {
		setB[x] = true
	}
	vm.mu.RUnlock()

	for x := range setB {
		if !setA[x] {
			added = append(added, x)
		}
	}
	for x := range setA {
		if !setB[x] {
			removed = append(removed, x)
		}
	}
	return added, removed, nil
}

// History returns a defensive copy of every recorded Version, in order, so
// callers (debuggers, tests) can inspect the revert/fork trail without
// risking mutation of stored history.
func (vm *VersionManager) History() []Version {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make([]Version, len(vm.versions))
	for i, v := range vm.versions {
		out[i] = Version{
			IDs:      append([]id.ID(nil), v.IDs...),
			Metadata: cloneMeta(v.Metadata),
			At:       v.At,
		}
	}
	return out
}

// Count returns the number of recorded versions.
func (vm *VersionManager) Count() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return len(vm.versions)
}
