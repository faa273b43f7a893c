package message

import (
	"sync"
	"weak"

	"github.com/kadirpekel/agentkernel/pkg/id"
)

// Registry tracks, per Message Identifier, which owner (typically an
// *agent.Agent) created it and which Version numbers contain it. It is
// generic over the owner type so this package never imports pkg/agent —
// pkg/agent instantiates Registry[agent.Agent] instead, keeping the
// dependency one-directional.
//
// Ownership is tracked via weak.Pointer (Go's runtime-level weak reference,
// stdlib since go1.24): no third-party library offers GC-aware weak
// references, so this is the one place the kernel reaches for the standard
// library over an ecosystem dependency by necessity, not by default (see
// DESIGN.md).
type Registry[O any] struct {
	mu       sync.RWMutex
	owners   map[id.ID]weak.Pointer[O]
	versions map[id.ID][]int
}

// NewRegistry constructs an empty Registry.
func NewRegistry[O any]() *Registry[O] {
	return &Registry[O]{
		owners:   make(map[id.ID]weak.Pointer[O]),
		versions: make(map[id.ID][]int),
	}
}

// Register records owner as msgID's creator.
func (r *Registry[O]) Register(msgID id.ID, owner *O) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[msgID] = weak.Make(owner)
}

// Owner resolves msgID's owner, pruning the entry if the weak reference has
// gone dead (the owning Agent was garbage collected).
func (r *Registry[O]) Owner(msgID id.ID) (*O, bool) {
	r.mu.RLock()
	wp, ok := r.owners[msgID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	owner := wp.Value()
	if owner == nil {
		r.mu.Lock()
		delete(r.owners, msgID)
		r.mu.Unlock()
		return nil, false
	}
	return owner, true
}

// TrackVersion records that version contains msgID, without duplicates.
func (r *Registry[O]) TrackVersion(msgID id.ID, version int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions[msgID] {
		if v == version {
			return
		}
	}
	r.versions[msgID] = append(r.versions[msgID], version)
}

// VersionsContaining returns the (ascending) list of version indices that
// contain msgID.
func (r *Registry[O]) VersionsContaining(msgID id.ID) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, len(r.versions[msgID]))
	copy(out, r.versions[msgID])
	return out
}

// Sweep prunes every dead weak reference and reports how many were removed.
// Dead references are also pruned lazily on Owner access; Sweep exists for
// hosts that want a periodic full pass instead of relying on access-time
// pruning alone.
func (r *Registry[O]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for msgID, wp := range r.owners {
		if wp.Value() == nil {
			delete(r.owners, msgID)
			removed++
		}
	}
	return removed
}
