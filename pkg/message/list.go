package message

import (
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/id"
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
)

// VersionTracker is the subset of *Registry[O] that List needs — any
// Registry[O] satisfies this regardless of its owner type parameter, since
// the method signature below does not mention O.
type VersionTracker interface {
	TrackVersion(msgID id.ID, version int)
}

// List presents the current Version as an ordered, mutable, indexable
// sequence of Messages, hooking every mutation into a VersionManager. It
// deliberately holds no private copy of "the current ids" —
// VersionManager.Current() is the single source of truth, which makes
// SyncFromVersion effectively free (see its doc comment).
type List struct {
	mu       sync.Mutex
	store    Store
	versions *VersionManager
	tracker  VersionTracker
}

// NewList constructs a List over store, recording new versions in versions
// and (optionally) tracking version membership in tracker.
func NewList(store Store, versions *VersionManager, tracker VersionTracker) *List {
	return &List{store: store, versions: versions, tracker: tracker}
}

func (l *List) track(ids []id.ID, version int) {
	if l.tracker == nil {
		return
	}
	for _, i := range ids {
		l.tracker.TrackVersion(i, version)
	}
}

// Append inserts msg, creating a new Version = previous current version +
// msg.ID.
func (l *List) Append(msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Put(msg); err != nil {
		return err
	}
	next := append(l.versions.Current(), msg.ID)
	idx := l.versions.AddVersion(next, nil)
	l.track(next, idx)
	return nil
}

// Extend inserts multiple messages, creating exactly one new Version for
// the whole batch — required so that an assistant message and the tool
// messages answering it land in the same Version atomically.
func (l *List) Extend(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.versions.Current()
	for _, m := range msgs {
		if err := l.store.Put(m); err != nil {
			return err
		}
		next = append(next, m.ID)
	}
	idx := l.versions.AddVersion(next, nil)
	l.track(next, idx)
	return nil
}

// Replace replaces the Identifier at index with a fresh Identifier for msg;
// the original Message remains retrievable from the store. Creates a new
// Version.
func (l *List) Replace(index int, msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaceLocked(index, msg)
}

func (l *List) replaceLocked(index int, msg Message) error {
	current := l.versions.Current()
	if index < 0 || index >= len(current) {
		return kernelerr.New(kernelerr.Validation, "List.Replace", "index out of range")
	}
	if err := l.store.Put(msg); err != nil {
		return err
	}
	next := append([]id.ID(nil), current...)
	next[index] = msg.ID
	idx := l.versions.AddVersion(next, nil)
	l.track(next, idx)
	return nil
}

// Clear creates a new, empty Version. Previous versions are retained.
func (l *List) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.versions.AddVersion(nil, nil)
	return nil
}

// SliceAssign replaces the Messages at the given target indices with msgs,
// one new Version for the whole batch. The number of replacements must
// equal the number of target indices, or the call fails with a Validation
// error and no mutation occurs.
func (l *List) SliceAssign(indices []int, msgs []Message) error {
	if len(indices) != len(msgs) {
		return kernelerr.New(kernelerr.Validation, "List.SliceAssign",
			"number of target indices must equal number of replacement messages")
	}
	if len(indices) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.versions.Current()
	for _, idx := range indices {
		if idx < 0 || idx >= len(current) {
			return kernelerr.New(kernelerr.Validation, "List.SliceAssign", "index out of range")
		}
	}

	next := append([]id.ID(nil), current...)
	for i, idx := range indices {
		if err := l.store.Put(msgs[i]); err != nil {
			return err
		}
		next[idx] = msgs[i].ID
	}
	vidx := l.versions.AddVersion(next, nil)
	l.track(next, vidx)
	return nil
}

// SyncFromVersion rebuilds the in-memory view from the current Version.
// Because List never caches ids itself — every read goes through
// VersionManager.Current() — there is nothing to resync; the call exists so
// code written against a caching list implementation keeps working after
// RevertTo/ForkAt.
func (l *List) SyncFromVersion() error { return nil }

// Len returns the number of messages in the current Version.
func (l *List) Len() int {
	return len(l.versions.Current())
}

// Messages resolves every Identifier in the current Version to its Message.
func (l *List) Messages() ([]Message, error) {
	ids := l.versions.Current()
	out := make([]Message, 0, len(ids))
	for _, i := range ids {
		m, err := l.store.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// At resolves the Message at index in the current Version.
func (l *List) At(index int) (Message, error) {
	ids := l.versions.Current()
	if index < 0 || index >= len(ids) {
		return Message{}, kernelerr.New(kernelerr.Validation, "List.At", "index out of range")
	}
	return l.store.Get(ids[index])
}

// SetSystem sets or replaces the system message. If a system message
// already occupies index 0, this is a Replace. If the list is empty, or
// its first message is not a system message, the new system message is
// prepended rather than overwriting index 0 — other roles may not occupy
// index 0 while a system message is set.
func (l *List) SetSystem(msg Message) error {
	if msg.Role != RoleSystem {
		return kernelerr.New(kernelerr.Validation, "List.SetSystem", "message role must be system")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.versions.Current()
	if len(current) == 0 {
		if err := l.store.Put(msg); err != nil {
			return err
		}
		idx := l.versions.AddVersion([]id.ID{msg.ID}, nil)
		l.track([]id.ID{msg.ID}, idx)
		return nil
	}

	first, err := l.store.Get(current[0])
	if err != nil {
		return err
	}
	if first.Role == RoleSystem {
		return l.replaceLocked(0, msg)
	}

	if err := l.store.Put(msg); err != nil {
		return err
	}
	next := append([]id.ID{msg.ID}, current...)
	idx := l.versions.AddVersion(next, nil)
	l.track(next, idx)
	return nil
}

// Projection is a plain, non-versioned, read-only view returned by Filter.
type Projection struct {
	messages []Message
}

// Messages returns the projected Messages.
func (p *Projection) Messages() []Message { return p.messages }

// Len returns the number of projected Messages.
func (p *Projection) Len() int { return len(p.messages) }

// Filter returns a read-only Projection of messages satisfying predicate.
// Unlike every other List method, Filter never touches the VersionManager —
// it is a read, not a mutation.
func (l *List) Filter(predicate func(Message) bool) (*Projection, error) {
	all, err := l.Messages()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if predicate(m) {
			out = append(out, m)
		}
	}
	return &Projection{messages: out}, nil
}

// ValidateSequencing checks that if an assistant Message carries K
// tool_calls, the following K messages are tool messages whose
// ToolCallIDs exactly cover (as a set) the K CallIDs.
func ValidateSequencing(msgs []Message) error {
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		if m.Role != RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		k := len(m.ToolCalls)
		want := make(map[string]bool, k)
		for _, tc := range m.ToolCalls {
			want[tc.CallID] = true
		}
		if i+k > len(msgs)-1 {
			return kernelerr.New(kernelerr.Validation, "ValidateSequencing",
				"not enough trailing messages to cover tool calls")
		}
		got := make(map[string]bool, k)
		for j := i + 1; j <= i+k && j < len(msgs); j++ {
			tm := msgs[j]
			if tm.Role != RoleTool {
				return kernelerr.New(kernelerr.Validation, "ValidateSequencing",
					"expected a tool message immediately after an assistant tool call")
			}
			got[tm.ToolCallID] = true
		}
		if len(got) != k {
			return kernelerr.New(kernelerr.Validation, "ValidateSequencing",
				"trailing tool messages do not cover all tool call ids")
		}
		for cid := range want {
			if !got[cid] {
				return kernelerr.New(kernelerr.Validation, "ValidateSequencing",
					"missing tool message for call id "+cid)
			}
		}
	}
	return nil
}
