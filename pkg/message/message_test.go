package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *InMemoryStore { return NewInMemoryStore(nil) }

func TestList_AppendCreatesVersion(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)

	m1 := New(RoleUser, Part{Type: PartText, Text: "hi"})
	require.NoError(t, l.Append(m1))

	assert.Equal(t, 0, vm.CurrentIndex())
	cur := vm.Current()
	require.Len(t, cur, 1)
	assert.Equal(t, m1.ID, cur[0])

	m2 := New(RoleAssistant, Part{Type: PartText, Text: "hello"})
	require.NoError(t, l.Append(m2))
	assert.Equal(t, 1, vm.CurrentIndex())
	assert.Len(t, vm.Current(), 2)
}

func TestList_ExtendCreatesSingleVersion(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)

	msgs := []Message{
		New(RoleAssistant),
		New(RoleTool),
		New(RoleTool),
	}
	require.NoError(t, l.Extend(msgs))
	assert.Equal(t, 0, vm.CurrentIndex())
	assert.Len(t, vm.Current(), 3)
}

func TestList_ReplacePreservesOriginalInStore(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)

	m1 := New(RoleUser, Part{Type: PartText, Text: "v1"})
	require.NoError(t, l.Append(m1))

	m2 := New(RoleUser, Part{Type: PartText, Text: "v2"})
	require.NoError(t, l.Replace(0, m2))

	// original still retrievable
	got, err := store.Get(m1.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.TextContent())

	cur := vm.Current()
	require.Len(t, cur, 1)
	assert.Equal(t, m2.ID, cur[0])
	assert.NotEqual(t, m1.ID, m2.ID)
}

func TestList_SliceAssignMismatchedLengthsFailsWithNoMutation(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)

	require.NoError(t, l.Append(New(RoleUser)))
	before := vm.CurrentIndex()

	err := l.SliceAssign([]int{0}, []Message{New(RoleUser), New(RoleUser)})
	require.Error(t, err)
	assert.Equal(t, before, vm.CurrentIndex())
}

func TestList_SetSystem_PrependsWhenNoSystemPresent(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)

	u := New(RoleUser, Part{Type: PartText, Text: "hi"})
	require.NoError(t, l.Append(u))

	sys := New(RoleSystem, Part{Type: PartText, Text: "be nice"})
	require.NoError(t, l.SetSystem(sys))

	msgs, err := l.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestList_SetSystem_ReplacesExistingSystemAtZero(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)

	sys1 := New(RoleSystem, Part{Type: PartText, Text: "v1"})
	require.NoError(t, l.Append(sys1))
	require.NoError(t, l.Append(New(RoleUser)))

	sys2 := New(RoleSystem, Part{Type: PartText, Text: "v2"})
	require.NoError(t, l.SetSystem(sys2))

	msgs, err := l.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, sys2.ID, msgs[0].ID)
}

func TestVersionManager_RevertToIsNonDestructive(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Append(New(RoleUser)))
	}
	v1, err := vm.GetVersion(1)
	require.NoError(t, err)

	newIdx, err := vm.RevertTo(1)
	require.NoError(t, err)
	assert.Equal(t, 4, newIdx)
	assert.Equal(t, v1, vm.Current())

	// earlier versions remain retrievable and unchanged
	v1Again, err := vm.GetVersion(1)
	require.NoError(t, err)
	assert.Equal(t, v1, v1Again)
}

func TestVersionManager_GetVersionNegativeIndexingOnEmpty(t *testing.T) {
	vm := NewVersionManager()
	ids, err := vm.GetVersion(-1)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, -1, vm.CurrentIndex())
}

func TestVersionManager_ForkLeavesParentUnchanged(t *testing.T) {
	store := newStore()
	vm := NewVersionManager()
	l := NewList(store, vm, nil)
	require.NoError(t, l.Append(New(RoleUser)))
	require.NoError(t, l.Append(New(RoleAssistant)))

	forked, err := vm.ForkAt(vm.CurrentIndex())
	require.NoError(t, err)

	forkedList := NewList(store, forked, nil)
	require.NoError(t, forkedList.Append(New(RoleUser)))

	assert.Equal(t, 2, len(vm.Current()))
	assert.Equal(t, 3, len(forked.Current()))
}

func TestValidateSequencing(t *testing.T) {
	assistant := New(RoleAssistant)
	assistant.ToolCalls = []ToolCall{{CallID: "a"}, {CallID: "b"}}
	toolA := New(RoleTool)
	toolA.ToolCallID = "a"
	toolB := New(RoleTool)
	toolB.ToolCallID = "b"

	require.NoError(t, ValidateSequencing([]Message{assistant, toolB, toolA}))

	missing := New(RoleTool)
	missing.ToolCallID = "a"
	require.Error(t, ValidateSequencing([]Message{assistant, missing}))
}
