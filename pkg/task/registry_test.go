package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CompletedTaskIsRemoved(t *testing.T) {
	r := NewRegistry()

	h := r.Create(context.Background(), func(ctx context.Context) error {
		return nil
	}, Options{Name: "noop"})

	<-h.Done()
	assert.Equal(t, StateCompleted, h.State())
	require.NoError(t, r.WaitForAll(time.Second))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_FailedTaskIsLoggedNotRaised(t *testing.T) {
	r := NewRegistry()

	h := r.Create(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	}, Options{Name: "failing"})

	<-h.Done()
	assert.Equal(t, StateFailed, h.State())
	assert.EqualError(t, h.Err(), "boom")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ReadyGateWaitsOnlyForWaitOnReadyTasks(t *testing.T) {
	r := NewRegistry()

	gateRelease := make(chan struct{})
	r.Create(context.Background(), func(ctx context.Context) error {
		<-gateRelease
		return nil
	}, Options{Name: "init", WaitOnReady: true})

	// A long-running non-gated task must not block ReadyGate.
	slowRelease := make(chan struct{})
	r.Create(context.Background(), func(ctx context.Context) error {
		<-slowRelease
		return nil
	}, Options{Name: "slow"})
	defer close(slowRelease)

	done := make(chan error, 1)
	go func() { done <- r.ReadyGate(0) }()

	select {
	case <-done:
		t.Fatal("ReadyGate released before the wait-on-ready task completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(gateRelease)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ReadyGate did not release after the gated task completed")
	}
}

func TestRegistry_ReadyGateReleasesEvenWhenGatedTaskFails(t *testing.T) {
	r := NewRegistry()

	r.Create(context.Background(), func(ctx context.Context) error {
		return errors.New("init failed")
	}, Options{Name: "bad-init", WaitOnReady: true})

	require.NoError(t, r.ReadyGate(time.Second))
}

func TestRegistry_CancelAllTerminatesPendingTasks(t *testing.T) {
	r := NewRegistry()

	var observed atomic.Bool
	h := r.Create(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		observed.Store(true)
		return ctx.Err()
	}, Options{Name: "long"})

	require.NoError(t, r.CancelAll(time.Second))
	assert.True(t, observed.Load())
	assert.Equal(t, StateCancelled, h.State())
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_CleanupRunsAfterRemoval(t *testing.T) {
	r := NewRegistry()

	cleaned := make(chan *Handle, 1)
	r.Create(context.Background(), func(ctx context.Context) error {
		return nil
	}, Options{
		Name:      "with-cleanup",
		OnCleanup: func(h *Handle) { cleaned <- h },
	})

	select {
	case h := <-cleaned:
		assert.Equal(t, StateCompleted, h.State())
		assert.Equal(t, 0, r.Count())
	case <-time.After(time.Second):
		t.Fatal("cleanup callback never ran")
	}
}

func TestRegistry_StatsCountsByComponentAndGate(t *testing.T) {
	r := NewRegistry()

	release := make(chan struct{})
	for range 2 {
		r.Create(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		}, Options{Component: "citations"})
	}
	r.Create(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	}, Options{Component: "crawler", WaitOnReady: true})

	s := r.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ByComponent["citations"])
	assert.Equal(t, 1, s.ByComponent["crawler"])
	assert.Equal(t, 1, s.WaitOnReady)
	assert.Equal(t, 3, s.ByState[StatePending])

	close(release)
	require.NoError(t, r.WaitForAll(time.Second))
}

func TestRegistry_PanickingTaskIsIsolated(t *testing.T) {
	r := NewRegistry()

	h := r.Create(context.Background(), func(ctx context.Context) error {
		panic("task exploded")
	}, Options{Name: "panicky"})

	<-h.Done()
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, 0, r.Count())
}
