// Package task implements the TaskRegistry: lifecycle-managed background
// tasks spawned by an Agent or its components, with wait-on-ready gating
// for initialization work and cancel-all teardown on agent close.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
	"github.com/prometheus/client_golang/prometheus"
)

// State is a background task's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Work is the body of a background task. It must honor ctx cancellation
// promptly — on agent close every outstanding task's ctx is cancelled.
type Work func(ctx context.Context) error

// Handle identifies one live background task.
type Handle struct {
	ID          string
	Name        string
	Component   string
	WaitOnReady bool

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// State returns the task's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the task's failure cause, if it failed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done returns a channel closed when the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel signals the task's context. The task is removed from the registry
// when its Work observes the cancellation and returns.
func (h *Handle) Cancel() { h.cancel() }

// Options configures Create.
type Options struct {
	Name      string
	Component string
	// WaitOnReady marks this task as one the Agent must wait for before
	// transitioning from initializing to ready.
	WaitOnReady bool
	// OnCleanup runs after the task is removed from the registry.
	OnCleanup func(h *Handle)
}

// Stats is a point-in-time snapshot of the registry's task population.
type Stats struct {
	Total       int
	ByState     map[State]int
	ByComponent map[string]int
	WaitOnReady int
}

// Registry manages the set of live background tasks for one Agent. Its
// internal task set is protected by a single mutex; enumerations return
// snapshots.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Handle

	pending prometheus.Gauge
	reg     *prometheus.Registry
}

// NewRegistry constructs an empty Registry with its own private Prometheus
// registry, matching the per-Router metrics isolation in pkg/event.
func NewRegistry() *Registry {
	preg := prometheus.NewRegistry()
	r := &Registry{
		tasks: make(map[string]*Handle),
		reg:   preg,
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentkernel_tasks_pending",
			Help: "Number of background tasks currently pending in the TaskRegistry.",
		}),
	}
	preg.MustRegister(r.pending)
	return r
}

// MetricsRegistry exposes the Registry's private Prometheus registry.
func (r *Registry) MetricsRegistry() *prometheus.Registry { return r.reg }

// Create spawns work on its own goroutine and tracks it until it reaches a
// terminal state. The task is removed from the registry on completion; any
// failure is logged, never raised into the agent loop. OnCleanup runs after
// removal.
func (r *Registry) Create(ctx context.Context, work Work, opts Options) *Handle {
	tctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Component:   opts.Component,
		WaitOnReady: opts.WaitOnReady,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       StatePending,
	}

	r.mu.Lock()
	r.tasks[h.ID] = h
	r.mu.Unlock()
	r.pending.Inc()

	go func() {
		var err error
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					err = kernelerr.New(kernelerr.Handler, "Registry.Create", "background task panicked")
					slog.Error("task: panic in background task", "task", h.Name, "id", h.ID, "panic", rec)
				}
			}()
			err = work(tctx)
		}()

		h.mu.Lock()
		switch {
		case err == nil:
			h.state = StateCompleted
		case tctx.Err() != nil:
			h.state = StateCancelled
			h.err = err
		default:
			h.state = StateFailed
			h.err = err
			slog.Error("task: background task failed", "task", h.Name, "id", h.ID, "error", err)
		}
		h.mu.Unlock()

		r.mu.Lock()
		delete(r.tasks, h.ID)
		r.mu.Unlock()
		r.pending.Dec()
		cancel()
		close(h.done)

		if opts.OnCleanup != nil {
			opts.OnCleanup(h)
		}
	}()

	return h
}

// Count returns the number of live (non-terminal) tasks.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Snapshot returns the current live task handles.
func (r *Registry) Snapshot() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.tasks))
	for _, h := range r.tasks {
		out = append(out, h)
	}
	return out
}

// Stats returns counts by state, by owning component, and by wait-on-ready
// flag, computed over a snapshot of the live set.
func (r *Registry) Stats() Stats {
	handles := r.Snapshot()
	s := Stats{
		Total:       len(handles),
		ByState:     make(map[State]int),
		ByComponent: make(map[string]int),
	}
	for _, h := range handles {
		s.ByState[h.State()]++
		if h.Component != "" {
			s.ByComponent[h.Component]++
		}
		if h.WaitOnReady {
			s.WaitOnReady++
		}
	}
	return s
}

// WaitForAll blocks until every currently live task reaches a terminal
// state, or timeout elapses (0 waits forever). Tasks created after the call
// starts are not waited on.
func (r *Registry) WaitForAll(timeout time.Duration) error {
	return r.wait(r.Snapshot(), timeout)
}

// ReadyGate blocks until every live wait-on-ready task reaches a terminal
// state. A wait-on-ready task that fails still releases the gate — a failed
// initialization task must not wedge the agent's transition to ready.
func (r *Registry) ReadyGate(timeout time.Duration) error {
	var gated []*Handle
	for _, h := range r.Snapshot() {
		if h.WaitOnReady {
			gated = append(gated, h)
		}
	}
	return r.wait(gated, timeout)
}

func (r *Registry) wait(handles []*Handle, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		for _, h := range handles {
			<-h.done
		}
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return kernelerr.New(kernelerr.Cancelled, "Registry.WaitForAll", "timed out waiting for background tasks")
	}
}

// CancelAll signals cancellation to every live task and waits for them to
// terminate, bounded by timeout (0 waits forever). Used on agent close.
func (r *Registry) CancelAll(timeout time.Duration) error {
	handles := r.Snapshot()
	for _, h := range handles {
		h.Cancel()
	}
	return r.wait(handles, timeout)
}
