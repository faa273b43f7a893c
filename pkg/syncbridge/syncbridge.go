// Package syncbridge bridges blocking callers into an async dispatch loop
// without deadlocking. It is deliberately payload-agnostic (callers submit
// closures) so that pkg/event can build EventRouter.ApplySync on top of it
// without an import cycle back from this package to pkg/event.
package syncbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
)

type loopKey struct{}

// Bridge owns a single dedicated goroutine (its "loop") that executes
// submitted work serially rather than borrowing the caller's goroutine.
type Bridge struct {
	id     string
	work   chan job
	doneCh chan struct{}
	wg     sync.WaitGroup // tracks in-flight Do() tasks for Join
	once   sync.Once
	closed chan struct{}
}

type job struct {
	fn     func(ctx context.Context) (any, error)
	result chan result
	ctx    context.Context
}

type result struct {
	val any
	err error
}

// New starts the bridge's dedicated loop goroutine.
func New() *Bridge {
	b := &Bridge{
		work:   make(chan job),
		doneCh: make(chan struct{}),
		closed: make(chan struct{}),
	}
	b.id = fmt.Sprintf("bridge-%p", b)
	go b.loop()
	return b
}

func (b *Bridge) loop() {
	defer close(b.doneCh)
	for {
		select {
		case j, ok := <-b.work:
			if !ok {
				return
			}
			ctx := context.WithValue(j.ctx, loopKey{}, b.id)
			val, err := j.fn(ctx)
			if j.result != nil {
				j.result <- result{val: val, err: err}
			}
		case <-b.closed:
			return
		}
	}
}

// onBridgeLoop reports whether ctx was produced by (or nested under) a call
// already executing on this bridge's own goroutine.
func (b *Bridge) onBridgeLoop(ctx context.Context) bool {
	v, _ := ctx.Value(loopKey{}).(string)
	return v == b.id
}

// ApplySync submits fn to the bridge loop and blocks the calling goroutine
// until it completes or timeout elapses. If ctx indicates the caller is
// already executing on this bridge's own loop, it fails fast with a
// DeadlockGuard error instead of submitting (and deadlocking).
func (b *Bridge) ApplySync(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	if b.onBridgeLoop(ctx) {
		return nil, kernelerr.New(kernelerr.DeadlockGuard, "Bridge.ApplySync",
			"ApplySync invoked from inside a handler already running on the bridge loop")
	}

	select {
	case <-b.closed:
		return nil, kernelerr.New(kernelerr.DeadlockGuard, "Bridge.ApplySync", "bridge is closed")
	default:
	}

	j := job{fn: fn, result: make(chan result, 1), ctx: ctx}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case b.work <- j:
	case <-b.closed:
		return nil, kernelerr.New(kernelerr.DeadlockGuard, "Bridge.ApplySync", "bridge closed while submitting")
	case <-deadline:
		return nil, kernelerr.New(kernelerr.Cancelled, "Bridge.ApplySync", "timed out submitting to bridge loop")
	}

	select {
	case r := <-j.result:
		return r.val, r.err
	case <-deadline:
		return nil, kernelerr.New(kernelerr.Cancelled, "Bridge.ApplySync", "timed out waiting for bridge loop")
	}
}

// Do posts fn to the bridge loop and returns without waiting for fn to run.
// The hand-off is unbuffered, so Do blocks until the loop accepts the job;
// while the loop is busy with earlier work, further Do callers wait their
// turn. Execution on the loop itself remains serial, matching pkg/event's
// single-task-per-Apply rule.
func (b *Bridge) Do(ctx context.Context, fn func(ctx context.Context)) {
	b.wg.Add(1)
	j := job{
		fn: func(ctx context.Context) (any, error) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("syncbridge: panic in Do task", "panic", r)
				}
			}()
			fn(ctx)
			return nil, nil
		},
		ctx: ctx,
	}
	select {
	case b.work <- j:
	case <-b.closed:
		b.wg.Done()
	}
}

// Join blocks until all outstanding Do tasks complete, or timeout elapses
// (0 means wait forever). It does not close the bridge.
func (b *Bridge) Join(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
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
		return kernelerr.New(kernelerr.Cancelled, "Bridge.Join", "timed out waiting for pending tasks")
	}
}

// Close drains no further submissions, cancels the loop goroutine, and is
// idempotent. Pending in-flight work is best-effort: Close does not wait for
// it to finish (use Join first if that's required).
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.closed)
	})
	<-b.doneCh
}
