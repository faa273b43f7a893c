// Package event implements a priority-ordered, typed, async-first
// publish/subscribe bus.
package event

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/agentkernel/pkg/syncbridge"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPriority is used when On is called without an explicit priority.
const DefaultPriority = 100

// Context carries a dispatch's mutable parameters and output accumulator.
// Handlers observe and may mutate Parameters in place; downstream handlers
// in the same Apply see the mutation. Output is handler-provided — e.g. the
// message:render:before family uses it to let handlers rewrite rendered
// content parts.
type Context struct {
	Event      string
	Parameters map[string]any
	Output     any

	// Exception is the first handler error captured during this dispatch.
	// It is never returned from Apply — callers decide how to react.
	Exception error
	// Errors holds every handler error captured during this dispatch, in
	// handler execution order.
	Errors []error
}

// NewContext creates a Context ready for dispatch.
func NewContext(event string, params map[string]any) *Context {
	if params == nil {
		params = make(map[string]any)
	}
	return &Context{Event: event, Parameters: params}
}

func (c *Context) recordError(err error) {
	if err == nil {
		return
	}
	if c.Exception == nil {
		c.Exception = err
	}
	c.Errors = append(c.Errors, err)
}

// Handler is anything that can process a dispatched Context. A handler that
// needs to suspend (call an LLM, touch the store) just does so inline —
// there is no separate sync vs async handler type; the router's sequential
// invocation in priority order is what keeps a single Apply deterministic.
type Handler interface {
	Handle(ctx context.Context, ec *Context) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, ec *Context) error

func (f HandlerFunc) Handle(ctx context.Context, ec *Context) error { return f(ctx, ec) }

// Token identifies a subscription for later deregistration via Off.
type Token struct {
	id int64
}

type subscription struct {
	token    Token
	event    string
	priority int
	seq      int64
	handler  Handler
}

// Router is a priority-ordered, typed, in-process pub/sub bus. Each Agent
// owns exactly one Router.
type Router struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	nextID atomic.Int64
	seq    atomic.Int64

	bridge *syncbridge.Bridge
	doWG   sync.WaitGroup

	tracer  trace.Tracer
	metrics *metrics
}

// NewRouter constructs a Router with its own dedicated SyncBridge for
// ApplySync/Do-from-sync-context support.
func NewRouter() *Router {
	return &Router{
		subs:    make(map[string][]*subscription),
		bridge:  syncbridge.New(),
		tracer:  otel.Tracer("agentkernel/event"),
		metrics: newMetrics(),
	}
}

// On subscribes handler to event at priority (higher runs first; ties break
// by registration order). Returns a Token usable with Off.
func (r *Router) On(event string, handler Handler, priority int) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok := Token{id: r.nextID.Add(1)}
	sub := &subscription{
		token:    tok,
		event:    event,
		priority: priority,
		seq:      r.seq.Add(1),
		handler:  handler,
	}
	r.subs[event] = append(r.subs[event], sub)
	sortSubs(r.subs[event])
	return tok
}

// OnFunc is a convenience wrapper around On for HandlerFunc values.
func (r *Router) OnFunc(event string, priority int, fn func(ctx context.Context, ec *Context) error) Token {
	return r.On(event, HandlerFunc(fn), priority)
}

func sortSubs(subs []*subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority > subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
}

// Off deregisters a single subscription by token. Deregistering an unknown
// token is a no-op.
func (r *Router) Off(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for event, subs := range r.subs {
		for i, s := range subs {
			if s.token == tok {
				r.subs[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (r *Router) handlersFor(event string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*subscription, len(r.subs[event]))
	copy(out, r.subs[event])
	return out
}

// Apply dispatches event to all handlers in priority order, awaiting each in
// turn on the calling goroutine rather than racing them, so ordering stays
// deterministic. Handler errors are captured on the returned Context and do
// not abort subsequent handlers.
func (r *Router) Apply(ctx context.Context, event string, params map[string]any) *Context {
	ec := NewContext(event, params)

	spanCtx, span := r.tracer.Start(ctx, "event.Apply", trace.WithAttributes())
	defer span.End()

	r.metrics.dispatches.Add(1)

	for _, sub := range r.handlersFor(event) {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("event: handler panicked", "event", event, "panic", rec)
					ec.recordError(&panicError{value: rec})
					r.metrics.handlerErrors.Add(1)
				}
			}()
			if err := sub.handler.Handle(spanCtx, ec); err != nil {
				slog.Error("event: handler returned error", "event", event, "error", err)
				ec.recordError(err)
				r.metrics.handlerErrors.Add(1)
			}
		}()
	}

	if ec.Exception != nil {
		span.SetStatus(codes.Error, ec.Exception.Error())
	}
	return ec
}

// ApplySync is the blocking variant, routed through the Router's own
// SyncBridge so a synchronous caller never has to own or borrow an event
// loop. If called from inside a handler already executing on this bridge's
// loop it fails fast with a DeadlockGuard error rather than deadlocking.
func (r *Router) ApplySync(ctx context.Context, event string, params map[string]any, timeout time.Duration) (*Context, error) {
	val, err := r.bridge.ApplySync(ctx, timeout, func(ctx context.Context) (any, error) {
		return r.Apply(ctx, event, params), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Context), nil
}

// Do fires event without waiting for handlers to complete. Independent Do
// calls for the same event may overlap in flight.
func (r *Router) Do(ctx context.Context, event string, params map[string]any) {
	r.doWG.Add(1)
	go func() {
		defer r.doWG.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("event: Do panicked", "event", event, "panic", rec)
				r.metrics.handlerErrors.Add(1)
			}
		}()
		r.Apply(ctx, event, params)
	}()
}

// Join blocks until all fire-and-forget Do tasks complete, or timeout
// elapses (0 waits forever).
func (r *Router) Join(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		r.doWG.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// Close tears down the Router's dedicated SyncBridge. Call after Join.
func (r *Router) Close() {
	r.bridge.Close()
}

type panicError struct{ value any }

func (p *panicError) Error() string { return "panic in handler" }
