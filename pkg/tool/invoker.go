package tool

import (
	"log/slog"
	"sort"

	"github.com/kadirpekel/agentkernel/pkg/kernelerr"
	"golang.org/x/sync/errgroup"
)

// Request is one pending tool call: a tool name, its call id (for matching
// back to a tool Message), and its raw decoded arguments.
type Request struct {
	ToolCallID string
	ToolName   string
	Args       map[string]any
}

// Invoker resolves tool calls against a Manager and executes them, applying
// any registered Adapters first.
type Invoker struct {
	manager  *Manager
	adapters []Adapter
}

// NewInvoker constructs an Invoker bound to manager. Adapters are applied in
// registration order (Manager.Scope does not affect the adapter chain).
func NewInvoker(manager *Manager, adapters ...Adapter) *Invoker {
	return &Invoker{manager: manager, adapters: adapters}
}

// Invoke resolves and executes a single Request, applying the first
// registered Adapter whose ShouldAdapt returns true for the resolved Tool
// before invoking it. Later matching Adapters are skipped; a warning is
// logged when they contend with the applied one (see warnAdapterConflict).
func (inv *Invoker) Invoke(ctx Context, req Request) Response {
	t, ok := inv.manager.Get(req.ToolName)
	if !ok {
		return Response{
			ToolName:   req.ToolName,
			ToolCallID: req.ToolCallID,
			Success:    false,
			Error:      kernelerr.New(kernelerr.NotFound, "Invoker.Invoke", "no tool named "+req.ToolName).Error(),
		}
	}

	args := req.Args
	var winner Adapter
	for _, a := range inv.adapters {
		if !a.ShouldAdapt(t) {
			continue
		}
		if winner != nil {
			inv.warnAdapterConflict(t, winner, a)
			continue
		}
		winner = a
		adaptedArgs, err := a.AdaptParameters(t, args)
		if err != nil {
			return Response{
				ToolName:   req.ToolName,
				ToolCallID: req.ToolCallID,
				Success:    false,
				Error:      err.Error(),
			}
		}
		args = adaptedArgs
	}

	resp, err := t.Invoke(ctx, args)
	if err != nil {
		return Response{
			ToolName:   req.ToolName,
			ToolCallID: req.ToolCallID,
			Success:    false,
			Error:      err.Error(),
		}
	}
	resp.ToolCallID = req.ToolCallID
	return resp
}

// warnAdapterConflict diffs both adapters' signature transformations against
// the tool's base schema and warns only when they genuinely contend — both
// touching (adding, removing, or modifying) at least one common parameter.
// Two adapters that claim the same tool but rewrite disjoint parameters are
// not a conflict.
func (inv *Invoker) warnAdapterConflict(t Tool, winner, loser Adapter) {
	base, err := t.Signature()
	if err != nil {
		return
	}
	winnerSig, werr := winner.AdaptSignature(t, base)
	loserSig, lerr := loser.AdaptSignature(t, base)
	if werr != nil || lerr != nil {
		return
	}
	contended := contendedParams(
		AnalyzeTransformation(base, winnerSig),
		AnalyzeTransformation(base, loserSig),
	)
	if len(contended) == 0 {
		return
	}
	slog.Warn("tool: adapters contend on the same parameters, first registered wins",
		"tool", t.Name(),
		"applied_adapter", winner.Name(),
		"skipped_adapter", loser.Name(),
		"parameters", contended)
}

// contendedParams intersects the parameter names each transformation touched.
func contendedParams(a, b Transformation) []string {
	inA := make(map[string]bool)
	for _, ks := range [][]string{a.Added, a.Removed, a.Modified} {
		for _, k := range ks {
			inA[k] = true
		}
	}
	var out []string
	seen := make(map[string]bool)
	for _, ks := range [][]string{b.Added, b.Removed, b.Modified} {
		for _, k := range ks {
			if inA[k] && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

// InvokeMany executes reqs concurrently, isolating each invocation's
// failures from the others — one tool call panicking or erroring never
// prevents the rest from completing or being reported. Results are returned
// in the same order as reqs.
func (inv *Invoker) InvokeMany(ctx Context, reqs []Request) []Response {
	out := make([]Response, len(reqs))
	g, gctx := errgroup.WithContext(ctx.Context)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					out[i] = Response{
						ToolName:   req.ToolName,
						ToolCallID: req.ToolCallID,
						Success:    false,
						Error:      kernelerr.New(kernelerr.Tool, "Invoker.InvokeMany", "tool panicked").Error(),
					}
				}
			}()
			out[i] = inv.Invoke(Context{Context: gctx, AgentHandle: ctx.AgentHandle}, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
