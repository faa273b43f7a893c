// Package tool implements the tool surface: Tool and its strongly-typed
// Func implementation, partial application via Bound, the scoped Manager,
// the Invoker, and the Adapter contract.
package tool

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Response is the outcome of one tool invocation.
type Response struct {
	ToolName           string         `json:"tool_name"`
	ToolCallID         string         `json:"tool_call_id"`
	Response           any            `json:"response"`
	ParametersRecorded map[string]any `json:"parameters_recorded"`
	Success            bool           `json:"success"`
	Error              string         `json:"error,omitempty"`
}

// Context is threaded into every tool invocation; AgentHandle is deliberately
// an opaque `any` here (typically an *agent.Agent) so this package never
// imports pkg/agent.
type Context struct {
	context.Context
	AgentHandle any
}

// Tool is a callable bundled with a JSON-schema signature.
type Tool interface {
	Name() string
	Description() string
	Tags() []string
	// Priority orders tools in Manager.List and Manager.Find (higher
	// first). Manager.Register does not consult it: registering a tool
	// under a name already in use replaces the earlier tool whatever the
	// priorities.
	Priority() int
	// Hidden lists parameter names that must never appear in the
	// LLM-visible schema, though callers may still supply them directly at
	// invocation time.
	Hidden() []string
	// Signature returns the JSON schema of parameters, excluding Hidden.
	Signature() (map[string]any, error)
	// Invoke executes the tool against raw, LLM-decoded arguments.
	Invoke(ctx Context, args map[string]any) (Response, error)
}

// Func is a strongly-typed tool implementation generated from a Go function
// and an Args struct. Args drives jsonschema reflection directly — there is
// no separate "signature" DSL.
type Func[Args any] struct {
	name        string
	description string
	tags        []string
	priority    int
	hidden      []string
	schema      map[string]any
	fn          func(Context, Args) (any, error)
}

// Config describes a Func's static metadata.
type Config struct {
	Name        string
	Description string
	Tags        []string
	Priority    int
	Hidden      []string
}

// NewFunc builds a Func[Args] tool, reflecting Args into a JSON schema via
// invopop/jsonschema and stripping any Hidden parameter from the
// LLM-visible schema.
func NewFunc[Args any](cfg Config, fn func(Context, Args) (any, error)) (*Func[Args], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool: name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool: fn is required")
	}

	schema, err := reflectSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("tool: generate schema for %s: %w", cfg.Name, err)
	}
	schema = stripParams(schema, cfg.Hidden)

	return &Func[Args]{
		name:        cfg.Name,
		description: cfg.Description,
		tags:        cfg.Tags,
		priority:    cfg.Priority,
		hidden:      cfg.Hidden,
		schema:      schema,
		fn:          fn,
	}, nil
}

func (f *Func[Args]) Name() string        { return f.name }
func (f *Func[Args]) Description() string { return f.description }
func (f *Func[Args]) Tags() []string      { return f.tags }
func (f *Func[Args]) Priority() int       { return f.priority }
func (f *Func[Args]) Hidden() []string    { return f.hidden }

func (f *Func[Args]) Signature() (map[string]any, error) {
	return f.schema, nil
}

func (f *Func[Args]) Invoke(ctx Context, args map[string]any) (Response, error) {
	if missing := missingRequired(f.schema, args); missing != "" {
		return Response{
			ToolName: f.name,
			Success:  false,
			Error:    "missing required parameter: " + missing,
		}, nil
	}

	var typed Args
	if err := decodeArgs(args, &typed); err != nil {
		return Response{
			ToolName: f.name,
			Success:  false,
			Error:    err.Error(),
		}, nil
	}

	result, err := f.fn(ctx, typed)
	if err != nil {
		return Response{
			ToolName:           f.name,
			Response:           nil,
			ParametersRecorded: visibleParams(args, f.hidden),
			Success:            false,
			Error:              err.Error(),
		}, nil
	}

	return Response{
		ToolName:           f.name,
		Response:           result,
		ParametersRecorded: visibleParams(args, f.hidden),
		Success:            true,
	}, nil
}

// missingRequired validates args against the schema's required list,
// returning the first absent parameter name. Hidden parameters were
// stripped from the schema at construction, so a caller-supplied hidden
// value is never demanded here.
func missingRequired(schema, args map[string]any) string {
	req, ok := schema["required"].([]any)
	if !ok {
		return ""
	}
	for _, r := range req {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := args[name]; !present {
			return name
		}
	}
	return ""
}

func visibleParams(args map[string]any, hidden []string) map[string]any {
	if len(hidden) == 0 {
		out := make(map[string]any, len(args))
		for k, v := range args {
			out[k] = v
		}
		return out
	}
	hide := make(map[string]bool, len(hidden))
	for _, h := range hidden {
		hide[h] = true
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if !hide[k] {
			out[k] = v
		}
	}
	return out
}

// reflectSchema reflects a Go struct type into a flat JSON-schema-ish
// map[string]any suitable for an LLM tool-call signature.
func reflectSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := jsonUnmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stripParams(schema map[string]any, hidden []string) map[string]any {
	if len(hidden) == 0 {
		return schema
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return schema
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	newProps := make(map[string]any, len(props))
	for k, v := range props {
		newProps[k] = v
	}
	for _, h := range hidden {
		delete(newProps, h)
	}
	out["properties"] = newProps
	if req, ok := schema["required"].([]any); ok {
		hide := make(map[string]bool, len(hidden))
		for _, h := range hidden {
			hide[h] = true
		}
		var newReq []any
		for _, r := range req {
			if name, ok := r.(string); ok && hide[name] {
				continue
			}
			newReq = append(newReq, r)
		}
		out["required"] = newReq
	}
	return out
}
