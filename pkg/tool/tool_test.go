package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Value string `json:"value" jsonschema:"required"`
}

func mustEchoTool(t *testing.T, name string, hidden ...string) *Func[echoArgs] {
	t.Helper()
	ft, err := NewFunc(Config{Name: name, Description: "echoes value", Hidden: hidden},
		func(_ Context, a echoArgs) (any, error) { return "echo: " + a.Value, nil })
	require.NoError(t, err)
	return ft
}

func bgCtx() Context { return Context{Context: context.Background()} }

func TestFunc_SignatureExcludesHiddenParams(t *testing.T) {
	ft, err := NewFunc(Config{
		Name:   "search",
		Hidden: []string{"api_key"},
	}, func(_ Context, a struct {
		Query  string `json:"query"`
		APIKey string `json:"api_key"`
	}) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	sig, err := ft.Signature()
	require.NoError(t, err)
	props, ok := sig["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.NotContains(t, props, "api_key")
}

func TestFunc_InvokeOnlyRecordsVisibleParameters(t *testing.T) {
	ft, err := NewFunc(Config{Name: "search", Hidden: []string{"api_key"}},
		func(_ Context, a struct {
			Query  string `json:"query"`
			APIKey string `json:"api_key"`
		}) (any, error) {
			return a.Query + "/" + a.APIKey, nil
		})
	require.NoError(t, err)

	resp, err := ft.Invoke(bgCtx(), map[string]any{"query": "q", "api_key": "secret"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.ParametersRecorded, "query")
	assert.NotContains(t, resp.ParametersRecorded, "api_key")
}

func TestManager_ReplaceModeRestoresOnClose(t *testing.T) {
	m := NewManager()
	orig := mustEchoTool(t, "original_tool")
	other := mustEchoTool(t, "another_original_tool")
	require.NoError(t, m.Register(orig))
	require.NoError(t, m.Register(other))

	repl := mustEchoTool(t, "replacement_tool")
	closeFn, err := m.Scope(ScopeOptions{Mode: ModeReplace, Tools: []Tool{repl}})
	require.NoError(t, err)

	assert.True(t, m.Has("replacement_tool"))
	assert.False(t, m.Has("original_tool"))
	assert.Equal(t, 1, m.Len())

	closeFn()

	assert.True(t, m.Has("original_tool"))
	assert.True(t, m.Has("another_original_tool"))
	assert.False(t, m.Has("replacement_tool"))
	assert.Equal(t, 2, m.Len())
}

func TestManager_AppendModeAddsWithoutRemoving(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(mustEchoTool(t, "original_tool")))

	closeFn, err := m.Scope(ScopeOptions{Mode: ModeAppend, Tools: []Tool{mustEchoTool(t, "additional_tool")}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Has("original_tool"))
	assert.True(t, m.Has("additional_tool"))

	closeFn()
	assert.Equal(t, 1, m.Len())
	assert.False(t, m.Has("additional_tool"))
}

func TestManager_FilterModeKeepsMatching(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(mustEchoTool(t, "original_tool")))
	require.NoError(t, m.Register(mustEchoTool(t, "another_original_tool")))
	require.NoError(t, m.Register(mustEchoTool(t, "additional_tool")))

	closeFn, err := m.Scope(ScopeOptions{
		Mode:   ModeFilter,
		Filter: func(name string, _ Tool) bool { return name != "additional_tool" },
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.False(t, m.Has("additional_tool"))

	closeFn()
	assert.Equal(t, 3, m.Len())
}

func TestManager_NestedScopesRestoreInOrder(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(mustEchoTool(t, "original_tool")))

	closeOuter, err := m.Scope(ScopeOptions{Mode: ModeAppend, Tools: []Tool{mustEchoTool(t, "additional_tool")}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	closeInner, err := m.Scope(ScopeOptions{Mode: ModeReplace, Tools: []Tool{mustEchoTool(t, "replacement_tool")}})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Has("replacement_tool"))

	closeInner()
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Has("additional_tool"))
	assert.True(t, m.Has("original_tool"))

	closeOuter()
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Has("original_tool"))
}

func TestManager_ScopeRestoresEvenAfterPanicInCaller(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(mustEchoTool(t, "original_tool")))

	func() {
		closeFn, err := m.Scope(ScopeOptions{Mode: ModeReplace, Tools: []Tool{mustEchoTool(t, "replacement_tool")}})
		require.NoError(t, err)
		defer closeFn()
		defer func() { _ = recover() }()
		panic("boom")
	}()

	assert.True(t, m.Has("original_tool"))
	assert.False(t, m.Has("replacement_tool"))
}

func TestInvoker_InvokeManyIsolatesFailures(t *testing.T) {
	m := NewManager()
	ok := mustEchoTool(t, "ok_tool")
	failing, err := NewFunc(Config{Name: "failing_tool"}, func(_ Context, a echoArgs) (any, error) {
		return nil, assertErr("boom")
	})
	require.NoError(t, err)
	require.NoError(t, m.Register(ok))
	require.NoError(t, m.Register(failing))

	inv := NewInvoker(m)
	resps := inv.InvokeMany(bgCtx(), []Request{
		{ToolCallID: "1", ToolName: "ok_tool", Args: map[string]any{"value": "a"}},
		{ToolCallID: "2", ToolName: "failing_tool", Args: map[string]any{"value": "b"}},
	})

	require.Len(t, resps, 2)
	assert.True(t, resps[0].Success)
	assert.False(t, resps[1].Success)
	assert.NotEmpty(t, resps[1].Error)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestFunc_MissingRequiredParameterYieldsStructuredError(t *testing.T) {
	ft := mustEchoTool(t, "echo")

	resp, err := ft.Invoke(bgCtx(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "missing required parameter")
	assert.Contains(t, resp.Error, "value")
}

func TestBound_SignatureExcludesBoundParams(t *testing.T) {
	ft, err := NewFunc(Config{Name: "fetch"}, func(_ Context, a struct {
		URL     string `json:"url" jsonschema:"required"`
		Timeout int    `json:"timeout"`
	}) (any, error) {
		return a.URL, nil
	})
	require.NoError(t, err)

	b := Bind(ft, map[string]any{"timeout": 30})
	sig, err := b.Signature()
	require.NoError(t, err)
	props, ok := sig["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "url")
	assert.NotContains(t, props, "timeout")
}

func TestBound_InvokeMergesBoundValuesOverArgs(t *testing.T) {
	ft, err := NewFunc(Config{Name: "fetch"}, func(_ Context, a struct {
		URL     string `json:"url" jsonschema:"required"`
		Timeout int    `json:"timeout"`
	}) (any, error) {
		return map[string]any{"url": a.URL, "timeout": a.Timeout}, nil
	})
	require.NoError(t, err)

	b := Bind(ft, map[string]any{"timeout": 30})

	// A caller-supplied value for a bound parameter is overridden.
	resp, err := b.Invoke(bgCtx(), map[string]any{"url": "https://example.com", "timeout": 5})
	require.NoError(t, err)
	require.True(t, resp.Success)
	result := resp.Response.(map[string]any)
	assert.Equal(t, 30, result["timeout"])
	assert.Equal(t, "https://example.com", result["url"])
}

func TestManager_FindByExactNameWildcardAndTag(t *testing.T) {
	m := NewManager()

	search, err := NewFunc(Config{Name: "web_search", Tags: []string{"search", "web"}},
		func(_ Context, a struct{}) (any, error) { return nil, nil })
	require.NoError(t, err)
	fetch, err := NewFunc(Config{Name: "web_fetch", Tags: []string{"web"}},
		func(_ Context, a struct{}) (any, error) { return nil, nil })
	require.NoError(t, err)
	clock, err := NewFunc(Config{Name: "get_time"},
		func(_ Context, a struct{}) (any, error) { return nil, nil })
	require.NoError(t, err)
	require.NoError(t, m.Register(search))
	require.NoError(t, m.Register(fetch))
	require.NoError(t, m.Register(clock))

	byName := m.Find("get_time")
	require.Len(t, byName, 1)
	assert.Equal(t, "get_time", byName[0].Name())

	byWildcard := m.Find("web_*")
	assert.Len(t, byWildcard, 2)

	byTag := m.Find("tag:search")
	require.Len(t, byTag, 1)
	assert.Equal(t, "web_search", byTag[0].Name())

	byTagWildcard := m.Find("tag:*")
	assert.Len(t, byTagWildcard, 2)

	assert.Empty(t, m.Find("tag:missing"))
	assert.Empty(t, m.Find("nope"))
}

func TestAnalyzeTransformation_ReportsAddedRemovedModified(t *testing.T) {
	before := map[string]any{
		"properties": map[string]any{
			"url":     map[string]any{"type": "string"},
			"timeout": map[string]any{"type": "integer"},
		},
	}
	after := map[string]any{
		"properties": map[string]any{
			"citation_idx": map[string]any{"type": "integer"},
			"timeout":      map[string]any{"type": "number"},
		},
	}

	tr := AnalyzeTransformation(before, after)
	assert.Equal(t, []string{"citation_idx"}, tr.Added)
	assert.Equal(t, []string{"url"}, tr.Removed)
	assert.Equal(t, []string{"timeout"}, tr.Modified)
}

// renameAdapter rewrites one parameter name in both the schema and the
// arguments, the citation-index style of transformation.
type renameAdapter struct {
	name string
	from string
	to   string
}

func (r *renameAdapter) Name() string            { return r.name }
func (r *renameAdapter) ShouldAdapt(t Tool) bool { return true }

func (r *renameAdapter) AdaptSignature(t Tool, schema map[string]any) (map[string]any, error) {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return schema, nil
	}
	newProps := make(map[string]any, len(props))
	for k, v := range props {
		if k == r.from {
			newProps[r.to] = v
			continue
		}
		newProps[k] = v
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	out["properties"] = newProps
	delete(out, "required")
	return out, nil
}

func (r *renameAdapter) AdaptParameters(t Tool, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k == r.to {
			out[r.from] = v
			continue
		}
		out[k] = v
	}
	return out, nil
}

func TestInvoker_FirstMatchingAdapterWins(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(mustEchoTool(t, "echo")))

	first := &renameAdapter{name: "first", from: "value", to: "idx"}
	second := &renameAdapter{name: "second", from: "value", to: "ref"}
	inv := NewInvoker(m, first, second)

	// The LLM supplied the first adapter's dialect; only that adapter's
	// parameter translation runs.
	resp := inv.Invoke(bgCtx(), Request{
		ToolCallID: "1",
		ToolName:   "echo",
		Args:       map[string]any{"idx": "hello"},
	})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "echo: hello", resp.Response)
}

func TestContendedParams_ReportsOnlyGenuineOverlap(t *testing.T) {
	overlapping := contendedParams(
		Transformation{Removed: []string{"url"}, Added: []string{"citation_idx"}},
		Transformation{Modified: []string{"url"}, Added: []string{"cache_key"}},
	)
	assert.Equal(t, []string{"url"}, overlapping)

	disjoint := contendedParams(
		Transformation{Removed: []string{"url"}},
		Transformation{Modified: []string{"timeout"}},
	)
	assert.Empty(t, disjoint)
}
