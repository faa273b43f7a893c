package tool

// Adapter lets a host rewrite a Tool's effective signature and arguments at
// invocation time — for example, injecting a per-request API key as a
// Hidden parameter, or translating a provider's tool-call dialect into the
// kernel's own. Adapters are applied in registration order; if more than
// one Adapter's ShouldAdapt matches the same Tool, the first match wins,
// and when their transformations touch a common parameter the Invoker logs
// a warning naming both adapters and the contended parameters (see
// Invoker.Invoke).
type Adapter interface {
	Name() string
	// ShouldAdapt reports whether this Adapter applies to t.
	ShouldAdapt(t Tool) bool
	// AdaptSignature transforms a Tool's JSON schema before it is shown to
	// the LLM adapter, e.g. to strip or rename parameters.
	AdaptSignature(t Tool, schema map[string]any) (map[string]any, error)
	// AdaptParameters transforms the raw, LLM-decoded arguments before
	// Invoke runs, e.g. to inject a value the LLM never saw.
	AdaptParameters(t Tool, args map[string]any) (map[string]any, error)
}

// Transformation describes how an Adapter changed a tool's parameter set,
// used to detect conflicts between adapters that claim the same parameter.
type Transformation struct {
	Added    []string
	Removed  []string
	Modified []string
}

// AnalyzeTransformation diffs a schema's properties before and after an
// Adapter ran: names only in after are added, names only in before are
// removed, and names present in both whose definitions changed are
// modified.
func AnalyzeTransformation(before, after map[string]any) Transformation {
	var tr Transformation
	beforeProps := schemaProps(before)
	afterProps := schemaProps(after)
	for k, v := range afterProps {
		prev, ok := beforeProps[k]
		switch {
		case !ok:
			tr.Added = append(tr.Added, k)
		case !propsEqual(prev, v):
			tr.Modified = append(tr.Modified, k)
		}
	}
	for k := range beforeProps {
		if _, ok := afterProps[k]; !ok {
			tr.Removed = append(tr.Removed, k)
		}
	}
	return tr
}

// schemaProps returns a schema's properties map, or the schema itself when
// it is already a flat name→definition map.
func schemaProps(schema map[string]any) map[string]any {
	if props, ok := schema["properties"].(map[string]any); ok {
		return props
	}
	return schema
}

func propsEqual(a, b any) bool {
	da, erra := jsonMarshal(a)
	db, errb := jsonMarshal(b)
	if erra != nil || errb != nil {
		return false
	}
	return string(da) == string(db)
}
