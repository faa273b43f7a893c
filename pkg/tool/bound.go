package tool

// Bound is a Tool partially applied with fixed values for some parameters.
// The LLM sees the underlying tool's schema minus the bound (and hidden)
// parameters; at invocation time the bound values are merged over whatever
// the LLM supplied, so a bound parameter can never be overridden from the
// outside.
type Bound struct {
	inner Tool
	bound map[string]any
}

// Bind partially applies t with fixed parameter values.
func Bind(t Tool, bound map[string]any) *Bound {
	vals := make(map[string]any, len(bound))
	for k, v := range bound {
		vals[k] = v
	}
	return &Bound{inner: t, bound: vals}
}

func (b *Bound) Name() string        { return b.inner.Name() }
func (b *Bound) Description() string { return b.inner.Description() }
func (b *Bound) Tags() []string      { return b.inner.Tags() }
func (b *Bound) Priority() int       { return b.inner.Priority() }
func (b *Bound) Hidden() []string    { return b.inner.Hidden() }

// BoundParams returns the names of the bound parameters.
func (b *Bound) BoundParams() []string {
	out := make([]string, 0, len(b.bound))
	for k := range b.bound {
		out = append(out, k)
	}
	return out
}

// Signature returns the underlying tool's schema minus the bound
// parameters; the inner Signature has already stripped Hidden ones.
func (b *Bound) Signature() (map[string]any, error) {
	schema, err := b.inner.Signature()
	if err != nil {
		return nil, err
	}
	return stripParams(schema, b.BoundParams()), nil
}

// Invoke merges the bound values over args and delegates to the underlying
// tool. Bound values win on collision.
func (b *Bound) Invoke(ctx Context, args map[string]any) (Response, error) {
	merged := make(map[string]any, len(args)+len(b.bound))
	for k, v := range args {
		merged[k] = v
	}
	for k, v := range b.bound {
		merged[k] = v
	}
	return b.inner.Invoke(ctx, merged)
}
