package pipeline

import "sort"

// Context is the shared field map for one pipeline run. It is created
// fresh per run and owned exclusively by the executor for the duration of
// the run; it has no internal synchronization.
type Context map[string]any

// Restrict returns a new Context containing only the entries whose key is
// in allowed. Allowed keys absent from the context are omitted, not an
// error: steps must tolerate missing optional inputs.
func (c Context) Restrict(allowed []string) Context {
	view := make(Context, len(allowed))
	for _, k := range allowed {
		if v, ok := c[k]; ok {
			view[k] = v
		}
	}
	return view
}

// PresentKeys returns the declared keys that are actually present in the
// context, in declared order.
func (c Context) PresentKeys(declared []string) []string {
	present := make([]string, 0, len(declared))
	for _, k := range declared {
		if _, ok := c[k]; ok {
			present = append(present, k)
		}
	}
	return present
}

// Keys returns all keys in sorted order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MergeValidated merges outputs into the context after checking every
// output key against the allowed set. The merge is all-or-nothing: if any
// key is undeclared the context is left untouched and a
// ContractViolationError naming the key and step is returned.
func (c Context) MergeValidated(outputs Context, allowed []string, step string) error {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = struct{}{}
	}
	for _, k := range outputs.Keys() {
		if _, ok := allowedSet[k]; !ok {
			return &ContractViolationError{Step: step, Key: k}
		}
	}
	for k, v := range outputs {
		c[k] = v
	}
	return nil
}

// Value retrieves a context field as a concrete type. The second return is
// false when the key is absent or holds a different type.
func Value[T any](c Context, key string) (T, bool) {
	var zero T
	v, ok := c[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
