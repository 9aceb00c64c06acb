package patch

import "fmt"

// Patch is a partial document update.
// Keys absent from the patch are unchanged. A nil value unsets that field.
type Patch struct {
	set   map[string]any
	unset []string
}

// New validates and creates a Patch. At least one field must be provided.
func New(values map[string]any) (Patch, error) {
	if len(values) == 0 {
		return Patch{}, fmt.Errorf("at least one field must be provided")
	}
	p := Patch{set: make(map[string]any, len(values))}
	for k, v := range values {
		if k == "" || k[0] == '_' {
			return Patch{}, fmt.Errorf("field %q cannot be patched", k)
		}
		if v == nil {
			p.unset = append(p.unset, k)
			continue
		}
		p.set[k] = v
	}
	return p, nil
}

// Set returns the fields to overwrite.
func (p Patch) Set() map[string]any { return p.set }

// Unset returns the fields to remove.
func (p Patch) Unset() []string { return p.unset }

// Apply merges the patch into data, returning a new map.
func (p Patch) Apply(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+len(p.set))
	for k, v := range data {
		out[k] = v
	}
	for k, v := range p.set {
		out[k] = v
	}
	for _, k := range p.unset {
		delete(out, k)
	}
	return out
}
