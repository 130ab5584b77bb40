// Package exports computes the export surface of each module: the concrete
// set of bindings it exposes once `export * from` chains are flattened.
package exports

import "shaker/internal/graph"

// Binding is one name on a static export surface.
type Binding struct {
	// Name is the exported name.
	Name string `json:"name"`

	// Origin identifies the declaration that ultimately provides the value,
	// as "<module>#<name>". Two star sources providing the same origin are
	// not in conflict.
	Origin string `json:"origin"`

	// Local is the backing local declaration for `export const x`.
	Local string `json:"local,omitempty"`

	// Edge is the dependency index of `export { a as x } from`, -1 otherwise.
	Edge int `json:"edge"`

	// Imported is the name read through Edge ("*" for `export * as x`).
	Imported string `json:"imported,omitempty"`

	// Sources are the `export *` edges providing the name, in declaration
	// order. More than one only when Ambiguous.
	Sources []int `json:"sources,omitempty"`

	// Ambiguous marks a name provided by several star sources with different
	// origins and no local declaration to shadow them.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Declared reports whether the module itself declares the name, either as a
// local export or a named re-export.
func (b *Binding) Declared() bool {
	return b.Local != "" || b.Edge >= 0
}

// Surface is the tagged result of resolution: Static with an ordered name set,
// or Opaque when the names cannot be enumerated.
type Surface struct {
	// Module is the path the surface belongs to.
	Module string `json:"module"`

	// Opaque is true when the surface is "everything, unknown names".
	Opaque bool `json:"opaque"`

	// OpaqueVia names the module whose dynamic exports made this one opaque.
	OpaqueVia string `json:"opaqueVia,omitempty"`

	// SideEffectful mirrors the module flag.
	SideEffectful bool `json:"sideEffectful"`

	names    []string
	bindings map[string]*Binding
}

func newStatic(m *graph.Module) *Surface {
	return &Surface{
		Module:        m.Path,
		SideEffectful: m.SideEffectful,
		bindings:      make(map[string]*Binding),
	}
}

func newOpaque(m *graph.Module, via string) *Surface {
	return &Surface{
		Module:        m.Path,
		Opaque:        true,
		OpaqueVia:     via,
		SideEffectful: m.SideEffectful,
	}
}

func (s *Surface) add(b *Binding) {
	s.bindings[b.Name] = b
	s.names = append(s.names, b.Name)
}

// Names returns the exported names in resolution order: declared names first,
// then star-forwarded names. Nil for opaque surfaces.
func (s *Surface) Names() []string {
	if s.Opaque {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Slice returns ["*"] for opaque surfaces and Names otherwise.
func (s *Surface) Slice() []string {
	if s.Opaque {
		return []string{graph.Wildcard}
	}
	return s.Names()
}

// Has reports whether name is exported. Opaque surfaces export everything.
func (s *Surface) Has(name string) bool {
	if s.Opaque {
		return true
	}
	_, ok := s.bindings[name]
	return ok
}

// Lookup returns the binding for name on a static surface.
func (s *Surface) Lookup(name string) (*Binding, bool) {
	if s.Opaque {
		return nil, false
	}
	b, ok := s.bindings[name]
	return b, ok
}

// Len is the number of enumerated names.
func (s *Surface) Len() int {
	return len(s.names)
}

// Ambiguous returns the names flagged ambiguous, in order.
func (s *Surface) Ambiguous() []string {
	var out []string
	for _, n := range s.names {
		if s.bindings[n].Ambiguous {
			out = append(out, n)
		}
	}
	return out
}

// Bindings returns the bindings in resolution order.
func (s *Surface) Bindings() []*Binding {
	out := make([]*Binding, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.bindings[n])
	}
	return out
}
