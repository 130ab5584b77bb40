// Package codegen rewrites module wrappers to keep only live code and
// computes each module's dependency table.
package codegen

import (
	"shaker/internal/graph"
	"shaker/internal/liveness"
)

// Dependency is one entry of a module's dependency table.
type Dependency struct {
	// Path is the target module; empty for an unresolved optional stub.
	Path string `json:"path"`

	// Specifier is the import string of the first edge to the target.
	Specifier string `json:"specifier"`

	// Index is the position emitted code uses to reference the dependency.
	Index int `json:"index"`

	// Kind is eager when any retained edge to the target is eager.
	Kind graph.EdgeKind `json:"kind"`

	// Optional marks a guarded import kept as a stub.
	Optional bool `json:"optional,omitempty"`

	// Deferred marks a target only loaded through split-eligible async edges.
	Deferred bool `json:"deferred,omitempty"`
}

// Table is a module's finalized dependency table.
type Table struct {
	Deps []Dependency
	raw  map[int]int
}

// BuildTable assigns indices to the retained edges of m in raw edge order.
// Edges sharing a target share an entry.
func BuildTable(m *graph.Module, plan *liveness.Plan) *Table {
	t := &Table{raw: make(map[int]int)}
	byKey := make(map[string]int)

	for _, i := range plan.RetainedEdges() {
		e := m.Dependencies[i]
		key := e.Target
		if !e.Resolved() {
			key = "?" + e.Specifier
		}
		if idx, ok := byKey[key]; ok {
			t.raw[i] = idx
			d := &t.Deps[idx]
			if k := kindOrEager(e.Kind); rank(k) < rank(d.Kind) {
				d.Kind = k
			}
			d.Deferred = d.Deferred && e.Deferred
			continue
		}
		idx := len(t.Deps)
		byKey[key] = idx
		t.raw[i] = idx
		t.Deps = append(t.Deps, Dependency{
			Path:      e.Target,
			Specifier: e.Specifier,
			Index:     idx,
			Kind:      kindOrEager(e.Kind),
			Optional:  !e.Resolved(),
			Deferred:  e.Kind == graph.KindAsync && e.Deferred,
		})
	}
	return t
}

// Index maps a raw edge index to its table index.
func (t *Table) Index(raw int) (int, bool) {
	idx, ok := t.raw[raw]
	return idx, ok
}

// Paths returns the table's target paths; stubs appear as empty strings.
func (t *Table) Paths() []string {
	out := make([]string, len(t.Deps))
	for i, d := range t.Deps {
		out[i] = d.Path
	}
	return out
}

// rank orders kinds by how strongly they require the target.
func rank(k graph.EdgeKind) int {
	switch k {
	case graph.KindEager:
		return 0
	case graph.KindOptional:
		return 1
	default:
		return 2
	}
}

func kindOrEager(k graph.EdgeKind) graph.EdgeKind {
	if k == "" {
		return graph.KindEager
	}
	return k
}
