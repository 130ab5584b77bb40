// Package graph provides the module dependency graph consumed by the optimizer.
//
// A Graph is built once per build by the resolver/transformer collaborator and
// is owned exclusively by a single optimization pass. Export metadata is set at
// parse time; only the Live binding sets are mutated by the liveness stage.
package graph

// Wildcard is the sentinel binding name meaning "the whole namespace".
const Wildcard = "*"

// EdgeKind classifies an import by timing and failure tolerance.
type EdgeKind string

const (
	// KindEager must resolve before the consumer runs.
	KindEager EdgeKind = "eager"

	// KindAsync is a deferred load; the consumer receives a promise-like handle.
	KindAsync EdgeKind = "async"

	// KindOptional is guarded; a missing target is not a hard error.
	KindOptional EdgeKind = "optional"
)

// Valid reports whether k is one of the known kinds. The empty kind is
// accepted and means "not yet classified".
func (k EdgeKind) Valid() bool {
	switch k {
	case "", KindEager, KindAsync, KindOptional:
		return true
	}
	return false
}

// Edge is a directed import from the owning module to a dependency.
type Edge struct {
	// Specifier is the import string as written in source.
	Specifier string `json:"specifier"`

	// Target is the resolved module path. Empty when resolution failed.
	Target string `json:"target,omitempty"`

	// RequestedNames are the bindings requested through this edge, or ["*"].
	RequestedNames []string `json:"requestedNames,omitempty"`

	// Kind is set by the classifier before any other stage runs.
	Kind EdgeKind `json:"kind,omitempty"`

	// ForwardsAll marks an edge that exists only to satisfy `export * from`.
	ForwardsAll bool `json:"forwardsAll,omitempty"`

	// AsyncType is the transformer's raw async marker: async, prefetch or weak.
	AsyncType string `json:"asyncType,omitempty"`

	// Optional is the transformer's raw guard marker (try/catch around require).
	Optional bool `json:"optional,omitempty"`

	// Deferred marks an async edge whose target may be placed in a separate unit.
	Deferred bool `json:"deferred,omitempty"`

	// Synthetic marks edges injected by the classifier (helper modules).
	Synthetic bool `json:"synthetic,omitempty"`
}

// Resolved reports whether the edge points at a module.
func (e *Edge) Resolved() bool {
	return e.Target != ""
}

// RequestsAll reports whether the edge requests the whole namespace.
func (e *Edge) RequestsAll() bool {
	for _, n := range e.RequestedNames {
		if n == Wildcard {
			return true
		}
	}
	return false
}

// ImportUse records the bindings one statement reads through one edge.
type ImportUse struct {
	// Edge is the index into the owning module's Dependencies.
	Edge int `json:"edge"`

	// Names read through the edge. ["*"] for namespace access, empty for
	// a load performed only for its effect.
	Names []string `json:"names,omitempty"`
}

// Part is a single top-level statement of a module.
type Part struct {
	// Code is the statement text. Dependency references are written as
	// placeholders ({{require N}}, {{default N}}, {{importAll N}},
	// {{async N}}, {{dep N}}) where N indexes the module's Dependencies.
	Code string `json:"code"`

	// Declares lists top-level local names introduced by the statement.
	Declares []string `json:"declares,omitempty"`

	// Uses lists top-level local names read by the statement.
	Uses []string `json:"uses,omitempty"`

	// Imports lists dependency bindings read by the statement.
	Imports []ImportUse `json:"imports,omitempty"`

	// SideEffects is true when evaluating the statement is observable.
	SideEffects bool `json:"sideEffects,omitempty"`
}

// Export is one statically declared export of a module.
type Export struct {
	// Name is the exported binding name.
	Name string `json:"name"`

	// Local is the local declaration backing the export. Empty for re-exports.
	Local string `json:"local,omitempty"`

	// Edge is the dependency index for `export { x as Name } from`; -1 otherwise.
	Edge int `json:"edge"`

	// Imported is the name read from Edge's target ("*" for `export * as`).
	Imported string `json:"imported,omitempty"`
}

// IsReexport reports whether the export forwards a binding of a dependency.
func (e Export) IsReexport() bool {
	return e.Edge >= 0
}

// Module is a node of the graph, keyed by its absolute resolved path.
type Module struct {
	// Path is the absolute resolved path, or a virtual path for helpers.
	Path string `json:"path"`

	// Virtual marks synthetic modules generated by the optimizer.
	Virtual bool `json:"virtual,omitempty"`

	// Exports are the statically declared exports in declaration order.
	Exports []Export `json:"exports,omitempty"`

	// ReexportAll indexes Dependencies for each `export * from`, in order.
	ReexportAll []int `json:"reexportAll,omitempty"`

	// OpaqueExports is true when the export surface cannot be enumerated.
	OpaqueExports bool `json:"opaqueExports,omitempty"`

	// SideEffectful modules are never dropped once reached.
	SideEffectful bool `json:"sideEffectful,omitempty"`

	// Strict marks ES module syntax; the body runs in strict mode.
	Strict bool `json:"strict,omitempty"`

	// Parts are the top-level statements in source order.
	Parts []Part `json:"parts,omitempty"`

	// Dependencies are the outgoing edges in first-seen source order.
	Dependencies []*Edge `json:"dependencies,omitempty"`

	// Live is the liveness result. Reset at the start of every pass.
	Live BindingSet `json:"-"`
}

// ExportNames returns the locally declared export names in order.
func (m *Module) ExportNames() []string {
	names := make([]string, 0, len(m.Exports))
	for _, e := range m.Exports {
		names = append(names, e.Name)
	}
	return names
}

// LookupExport returns the static export with the given name.
func (m *Module) LookupExport(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// Edge returns the dependency at index i, or nil when out of range.
func (m *Module) Edge(i int) *Edge {
	if i < 0 || i >= len(m.Dependencies) {
		return nil
	}
	return m.Dependencies[i]
}
