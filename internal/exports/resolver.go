package exports

import (
	"fmt"
	"log/slog"
	"math"

	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
	"shaker/internal/slogutil"
)

// noCut is returned when a resolution did not stop at an open module.
const noCut = math.MaxInt

// Resolver computes export surfaces. One Resolver belongs to one pass; its
// memo is never shared between passes.
type Resolver struct {
	graph  *graph.Graph
	logger *slog.Logger
	diags  *shakerrors.Diagnostics

	memo map[string]*Surface

	// open holds the modules currently being resolved, keyed by path, with
	// their depth on the resolution stack.
	open map[string]int
}

// NewResolver creates a resolver over g. logger and diags may be nil.
func NewResolver(g *graph.Graph, logger *slog.Logger, diags *shakerrors.Diagnostics) *Resolver {
	return &Resolver{
		graph:  g,
		logger: slogutil.ForStage(logger, "exports"),
		diags:  diags,
		memo:   make(map[string]*Surface),
		open:   make(map[string]int),
	}
}

// Resolve returns the export surface of the module at path. Results are
// memoized; resolving the same module twice returns the same surface.
func (r *Resolver) Resolve(path string) (*Surface, error) {
	m, ok := r.graph.Module(path)
	if !ok {
		return nil, shakerrors.Unresolved("", path, path).WithDetails("export surface of unknown module")
	}
	s, _, err := r.resolve(m, 0)
	return s, err
}

// ResolveAll resolves every module of the graph in registration order.
func (r *Resolver) ResolveAll() error {
	for _, m := range r.graph.Modules() {
		if _, err := r.Resolve(m.Path); err != nil {
			return err
		}
	}
	return nil
}

// Memoized returns how many surfaces are cached.
func (r *Resolver) Memoized() int {
	return len(r.memo)
}

// resolve returns m's surface and the smallest stack depth at which the
// resolution was cut by an open module. A nil surface means m itself is open.
// Only surfaces not cut above their own depth are complete and memoized.
func (r *Resolver) resolve(m *graph.Module, depth int) (*Surface, int, error) {
	if s, ok := r.memo[m.Path]; ok {
		return s, noCut, nil
	}
	if d, ok := r.open[m.Path]; ok {
		return nil, d, nil
	}

	if m.OpaqueExports {
		s := newOpaque(m, m.Path)
		r.downgrade(m, m.Path)
		r.memo[m.Path] = s
		return s, noCut, nil
	}

	r.open[m.Path] = depth
	defer delete(r.open, m.Path)

	s := newStatic(m)
	for _, exp := range m.Exports {
		if _, dup := s.bindings[exp.Name]; dup {
			continue
		}
		b := &Binding{Name: exp.Name, Local: exp.Local, Edge: exp.Edge, Imported: exp.Imported}
		if exp.IsReexport() {
			b.Origin = origin(m.Dependencies[exp.Edge].Target, exp.Imported)
		} else {
			b.Origin = origin(m.Path, exp.Local)
		}
		s.add(b)
	}

	cut := noCut
	for _, idx := range m.ReexportAll {
		e := m.Edge(idx)
		if e == nil || !e.Resolved() {
			// optional stub; nothing to forward
			continue
		}
		target, ok := r.graph.Module(e.Target)
		if !ok {
			return nil, 0, shakerrors.Unresolved(m.Path, e.Specifier, e.Target)
		}

		sub, subCut, err := r.resolve(target, depth+1)
		if err != nil {
			return nil, 0, err
		}
		cut = min(cut, subCut)
		if sub == nil {
			continue
		}
		if sub.Opaque {
			opaque := newOpaque(m, sub.OpaqueVia)
			r.downgrade(m, sub.OpaqueVia)
			// opaque absorbs any later completion, so it is always final
			r.memo[m.Path] = opaque
			return opaque, noCut, nil
		}
		r.merge(m, s, sub, idx)
	}

	if cut >= depth {
		r.memo[m.Path] = s
		cut = noCut
	}
	return s, cut, nil
}

// merge forwards sub's names into s through star edge idx. `export *` never
// forwards "default"; declared names shadow forwarded ones.
func (r *Resolver) merge(m *graph.Module, s, sub *Surface, idx int) {
	for _, name := range sub.names {
		if name == "default" {
			continue
		}
		from := sub.bindings[name]
		existing, ok := s.bindings[name]
		if !ok {
			s.add(&Binding{Name: name, Origin: from.Origin, Edge: -1, Sources: []int{idx}})
			continue
		}
		if existing.Declared() || existing.Origin == from.Origin || containsInt(existing.Sources, idx) {
			continue
		}
		existing.Ambiguous = true
		existing.Sources = append(existing.Sources, idx)
		r.logger.Warn("Export provided by several export * sources",
			"module", m.Path, "name", name, "sources", len(existing.Sources))
		r.diags.Add(shakerrors.Diagnostic{
			Code:    shakerrors.CyclicExportAmbiguity,
			Module:  m.Path,
			Name:    name,
			Message: fmt.Sprintf("%q is provided by several export * sources; keeping all of them", name),
		})
	}
}

func (r *Resolver) downgrade(m *graph.Module, via string) {
	msg := "exports are assigned dynamically"
	if via != m.Path {
		msg = fmt.Sprintf("export * from opaque module %s", via)
	}
	r.logger.Debug("Export surface is opaque", "module", m.Path, "via", via)
	r.diags.Add(shakerrors.Diagnostic{
		Code:    shakerrors.OpaqueExportsDowngrade,
		Module:  m.Path,
		Message: msg,
	})
}

func origin(path, name string) string {
	return path + "#" + name
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
