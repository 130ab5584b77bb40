// Package liveness computes which bindings of which modules are reachable
// from the entry points.
//
// The propagator and the code generator both work from a Plan: the per-module
// decision of which statements, exports and dependency edges survive. Sharing
// one planner keeps the emitted dependency tables consistent with liveness.
package liveness

import (
	"shaker/internal/exports"
	"shaker/internal/graph"
)

// EdgeUse is the plan for one dependency edge.
type EdgeUse struct {
	// Retained edges stay in the dependency table.
	Retained bool

	// Referenced is true when a kept statement reads the edge.
	Referenced bool

	// Forward is true when the edge carries a live re-export.
	Forward bool

	// Effect is true when the target must run for its side effects.
	Effect bool

	// Names are the bindings requested from the target.
	Names graph.BindingSet
}

// Forward is one re-exported name emitted as a getter.
type Forward struct {
	Name     string
	Edge     int
	Imported string
}

// Plan is the pruning decision for one module.
type Plan struct {
	Path string

	// Full is true when every statement and export is kept.
	Full bool

	// Opaque is true when the export surface could not be enumerated.
	Opaque bool

	// Parts flags the kept statements.
	Parts []bool

	// Edges is indexed like Module.Dependencies.
	Edges []EdgeUse

	// Forwards are named re-exports and, for partial modules, star names
	// rewritten to per-name forwarding.
	Forwards []Forward

	// StarAll lists `export *` edges kept as a runtime copy loop.
	StarAll []int

	// Locals are the local exports assigned after the body.
	Locals []graph.Export

	// LiveNames are the exported names kept by a partial plan.
	LiveNames []string

	// Declared are the names the module declares itself; copy loops skip them.
	Declared []string
}

// KeptParts returns how many statements survive.
func (p *Plan) KeptParts() int {
	n := 0
	for _, keep := range p.Parts {
		if keep {
			n++
		}
	}
	return n
}

// RetainedEdges returns the indices of retained edges in raw order.
func (p *Plan) RetainedEdges() []int {
	var out []int
	for i, eu := range p.Edges {
		if eu.Retained {
			out = append(out, i)
		}
	}
	return out
}

// Planner builds plans. It is shared by liveness and codegen.
type Planner struct {
	graph  *graph.Graph
	helper string
}

// NewPlanner creates a planner. helper is the async-require module path, or
// empty when no helper is injected.
func NewPlanner(g *graph.Graph, helper string) *Planner {
	return &Planner{graph: g, helper: helper}
}

// Plan decides what survives of m given its current live set and surface.
func (p *Planner) Plan(m *graph.Module, s *exports.Surface) *Plan {
	pl := &Plan{
		Path:     m.Path,
		Opaque:   m.OpaqueExports || s.Opaque,
		Parts:    make([]bool, len(m.Parts)),
		Edges:    make([]EdgeUse, len(m.Dependencies)),
		Declared: m.ExportNames(),
	}
	pl.Full = pl.Opaque || m.Live.IsAll()

	star := make(map[int]bool, len(m.ReexportAll))
	for _, idx := range m.ReexportAll {
		star[idx] = true
	}
	named := make(map[int]bool)
	for _, exp := range m.Exports {
		if exp.IsReexport() {
			named[exp.Edge] = true
		}
	}
	partRefs := make([]bool, len(m.Dependencies))
	for _, part := range m.Parts {
		for _, use := range part.Imports {
			partRefs[use.Edge] = true
		}
	}

	if pl.Full {
		for i := range pl.Parts {
			pl.Parts[i] = true
		}
		p.fullExports(m, s, pl)
	} else {
		p.partialExports(m, s, pl)
	}

	for i, part := range m.Parts {
		if !pl.Parts[i] {
			continue
		}
		for _, use := range part.Imports {
			eu := &pl.Edges[use.Edge]
			eu.Referenced = true
			if e := m.Dependencies[use.Edge]; !e.ForwardsAll && e.RequestsAll() {
				eu.Names.MarkAll()
				continue
			}
			eu.Names.Add(use.Names...)
		}
	}

	helperIdx := -1
	for i, e := range m.Dependencies {
		eu := &pl.Edges[i]
		if e.Synthetic && p.helper != "" && e.Target == p.helper {
			helperIdx = i
			continue
		}
		bare := !partRefs[i] && !star[i] && !named[i]
		switch {
		case eu.Referenced || eu.Forward:
			eu.Retained = true
		case bare && pl.Full:
			eu.Retained = true
			eu.Names.Add(e.RequestedNames...)
		case bare && p.keepBare(m, e):
			eu.Retained = true
			eu.Names.Add(e.RequestedNames...)
		}
		if (e.Kind == graph.KindEager || e.Kind == "") && p.sideEffectful(e) {
			// kept for its effect only
			eu.Retained = true
			eu.Effect = true
		}
	}

	if helperIdx >= 0 {
		for i, e := range m.Dependencies {
			if e.Kind == graph.KindAsync && pl.Edges[i].Retained {
				pl.Edges[helperIdx].Retained = true
				pl.Edges[helperIdx].Names.MarkAll()
				break
			}
		}
	}

	return pl
}

// fullExports keeps every export and forwards every star source wholesale.
func (p *Planner) fullExports(m *graph.Module, s *exports.Surface, pl *Plan) {
	for _, exp := range m.Exports {
		if !exp.IsReexport() {
			pl.Locals = append(pl.Locals, exp)
			continue
		}
		pl.Forwards = append(pl.Forwards, Forward{Name: exp.Name, Edge: exp.Edge, Imported: exp.Imported})
		eu := &pl.Edges[exp.Edge]
		eu.Forward = true
		eu.Names.Add(exp.Imported)
	}

	for _, idx := range m.ReexportAll {
		if !m.Dependencies[idx].Resolved() {
			continue
		}
		pl.StarAll = append(pl.StarAll, idx)
		pl.Edges[idx].Forward = true
		if s.Opaque {
			pl.Edges[idx].Names.MarkAll()
		}
	}
	if s.Opaque {
		return
	}
	// route each forwarded name to its source only
	for _, b := range s.Bindings() {
		if b.Declared() {
			continue
		}
		for _, src := range b.Sources {
			pl.Edges[src].Names.Add(b.Name)
		}
	}
}

// partialExports keeps only the live names and the statements they need.
func (p *Planner) partialExports(m *graph.Module, s *exports.Surface, pl *Plan) {
	live := graph.NewBindingSet(m.Live.Names()...)
	live.Add(s.Ambiguous()...)

	var roots []string
	keep := make(map[string]bool)
	for _, name := range live.Names() {
		b, ok := s.Lookup(name)
		if !ok {
			continue
		}
		keep[name] = true
		switch {
		case b.Local != "":
			roots = append(roots, b.Local)
		case b.Edge >= 0:
			pl.Forwards = append(pl.Forwards, Forward{Name: name, Edge: b.Edge, Imported: b.Imported})
			eu := &pl.Edges[b.Edge]
			eu.Forward = true
			eu.Names.Add(b.Imported)
		default:
			pl.Forwards = append(pl.Forwards, Forward{Name: name, Edge: b.Sources[0], Imported: name})
			for _, src := range b.Sources {
				eu := &pl.Edges[src]
				eu.Forward = true
				eu.Names.Add(name)
			}
		}
	}

	declaredBy := make(map[string][]int)
	for i, part := range m.Parts {
		for _, d := range part.Declares {
			declaredBy[d] = append(declaredBy[d], i)
		}
	}

	var queue []int
	mark := func(i int) {
		if !pl.Parts[i] {
			pl.Parts[i] = true
			queue = append(queue, i)
		}
	}
	for i, part := range m.Parts {
		if part.SideEffects {
			mark(i)
		}
	}
	for _, local := range roots {
		for _, i := range declaredBy[local] {
			mark(i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, used := range m.Parts[i].Uses {
			for _, j := range declaredBy[used] {
				mark(j)
			}
		}
	}

	liveLocal := make(map[string]bool)
	for i, part := range m.Parts {
		if pl.Parts[i] {
			for _, d := range part.Declares {
				liveLocal[d] = true
			}
		}
	}
	// a kept declaration keeps its export too
	for _, exp := range m.Exports {
		if !exp.IsReexport() && liveLocal[exp.Local] {
			keep[exp.Name] = true
		}
	}
	for _, exp := range m.Exports {
		if !exp.IsReexport() && keep[exp.Name] {
			pl.Locals = append(pl.Locals, exp)
		}
	}
	for _, name := range s.Names() {
		if keep[name] {
			pl.LiveNames = append(pl.LiveNames, name)
		}
	}
}

// keepBare decides for an edge no statement or export refers to. Modules
// without statement metadata keep edges that request names.
func (p *Planner) keepBare(m *graph.Module, e *graph.Edge) bool {
	if e.Kind == graph.KindAsync || e.Kind == graph.KindOptional {
		return true
	}
	return len(m.Parts) == 0 && len(e.RequestedNames) > 0
}

func (p *Planner) sideEffectful(e *graph.Edge) bool {
	if !e.Resolved() {
		return false
	}
	t, ok := p.graph.Module(e.Target)
	return ok && t.SideEffectful
}
