package liveness

import (
	"context"
	"log/slog"

	shakerrors "shaker/internal/errors"
	"shaker/internal/exports"
	"shaker/internal/graph"
	"shaker/internal/slogutil"
)

// Result summarises a propagation run.
type Result struct {
	// Included lists every retained module in the order it was first reached.
	Included []string

	// Plans holds the final plan of each included module.
	Plans map[string]*Plan

	// Iterations counts worklist pops.
	Iterations int

	// FullModules counts modules kept whole.
	FullModules int

	// PartsKept and PartsDropped count statements of included modules.
	PartsKept    int
	PartsDropped int

	// EdgesDropped counts edges of included modules left out of their tables.
	EdgesDropped int
}

// Propagator runs the liveness fixed point.
type Propagator struct {
	graph    *graph.Graph
	resolver *exports.Resolver
	planner  *Planner
	logger   *slog.Logger
	diags    *shakerrors.Diagnostics
}

// NewPropagator creates a propagator. logger and diags may be nil.
func NewPropagator(g *graph.Graph, r *exports.Resolver, planner *Planner, logger *slog.Logger, diags *shakerrors.Diagnostics) *Propagator {
	return &Propagator{
		graph:    g,
		resolver: r,
		planner:  planner,
		logger:   slogutil.ForStage(logger, "liveness"),
		diags:    diags,
	}
}

// Run marks live bindings on every module reachable from entries. Entry
// modules are fully live. Termination follows from monotonicity: live sets
// only grow and are bounded by the graph's bindings.
func (p *Propagator) Run(ctx context.Context, entries []string) (*Result, error) {
	res := &Result{Plans: make(map[string]*Plan)}
	included := make(map[string]bool)
	queued := make(map[string]bool)
	var queue []string

	push := func(path string) {
		if !queued[path] {
			queued[path] = true
			queue = append(queue, path)
		}
	}
	include := func(path string) {
		if !included[path] {
			included[path] = true
			res.Included = append(res.Included, path)
		}
	}

	for _, entry := range entries {
		m, ok := p.graph.Module(entry)
		if !ok {
			return nil, shakerrors.Unresolved("", entry, entry).WithDetails("entry point")
		}
		m.Live.MarkAll()
		include(entry)
		push(entry)
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, shakerrors.NewShakerError(shakerrors.PassCancelled, "liveness propagation cancelled", err)
		}
		path := queue[0]
		queue = queue[1:]
		queued[path] = false
		res.Iterations++

		m, _ := p.graph.Module(path)
		s, err := p.resolver.Resolve(path)
		if err != nil {
			return nil, err
		}
		p.promoteUnknown(m, s)

		plan := p.planner.Plan(m, s)
		m.Live.Add(plan.LiveNames...)
		res.Plans[path] = plan

		for i, eu := range plan.Edges {
			e := m.Dependencies[i]
			if !eu.Retained || !e.Resolved() {
				continue
			}
			t, ok := p.graph.Module(e.Target)
			if !ok {
				return nil, shakerrors.Unresolved(m.Path, e.Specifier, e.Target)
			}
			ts, err := p.resolver.Resolve(t.Path)
			if err != nil {
				return nil, err
			}

			var request graph.BindingSet
			request.AddSet(eu.Names)
			switch {
			case e.Kind == graph.KindAsync || e.Kind == graph.KindOptional:
				// the handle is opaque to static analysis
				request.MarkAll()
			case ts.Opaque && !request.Empty():
				request.MarkAll()
			}

			grew := t.Live.AddSet(request)
			if grew || !included[t.Path] {
				include(t.Path)
				push(t.Path)
			}
		}
	}

	for _, path := range res.Included {
		plan := res.Plans[path]
		if plan.Full {
			res.FullModules++
		}
		kept := plan.KeptParts()
		res.PartsKept += kept
		res.PartsDropped += len(plan.Parts) - kept
		res.EdgesDropped += len(plan.Edges) - len(plan.RetainedEdges())
	}

	p.logger.Debug("Liveness fixed point reached",
		"included", len(res.Included),
		"iterations", res.Iterations,
		"full", res.FullModules,
		"partsDropped", res.PartsDropped,
		"edgesDropped", res.EdgesDropped)

	return res, nil
}

// promoteUnknown makes m fully live when a requested name is missing from its
// static surface. Over-keeping is always safe.
func (p *Propagator) promoteUnknown(m *graph.Module, s *exports.Surface) {
	if m.Live.IsAll() || s.Opaque {
		return
	}
	for _, name := range m.Live.Names() {
		if s.Has(name) {
			continue
		}
		p.logger.Debug("Requested export not found", "module", m.Path, "name", name)
		p.diags.Add(shakerrors.Diagnostic{
			Code:    shakerrors.UnknownExportRequested,
			Module:  m.Path,
			Name:    name,
			Message: "requested export is not declared; keeping the whole module",
		})
		m.Live.MarkAll()
		return
	}
}
