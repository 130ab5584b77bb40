package liveness

import (
	"context"
	"errors"
	"reflect"
	"testing"

	shakerrors "shaker/internal/errors"
	"shaker/internal/exports"
	"shaker/internal/graph"
)

func dep(target string, names ...string) *graph.Edge {
	return &graph.Edge{Specifier: "./" + target, Target: target, Kind: graph.KindEager, RequestedNames: names}
}

func local(names ...string) []graph.Export {
	out := make([]graph.Export, 0, len(names))
	for _, n := range names {
		out = append(out, graph.Export{Name: n, Local: n, Edge: -1})
	}
	return out
}

func decl(name string, uses ...string) graph.Part {
	return graph.Part{Code: "const " + name + " = 0;", Declares: []string{name}, Uses: uses}
}

// starModule re-exports-all from every target and declares locals.
func starModule(path string, locals []string, targets ...string) *graph.Module {
	m := &graph.Module{Path: path, Exports: local(locals...), Strict: true}
	for _, l := range locals {
		m.Parts = append(m.Parts, decl(l))
	}
	for i, t := range targets {
		e := dep(t, graph.Wildcard)
		e.ForwardsAll = true
		m.Dependencies = append(m.Dependencies, e)
		m.ReexportAll = append(m.ReexportAll, i)
	}
	return m
}

func run(t *testing.T, entries []string, modules ...*graph.Module) (*graph.Graph, *Result, *shakerrors.Diagnostics) {
	t.Helper()
	g := graph.NewGraph()
	for _, m := range modules {
		if err := g.AddModule(m); err != nil {
			t.Fatalf("AddModule(%s) failed: %v", m.Path, err)
		}
	}
	diags := shakerrors.NewDiagnostics()
	r := exports.NewResolver(g, nil, diags)
	p := NewPropagator(g, r, NewPlanner(g, ""), nil, diags)
	res, err := p.Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return g, res, diags
}

func live(t *testing.T, g *graph.Graph, path string) []string {
	t.Helper()
	m, ok := g.Module(path)
	if !ok {
		t.Fatalf("module %s not found", path)
	}
	return m.Live.Slice()
}

func TestRun_TransitiveLocalUse(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("math", "add")},
		Parts: []graph.Part{{
			Code:        "console.log({{require 0}}.add(1, 2));",
			Imports:     []graph.ImportUse{{Edge: 0, Names: []string{"add"}}},
			SideEffects: true,
		}},
	}
	math := &graph.Module{
		Path:    "math",
		Exports: local("add", "subtract", "multiply"),
		Parts: []graph.Part{
			decl("add", "subtract"),
			decl("subtract"),
			decl("multiply"),
		},
	}

	g, res, _ := run(t, []string{"index"}, index, math)

	if got := live(t, g, "math"); !reflect.DeepEqual(got, []string{"add", "subtract"}) {
		t.Errorf("math live = %v, want [add subtract]", got)
	}
	plan := res.Plans["math"]
	if !reflect.DeepEqual(plan.Parts, []bool{true, true, false}) {
		t.Errorf("math parts = %v", plan.Parts)
	}
	if got := res.Plans["index"].RetainedEdges(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("index retained = %v, want [0]", got)
	}
	if res.PartsDropped != 1 {
		t.Errorf("PartsDropped = %d, want 1", res.PartsDropped)
	}
}

func TestRun_Circular(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("b", "b")},
		Parts:        []graph.Part{{Code: "{{require 0}}.b();", Imports: []graph.ImportUse{{Edge: 0, Names: []string{"b"}}}, SideEffects: true}},
	}
	b := &graph.Module{
		Path:         "b",
		Exports:      local("b", "unusedB"),
		Dependencies: []*graph.Edge{dep("c", "c")},
		Parts: []graph.Part{
			{Code: "function b() { return {{require 0}}.c(); }", Declares: []string{"b"}, Imports: []graph.ImportUse{{Edge: 0, Names: []string{"c"}}}},
			decl("unusedB"),
		},
	}
	c := &graph.Module{
		Path:         "c",
		Exports:      local("c", "unusedC"),
		Dependencies: []*graph.Edge{dep("b", "b")},
		Parts: []graph.Part{
			{Code: "function c() { return {{require 0}}.b; }", Declares: []string{"c"}, Imports: []graph.ImportUse{{Edge: 0, Names: []string{"b"}}}},
			decl("unusedC"),
		},
	}

	g, res, _ := run(t, []string{"index"}, index, b, c)

	if got := live(t, g, "b"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("b live = %v, want [b]", got)
	}
	if got := live(t, g, "c"); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("c live = %v, want [c]", got)
	}
	if !reflect.DeepEqual(res.Included, []string{"index", "b", "c"}) {
		t.Errorf("Included = %v", res.Included)
	}
}

func TestRun_StarCycle(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("a", "b1", "a1")},
		Parts: []graph.Part{{
			Code:        "log({{require 0}}.b1, {{require 0}}.a1);",
			Imports:     []graph.ImportUse{{Edge: 0, Names: []string{"b1", "a1"}}},
			SideEffects: true,
		}},
	}
	a := starModule("a", []string{"a1"}, "b")
	b := starModule("b", []string{"b1"}, "a")

	g, res, _ := run(t, []string{"index"}, index, a, b)

	if got := live(t, g, "a"); !reflect.DeepEqual(got, []string{"b1", "a1"}) {
		t.Errorf("a live = %v, want [b1 a1]", got)
	}
	if got := live(t, g, "b"); !reflect.DeepEqual(got, []string{"b1"}) {
		t.Errorf("b live = %v, want [b1]", got)
	}
	if got := res.Plans["a"].RetainedEdges(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("a retained = %v, want [0]", got)
	}
	if fw := res.Plans["a"].Forwards; len(fw) != 1 || fw[0].Name != "b1" {
		t.Errorf("a forwards = %+v, want only b1", fw)
	}
}

func TestRun_AsyncOpacity(t *testing.T) {
	lazy := &graph.Edge{Specifier: "./lazy", Target: "lazy", Kind: graph.KindAsync, RequestedNames: []string{"default"}}
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{lazy},
		Parts: []graph.Part{{
			Code:        "{{async 0}}.then(function (m) { m.default(); });",
			Imports:     []graph.ImportUse{{Edge: 0, Names: []string{"default"}}},
			SideEffects: true,
		}},
	}
	target := &graph.Module{
		Path:    "lazy",
		Exports: local("default", "subtract"),
		Parts:   []graph.Part{decl("default"), decl("subtract")},
	}

	g, res, _ := run(t, []string{"index"}, index, target)

	if got := live(t, g, "lazy"); !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("lazy live = %v, want [*]", got)
	}
	if !res.Plans["lazy"].Full {
		t.Error("lazy plan should be full")
	}
}

func TestRun_SideEffectfulRetention(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("lib", "x")},
		Parts:        []graph.Part{{Code: "{{require 0}}.x;", Imports: []graph.ImportUse{{Edge: 0, Names: []string{"x"}}}, SideEffects: true}},
	}
	lib := &graph.Module{
		Path:         "lib",
		Exports:      local("x", "y"),
		Dependencies: []*graph.Edge{dep("polyfill"), dep("helpers", "h")},
		Parts: []graph.Part{
			decl("x"),
			{Code: "const y = {{require 1}}.h;", Declares: []string{"y"}, Imports: []graph.ImportUse{{Edge: 1, Names: []string{"h"}}}},
		},
	}
	polyfill := &graph.Module{Path: "polyfill", SideEffectful: true, Parts: []graph.Part{{Code: "globalThis.x = 1;", SideEffects: true}}}
	helpers := &graph.Module{Path: "helpers", Exports: local("h"), Parts: []graph.Part{decl("h")}}

	g, res, _ := run(t, []string{"index"}, index, lib, polyfill, helpers)

	plan := res.Plans["lib"]
	if got := plan.RetainedEdges(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("lib retained = %v, want [0] (polyfill only)", got)
	}
	if _, ok := res.Plans["helpers"]; ok {
		t.Error("helpers should not be included")
	}
	if got := live(t, g, "polyfill"); len(got) != 0 {
		t.Errorf("polyfill live = %v, want empty", got)
	}
	if !reflect.DeepEqual(res.Included, []string{"index", "lib", "polyfill"}) {
		t.Errorf("Included = %v", res.Included)
	}
}

func TestRun_UnknownExportPromotes(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("lib", "missing")},
		Parts:        []graph.Part{{Code: "{{require 0}}.missing;", Imports: []graph.ImportUse{{Edge: 0, Names: []string{"missing"}}}, SideEffects: true}},
	}
	lib := &graph.Module{Path: "lib", Exports: local("a"), Parts: []graph.Part{decl("a")}}

	g, _, diags := run(t, []string{"index"}, index, lib)

	if got := live(t, g, "lib"); !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("lib live = %v, want [*]", got)
	}
	if n := diags.Count(shakerrors.UnknownExportRequested); n != 1 {
		t.Errorf("UNKNOWN_EXPORT_REQUESTED count = %d, want 1", n)
	}
}

func TestRun_StarRoutesToOrigin(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("x0", "z2")},
		Parts:        []graph.Part{{Code: "{{require 0}}.z2;", Imports: []graph.ImportUse{{Edge: 0, Names: []string{"z2"}}}, SideEffects: true}},
	}

	g, res, _ := run(t, []string{"index"}, index,
		starModule("x0", nil, "x1", "x2"),
		starModule("x1", []string{"z1"}, "x2"),
		starModule("x2", []string{"z2", "z3"}),
	)

	for path, want := range map[string][]string{"x0": {"z2"}, "x1": {"z2"}, "x2": {"z2"}} {
		if got := live(t, g, path); !reflect.DeepEqual(got, want) {
			t.Errorf("%s live = %v, want %v", path, got, want)
		}
	}
	if got := res.Plans["x1"].Parts; !reflect.DeepEqual(got, []bool{false}) {
		t.Errorf("x1 parts = %v, want z1 dropped", got)
	}
	if got := res.Plans["x2"].Parts; !reflect.DeepEqual(got, []bool{true, false}) {
		t.Errorf("x2 parts = %v, want z3 dropped", got)
	}
	// x2 is reached through x1's forwarding; x0's direct x2 edge is not needed
	if got := res.Plans["x0"].RetainedEdges(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("x0 retained = %v, want [0]", got)
	}
}

func TestRun_ShadowedLocalWins(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("x0", "z1")},
		Parts:        []graph.Part{{Code: "{{require 0}}.z1;", Imports: []graph.ImportUse{{Edge: 0, Names: []string{"z1"}}}, SideEffects: true}},
	}

	g, res, _ := run(t, []string{"index"}, index,
		starModule("x0", nil, "x1", "x2"),
		starModule("x1", []string{"z1"}, "x2"),
		starModule("x2", []string{"z2", "z3"}),
	)

	if got := live(t, g, "x1"); !reflect.DeepEqual(got, []string{"z1"}) {
		t.Errorf("x1 live = %v, want [z1]", got)
	}
	if _, ok := res.Plans["x2"]; ok {
		t.Error("x2 should be eliminated when none of its names are requested")
	}
}

func TestRun_AmbiguousKeepsBoth(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("x0", "other")},
		Parts:        []graph.Part{{Code: "{{require 0}}.other;", Imports: []graph.ImportUse{{Edge: 0, Names: []string{"other"}}}, SideEffects: true}},
	}

	g, _, _ := run(t, []string{"index"}, index,
		starModule("x0", []string{"other"}, "a", "b"),
		starModule("a", []string{"dup"}),
		starModule("b", []string{"dup"}),
	)

	for _, path := range []string{"a", "b"} {
		if got := live(t, g, path); !reflect.DeepEqual(got, []string{"dup"}) {
			t.Errorf("%s live = %v, want [dup]", path, got)
		}
	}
}

func TestRun_OptionalStub(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{{Specifier: "gone", Kind: graph.KindOptional}},
		Parts: []graph.Part{{
			Code:        "try { {{require 0}}; } catch (e) {}",
			Imports:     []graph.ImportUse{{Edge: 0}},
			SideEffects: true,
		}},
	}

	_, res, _ := run(t, []string{"index"}, index)

	if got := res.Plans["index"].RetainedEdges(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("retained = %v, want the stub", got)
	}
	if len(res.Included) != 1 {
		t.Errorf("Included = %v", res.Included)
	}
}

func TestRun_Cancelled(t *testing.T) {
	g := graph.NewGraph()
	_ = g.AddModule(&graph.Module{Path: "index"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPropagator(g, exports.NewResolver(g, nil, nil), NewPlanner(g, ""), nil, nil)
	_, err := p.Run(ctx, []string{"index"})
	if !errors.Is(err, shakerrors.Sentinel(shakerrors.PassCancelled)) {
		t.Errorf("Run() error = %v, want PASS_CANCELLED", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cancellation cause should be preserved")
	}
}

func TestRun_MissingEntry(t *testing.T) {
	g := graph.NewGraph()
	p := NewPropagator(g, exports.NewResolver(g, nil, nil), NewPlanner(g, ""), nil, nil)

	_, err := p.Run(context.Background(), []string{"nope"})
	if !errors.Is(err, shakerrors.Sentinel(shakerrors.UnresolvedEagerImport)) {
		t.Errorf("Run() error = %v, want UNRESOLVED_EAGER_IMPORT", err)
	}
}
