package codegen

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"shaker/internal/edges"
	shakerrors "shaker/internal/errors"
	"shaker/internal/exports"
	"shaker/internal/graph"
	"shaker/internal/liveness"
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

func uses(edge int, names ...string) []graph.ImportUse {
	return []graph.ImportUse{{Edge: edge, Names: names}}
}

// emitAll classifies, propagates and emits every included module.
func emitAll(t *testing.T, opts edges.Options, entries []string, modules ...*graph.Module) map[string]*Module {
	t.Helper()
	g := graph.NewGraph()
	for _, m := range modules {
		if err := g.AddModule(m); err != nil {
			t.Fatalf("AddModule(%s) failed: %v", m.Path, err)
		}
	}
	if _, err := edges.NewClassifier(opts, nil, nil).Classify(g, entries); err != nil {
		t.Fatalf("Classify() failed: %v", err)
	}
	planner := liveness.NewPlanner(g, opts.AsyncRequirePath)
	res, err := liveness.NewPropagator(g, exports.NewResolver(g, nil, nil), planner, nil, nil).Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	em := NewEmitter(opts.AsyncRequirePath)
	out := make(map[string]*Module)
	for _, path := range res.Included {
		m, _ := g.Module(path)
		emitted, err := em.Emit(m, res.Plans[path])
		if err != nil {
			t.Fatalf("Emit(%s) failed: %v", path, err)
		}
		out[path] = emitted
	}
	return out
}

func assertContains(t *testing.T, src string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(src, w) {
			t.Errorf("expected %q in:\n%s", w, src)
		}
	}
}

func assertNotContains(t *testing.T, src string, unwanted ...string) {
	t.Helper()
	for _, w := range unwanted {
		if strings.Contains(src, w) {
			t.Errorf("did not expect %q in:\n%s", w, src)
		}
	}
}

func TestEmit_TransitiveLocalUse(t *testing.T) {
	index := &graph.Module{
		Path:         "/app/index.js",
		Strict:       true,
		Dependencies: []*graph.Edge{dep("/app/math.js", "add")},
		Parts:        []graph.Part{{Code: "console.log({{require 0}}.add(1, 2));", Imports: uses(0, "add"), SideEffects: true}},
	}
	math := &graph.Module{
		Path:    "/app/math.js",
		Strict:  true,
		Exports: local("add", "subtract"),
		Parts: []graph.Part{
			{Code: "function add(a, b) {\n  return subtract(a, -b);\n}", Declares: []string{"add"}, Uses: []string{"subtract"}},
			{Code: "function subtract(a, b) {\n  return a - b;\n}", Declares: []string{"subtract"}},
		},
	}

	out := emitAll(t, edges.DefaultOptions(), []string{"/app/index.js"}, index, math)

	idx := out["/app/index.js"]
	if !strings.HasPrefix(idx.Source, "function ("+FactoryParams+") {\n") {
		t.Errorf("unexpected factory header:\n%s", idx.Source)
	}
	assertContains(t, idx.Source, `"use strict";`, "console.log(_$$_REQUIRE(_dependencyMap[0]).add(1, 2));")
	assertNotContains(t, idx.Source, "__esModule")
	if len(idx.Dependencies) != 1 || idx.Dependencies[0].Path != "/app/math.js" || idx.Dependencies[0].Index != 0 {
		t.Errorf("index table = %+v", idx.Dependencies)
	}

	assertContains(t, out["/app/math.js"].Source,
		"Object.defineProperty(exports, '__esModule', {",
		"    return subtract(a, -b);",
		"exports.add = add;",
		"exports.subtract = subtract;",
	)
}

func TestEmit_PartialStarBecomesNamedForwards(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("x0", "z2")},
		Parts:        []graph.Part{{Code: "log({{require 0}}.z2);", Imports: uses(0, "z2"), SideEffects: true}},
	}
	x0 := &graph.Module{
		Path:         "x0",
		Strict:       true,
		Dependencies: []*graph.Edge{dep("x2", "*")},
		ReexportAll:  []int{0},
	}
	x2 := &graph.Module{
		Path:    "x2",
		Strict:  true,
		Exports: local("z2", "z3"),
		Parts: []graph.Part{
			{Code: "const z2 = 0;", Declares: []string{"z2"}},
			{Code: "const z3 = 0;", Declares: []string{"z3"}},
		},
	}

	out := emitAll(t, edges.DefaultOptions(), []string{"index"}, index, x0, x2)

	src := out["x0"].Source
	assertContains(t, src,
		`Object.defineProperty(exports, "z2", {`,
		"return _$$_REQUIRE(_dependencyMap[0]).z2;",
	)
	assertNotContains(t, src, "_$$_REQUIRE(_dependencyMap[0]);", "Object.keys", "z3")
	assertNotContains(t, out["x2"].Source, "z3")
}

func TestEmit_FullStarCopyLoop(t *testing.T) {
	x0 := &graph.Module{
		Path:         "x0",
		Strict:       true,
		Exports:      local("own"),
		Dependencies: []*graph.Edge{dep("x1", "*"), dep("x2", "*")},
		ReexportAll:  []int{0, 1},
		Parts:        []graph.Part{{Code: "const own = 1;", Declares: []string{"own"}}},
	}
	x1 := &graph.Module{Path: "x1", Exports: local("a"), Parts: []graph.Part{{Code: "const a = 1;", Declares: []string{"a"}}}}
	x2 := &graph.Module{Path: "x2", Exports: local("b"), Parts: []graph.Part{{Code: "const b = 1;", Declares: []string{"b"}}}}

	out := emitAll(t, edges.DefaultOptions(), []string{"x0"}, x0, x1, x2)

	assertContains(t, out["x0"].Source,
		`var _exportNames = { "own": true };`,
		"Object.keys(_$$_REQUIRE(_dependencyMap[0])).forEach(function (_key) {",
		"Object.keys(_$$_REQUIRE(_dependencyMap[1])).forEach(function (_key2) {",
		`if (_key === "default" || _key === "__esModule") return;`,
		"if (Object.prototype.hasOwnProperty.call(_exportNames, _key)) return;",
		"exports.own = own;",
	)
	if got := len(out["x0"].Dependencies); got != 2 {
		t.Errorf("x0 table size = %d, want 2", got)
	}
}

func TestEmit_AsyncThroughHelper(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{{Specifier: "./lazy", Target: "lazy", AsyncType: "async"}},
		Parts:        []graph.Part{{Code: "{{async 0}}.then(run);", Imports: uses(0, "default"), SideEffects: true}},
	}
	lazy := &graph.Module{Path: "lazy", Exports: local("default"), Parts: []graph.Part{{Code: "const run = 1;", Declares: []string{"default"}}}}

	tests := []struct {
		name string
		opts edges.Options
		want string
	}{
		{
			name: "helper",
			opts: edges.DefaultOptions(),
			want: "_$$_REQUIRE(_dependencyMap[1])(_dependencyMap[0], _dependencyMap.paths).then(run);",
		},
		{
			name: "no helper",
			opts: edges.Options{},
			want: "Promise.resolve().then(function () { return _$$_IMPORT_ALL(_dependencyMap[0]); }).then(run);",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := *index
			idx.Dependencies = []*graph.Edge{{Specifier: "./lazy", Target: "lazy", AsyncType: "async"}}
			l := *lazy
			out := emitAll(t, tt.opts, []string{"index"}, &idx, &l)

			assertContains(t, out["index"].Source, tt.want)
			deps := out["index"].Dependencies
			if deps[0].Kind != graph.KindAsync {
				t.Errorf("dependency 0 kind = %v, want async", deps[0].Kind)
			}
		})
	}
}

func TestEmit_EffectOnlyRequire(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("polyfill")},
	}
	polyfill := &graph.Module{Path: "polyfill", SideEffectful: true, Parts: []graph.Part{{Code: "setup();", SideEffects: true}}}

	out := emitAll(t, edges.DefaultOptions(), []string{"index"}, index, polyfill)

	assertContains(t, out["index"].Source, "_$$_REQUIRE(_dependencyMap[0]);")
	assertContains(t, out["polyfill"].Source, "  setup();\n")
}

func TestEmit_ForwardedEffectfulTarget(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("lib", "a", "b")},
		Parts:        []graph.Part{{Code: "log({{require 0}}.a, {{require 0}}.b);", Imports: uses(0, "a", "b"), SideEffects: true}},
	}
	lib := &graph.Module{
		Path:         "lib",
		Strict:       true,
		Dependencies: []*graph.Edge{dep("pure", "a"), dep("effect", "b")},
		Exports: []graph.Export{
			{Name: "a", Edge: 0, Imported: "a"},
			{Name: "b", Edge: 1, Imported: "b"},
		},
	}
	pure := &graph.Module{Path: "pure", Strict: true, Exports: local("a"), Parts: []graph.Part{{Code: "const a = 1;", Declares: []string{"a"}}}}
	effect := &graph.Module{
		Path:          "effect",
		SideEffectful: true,
		Exports:       local("b"),
		Parts:         []graph.Part{{Code: "const b = 1;", Declares: []string{"b"}}, {Code: "setup();", SideEffects: true}},
	}

	out := emitAll(t, edges.DefaultOptions(), []string{"index"}, index, lib, pure, effect)

	src := out["lib"].Source
	assertContains(t, src,
		"_$$_REQUIRE(_dependencyMap[1]);",
		"return _$$_REQUIRE(_dependencyMap[0]).a;",
		"return _$$_REQUIRE(_dependencyMap[1]).b;",
	)
	assertNotContains(t, src, "_$$_REQUIRE(_dependencyMap[0]);")
}

func TestEmit_OptionalStub(t *testing.T) {
	index := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{{Specifier: "optional-native", Optional: true}},
		Parts: []graph.Part{{
			Code:        "try {\n  {{require 0}};\n} catch (e) {}",
			Imports:     uses(0),
			SideEffects: true,
		}},
	}

	out := emitAll(t, edges.DefaultOptions(), []string{"index"}, index)

	assertContains(t, out["index"].Source, "    _$$_REQUIRE(_dependencyMap[0]);")
	want := []Dependency{{Specifier: "optional-native", Index: 0, Kind: graph.KindOptional, Optional: true}}
	if got := out["index"].Dependencies; !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies = %+v, want %+v", got, want)
	}
}

func TestBuildTable_DedupesTargets(t *testing.T) {
	m := &graph.Module{
		Path: "index",
		Dependencies: []*graph.Edge{
			dep("a"),
			{Specifier: "./b", Target: "b", Kind: graph.KindAsync, Deferred: true},
			{Specifier: "./a.js", Target: "a", Kind: graph.KindEager},
			{Specifier: "./b.js", Target: "b", Kind: graph.KindEager},
			dep("c"),
		},
	}
	plan := &liveness.Plan{Edges: make([]liveness.EdgeUse, 5)}
	for _, i := range []int{0, 1, 2, 3} {
		plan.Edges[i].Retained = true
	}

	table := BuildTable(m, plan)

	if got := table.Paths(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Paths() = %v, want [a b]", got)
	}
	for raw, want := range map[int]int{0: 0, 1: 1, 2: 0, 3: 1} {
		if got, ok := table.Index(raw); !ok || got != want {
			t.Errorf("Index(%d) = %d, %v, want %d", raw, got, ok, want)
		}
	}
	if _, ok := table.Index(4); ok {
		t.Error("dropped edge should have no index")
	}
	if b := table.Deps[1]; b.Kind != graph.KindEager || b.Deferred {
		t.Errorf("merged b = %+v, want eager and not deferred", b)
	}
}

func TestEmit_ReferenceToDroppedEdge(t *testing.T) {
	m := &graph.Module{
		Path:         "index",
		Dependencies: []*graph.Edge{dep("a")},
		Parts:        []graph.Part{{Code: "{{require 0}}.x;"}},
	}
	plan := &liveness.Plan{Parts: []bool{true}, Edges: make([]liveness.EdgeUse, 1)}

	_, err := NewEmitter("").Emit(m, plan)
	if !errors.Is(err, shakerrors.Sentinel(shakerrors.InternalError)) {
		t.Errorf("Emit() error = %v, want INTERNAL_ERROR", err)
	}
}
