package graph

import (
	"errors"
	"reflect"
	"testing"

	shakerrors "shaker/internal/errors"
)

func mod(path string, targets ...string) *Module {
	m := &Module{Path: path}
	for _, t := range targets {
		m.Dependencies = append(m.Dependencies, &Edge{Specifier: t, Target: t, Kind: KindEager})
	}
	return m
}

func TestBindingSet(t *testing.T) {
	var s BindingSet
	if !s.Empty() {
		t.Fatal("zero value should be empty")
	}

	if !s.Add("a", "b") {
		t.Error("Add should report growth")
	}
	if s.Add("a") {
		t.Error("re-adding should not report growth")
	}
	if got := s.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v, want [a b]", got)
	}
	if s.Has("c") {
		t.Error("Has(c) should be false")
	}

	if !s.Add(Wildcard) {
		t.Error("adding * should report growth")
	}
	if !s.IsAll() || !s.Has("c") {
		t.Error("all set should contain every name")
	}
	if s.Add("c") {
		t.Error("adding to an all set should not report growth")
	}
	if got := s.Slice(); !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("Slice() = %v, want [*]", got)
	}

	s.Reset()
	if !s.Empty() {
		t.Error("Reset should empty the set")
	}
}

func TestBindingSet_AddSet(t *testing.T) {
	a := NewBindingSet("x")
	b := NewBindingSet("y", "x")

	if !a.AddSet(b) {
		t.Error("AddSet should grow")
	}
	if got := a.Names(); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("Names() = %v", got)
	}

	all := NewBindingSet("*")
	if !a.AddSet(all) || !a.IsAll() {
		t.Error("AddSet with an all set should make the receiver all")
	}
}

func TestGraph_AddModule(t *testing.T) {
	g := NewGraph()
	if err := g.AddModule(mod("/app/a.js")); err != nil {
		t.Fatalf("AddModule failed: %v", err)
	}

	err := g.AddModule(mod("/app/a.js"))
	if !errors.Is(err, shakerrors.Sentinel(shakerrors.InvalidGraph)) {
		t.Errorf("duplicate AddModule error = %v, want INVALID_GRAPH", err)
	}
	if err := g.AddModule(&Module{}); err == nil {
		t.Error("empty path should be rejected")
	}

	if _, ok := g.Module("/app/a.js"); !ok {
		t.Error("Module should find registered path")
	}
	if g.Has("/app/b.js") {
		t.Error("Has should be false for unknown path")
	}
}

func TestGraph_Validate(t *testing.T) {
	tests := []struct {
		name    string
		module  *Module
		wantErr bool
	}{
		{
			name:   "valid",
			module: &Module{Path: "/a", Dependencies: []*Edge{{Specifier: "./b", Target: "/b"}}, ReexportAll: []int{0}},
		},
		{
			name:    "re-export-all out of range",
			module:  &Module{Path: "/a", ReexportAll: []int{2}},
			wantErr: true,
		},
		{
			name:    "export without local",
			module:  &Module{Path: "/a", Exports: []Export{{Name: "x", Edge: -1}}},
			wantErr: true,
		},
		{
			name:    "part reads missing edge",
			module:  &Module{Path: "/a", Parts: []Part{{Code: "x", Imports: []ImportUse{{Edge: 0}}}}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			module:  &Module{Path: "/a", Dependencies: []*Edge{{Specifier: "./b", Kind: "lazy"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			if err := g.AddModule(tt.module); err != nil {
				t.Fatalf("AddModule failed: %v", err)
			}
			err := g.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGraph_WalkFirstSeenOrder(t *testing.T) {
	// index -> a -> c
	//       -> b -> a (cycle back)
	//            -> d
	g := NewGraph()
	for _, m := range []*Module{
		mod("index", "a", "b"),
		mod("a", "c"),
		mod("b", "a", "d"),
		mod("c"),
		mod("d", "b"),
		mod("unreachable", "a"),
	} {
		if err := g.AddModule(m); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"index", "a", "c", "b", "d"}
	for i := 0; i < 3; i++ {
		if got := g.Reachable([]string{"index"}); !reflect.DeepEqual(got, want) {
			t.Fatalf("Reachable() = %v, want %v", got, want)
		}
	}
}

func TestGraph_WalkSkipsUnknown(t *testing.T) {
	g := NewGraph()
	_ = g.AddModule(mod("index", "missing", "a"))
	_ = g.AddModule(mod("a"))

	got := g.Reachable([]string{"index", "nope"})
	if !reflect.DeepEqual(got, []string{"index", "a"}) {
		t.Errorf("Reachable() = %v", got)
	}
}

func TestGraph_Stats(t *testing.T) {
	g := NewGraph()
	m := mod("index", "a")
	m.Dependencies = append(m.Dependencies,
		&Edge{Specifier: "./lazy", Target: "lazy", Kind: KindAsync},
		&Edge{Specifier: "gone", Kind: KindOptional},
	)
	_ = g.AddModule(m)
	_ = g.AddModule(&Module{Path: "a", OpaqueExports: true, SideEffectful: true})

	stats := g.Stats()
	if stats.Modules != 2 || stats.Edges != 3 {
		t.Errorf("Modules/Edges = %d/%d, want 2/3", stats.Modules, stats.Edges)
	}
	if stats.AsyncEdges != 1 || stats.OptionalEdges != 1 || stats.EagerEdges != 1 {
		t.Errorf("kinds = %+v", stats)
	}
	if stats.Unresolved != 1 || stats.Opaque != 1 || stats.SideEffectful != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
