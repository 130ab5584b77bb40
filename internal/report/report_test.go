package report

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
	"shaker/internal/optimizer"
)

func runSample(t *testing.T) (*optimizer.Output, *graph.Graph) {
	t.Helper()
	g := graph.NewGraph()
	modules := []*graph.Module{
		{
			Path: "/app/index.js",
			Dependencies: []*graph.Edge{
				{Specifier: "./math", Target: "/app/math.js", RequestedNames: []string{"add"}},
				{Specifier: "gone", Optional: true},
			},
			Parts: []graph.Part{{
				Code:        "console.log({{require 0}}.add(1, 2));",
				Imports:     []graph.ImportUse{{Edge: 0, Names: []string{"add"}}},
				SideEffects: true,
			}},
		},
		{
			Path:    "/app/math.js",
			Exports: []graph.Export{{Name: "add", Local: "add", Edge: -1}, {Name: "sub", Local: "sub", Edge: -1}},
			Parts: []graph.Part{
				{Code: "function add(a, b) { return a + b; }", Declares: []string{"add"}},
				{Code: "function sub(a, b) { return a - b; }", Declares: []string{"sub"}},
			},
		},
		{Path: "/app/unused.js", Exports: []graph.Export{{Name: "x", Local: "x", Edge: -1}}},
	}
	for _, m := range modules {
		if err := g.AddModule(m); err != nil {
			t.Fatal(err)
		}
	}
	out, err := optimizer.NewPass(g, []string{"/app/index.js"}, optimizer.DefaultOptions(), nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out, g
}

func TestFromOutput(t *testing.T) {
	out, g := runSample(t)
	r := FromOutput(out, g)

	if r.PassID != out.PassID || !reflect.DeepEqual(r.Entries, []string{"/app/index.js"}) {
		t.Errorf("pass id/entries = %s/%v", r.PassID, r.Entries)
	}
	if got := r.Eliminated; !reflect.DeepEqual(got, []string{"/app/unused.js"}) {
		t.Errorf("Eliminated = %v, want [/app/unused.js]", got)
	}
	if len(r.Modules) != 2 {
		t.Fatalf("got %d modules, want 2", len(r.Modules))
	}
	if math := r.Modules[1]; math.Path != "/app/math.js" || !reflect.DeepEqual(math.LiveBindings, []string{"add"}) {
		t.Errorf("math report = %+v", math)
	}
	if r.Summary.PartsDropped != 1 || r.Summary.SavedParts() <= 0 {
		t.Errorf("summary = %+v", r.Summary)
	}
	if len(r.Diagnostics) != 1 || r.Diagnostics[0].Code != string(shakerrors.UnresolvedOptionalImport) {
		t.Errorf("diagnostics = %+v", r.Diagnostics)
	}
}

func TestEncode_TOMLKeys(t *testing.T) {
	out, g := runSample(t)

	var buf bytes.Buffer
	if err := Encode(&buf, FromOutput(out, g), FormatTOML); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, want := range []string{"pass_id = ", "[summary]", "parts_dropped = 1", "[[module]]", "live_bindings = [\"add\"]", "[[diagnostic]]"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %q in TOML report:\n%s", want, buf.String())
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	out, g := runSample(t)
	want := FromOutput(out, g)

	for _, format := range []Format{FormatJSON, FormatTOML, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, want, format); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(&buf, format)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.PassID != want.PassID || got.Summary != want.Summary || !got.GeneratedAt.Equal(want.GeneratedAt) {
				t.Errorf("decoded report differs: %+v", got)
			}
			if len(got.Modules) != len(want.Modules) || got.Modules[1].Hash != want.Modules[1].Hash {
				t.Errorf("modules = %+v", got.Modules)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"TOML", FormatTOML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.input, got, err)
		}
		if err != nil && !errors.Is(err, shakerrors.Sentinel(shakerrors.InvalidConfig)) {
			t.Errorf("ParseFormat(%q) error = %v, want INVALID_CONFIG", tt.input, err)
		}
	}
}
