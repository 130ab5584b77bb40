package jsfront

import (
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	root, err := filepath.Abs("../../testdata/js/app")
	if err != nil {
		t.Fatal(err)
	}
	from := filepath.Join(root, "index.js")
	exts := DefaultOptions().Extensions

	tests := []struct {
		name      string
		specifier string
		want      string
		wantOK    bool
	}{
		{"relative with extension", "./math.js", "math.js", true},
		{"relative without extension", "./math", "math.js", true},
		{"json", "./data", "data.json", true},
		{"package main", "leftpad", "node_modules/leftpad/lib/main.js", true},
		{"missing relative", "./nope", "", false},
		{"missing package", "native-addon", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(root, from, tt.specifier, exts)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.specifier, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if want := filepath.Join(root, filepath.FromSlash(tt.want)); got != want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.specifier, got, want)
			}
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"./a"`: "./a",
		`'./b'`: "./b",
		"`c`":   "c",
		`"d'`:   `"d'`,
		`x`:     "x",
	}
	for in, want := range tests {
		if got := unquote(in); got != want {
			t.Errorf("unquote(%s) = %s, want %s", in, got, want)
		}
	}
}
