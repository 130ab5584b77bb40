// Package jsfront builds a module graph from JavaScript sources. It plays the
// resolver/transformer collaborator for local runs: every reachable file is
// parsed once, its imports resolved on disk, and its top-level statements
// turned into parts with dependency placeholders.
package jsfront

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCGO is returned when source parsing is unavailable due to missing CGO.
var ErrNoCGO = errors.New("parsing JavaScript sources requires CGO (tree-sitter)")

// Options configures the front end.
type Options struct {
	// Extensions are tried, in order, when a specifier has none.
	Extensions []string
}

// DefaultOptions returns the default resolution settings.
func DefaultOptions() Options {
	return Options{Extensions: []string{".js", ".mjs", ".cjs", ".jsx", ".json"}}
}

// Resolve maps a specifier imported from the file at from to an absolute
// path. Relative and absolute specifiers resolve against the filesystem; bare
// specifiers resolve under root/node_modules.
func Resolve(root, from, specifier string, exts []string) (string, bool) {
	var base string
	switch {
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"), specifier == ".", specifier == "..":
		base = filepath.Join(filepath.Dir(from), specifier)
	case filepath.IsAbs(specifier):
		base = specifier
	default:
		base = filepath.Join(root, "node_modules", filepath.FromSlash(specifier))
	}
	return resolveFile(base, exts)
}

func resolveFile(base string, exts []string) (string, bool) {
	if isFile(base) {
		return abs(base), true
	}
	for _, ext := range exts {
		if isFile(base + ext) {
			return abs(base + ext), true
		}
	}
	if main := packageMain(base); main != "" {
		if p, ok := resolveFile(filepath.Join(base, main), exts); ok {
			return p, true
		}
	}
	for _, ext := range exts {
		index := filepath.Join(base, "index"+ext)
		if isFile(index) {
			return abs(index), true
		}
	}
	return "", false
}

// packageMain reads the "main" field of dir/package.json.
func packageMain(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Main string `json:"main"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Main
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func abs(path string) string {
	if p, err := filepath.Abs(path); err == nil {
		return p
	}
	return path
}

func unquote(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
