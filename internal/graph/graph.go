package graph

import (
	"fmt"

	shakerrors "shaker/internal/errors"
)

// Graph is the module dependency graph of one build.
type Graph struct {
	modules []*Module
	index   map[string]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		modules: make([]*Module, 0),
		index:   make(map[string]int),
	}
}

// AddModule registers a module. Paths must be unique and non-empty.
func (g *Graph) AddModule(m *Module) error {
	if m == nil || m.Path == "" {
		return shakerrors.NewShakerError(shakerrors.InvalidGraph, "module path is required", nil)
	}
	if _, ok := g.index[m.Path]; ok {
		return shakerrors.NewShakerError(shakerrors.InvalidGraph,
			fmt.Sprintf("module %s registered twice", m.Path), nil)
	}
	g.index[m.Path] = len(g.modules)
	g.modules = append(g.modules, m)
	return nil
}

// Module returns the module registered at path.
func (g *Graph) Module(path string) (*Module, bool) {
	idx, ok := g.index[path]
	if !ok {
		return nil, false
	}
	return g.modules[idx], true
}

// Has reports whether path is registered.
func (g *Graph) Has(path string) bool {
	_, ok := g.index[path]
	return ok
}

// Modules returns all modules in registration order.
func (g *Graph) Modules() []*Module {
	out := make([]*Module, len(g.modules))
	copy(out, g.modules)
	return out
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	return len(g.modules)
}

// ResetLiveness clears every module's live binding set.
func (g *Graph) ResetLiveness() {
	for _, m := range g.modules {
		m.Live.Reset()
	}
}

// Validate checks that every index stored on a module points at an
// existing dependency and that edge kinds are known. It does not check
// resolution; that is the classifier's job.
func (g *Graph) Validate() error {
	for _, m := range g.modules {
		for i, e := range m.Dependencies {
			if e == nil {
				return invalid(m, fmt.Sprintf("dependency %d is nil", i))
			}
			if !e.Kind.Valid() {
				return invalid(m, fmt.Sprintf("dependency %q has unknown kind %q", e.Specifier, e.Kind))
			}
		}
		for _, idx := range m.ReexportAll {
			if m.Edge(idx) == nil {
				return invalid(m, fmt.Sprintf("re-export-all source %d out of range", idx))
			}
		}
		for _, exp := range m.Exports {
			if exp.Name == "" {
				return invalid(m, "export without a name")
			}
			if exp.IsReexport() {
				if m.Edge(exp.Edge) == nil {
					return invalid(m, fmt.Sprintf("export %q forwards from missing dependency %d", exp.Name, exp.Edge))
				}
			} else if exp.Local == "" {
				return invalid(m, fmt.Sprintf("export %q has neither a local binding nor a source", exp.Name))
			}
		}
		for pi, p := range m.Parts {
			for _, use := range p.Imports {
				if m.Edge(use.Edge) == nil {
					return invalid(m, fmt.Sprintf("part %d reads missing dependency %d", pi, use.Edge))
				}
			}
		}
	}
	return nil
}

func invalid(m *Module, msg string) error {
	return shakerrors.NewShakerError(shakerrors.InvalidGraph, msg, nil).WithModule(m.Path, "")
}
