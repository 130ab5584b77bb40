package graph

// NextFunc returns the successors of m in the order they must be visited.
type NextFunc func(m *Module) []string

// Walk performs a depth-first preorder traversal from the entries and returns
// paths in first-seen order. Paths not registered in the graph are skipped.
// The traversal is iterative so deep or cyclic graphs cannot overflow the stack.
func (g *Graph) Walk(entries []string, next NextFunc) []string {
	seen := make(map[string]bool, len(g.modules))
	order := make([]string, 0, len(g.modules))

	for _, entry := range entries {
		stack := []string{entry}
		for len(stack) > 0 {
			path := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[path] {
				continue
			}
			m, ok := g.Module(path)
			if !ok {
				continue
			}
			seen[path] = true
			order = append(order, path)

			succ := next(m)
			for i := len(succ) - 1; i >= 0; i-- {
				if !seen[succ[i]] {
					stack = append(stack, succ[i])
				}
			}
		}
	}
	return order
}

// ResolvedTargets is a NextFunc following every resolved edge.
func ResolvedTargets(m *Module) []string {
	out := make([]string, 0, len(m.Dependencies))
	for _, e := range m.Dependencies {
		if e.Resolved() {
			out = append(out, e.Target)
		}
	}
	return out
}

// Reachable returns every module reachable from entries through resolved
// edges, in first-seen order.
func (g *Graph) Reachable(entries []string) []string {
	return g.Walk(entries, ResolvedTargets)
}

// Stats summarises the shape of a graph.
type Stats struct {
	Modules       int `json:"modules"`
	Edges         int `json:"edges"`
	EagerEdges    int `json:"eagerEdges"`
	AsyncEdges    int `json:"asyncEdges"`
	OptionalEdges int `json:"optionalEdges"`
	Unresolved    int `json:"unresolved"`
	Exports       int `json:"exports"`
	Opaque        int `json:"opaque"`
	SideEffectful int `json:"sideEffectful"`
	Parts         int `json:"parts"`
}

// Stats returns statistics about the graph.
func (g *Graph) Stats() Stats {
	stats := Stats{Modules: len(g.modules)}

	for _, m := range g.modules {
		stats.Exports += len(m.Exports)
		stats.Parts += len(m.Parts)
		if m.OpaqueExports {
			stats.Opaque++
		}
		if m.SideEffectful {
			stats.SideEffectful++
		}
		for _, e := range m.Dependencies {
			stats.Edges++
			if !e.Resolved() {
				stats.Unresolved++
			}
			switch e.Kind {
			case KindAsync:
				stats.AsyncEdges++
			case KindOptional:
				stats.OptionalEdges++
			default:
				stats.EagerEdges++
			}
		}
	}

	return stats
}
