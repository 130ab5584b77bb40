// Package edges classifies dependency edges as eager, async or optional.
//
// Classification runs once per pass, before export resolution. Later stages
// read Edge.Kind, Edge.Deferred and Edge.RequestedNames but never change them.
package edges

import (
	"log/slog"

	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
	"shaker/internal/slogutil"
)

// DefaultAsyncRequirePath is the virtual module loading async targets.
const DefaultAsyncRequirePath = "virtual:async-require"

// asyncRequireSource is the body of the virtual async-require helper.
const asyncRequireSource = `module.exports = function asyncRequire(moduleId, paths) {
  return Promise.resolve().then(function () {
    return global.__r(moduleId);
  });
};`

// Options configures edge classification.
type Options struct {
	// SplitChunks allows async targets to be placed in separate units.
	SplitChunks bool

	// AsyncRequirePath names the helper module injected next to async edges.
	// Empty disables injection.
	AsyncRequirePath string
}

// DefaultOptions returns the classifier defaults.
func DefaultOptions() Options {
	return Options{
		SplitChunks:      false,
		AsyncRequirePath: DefaultAsyncRequirePath,
	}
}

// Result summarises one classification run.
type Result struct {
	Eager            int
	Async            int
	Optional         int
	Deferred         int
	OptionalStubs    int
	HelpersInjected  int
	UnreachableFails int
}

// Classifier annotates graph edges.
type Classifier struct {
	opts   Options
	logger *slog.Logger
	diags  *shakerrors.Diagnostics
}

// NewClassifier creates a classifier. logger and diags may be nil.
func NewClassifier(opts Options, logger *slog.Logger, diags *shakerrors.Diagnostics) *Classifier {
	return &Classifier{
		opts:   opts,
		logger: slogutil.ForStage(logger, "classify"),
		diags:  diags,
	}
}

// KindOf derives the kind of a raw edge. An explicit kind wins; otherwise
// any async marker means async and a guard marker means optional.
func KindOf(e *graph.Edge) graph.EdgeKind {
	if e.Kind != "" {
		return e.Kind
	}
	switch e.AsyncType {
	case "async", "prefetch", "weak":
		return graph.KindAsync
	}
	if e.Optional {
		return graph.KindOptional
	}
	return graph.KindEager
}

// Classify annotates every edge of g. Unresolved eager or async edges of
// modules reachable from entries abort with UNRESOLVED_EAGER_IMPORT;
// unresolved optional edges become stubs. Running Classify twice is a no-op
// the second time.
func (c *Classifier) Classify(g *graph.Graph, entries []string) (*Result, error) {
	res := &Result{}

	for _, entry := range entries {
		if !g.Has(entry) {
			return nil, shakerrors.Unresolved("", entry, entry).WithDetails("entry point")
		}
	}

	reachable := make(map[string]bool)
	for _, p := range g.Reachable(entries) {
		reachable[p] = true
	}

	var helperUsers []*graph.Module
	for _, m := range g.Modules() {
		hasAsync := false
		for _, e := range m.Dependencies {
			if e.Synthetic {
				continue
			}
			e.Kind = KindOf(e)

			if !e.Resolved() || !g.Has(e.Target) {
				// a guarded import tolerates absence whatever its timing
				if e.Optional {
					e.Kind = graph.KindOptional
				}
				if e.Kind != graph.KindOptional {
					if reachable[m.Path] {
						return nil, shakerrors.Unresolved(m.Path, e.Specifier, e.Target)
					}
					res.UnreachableFails++
					c.logger.Debug("Ignoring unresolved import in unreachable module",
						"module", m.Path, "specifier", e.Specifier)
					continue
				}
				c.logger.Debug("Optional import did not resolve", "module", m.Path, "specifier", e.Specifier)
				e.Target = ""
				res.OptionalStubs++
				c.diags.Add(shakerrors.Diagnostic{
					Code:      shakerrors.UnresolvedOptionalImport,
					Module:    m.Path,
					Specifier: e.Specifier,
					Message:   "optional import kept as a stub",
				})
			}

			switch e.Kind {
			case graph.KindAsync:
				res.Async++
				hasAsync = true
				e.RequestedNames = []string{graph.Wildcard}
				e.Deferred = c.opts.SplitChunks
				if e.Deferred {
					res.Deferred++
				}
			case graph.KindOptional:
				res.Optional++
				if e.Resolved() {
					e.RequestedNames = []string{graph.Wildcard}
				}
			default:
				res.Eager++
			}
		}
		if hasAsync {
			helperUsers = append(helperUsers, m)
		}
	}

	if c.opts.AsyncRequirePath != "" && len(helperUsers) > 0 {
		if err := c.ensureHelper(g); err != nil {
			return nil, err
		}
		for _, m := range helperUsers {
			if injectHelperEdge(m, c.opts.AsyncRequirePath) {
				res.HelpersInjected++
			}
		}
	}

	c.logger.Debug("Edges classified",
		"eager", res.Eager,
		"async", res.Async,
		"optional", res.Optional,
		"deferred", res.Deferred,
		"optionalStubs", res.OptionalStubs,
		"helpers", res.HelpersInjected)

	return res, nil
}

// ensureHelper registers the virtual async-require module once.
func (c *Classifier) ensureHelper(g *graph.Graph) error {
	if g.Has(c.opts.AsyncRequirePath) {
		return nil
	}
	return g.AddModule(&graph.Module{
		Path:          c.opts.AsyncRequirePath,
		Virtual:       true,
		OpaqueExports: true,
		Parts: []graph.Part{{
			Code:        asyncRequireSource,
			SideEffects: true,
		}},
	})
}

// injectHelperEdge appends the helper edge unless m already has one. The edge
// is appended rather than inserted so existing dependency indices stay valid.
func injectHelperEdge(m *graph.Module, helper string) bool {
	if HelperEdge(m, helper) >= 0 {
		return false
	}
	m.Dependencies = append(m.Dependencies, &graph.Edge{
		Specifier:      helper,
		Target:         helper,
		Kind:           graph.KindEager,
		RequestedNames: []string{graph.Wildcard},
		Synthetic:      true,
	})
	return true
}

// HelperEdge returns the index of m's synthetic async-require edge, or -1.
func HelperEdge(m *graph.Module, helper string) int {
	if helper == "" {
		return -1
	}
	for i, e := range m.Dependencies {
		if e.Synthetic && e.Target == helper {
			return i
		}
	}
	return -1
}
