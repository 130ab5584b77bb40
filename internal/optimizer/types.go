// Package optimizer runs one tree-shaking pass over a module graph.
package optimizer

import (
	"time"

	"shaker/internal/codegen"
	"shaker/internal/edges"
	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
)

// Options configures a pass.
type Options struct {
	// SplitChunks marks async targets eligible for separate placement.
	SplitChunks bool

	// AsyncRequirePath is the virtual helper loading async targets. Empty
	// disables the helper.
	AsyncRequirePath string

	// EmitHashes adds a content hash to every output module.
	EmitHashes bool
}

// DefaultOptions returns the defaults used by the CLI.
func DefaultOptions() Options {
	return Options{
		SplitChunks:      false,
		AsyncRequirePath: edges.DefaultAsyncRequirePath,
		EmitHashes:       true,
	}
}

// ModuleOutput is one retained module.
type ModuleOutput struct {
	// Path is the module identity.
	Path string `json:"path"`

	// Source is the emitted factory function.
	Source string `json:"source"`

	// Dependencies is the finalized table, referenced by index from Source.
	Dependencies []codegen.Dependency `json:"dependencies"`

	// LiveBindings is the final live set, or ["*"].
	LiveBindings []string `json:"liveBindings"`

	// Full is true when the module was kept whole.
	Full bool `json:"full"`

	// DeferredOnly marks modules reachable only through split-eligible
	// async edges.
	DeferredOnly bool `json:"deferredOnly,omitempty"`

	// Hash is the hex blake2b-256 digest of Source.
	Hash string `json:"hash,omitempty"`
}

// Stats summarises a pass.
type Stats struct {
	Graph             graph.Stats   `json:"graph"`
	ModulesOut        int           `json:"modulesOut"`
	ModulesEliminated int           `json:"modulesEliminated"`
	FullModules       int           `json:"fullModules"`
	PartsKept         int           `json:"partsKept"`
	PartsDropped      int           `json:"partsDropped"`
	EdgesDropped      int           `json:"edgesDropped"`
	Iterations        int           `json:"iterations"`
	Surfaces          int           `json:"surfaces"`
	AsyncEdges        int           `json:"asyncEdges"`
	DeferredEdges     int           `json:"deferredEdges"`
	OptionalStubs     int           `json:"optionalStubs"`
	HelpersInjected   int           `json:"helpersInjected"`
	Duration          time.Duration `json:"duration"`
}

// Output is the result of a pass. Modules absent from Modules were
// eliminated.
type Output struct {
	PassID      string                  `json:"passId"`
	Entries     []string                `json:"entries"`
	Modules     []ModuleOutput          `json:"modules"`
	Diagnostics []shakerrors.Diagnostic `json:"diagnostics"`
	Stats       Stats                   `json:"stats"`
}

// Module returns the output for path.
func (o *Output) Module(path string) (*ModuleOutput, bool) {
	for i := range o.Modules {
		if o.Modules[i].Path == path {
			return &o.Modules[i], true
		}
	}
	return nil, false
}
