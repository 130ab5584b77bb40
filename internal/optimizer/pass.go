package optimizer

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"shaker/internal/codegen"
	"shaker/internal/edges"
	shakerrors "shaker/internal/errors"
	"shaker/internal/exports"
	"shaker/internal/graph"
	"shaker/internal/liveness"
	"shaker/internal/slogutil"
)

// Pass owns one graph for the duration of one build. The memoized export
// surfaces and the diagnostics live on the pass and die with it.
type Pass struct {
	ID string

	graph   *graph.Graph
	entries []string
	opts    Options
	logger  *slog.Logger

	diags      *shakerrors.Diagnostics
	resolver   *exports.Resolver
	classified *edges.Result
}

// NewPass creates a pass over g. logger may be nil.
func NewPass(g *graph.Graph, entries []string, opts Options, logger *slog.Logger) *Pass {
	id := uuid.New().String()
	return &Pass{
		ID:      id,
		graph:   g,
		entries: entries,
		opts:    opts,
		logger:  slogutil.OrDiscard(logger).With("pass", id),
		diags:   shakerrors.NewDiagnostics(),
	}
}

// Classify runs the edge classifier once. Later calls are no-ops.
func (p *Pass) Classify() error {
	if p.classified != nil {
		return nil
	}
	if err := p.graph.Validate(); err != nil {
		return err
	}
	c := edges.NewClassifier(edges.Options{
		SplitChunks:      p.opts.SplitChunks,
		AsyncRequirePath: p.opts.AsyncRequirePath,
	}, p.logger, p.diags)
	res, err := c.Classify(p.graph, p.entries)
	if err != nil {
		return err
	}
	p.classified = res
	p.resolver = exports.NewResolver(p.graph, p.logger, p.diags)
	return nil
}

// Surface classifies the graph if needed and resolves the export surface of
// one module.
func (p *Pass) Surface(path string) (*exports.Surface, error) {
	if err := p.Classify(); err != nil {
		return nil, err
	}
	return p.resolver.Resolve(path)
}

// Diagnostics returns the recovered conditions recorded so far.
func (p *Pass) Diagnostics() []shakerrors.Diagnostic {
	return p.diags.Items()
}

// Run executes classify, resolve, propagate and prune. The pass either
// completes or returns an error with no output.
func (p *Pass) Run(ctx context.Context) (*Output, error) {
	start := time.Now()
	p.graph.ResetLiveness()

	if err := p.Classify(); err != nil {
		return nil, err
	}
	if err := checkpoint(ctx, "classify"); err != nil {
		return nil, err
	}

	reachable := p.graph.Reachable(p.entries)
	for _, path := range reachable {
		if _, err := p.resolver.Resolve(path); err != nil {
			return nil, err
		}
	}
	if err := checkpoint(ctx, "resolve"); err != nil {
		return nil, err
	}

	planner := liveness.NewPlanner(p.graph, p.opts.AsyncRequirePath)
	live, err := liveness.NewPropagator(p.graph, p.resolver, planner, p.logger, p.diags).Run(ctx, p.entries)
	if err != nil {
		return nil, err
	}
	if err := checkpoint(ctx, "propagate"); err != nil {
		return nil, err
	}

	modules, err := p.prune(live)
	if err != nil {
		return nil, err
	}

	out := &Output{
		PassID:      p.ID,
		Entries:     append([]string(nil), p.entries...),
		Modules:     modules,
		Diagnostics: p.diags.Items(),
		Stats: Stats{
			Graph:             p.graph.Stats(),
			ModulesOut:        len(modules),
			ModulesEliminated: p.graph.Len() - len(modules),
			FullModules:       live.FullModules,
			PartsKept:         live.PartsKept,
			PartsDropped:      live.PartsDropped,
			EdgesDropped:      live.EdgesDropped,
			Iterations:        live.Iterations,
			Surfaces:          p.resolver.Memoized(),
			AsyncEdges:        p.classified.Async,
			DeferredEdges:     p.classified.Deferred,
			OptionalStubs:     p.classified.OptionalStubs,
			HelpersInjected:   p.classified.HelpersInjected,
			Duration:          time.Since(start),
		},
	}

	p.logger.Info("Pass complete",
		"modulesIn", p.graph.Len(),
		"modulesOut", out.Stats.ModulesOut,
		"partsDropped", out.Stats.PartsDropped,
		"diagnostics", len(out.Diagnostics),
		"duration", out.Stats.Duration)

	return out, nil
}

// prune emits every included module and orders the output by first-seen
// traversal of the retained dependency tables.
func (p *Pass) prune(live *liveness.Result) ([]ModuleOutput, error) {
	logger := slogutil.ForStage(p.logger, "prune")
	em := codegen.NewEmitter(p.opts.AsyncRequirePath)

	emitted := make(map[string]*codegen.Module, len(live.Included))
	for _, path := range live.Included {
		m, _ := p.graph.Module(path)
		mod, err := em.Emit(m, live.Plans[path])
		if err != nil {
			return nil, err
		}
		emitted[path] = mod
	}
	if err := checkTables(live.Included, emitted); err != nil {
		return nil, err
	}

	order := p.graph.Walk(p.entries, func(m *graph.Module) []string {
		return tableTargets(emitted[m.Path], false)
	})
	eager := make(map[string]bool)
	if p.opts.SplitChunks {
		for _, path := range p.graph.Walk(p.entries, func(m *graph.Module) []string {
			return tableTargets(emitted[m.Path], true)
		}) {
			eager[path] = true
		}
	}

	out := make([]ModuleOutput, 0, len(order))
	for _, path := range order {
		mod := emitted[path]
		if mod == nil {
			return nil, shakerrors.Unresolved("", path, path)
		}
		m, _ := p.graph.Module(path)
		mo := ModuleOutput{
			Path:         path,
			Source:       mod.Source,
			Dependencies: mod.Dependencies,
			LiveBindings: m.Live.Slice(),
			Full:         live.Plans[path].Full,
			DeferredOnly: p.opts.SplitChunks && !eager[path],
		}
		if p.opts.EmitHashes {
			sum := blake2b.Sum256([]byte(mod.Source))
			mo.Hash = hex.EncodeToString(sum[:])
		}
		out = append(out, mo)
	}

	logger.Debug("Modules emitted", "count", len(out), "eliminated", p.graph.Len()-len(out))
	return out, nil
}

// tableTargets lists the resolved targets of a dependency table in index
// order, optionally skipping deferred entries.
// checkTables fails on the first retained dependency whose target was never
// planned, naming the importing module.
func checkTables(included []string, emitted map[string]*codegen.Module) error {
	for _, path := range included {
		for _, d := range emitted[path].Dependencies {
			if d.Optional || d.Path == "" {
				continue
			}
			if _, ok := emitted[d.Path]; !ok {
				return shakerrors.Unresolved(path, d.Specifier, d.Path)
			}
		}
	}
	return nil
}

func tableTargets(mod *codegen.Module, skipDeferred bool) []string {
	if mod == nil {
		return nil
	}
	out := make([]string, 0, len(mod.Dependencies))
	for _, d := range mod.Dependencies {
		if d.Optional || (skipDeferred && d.Deferred) {
			continue
		}
		out = append(out, d.Path)
	}
	return out
}

func checkpoint(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return shakerrors.NewShakerError(shakerrors.PassCancelled, "pass cancelled after "+stage, err)
	}
	return nil
}
