package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	shakerrors "shaker/internal/errors"
	"shaker/internal/optimizer"
)

var (
	surfaceGraph   string
	surfaceSrc     string
	surfaceEntries []string
	surfaceFormat  string
)

var surfaceCmd = &cobra.Command{
	Use:   "surface MODULE",
	Short: "Show the resolved export surface of a module",
	Long: `Resolve the export surface of one module: the names it exposes once
export * chains are flattened, where each name comes from, and whether the
surface is opaque.

Examples:
  shaker surface --graph graph.yaml /app/util.js
  shaker surface --src ./app --entry index.js util.js --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSurface,
}

func init() {
	surfaceCmd.Flags().StringVar(&surfaceGraph, "graph", "", "Graph manifest (.json, .yaml, .toml)")
	surfaceCmd.Flags().StringVar(&surfaceSrc, "src", "", "Source directory to parse instead of a manifest")
	surfaceCmd.Flags().StringSliceVar(&surfaceEntries, "entry", nil, "Entry module (repeatable)")
	surfaceCmd.Flags().StringVar(&surfaceFormat, "format", "human", "Output format (human, json)")
	rootCmd.AddCommand(surfaceCmd)
}

// BindingCLI is one exported name.
type BindingCLI struct {
	Name      string `json:"name"`
	Origin    string `json:"origin"`
	Ambiguous bool   `json:"ambiguous,omitempty"`
}

// SurfaceResponseCLI contains a resolved export surface.
type SurfaceResponseCLI struct {
	Module        string                  `json:"module"`
	Opaque        bool                    `json:"opaque"`
	OpaqueVia     string                  `json:"opaqueVia,omitempty"`
	SideEffectful bool                    `json:"sideEffectful"`
	Bindings      []BindingCLI            `json:"bindings,omitempty"`
	Diagnostics   []shakerrors.Diagnostic `json:"diagnostics,omitempty"`
}

func runSurface(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx, cancel := newContext()
	defer cancel()

	in := graphInput{manifest: surfaceGraph, srcDir: surfaceSrc, entries: surfaceEntries}
	l, err := loadGraph(ctx, in, cfg, logger)
	if err != nil {
		return err
	}

	path := args[0]
	if surfaceSrc != "" && !filepath.IsAbs(path) {
		root, err := filepath.Abs(surfaceSrc)
		if err != nil {
			return fmt.Errorf("failed to resolve source directory: %w", err)
		}
		path = filepath.Join(root, path)
	}
	if !l.graph.Has(path) {
		return shakerrors.NewShakerError(shakerrors.InvalidGraph, fmt.Sprintf("module %s is not in the graph", path), nil)
	}

	pass := optimizer.NewPass(l.graph, l.entries, cfg.OptimizerOptions(), logger)
	s, err := pass.Surface(path)
	if err != nil {
		return err
	}

	resp := &SurfaceResponseCLI{
		Module:        s.Module,
		Opaque:        s.Opaque,
		OpaqueVia:     s.OpaqueVia,
		SideEffectful: s.SideEffectful,
		Diagnostics:   pass.Diagnostics(),
	}
	for _, b := range s.Bindings() {
		resp.Bindings = append(resp.Bindings, BindingCLI{
			Name:      b.Name,
			Origin:    b.Origin,
			Ambiguous: b.Ambiguous,
		})
	}

	output, err := FormatResponse(resp, OutputFormat(surfaceFormat))
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}
