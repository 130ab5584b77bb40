package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"shaker/internal/bundle"
	"shaker/internal/config"
	shakerrors "shaker/internal/errors"
	"shaker/internal/optimizer"
	"shaker/internal/report"
	"shaker/internal/storage"
)

var (
	optimizeGraph       string
	optimizeSrc         string
	optimizeEntries     []string
	optimizeOut         string
	optimizeDeferredOut string
	optimizeSplitChunks bool
	optimizeCompression string
	optimizeFormat      string
	optimizeNoStore     bool
	optimizeNoHashes    bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run a tree-shaking pass and write the pruned bundle",
	Long: `Run one pass over a module graph: classify edges, resolve export surfaces,
propagate liveness from the entry points and emit pruned modules.

The graph comes from a manifest (--graph) or is parsed from a source tree (--src).
With --split-chunks, modules only reachable through dynamic import() can be written
to a separate file with --deferred-out.

Examples:
  shaker optimize --graph build/graph.yaml --out dist/bundle.js
  shaker optimize --src ./app --entry index.js --format json
  shaker optimize --graph graph.json --split-chunks --out main.js --deferred-out lazy.js`,
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVar(&optimizeGraph, "graph", "", "Graph manifest (.json, .yaml, .toml)")
	optimizeCmd.Flags().StringVar(&optimizeSrc, "src", "", "Source directory to parse instead of a manifest")
	optimizeCmd.Flags().StringSliceVar(&optimizeEntries, "entry", nil, "Entry module (repeatable); overrides the manifest entries")
	optimizeCmd.Flags().StringVarP(&optimizeOut, "out", "o", "", "Write the bundle to this file")
	optimizeCmd.Flags().StringVar(&optimizeDeferredOut, "deferred-out", "", "Write deferred modules to this file instead of the main bundle")
	optimizeCmd.Flags().BoolVar(&optimizeSplitChunks, "split-chunks", false, "Allow async targets to be split into a deferred unit")
	optimizeCmd.Flags().StringVar(&optimizeCompression, "compress", "", "Bundle compression (none, zstd); defaults to config")
	optimizeCmd.Flags().StringVar(&optimizeFormat, "format", "", "Report format (human, json, toml, yaml); defaults to config")
	optimizeCmd.Flags().BoolVar(&optimizeNoStore, "no-store", false, "Do not record the run in .shaker/shaker.db")
	optimizeCmd.Flags().BoolVar(&optimizeNoHashes, "no-hashes", false, "Omit per-module content hashes")
	rootCmd.AddCommand(optimizeCmd)
}

// BundleFileCLI describes one written bundle file.
type BundleFileCLI struct {
	Path       string         `json:"path"`
	Section    bundle.Section `json:"section"`
	Modules    int            `json:"modules"`
	Bytes      int64          `json:"bytes"`
	Compressed bool           `json:"compressed,omitempty"`
}

// OptimizeResponseCLI contains the result of one pass.
type OptimizeResponseCLI struct {
	Report  *report.Report  `json:"report"`
	Bundles []BundleFileCLI `json:"bundles,omitempty"`
	Stored  bool            `json:"stored"`
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx, cancel := newContext()
	defer cancel()

	format := OutputFormat(cfg.Output.Format)
	if optimizeFormat != "" {
		format = OutputFormat(optimizeFormat)
	}
	compression := cfg.Output.Compression
	if optimizeCompression != "" {
		compression = optimizeCompression
	}
	if compression != "none" && compression != "zstd" {
		return shakerrors.NewShakerError(shakerrors.InvalidConfig, fmt.Sprintf("unknown compression %q", compression), nil)
	}

	in := graphInput{manifest: optimizeGraph, srcDir: optimizeSrc, entries: optimizeEntries}
	l, err := loadGraph(ctx, in, cfg, logger)
	if err != nil {
		return err
	}

	opts := cfg.OptimizerOptions()
	if l.splitChunks != nil {
		opts.SplitChunks = *l.splitChunks
	}
	if cmd.Flags().Changed("split-chunks") {
		opts.SplitChunks = optimizeSplitChunks
	}
	if optimizeNoHashes {
		opts.EmitHashes = false
	}
	if optimizeDeferredOut != "" && !opts.SplitChunks {
		return shakerrors.NewShakerError(shakerrors.InvalidConfig, "--deferred-out requires split chunks", nil)
	}

	pass := optimizer.NewPass(l.graph, l.entries, opts, logger)
	out, err := pass.Run(ctx)
	if err != nil {
		return err
	}

	resp := &OptimizeResponseCLI{Report: report.FromOutput(out, l.graph)}

	if optimizeOut != "" {
		bopts := cfg.BundleOptions()
		if optimizeDeferredOut != "" {
			bopts.Section = bundle.SectionMain
		}
		type target struct {
			path    string
			section bundle.Section
		}
		files := []target{{optimizeOut, bopts.Section}}
		if optimizeDeferredOut != "" {
			files = append(files, target{optimizeDeferredOut, bundle.SectionDeferred})
		}
		for _, f := range files {
			bopts.Section = f.section
			written, err := writeBundle(f.path, bopts, compression == "zstd", out, logger)
			if err != nil {
				return err
			}
			resp.Bundles = append(resp.Bundles, *written)
		}
	}

	if cfg.Storage.Enabled && !optimizeNoStore {
		resp.Stored = recordRun(cfg, resp.Report, in.String(), logger)
	}

	logger.Debug("Optimize completed",
		"pass", out.PassID,
		"modulesOut", out.Stats.ModulesOut,
		"partsDropped", out.Stats.PartsDropped)

	output, err := FormatResponse(resp, format)
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}

func writeBundle(path string, opts bundle.Options, compressed bool, out *optimizer.Output, logger *slog.Logger) (*BundleFileCLI, error) {
	bw := bundle.NewWriter(opts, logger)
	var sum *bundle.Summary
	err := writeFile(path, func(f *os.File) error {
		var werr error
		if compressed {
			sum, werr = bw.WriteCompressed(f, out)
		} else {
			sum, werr = bw.Write(f, out)
		}
		return werr
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Bundle written", "path", path, "section", sum.Section, "modules", sum.Modules)
	return &BundleFileCLI{
		Path:       path,
		Section:    sum.Section,
		Modules:    sum.Modules,
		Bytes:      sum.Bytes,
		Compressed: compressed,
	}, nil
}

// recordRun stores the report in run history. Storage failures are logged
// and do not fail the pass.
func recordRun(cfg *config.Config, rep *report.Report, input string, logger *slog.Logger) bool {
	db, err := storage.Open(rootDir, logger)
	if err != nil {
		logger.Warn("Failed to open run history", "error", err.Error())
		return false
	}
	defer db.Close()

	runs := storage.NewRunRepository(db)
	if err := runs.Save(rep, input); err != nil {
		logger.Warn("Failed to record run", "error", err.Error())
		return false
	}
	if cfg.Storage.KeepRuns > 0 {
		if n, err := runs.Prune(cfg.Storage.KeepRuns); err != nil {
			logger.Warn("Failed to prune run history", "error", err.Error())
		} else if n > 0 {
			logger.Debug("Pruned run history", "removed", n)
		}
	}
	return true
}
