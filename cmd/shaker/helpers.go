package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"shaker/internal/config"
	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
	"shaker/internal/graphio"
	"shaker/internal/jsfront"
	"shaker/internal/slogutil"
)

// loadConfig reads and validates the project configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(rootDir)
	if err != nil {
		return nil, shakerrors.NewShakerError(shakerrors.InvalidConfig, "failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, shakerrors.NewShakerError(shakerrors.InvalidConfig, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger builds the stderr logger. -v/-q win over the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if verbosity > 0 || quiet {
		level = slogutil.LevelFromVerbosity(verbosity, quiet)
	}
	format := cfg.Logging.Format
	if logFormat != "" {
		format = logFormat
	}
	return slogutil.NewFormattedLogger(os.Stderr, format, level)
}

// newContext creates a context cancelled on interrupt.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// graphInput names where a graph comes from: a manifest or a source tree.
type graphInput struct {
	manifest string
	srcDir   string
	entries  []string
}

func (in graphInput) String() string {
	if in.manifest != "" {
		return in.manifest
	}
	return in.srcDir
}

// loaded is a graph ready for a pass.
type loaded struct {
	graph   *graph.Graph
	entries []string

	// splitChunks is the manifest override, nil when absent
	splitChunks *bool
}

// loadGraph builds the graph from a manifest or by parsing sources.
func loadGraph(ctx context.Context, in graphInput, cfg *config.Config, logger *slog.Logger) (*loaded, error) {
	switch {
	case in.manifest != "" && in.srcDir != "":
		return nil, shakerrors.NewShakerError(shakerrors.InvalidConfig, "--graph and --src are mutually exclusive", nil)

	case in.manifest != "":
		m, err := graphio.Load(in.manifest)
		if err != nil {
			return nil, err
		}
		g, entries, err := m.Build()
		if err != nil {
			return nil, err
		}
		if len(in.entries) > 0 {
			entries = in.entries
		}
		logger.Info("Manifest loaded", "path", in.manifest, "modules", g.Len(), "entries", len(entries))
		return &loaded{graph: g, entries: entries, splitChunks: m.SplitChunks}, nil

	case in.srcDir != "":
		entries := in.entries
		if len(entries) == 0 {
			entries = cfg.Frontend.Entries
		}
		if len(entries) == 0 {
			return nil, shakerrors.NewShakerError(shakerrors.InvalidConfig, "no entry points: pass --entry or set frontend.entries", nil)
		}
		root, err := filepath.Abs(in.srcDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source directory: %w", err)
		}
		g, abs, err := jsfront.New(cfg.FrontendOptions(), logger).Load(ctx, root, entries)
		if err != nil {
			return nil, err
		}
		return &loaded{graph: g, entries: abs}, nil
	}
	return nil, shakerrors.NewShakerError(shakerrors.InvalidConfig, "no input: pass --graph FILE or --src DIR", nil)
}

// writeFile creates path and hands it to fn.
func writeFile(path string, fn func(f *os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
