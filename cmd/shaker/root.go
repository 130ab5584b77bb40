package main

import (
	"shaker/internal/version"

	"github.com/spf13/cobra"
)

var (
	// rootDir is the project directory holding .shaker/
	rootDir string

	verbosity int
	quiet     bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "shaker",
	Short: "shaker - tree-shaking optimizer for module graphs",
	Long: `shaker removes unused exports and modules from a resolved JavaScript module graph.

It reads a graph manifest (or parses sources directly), resolves every module's export
surface, propagates liveness from the entry points and emits pruned factory functions
with compacted dependency tables.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("shaker version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root holding .shaker/")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (human, json); overrides config")
}
