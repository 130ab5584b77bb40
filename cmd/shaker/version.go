package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shaker/internal/version"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   runVersion,
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "human", "Output format (human, json)")
	rootCmd.AddCommand(versionCmd)
}

// VersionResponseCLI is the build information.
type VersionResponseCLI = version.Details

func runVersion(cmd *cobra.Command, args []string) {
	d := version.Get()
	output, err := FormatResponse(&d, OutputFormat(versionFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}
