package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shaker/internal/config"
	shakerrors "shaker/internal/errors"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize shaker configuration",
	Long:  "Creates .shaker/config.json with the default configuration under --root",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.Path(rootDir)
	if _, err := os.Stat(path); err == nil && !initForce {
		// already initialized is success
		fmt.Println("shaker already initialized.")
		fmt.Printf("Configuration at: %s\n", path)
		fmt.Println("\nRun 'shaker init --force' to overwrite it.")
		return nil
	}

	if err := config.DefaultConfig().Save(rootDir); err != nil {
		return shakerrors.NewShakerError(shakerrors.InternalError, "failed to write config file", err)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
