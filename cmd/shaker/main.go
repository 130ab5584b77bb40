package main

import (
	"errors"
	"fmt"
	"os"

	shakerrors "shaker/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var se *shakerrors.ShakerError
		if errors.As(err, &se) {
			if hint := shakerrors.Hint(se.Code); hint != "" {
				fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
			}
		}
		os.Exit(1)
	}
}
