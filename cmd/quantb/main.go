// Command quantb runs the AI financial assistant server and CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"quantb/internal/cli"
	"quantb/internal/logging"
)

func main() {
	// Replaced by the configured logger once the config is loaded.
	logger := logging.NewLoggerWithConfig(logging.LogConfig{Level: "info", Console: true})

	root := cli.NewRootCmd(logger)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
