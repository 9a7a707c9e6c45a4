// Command recall runs the project memory service, either as an MCP server on
// stdio or as an HTTP API, plus one-shot maintenance and indexing commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// godotenv.Load does not overwrite variables already set.
	_ = godotenv.Load()

	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "recall: %v\n", err)
		os.Exit(1)
	}
}
