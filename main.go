// ./main.go
package main

import (
	"github.com/nullvane/argus-cli/cmd"
)

// main is the entry point for the Argus console CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
