// The main package for the validator executable.
package main

import (
	"github.com/Moxx-Company/validator-pro/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
