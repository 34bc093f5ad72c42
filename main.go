// The main package for the question-sync executable.
package main

import (
	"github.com/JakeFAU/question-sync/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
