// The main package for the aur-crawler executable.
package main

import (
	"github.com/JakeFAU/aur-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
