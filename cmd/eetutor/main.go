// Command eetutor is the entry point for the EE tutor pipeline.
// It provides a CLI interface (via Cobra) and an HTTP server that answers
// electrical-engineering questions from a textbook PDF.
package main

import (
	"fmt"
	"os"

	"github.com/voltlab/eetutor-go/cmd/eetutor/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
