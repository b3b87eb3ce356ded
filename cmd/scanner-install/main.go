package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		// Driver failures are already rendered with remediation hints
		// and carry a nonzero exitCode; anything failing before the
		// driver starts still needs a line here.
		if exitCode == 0 {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
		}
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
