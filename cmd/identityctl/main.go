// Package main is identityctl, a command line client for the identity API.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Build-time variables, injected via ldflags.
var (
	// Version is the semantic version of the binary.
	Version = "dev"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		var failure *failureError
		if !errors.As(err, &failure) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

		os.Exit(1)
	}
}
