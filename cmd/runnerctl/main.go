// Package main is the entry point for the runnerctl CLI, the terminal tool
// for talking to a runner daemon.
package main

import (
	"os"

	"mlrunner/cmd/runnerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
