// Package main implements the scribe command: an HTTP service that accepts
// audio uploads and schedules their transcription, plus database maintenance
// subcommands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
