// Package main is the entry point for the mimigw voice gateway.
//
// Usage:
//
//	mimigw serve [flags]
package main

import (
	"fmt"
	"os"

	"github.com/let5sne/mimiclaw/cmd/mimigw/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
