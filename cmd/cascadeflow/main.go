// Package main is the entry point for the cascadeflow CLI.
package main

import (
	"os"

	"github.com/lemony-ai/cascadeflow-sub010/cmd/cascadeflow/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
