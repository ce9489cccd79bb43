// Package main is the entry point for the clawd CLI.
package main

import (
	"os"

	"github.com/cliniq/clawd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
