// Package main provides the entry point for the membank CLI.
package main

import (
	"os"

	"github.com/membank-io/membank/cmd/membank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
