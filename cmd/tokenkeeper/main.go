// Package main provides the entry point for tokenkeeper.
//
// tokenkeeper issues, validates and revokes opaque bearer tokens and
// sweeps expired ones in the background.
//
// Usage:
//
//	tokenkeeper serve -c /etc/tokenkeeper/config.yaml
//	tokenkeeper token issue --subject user-1 --ttl 1h
//	tokenkeeper sweep -o json
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/tokenkeeper/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
