// Package main is the entry point for the factsync sidecar.
package main

import (
	"os"

	// zone data embedded so minimal images need no zoneinfo
	_ "time/tzdata"

	"github.com/MrSnakeDoc/factsync/cmd/factsync/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
