// Package main is the single-binary entrypoint for Quarry.
package main

import "github.com/quarry-network/quarry/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
