// Package main is the single-binary entrypoint for gpuhold: the server and
// its control CLI in one executable.
package main

import "github.com/gpuhold-net/gpuhold/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
