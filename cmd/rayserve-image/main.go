// Package main is the entry point for the rayserve-image CLI.
//
// The binary builds and pushes the Ray Serve + vLLM inference image. All
// commands live in internal/cli.
package main

import (
	"github.com/shinji-kodama/rayserve-image/internal/cli"
)

// Set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.2.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%FT%TZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
