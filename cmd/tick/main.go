package main

import (
	"fmt"
	"os"

	app "github.com/tick-md/tick/internal"
	"github.com/tick-md/tick/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	if _, err := app.NewApp(basePath, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing tick: %v\n", err)
		os.Exit(1)
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
