package main

import (
	"os"

	"github.com/agentpack-dev/agentpack/internal/cli"
	"github.com/agentpack-dev/agentpack/internal/errdefs"
)

// version, commit, and date are set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		errdefs.Print(os.Stderr, err)
		os.Exit(errdefs.ExitCode(err))
	}
}
