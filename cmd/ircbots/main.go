// ircbots - LLM-backed IRC bots
// License: MIT
//
// Copyright (c) 2026 ircbots contributors

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/dotsetgreg/ircbots/pkg/connection"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "ircbots"

const (
	exitOK          = 0
	exitConfig      = 1
	exitUnreachable = 2
)

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Fprintf(w, "  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Fprintf(w, "  Go: %s\n", goVer)
}

// exitCode maps a command error to the process exit status. Anything that
// is not a connection give-up happened before the bots went online.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, connection.ErrRetriesExhausted):
		return exitUnreachable
	default:
		return exitConfig
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
