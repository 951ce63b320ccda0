// Package main is the sessionsync command-line client.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/atinyakov/SessionSync/internal/cli"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, &cli.App{Version: version, BuildDate: buildDate}, os.Args[1:])
	stop()
	os.Exit(code)
}
