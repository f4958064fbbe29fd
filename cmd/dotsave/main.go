// Package main is the entry point for the dotsave CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/thoreinstein/dotsave/cmd/dotsave/commands"
)

func main() {
	// Cancellation lets a run remove its staging directory before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()
	os.Exit(commands.ReportError(os.Stderr, err))
}
