// Package main provides the racedash CLI: the dashboard session service,
// one-off chart fetches and the full dashboard load benchmark.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// serve installs its own handlers through fx; fetch and bench stop
	// in-flight requests on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
