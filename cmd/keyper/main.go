// Package main is the entry point for the keyper authorization server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/keyper-oauth/keyper/cmd/keyper/app"
)

func main() {
	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("Error executing command", "error", err)
		os.Exit(1)
	}
}
