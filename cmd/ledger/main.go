package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"paper-trading-ledger-go/cmd/ledger/cmd"
)

func main() {
	// Cancel the running batch on SIGINT/SIGTERM; finished symbols stay committed.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
