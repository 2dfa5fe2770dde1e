package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/agentpool/cmd/agentpool/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
