package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/dashtune/internal/services"
	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     shared.AppName,
		Usage:    "Browse, resolve and prefetch a Jellyfin music library",
		Version:  services.Version,
		Flags:    runner.flags(),
		Before:   runner.before,
		After:    runner.after,
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		stop()
		logger.Fatalf("application error: %v", err)
	}
}
