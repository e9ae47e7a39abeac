package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SpriteForge/internal/app"
	"SpriteForge/internal/cli"
	"SpriteForge/internal/config"
	"SpriteForge/internal/infrastructure/browser"
	"SpriteForge/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application := app.New(cfg, logger, browser.Launch)

	// Diagnostics are already written to stderr by cli.Run.
	result, _ := cli.Run(ctx, os.Args[1:], application, os.Stderr)
	stop()
	os.Exit(result.ExitCode)
}
