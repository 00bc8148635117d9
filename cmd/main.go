package main

import (
	"context"
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/tunebridge/tunebridge/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	godotenv.Load()

	logger := shared.NewLogger(nil)
	runner := NewRunner(logger)

	app := &cli.Command{
		Name:     "tunebridge",
		Usage:    "Cross-provider playlist synchronization service",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
