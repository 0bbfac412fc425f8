package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/snx/internal/shared"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

func main() {
	shared.LoadEnv()
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "snx",
		Usage:    "Sync streaming music libraries into a local snapshot store",
		Version:  version,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Error("command failed", "kind", shared.KindOf(err), "error", err)
		os.Exit(1)
	}
}
