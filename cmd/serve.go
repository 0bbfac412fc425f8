package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/snx/internal/server"
	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/session"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	if err := config.Validate(); err != nil {
		return err
	}

	store, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer r.closeStore()

	sessions, err := session.NewManager([]byte(config.Session.Secret), "snx")
	if err != nil {
		return err
	}

	logger := r.logger
	if config.Logging.File != "" {
		logger = shared.NewFileLogger(config.Logging.File)
		shared.SetLogLevel(logger, shared.ParseLogLevel(config.Logging.Level))
	}

	// Each request gets a fresh provider client so one user's tokens never
	// leak into another's requests.
	factory := func(provider string) (services.Service, error) {
		switch provider {
		case "spotify":
			return services.NewSpotifyService(config.Credentials.Spotify.Map())
		case "napster":
			return services.NewNapsterService(config.Credentials.Napster.Map())
		default:
			return nil, fmt.Errorf("%w: unknown provider '%s'", shared.ErrInvalidInput, provider)
		}
	}

	api := server.NewAPI(config, sessions, store, r.engineOpts(config), factory, logger)

	r.writePlain("Listening on http://%s\n", config.Server.Addr())
	r.writePlain("Press Ctrl+C to stop.\n")

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.Serve(serveCtx)
}
