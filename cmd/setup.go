package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/snx/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase prepares a fresh checkout: it writes the config template if
// none exists, opens the database, and applies migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	config := r.bootstrapConfig(configPath)

	r.config = config
	r.configPath = configPath

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Info("setup complete", "database", config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", config.Database.Path)
	r.writePlain("Next: fill in credentials in %s, then run 'snx auth login'.\n", configPath)
	return nil
}

// bootstrapConfig loads the config at path, writing the embedded template
// first when the file is missing. Falls back to built-in defaults so setup
// still succeeds on an unwritable directory.
func (r *Runner) bootstrapConfig(path string) *shared.Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.logger.Info("writing config template", "path", path)
		if err := shared.CreateConfigFile(path); err != nil {
			r.logger.Warn("could not write config template", "error", err)
			return shared.DefaultConfig()
		}
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("could not load config, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	return config
}
