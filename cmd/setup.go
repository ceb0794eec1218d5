package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/dashtune/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes a config file when none exists, then initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.config = config
			r.writePlain("✓ Config file created: %s\n", configPath)
		}
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("✓ Database ready: %s\n", r.config.Database.Path)
	r.writePlain("Cache directory: %s\n", r.config.Cache.Dir)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set server.url in %s (or DASHTUNE_SERVER_URL)\n", configPath)
	r.writePlain("2. Run '%s login --username <name>' to sign in\n", shared.AppName)
	return nil
}
