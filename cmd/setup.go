package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/songbook/internal/appsettings"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then opens and migrates the configured backend.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlain("✓ Created %s\n", configPath)
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	r.config = config
	r.configPath = configPath

	r.logger.Info("initializing storage", "backend", config.Storage.Backend)

	store, err := r.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer r.close()

	switch store.Repository().Kind() {
	case repositories.KindSQLite:
		r.writePlain("✓ SQLite cache ready at %s\n", config.Storage.Path)
	default:
		r.writePlain("✓ Preferences cache ready at %s\n", config.Storage.PreferencesPath)
	}

	if config.Settings.Path != "" {
		if _, err := os.Stat(config.Settings.Path); err != nil {
			fs, err := r.settings()
			if err != nil {
				return err
			}
			if err := fs.Set(appsettings.ThemeKey, appsettings.DefaultTheme); err != nil {
				return err
			}
			r.writePlain("✓ Created %s\n", config.Settings.Path)
		}
	}

	r.writePlainln("Next: run 'songbook sync' to fill the cache")
	return nil
}
