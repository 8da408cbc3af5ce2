package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/desertthunder/songbook/internal/appsettings"
	"github.com/desertthunder/songbook/internal/shared"
	"github.com/urfave/cli/v3"
)

func (r *Runner) settingsFile(cmd *cli.Command) (*appsettings.FileStore, error) {
	if err := r.useConfig(cmd); err != nil {
		return nil, err
	}
	if r.config.Settings.Path == "" {
		return nil, fmt.Errorf("%w: settings.path is not set", shared.ErrMissingConfig)
	}
	return r.settings()
}

// SettingsList prints every stored setting plus the defaults the sync falls back to.
func (r *Runner) SettingsList(ctx context.Context, cmd *cli.Command) error {
	fs, err := r.settingsFile(cmd)
	if err != nil {
		return err
	}

	values := fs.Values()
	for key, def := range map[string]string{
		appsettings.ThemeKey:    appsettings.DefaultTheme,
		appsettings.FontSizeKey: appsettings.DefaultFontSize,
	} {
		if _, ok := values[key]; !ok {
			values[key] = def
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		r.writePlain("%s = %s\n", k, values[k])
	}
	return nil
}

// SettingsGet prints one setting, falling back to its default.
func (r *Runner) SettingsGet(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("key")
	if key == "" {
		return fmt.Errorf("%w: key", shared.ErrMissingArgument)
	}

	fs, err := r.settingsFile(cmd)
	if err != nil {
		return err
	}

	if v, ok := fs.Get(key); ok {
		return r.writePlain("%s\n", v)
	}

	switch key {
	case appsettings.ThemeKey:
		return r.writePlain("%s\n", appsettings.DefaultTheme)
	case appsettings.FontSizeKey:
		return r.writePlain("%s\n", appsettings.DefaultFontSize)
	default:
		return fmt.Errorf("%w: setting %q", shared.ErrNotFound, key)
	}
}

// SettingsSet writes one setting. A running daemon picks the change up through its watcher.
func (r *Runner) SettingsSet(ctx context.Context, cmd *cli.Command) error {
	key, value := cmd.StringArg("key"), cmd.StringArg("value")
	if key == "" || value == "" {
		return fmt.Errorf("%w: key and value", shared.ErrMissingArgument)
	}

	fs, err := r.settingsFile(cmd)
	if err != nil {
		return err
	}

	if err := fs.Set(key, value); err != nil {
		return err
	}
	return r.writePlain("✓ %s = %s\n", key, value)
}
