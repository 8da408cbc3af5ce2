package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/songbook/internal/tasks"
	"github.com/desertthunder/songbook/internal/ui"
	"github.com/urfave/cli/v3"
)

// Sync runs a single pass and prints its result. An aborted pass is returned as an error.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.useConfig(cmd); err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	settings, err := r.settings()
	if err != nil {
		return err
	}

	coord, err := r.newCoordinator(store, settings, tasks.LogReporter{Logger: r.logger})
	if err != nil {
		return err
	}

	result := coord.PerformSync(ctx)

	if cmd.Bool("json") {
		if err := r.writeJSON(result.View(), cmd.Bool("pretty")); err != nil {
			return err
		}
	} else {
		r.writePlain("%s", ui.Styles.Pass(result))
	}

	if result.Err != nil && !result.Skipped {
		return fmt.Errorf("sync aborted: %w", result.Err)
	}
	return nil
}
