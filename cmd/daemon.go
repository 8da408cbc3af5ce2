package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/songbook/internal/server"
	"github.com/desertthunder/songbook/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Daemon starts the coordinator and runs until SIGINT or SIGTERM.
//
// The connectivity probe, the settings watcher and the optional read API share the daemon's context.
func (r *Runner) Daemon(ctx context.Context, cmd *cli.Command) error {
	if err := r.useConfig(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	if r.monitor != nil {
		go r.monitor.Run(ctx)
	}

	settings, err := r.settings()
	if err != nil {
		return err
	}

	coord, err := r.newCoordinator(store, settings, tasks.LogReporter{Logger: r.logger})
	if err != nil {
		return err
	}

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	if r.config.Settings.Watch && r.config.Settings.Path != "" {
		go func() {
			err := settings.Watch(ctx, func() { coord.Trigger(ctx, tasks.ReasonSettings) })
			if err != nil {
				r.logger.Warn("settings watcher stopped", "error", err)
			}
		}()
	}

	r.logger.Info("daemon started", "backend", store.Repository().Kind(), "interval", r.config.Sync.Interval.Duration)

	if cmd.Bool("serve") {
		addr := cmd.String("addr")
		if addr == "" {
			addr = r.config.Server.Addr()
		}
		if err := server.Serve(ctx, addr, server.NewHandler(store, coord, r.logger), r.logger); err != nil {
			return err
		}
	} else {
		<-ctx.Done()
	}

	r.logger.Info("daemon stopping")
	return nil
}
