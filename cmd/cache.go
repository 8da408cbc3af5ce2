package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/songbook/internal/formatter"
	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/shared"
	"github.com/desertthunder/songbook/internal/ui"
	"github.com/urfave/cli/v3"
)

func collectionArg(cmd *cli.Command) (models.Collection, error) {
	name := cmd.StringArg("collection")
	if name == "" {
		return "", fmt.Errorf("%w: collection name", shared.ErrMissingArgument)
	}

	c, err := models.ParseCollection(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return c, nil
}

// loadCollection reads a collection, treating a never-written preferences blob as empty.
func loadCollection(ctx context.Context, store *repositories.OfflineStore, c models.Collection, key string) (models.Payload, error) {
	payload, err := store.Load(ctx, c, key)
	if errors.Is(err, shared.ErrNotFound) && key == "" {
		return models.Many([]models.Record{}), nil
	}
	return payload, err
}

// CacheShow prints a cached collection in the requested format.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	if err := r.useConfig(cmd); err != nil {
		return err
	}

	c, err := collectionArg(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	payload, err := loadCollection(ctx, store, c, cmd.String("key"))
	if err != nil {
		return err
	}

	data, err := formatter.Render(format, c, payload)
	if err != nil {
		return err
	}

	return r.writePlain("%s", data)
}

// CacheExport writes a cached collection to a file.
func (r *Runner) CacheExport(ctx context.Context, cmd *cli.Command) error {
	if err := r.useConfig(cmd); err != nil {
		return err
	}

	c, err := collectionArg(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	payload, err := loadCollection(ctx, store, c, "")
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(format, c, payload, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("exported collection", "collection", c, "records", payload.Len(), "path", path)
	return r.writePlain("✓ Exported %d %s records to %s\n", payload.Len(), c, path)
}

type cacheStatus struct {
	Backend       string         `json:"backend"`
	Online        bool           `json:"online"`
	LastSongsSync *time.Time     `json:"last_songs_sync"`
	Counts        map[string]int `json:"counts"`

	// LastWrites holds the latest row write per collection, for backends that track it.
	LastWrites map[string]time.Time `json:"last_writes,omitempty"`
}

// CacheStatus reports the backend, connectivity and last songs sync, then record counts
// and last write per collection.
func (r *Runner) CacheStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.useConfig(cmd); err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	status := cacheStatus{
		Backend:    string(store.Repository().Kind()),
		Online:     store.IsOnline(ctx),
		Counts:     make(map[string]int),
		LastWrites: make(map[string]time.Time),
	}
	if t, ok := store.LastSongsSync(ctx); ok {
		status.LastSongsSync = &t
	}

	for _, c := range models.Collections() {
		payload, err := loadCollection(ctx, store, c, "")
		if err != nil {
			return err
		}
		status.Counts[c.String()] = payload.Len()

		at, ok, err := store.LastWrite(ctx, c)
		if err != nil {
			return err
		}
		if ok {
			status.LastWrites[c.String()] = at
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	s := ui.Styles
	r.writePlain("%s\n", s.Title("songbook cache"))
	r.writePlain("%s\n", s.Field("backend", status.Backend))
	r.writePlain("%s\n", s.Field("connectivity", s.Online(status.Online)))

	last := time.Time{}
	if status.LastSongsSync != nil {
		last = *status.LastSongsSync
	}
	r.writePlain("%s\n", s.Field("last songs sync", s.Time(last)))

	for _, c := range models.Collections() {
		value := fmt.Sprintf("%d", status.Counts[c.String()])
		if at, ok := status.LastWrites[c.String()]; ok {
			value += ", written " + s.Time(at)
		}
		r.writePlain("%s\n", s.Field(c.String(), value))
	}
	return nil
}
