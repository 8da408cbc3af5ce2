// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand writes a starter config and prepares the configured storage backend.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing and initialize local storage",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// syncCommand runs one reconciliation pass in the foreground.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync pass against the remote store",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the pass result as JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Sync,
	}
}

// daemonCommand keeps the cache in step until interrupted.
func daemonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Sync periodically and on reconnect, optionally serving the read API",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "serve",
				Usage: "Serve the read API",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address for the read API (default: server.host:server.port)",
			},
		},
		Action: r.Daemon,
	}
}

// cacheCommand inspects the local cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the local cache",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print a cached collection",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "collection"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "key",
						Aliases: []string{"k"},
						Usage:   "Only the record with this key",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: json, csv, markdown, text",
						Value:   "text",
					},
				},
				Action: r.CacheShow,
			},
			{
				Name:  "export",
				Usage: "Write a cached collection to a file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "collection"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: json, csv, markdown, text",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: {collection}.{ext})",
					},
				},
				Action: r.CacheExport,
			},
			{
				Name:  "status",
				Usage: "Show backend, connectivity, last sync and record counts",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheStatus,
			},
		},
	}
}

// settingsCommand reads and writes the local application settings file.
func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Local application settings",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Print every setting with its effective value",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SettingsList,
			},
			{
				Name:  "get",
				Usage: "Print one setting",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "key"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.SettingsGet,
			},
			{
				Name:  "set",
				Usage: "Change one setting",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "key"},
					&cli.StringArg{Name: "value"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.SettingsSet,
			},
		},
	}
}
