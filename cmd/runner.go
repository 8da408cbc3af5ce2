package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songbook/internal/appsettings"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/services"
	"github.com/desertthunder/songbook/internal/shared"
	"github.com/desertthunder/songbook/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage, remote and connectivity are built lazily from the config unless injected through [RunnerOpts].
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	repo    repositories.Repository
	remote  services.DocumentStore
	net     services.Connectivity
	monitor *services.ProbeMonitor
	store   *repositories.OfflineStore
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config       *shared.Config
	ConfigPath   string
	HTTPClient   *http.Client
	Logger       *log.Logger
	Output       io.Writer
	Repository   repositories.Repository
	Remote       services.DocumentStore
	Connectivity services.Connectivity
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		repo:       opts.Repository,
		remote:     opts.Remote,
		net:        opts.Connectivity,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, syncCommand, daemonCommand, cacheCommand, settingsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// useConfig loads the file named by --config when it differs from the one already loaded.
// A missing file keeps the current config.
func (r *Runner) useConfig(cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" || path == r.configPath {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}

	r.config = config
	r.configPath = path
	r.logger = shared.NewConfiguredLogger(config.Log)
	return nil
}

// connectivity returns the injected connectivity source, or a probe monitor built from the config.
func (r *Runner) connectivity() services.Connectivity {
	if r.net == nil {
		r.monitor = services.ProbeMonitorFromConfig(r.config.Network, r.logger)
		r.net = r.monitor
	}
	return r.net
}

func (r *Runner) documentStore() services.DocumentStore {
	if r.remote == nil {
		r.remote = services.DocumentServiceFromConfig(r.config.Remote, r.httpClient)
	}
	return r.remote
}

// openStore builds and initializes the offline store on first use.
func (r *Runner) openStore(ctx context.Context) (*repositories.OfflineStore, error) {
	if r.store != nil {
		return r.store, nil
	}

	if r.repo == nil {
		repo, err := repositories.FromConfig(r.config.Storage)
		if err != nil {
			return nil, err
		}
		r.repo = repo
	}

	store, err := repositories.NewOfflineStore(repositories.OfflineStoreOpts{
		Repository:   r.repo,
		Connectivity: r.connectivity(),
		Remote:       r.documentStore(),
		Logger:       shared.WithLogger(r.logger, "backend", r.repo.Kind()),
	})
	if err != nil {
		return nil, err
	}

	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	r.store = store
	return store, nil
}

// settings loads the application settings file. A missing file yields empty settings.
func (r *Runner) settings() (*appsettings.FileStore, error) {
	fs := appsettings.NewFileStore(r.config.Settings.Path, r.logger)
	if err := fs.Load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (r *Runner) newCoordinator(store *repositories.OfflineStore, settings appsettings.Reader, reporter tasks.Reporter) (*tasks.Coordinator, error) {
	sc := r.config.Sync
	return tasks.NewCoordinator(tasks.CoordinatorOpts{
		Store:        store,
		Remote:       r.documentStore(),
		Users:        services.StaticUser(r.config.Remote.UserID),
		Settings:     settings,
		Connectivity: r.connectivity(),
		Interval:     sc.Interval.Duration,
		TriggerRate:  sc.TriggerRate,
		TriggerBurst: sc.TriggerBurst,
		Reporter:     reporter,
		Logger:       shared.WithLogger(r.logger, "component", "sync"),
	})
}

func (r *Runner) close() {
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close storage", "error", err)
	}
	r.store = nil
	r.repo = nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
