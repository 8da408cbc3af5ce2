// package tasks implements the sync coordinator that keeps the local cache in line with the remote store.
package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/songbook/internal/appsettings"
	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/services"
	"github.com/desertthunder/songbook/internal/shared"
)

// DefaultInterval is the period between timer-triggered passes.
const DefaultInterval = 5 * time.Minute

type state int

const (
	stateNew state = iota
	stateActive
	stateStopped
)

// CoordinatorOpts configures a [Coordinator].
type CoordinatorOpts struct {
	Store        *repositories.OfflineStore
	Remote       services.DocumentStore
	Users        services.UserProvider // nil means nobody is signed in
	Settings     appsettings.Reader    // nil means every setting takes its default
	Connectivity services.Connectivity // source of connectivity-regained triggers

	Interval     time.Duration
	TriggerRate  float64 // connectivity-triggered passes per second, 0 for unlimited
	TriggerBurst int

	Reporter Reporter
	Logger   *log.Logger
	Clock    func() time.Time
}

// Coordinator runs reconciliation passes on a timer, on connectivity regained, and on demand.
//
// At most one pass executes at a time. Triggers that arrive while a pass is running
// collapse into a single follow-up pass.
type Coordinator struct {
	store    *repositories.OfflineStore
	remote   services.DocumentStore
	users    services.UserProvider
	settings appsettings.Reader
	net      services.Connectivity
	interval time.Duration
	limiter  *rate.Limiter
	reporter Reporter
	logger   *log.Logger
	now      func() time.Time

	passMu sync.Mutex // held for the duration of every pass

	mu            sync.Mutex
	state         state
	running       bool
	pending       bool
	pendingReason Reason
	lastSync      time.Time
	lastResult    *PassResult
	ctx           context.Context // cancelled by Stop; gates the timer and triggers
	passCtx       context.Context // carries values only; Stop never cancels a running pass
	cancel        context.CancelFunc
	unsubscribe   func()
	wg            sync.WaitGroup
}

// NewCoordinator creates a coordinator. Nothing runs until [Coordinator.Start] or [Coordinator.PerformSync].
func NewCoordinator(opts CoordinatorOpts) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: coordinator needs an offline store", shared.ErrMissingArgument)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Reporter == nil {
		opts.Reporter = LogReporter{Logger: opts.Logger}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	limit := rate.Inf
	if opts.TriggerRate > 0 {
		limit = rate.Limit(opts.TriggerRate)
	}
	burst := opts.TriggerBurst
	if burst <= 0 {
		burst = 1
	}

	return &Coordinator{
		store:    opts.Store,
		remote:   opts.Remote,
		users:    opts.Users,
		settings: opts.Settings,
		net:      opts.Connectivity,
		interval: opts.Interval,
		limiter:  rate.NewLimiter(limit, burst),
		reporter: opts.Reporter,
		logger:   opts.Logger,
		now:      opts.Clock,
	}, nil
}

// Start subscribes to connectivity changes, starts an immediate pass and starts the timer.
// A coordinator can be started once.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateActive:
		c.mu.Unlock()
		return fmt.Errorf("%w: coordinator already started", shared.ErrInvalidInput)
	case stateStopped:
		c.mu.Unlock()
		return shared.ErrCoordinatorStopped
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.passCtx = context.WithoutCancel(ctx)
	c.state = stateActive
	if c.net != nil {
		c.unsubscribe = c.net.Subscribe(c.onConnectivity)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.tick()
	c.Trigger(c.ctx, ReasonStartup)

	c.logger.Info("sync coordinator started", "interval", c.interval)
	return nil
}

// Stop releases the connectivity subscription and stops the timer.
// A pass already running is not cancelled: Stop waits for it to finish and drops any queued follow-up.
// Triggers after Stop are ignored.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state != stateActive {
		c.state = stateStopped
		c.mu.Unlock()
		return
	}
	c.state = stateStopped
	unsubscribe, cancel := c.unsubscribe, c.cancel
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
	c.wg.Wait()

	c.logger.Info("sync coordinator stopped")
}

// Trigger requests a background pass. It reports whether a pass was started or queued.
//
// Connectivity triggers beyond the configured rate are dropped.
// While a pass is running, any number of triggers queue exactly one follow-up pass.
func (c *Coordinator) Trigger(ctx context.Context, reason Reason) bool {
	if ctx.Err() != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateActive {
		return false
	}

	if reason == ReasonConnectivity && !c.limiter.Allow() {
		c.logger.Debug("connectivity trigger throttled")
		return false
	}

	if c.running {
		c.pending = true
		c.pendingReason = reason
		return true
	}

	c.running = true
	c.wg.Add(1)
	go c.drain(reason)
	return true
}

// PerformSync runs one pass now, in the caller's goroutine, and returns its result.
// It waits for any pass already in progress.
func (c *Coordinator) PerformSync(ctx context.Context) PassResult {
	c.mu.Lock()
	stopped := c.state == stateStopped
	c.mu.Unlock()

	if stopped {
		return PassResult{Reason: ReasonManual, Started: c.now(), Err: shared.ErrCoordinatorStopped}
	}
	return c.run(ctx, ReasonManual)
}

// LastSync returns the completion time of the last pass that finished without an aborting error.
func (c *Coordinator) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Active     bool
	Running    bool
	Pending    bool
	LastSync   time.Time
	LastResult *PassResult
}

// Status returns the current coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Active:     c.state == stateActive,
		Running:    c.running,
		Pending:    c.pending,
		LastSync:   c.lastSync,
		LastResult: c.lastResult,
	}
}

func (c *Coordinator) onConnectivity(online bool) {
	if !online {
		return
	}

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if ctx != nil {
		c.Trigger(ctx, ReasonConnectivity)
	}
}

func (c *Coordinator) tick() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Trigger(c.ctx, ReasonTimer)
		}
	}
}

// drain runs passes until no follow-up is pending.
func (c *Coordinator) drain(reason Reason) {
	defer c.wg.Done()

	for {
		c.run(c.passCtx, reason)

		c.mu.Lock()
		if !c.pending || c.state != stateActive {
			c.running = false
			c.pending = false
			c.mu.Unlock()
			return
		}
		reason = c.pendingReason
		c.pending = false
		c.mu.Unlock()
	}
}

func (c *Coordinator) run(ctx context.Context, reason Reason) PassResult {
	c.passMu.Lock()
	result := c.perform(ctx, reason)
	c.passMu.Unlock()

	c.mu.Lock()
	c.lastResult = &result
	c.mu.Unlock()

	c.reporter.Report(result)
	return result
}

// perform executes one pass: songs, then repertoire, then settings.
//
// A songs failure is recorded but does not stop the pass.
// A repertoire or settings failure ends the pass and leaves LastSync unchanged.
func (c *Coordinator) perform(ctx context.Context, reason Reason) (result PassResult) {
	result = PassResult{RunID: shared.GenerateID(), Reason: reason, Started: c.now()}
	defer func() { result.Duration = c.now().Sub(result.Started) }()

	logger := shared.WithLogger(c.logger, "run", result.RunID)

	if !c.store.IsOnline(ctx) {
		logger.Debug("offline, skipping sync")
		result.Skipped = true
		return result
	}

	logger.Debug("sync started", "reason", reason)

	result.Steps = append(result.Steps, stepFrom(c.store.SyncSongs(ctx)))

	for _, step := range []func(context.Context) StepResult{c.syncRepertoire, c.syncSettings} {
		sr := step(ctx)
		result.Steps = append(result.Steps, sr)
		if sr.Outcome == repositories.OutcomeFailed {
			result.Err = sr.Err
			logger.Error("sync step failed", "collection", sr.Collection, "kind", shared.ErrorKind(sr.Err), "error", sr.Err)
			return result
		}
	}

	c.mu.Lock()
	c.lastSync = c.now()
	c.mu.Unlock()

	return result
}

// syncRepertoire replaces the local repertoire with the signed-in user's remote repertoire.
func (c *Coordinator) syncRepertoire(ctx context.Context) StepResult {
	sr := StepResult{Collection: models.Repertoire}

	var (
		userID string
		ok     bool
	)
	if c.users != nil {
		userID, ok = c.users.CurrentUser(ctx)
	}
	if !ok {
		sr.Outcome = repositories.OutcomeSkipped
		return sr
	}

	if c.remote == nil {
		sr.Outcome = repositories.OutcomeFailed
		sr.Err = &shared.RemoteFetchError{
			Collection: models.Repertoire.String(),
			Err:        fmt.Errorf("%w: no document store configured", shared.ErrServiceUnavailable),
		}
		return sr
	}

	docs, err := c.remote.UserCollection(ctx, userID, models.Repertoire.String())
	if err != nil {
		sr.Outcome = repositories.OutcomeFailed
		sr.Err = repositories.FetchError(models.Repertoire, err)
		return sr
	}

	records := models.RecordsFrom(models.Repertoire, docs)
	if err := c.store.Replace(ctx, models.Repertoire, records); err != nil {
		sr.Outcome = repositories.OutcomeFailed
		sr.Err = err
		return sr
	}

	sr.Outcome = repositories.OutcomeSynced
	sr.Count = len(records)
	return sr
}

// syncSettings mirrors the device settings into the userSettings record. It never contacts the remote store.
func (c *Coordinator) syncSettings(ctx context.Context) StepResult {
	sr := StepResult{Collection: models.Settings}

	settings := models.UserSettings{Theme: appsettings.DefaultTheme, FontSize: appsettings.DefaultFontSize}
	if c.settings != nil {
		settings.Theme = appsettings.GetOr(c.settings, appsettings.ThemeKey, appsettings.DefaultTheme)
		settings.FontSize = appsettings.GetOr(c.settings, appsettings.FontSizeKey, appsettings.DefaultFontSize)
	}

	if err := c.store.Save(ctx, models.Settings, models.One(settings.Record())); err != nil {
		sr.Outcome = repositories.OutcomeFailed
		sr.Err = err
		return sr
	}

	sr.Outcome = repositories.OutcomeSynced
	sr.Count = 1
	return sr
}
