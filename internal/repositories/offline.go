package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/services"
	"github.com/desertthunder/songbook/internal/shared"
)

// Outcome classifies a sub-sync.
type Outcome int

const (
	OutcomeSynced  Outcome = iota // local collection overwritten with the remote snapshot
	OutcomeSkipped                // nothing attempted, e.g. offline or no user
	OutcomeFailed                 // fetch or write failed; local data unchanged or partially written
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSynced:
		return "synced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return ""
	}
}

// SyncResult reports a single collection sync.
type SyncResult struct {
	Collection models.Collection
	Outcome    Outcome
	Count      int   // records written
	Err        error // cause of a skip or failure
}

// OK reports whether the collection was synced.
func (r SyncResult) OK() bool { return r.Outcome == OutcomeSynced }

// Kind names the error class of the result, empty on success.
func (r SyncResult) Kind() string { return shared.ErrorKind(r.Err) }

// OfflineStoreOpts configures an [OfflineStore].
type OfflineStoreOpts struct {
	Repository   Repository
	Connectivity services.Connectivity // nil means always offline
	Remote       services.DocumentStore
	Logger       *log.Logger
	Clock        func() time.Time
}

// OfflineStore is the application's local cache: a [Repository] plus the songs sync against the remote store.
type OfflineStore struct {
	repo   Repository
	net    services.Connectivity
	remote services.DocumentStore
	logger *log.Logger
	now    func() time.Time
}

// NewOfflineStore creates a new OfflineStore.
func NewOfflineStore(opts OfflineStoreOpts) (*OfflineStore, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("%w: offline store needs a repository", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &OfflineStore{
		repo:   opts.Repository,
		net:    opts.Connectivity,
		remote: opts.Remote,
		logger: opts.Logger,
		now:    opts.Clock,
	}, nil
}

// Repository returns the underlying backend.
func (s *OfflineStore) Repository() Repository { return s.repo }

// Init prepares the underlying backend.
func (s *OfflineStore) Init(ctx context.Context) error { return s.repo.Init(ctx) }

// Close closes the underlying backend.
func (s *OfflineStore) Close() error { return s.repo.Close() }

// Save persists data into collection c.
func (s *OfflineStore) Save(ctx context.Context, c models.Collection, data models.Payload) error {
	return s.repo.Save(ctx, c, data)
}

// Load reads from collection c; see [Repository.Load].
func (s *OfflineStore) Load(ctx context.Context, c models.Collection, key string) (models.Payload, error) {
	return s.repo.Load(ctx, c, key)
}

// Replace overwrites collection c with records.
func (s *OfflineStore) Replace(ctx context.Context, c models.Collection, records []models.Record) error {
	return s.repo.Replace(ctx, c, records)
}

// SaveSongs overwrites the songs collection and then stamps the lastSongsSync setting.
//
// The two writes are sequential, not atomic: songs can be committed while the stamp fails.
func (s *OfflineStore) SaveSongs(ctx context.Context, songs []models.Record) error {
	if err := s.repo.Replace(ctx, models.Songs, songs); err != nil {
		return err
	}

	stamp := models.SettingsRecord(models.LastSongsSyncKey, s.now().UTC().Format(time.RFC3339Nano))
	return s.repo.Save(ctx, models.Settings, models.One(stamp))
}

// LoadSongs returns every cached song.
func (s *OfflineStore) LoadSongs(ctx context.Context) ([]models.Record, error) {
	p, err := s.repo.Load(ctx, models.Songs, "")
	if err != nil {
		return nil, err
	}
	return p.Records, nil
}

// LastSongsSync returns the time of the last successful songs sync.
//
// With the preferences backend the settings blob holds one entry at a time,
// so the stamp is only visible until the next settings write.
func (s *OfflineStore) LastSongsSync(ctx context.Context) (time.Time, bool) {
	p, err := s.repo.Load(ctx, models.Settings, models.LastSongsSyncKey)
	if err != nil {
		return time.Time{}, false
	}

	for _, rec := range p.Records {
		if key, _ := rec.Key(models.Settings); key != models.LastSongsSyncKey {
			continue
		}

		v, ok := rec["value"].(string)
		if !ok {
			return time.Time{}, false
		}

		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return at, true
	}

	return time.Time{}, false
}

// LastWrite returns when collection c was last written.
// Backends that do not implement [WriteTracker] always report false.
func (s *OfflineStore) LastWrite(ctx context.Context, c models.Collection) (time.Time, bool, error) {
	wt, ok := s.repo.(WriteTracker)
	if !ok {
		return time.Time{}, false, nil
	}
	return wt.LastWrite(ctx, c)
}

// IsOnline reports network reachability. It never fails; without a monitor it reports offline.
func (s *OfflineStore) IsOnline(ctx context.Context) bool {
	if s.net == nil {
		return false
	}
	return s.net.Online(ctx)
}

// SyncSongs replaces the cached songs with the remote songs collection.
//
// Offline, it returns [OutcomeSkipped] without touching the remote store or local storage.
// Fetch and write failures are logged and reported in the result, never returned.
func (s *OfflineStore) SyncSongs(ctx context.Context) SyncResult {
	result := SyncResult{Collection: models.Songs}

	if !s.IsOnline(ctx) {
		s.logger.Info("offline mode, using cached songs")
		result.Outcome = OutcomeSkipped
		result.Err = shared.ErrOffline
		return result
	}

	if s.remote == nil {
		result.Outcome = OutcomeFailed
		result.Err = &shared.RemoteFetchError{
			Collection: models.Songs.String(),
			Err:        fmt.Errorf("%w: no document store configured", shared.ErrServiceUnavailable),
		}
		s.logger.Error("songs sync failed", "error", result.Err)
		return result
	}

	docs, err := s.remote.Collection(ctx, models.Songs.String())
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = FetchError(models.Songs, err)
		s.logger.Error("songs sync failed", "kind", result.Kind(), "error", result.Err)
		return result
	}

	songs := models.RecordsFrom(models.Songs, docs)
	if err := s.SaveSongs(ctx, songs); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		s.logger.Error("songs sync failed", "kind", result.Kind(), "error", err)
		return result
	}

	result.Outcome = OutcomeSynced
	result.Count = len(songs)
	s.logger.Info("songs synced", "count", result.Count)
	return result
}

// SyncWithRemote runs [OfflineStore.SyncSongs] and reports whether it synced.
func (s *OfflineStore) SyncWithRemote(ctx context.Context) bool {
	return s.SyncSongs(ctx).OK()
}

// FetchError wraps err as a [shared.RemoteFetchError] for c unless it already is one.
func FetchError(c models.Collection, err error) error {
	var fetchErr *shared.RemoteFetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return &shared.RemoteFetchError{Collection: c.String(), Err: err}
}
