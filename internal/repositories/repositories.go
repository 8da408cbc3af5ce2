// package repositories provides the local cache backends and the offline store built on them.
//
// Each backend implements [Repository] over a different persistence mechanism.
// The backend is chosen once, when the process opens its storage, and never changes afterwards.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/shared"
)

// Kind identifies a storage backend.
type Kind string

const (
	KindSQLite      Kind = "sqlite"      // keyed, transactional
	KindPreferences Kind = "preferences" // one serialized blob per collection
)

// ParseKind converts a configured backend name into a [Kind].
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case KindSQLite, KindPreferences:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownBackend, name)
	}
}

// Repository is the save/load contract shared by both storage backends.
type Repository interface {
	// Kind reports which backend this is.
	Kind() Kind

	// Init prepares the underlying mechanism. Safe to call more than once.
	// Fails with [shared.StorageInitError] when the mechanism cannot be opened.
	Init(ctx context.Context) error

	// Save persists data into collection c.
	//
	// The SQLite backend upserts each record by its key field inside one transaction.
	// The preferences backend replaces the collection's blob with the serialized payload.
	Save(ctx context.Context, c models.Collection, data models.Payload) error

	// Replace overwrites collection c so that it holds exactly records.
	Replace(ctx context.Context, c models.Collection, records []models.Record) error

	// Load reads from collection c.
	//
	// With a key, the SQLite backend returns the one matching record or [shared.ErrNotFound].
	// Without a key it returns every record in the collection.
	// The preferences backend ignores key and returns the stored blob, or [shared.ErrNotFound] if none was ever written.
	Load(ctx context.Context, c models.Collection, key string) (models.Payload, error)

	// Close releases the underlying mechanism.
	Close() error
}

// WriteTracker is implemented by backends that record when each collection was last written.
type WriteTracker interface {
	LastWrite(ctx context.Context, c models.Collection) (time.Time, bool, error)
}

// Options configures [Open].
type Options struct {
	Path            string // SQLite database file
	PreferencesPath string // preferences key/value file
	MaxOpenConns    int
	MaxIdleConns    int
}

// Open constructs the repository for kind. Nothing is opened until [Repository.Init] or first use.
func Open(kind Kind, opts Options) (Repository, error) {
	switch kind {
	case KindSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("%w: sqlite backend needs a database path", shared.ErrInvalidConfig)
		}
		return NewSQLiteRepository(opts.Path, opts.MaxOpenConns, opts.MaxIdleConns), nil
	case KindPreferences:
		if opts.PreferencesPath == "" {
			return nil, fmt.Errorf("%w: preferences backend needs a file path", shared.ErrInvalidConfig)
		}
		return NewPreferenceRepository(NewFileKeyValue(opts.PreferencesPath)), nil
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownBackend, kind)
	}
}

// FromConfig resolves the configured backend and constructs it with [Open].
func FromConfig(sc shared.StorageConfig) (Repository, error) {
	kind, err := ParseKind(sc.Backend)
	if err != nil {
		return nil, err
	}

	return Open(kind, Options{
		Path:            sc.Path,
		PreferencesPath: sc.PreferencesPath,
		MaxOpenConns:    sc.MaxOpenConns,
		MaxIdleConns:    sc.MaxIdleConns,
	})
}

func checkCollection(c models.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrUnknownCollection, c)
	}
	return nil
}
