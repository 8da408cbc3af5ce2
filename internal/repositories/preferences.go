package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/shared"
)

// KeyValueStore is a flat string key/value mechanism, such as a platform preferences file.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// PreferenceRepository implements [Repository] by storing each collection as one serialized blob.
//
// Saves replace the whole blob, so a collection holds whatever was written last regardless of keys.
type PreferenceRepository struct {
	kv KeyValueStore
}

// NewPreferenceRepository creates a new PreferenceRepository over kv
func NewPreferenceRepository(kv KeyValueStore) *PreferenceRepository {
	return &PreferenceRepository{kv: kv}
}

// Kind returns [KindPreferences].
func (r *PreferenceRepository) Kind() Kind { return KindPreferences }

// Init is a no-op; the key/value store needs no preparation.
func (r *PreferenceRepository) Init(context.Context) error { return nil }

// Save serializes data and stores it under the collection name, replacing any previous blob.
func (r *PreferenceRepository) Save(ctx context.Context, c models.Collection, data models.Payload) error {
	if err := checkCollection(c); err != nil {
		return err
	}

	if data.Single && data.Record() == nil {
		return &shared.StorageWriteError{Collection: c.String(), Err: fmt.Errorf("%w: nil record", shared.ErrInvalidPayload)}
	}

	blob, err := json.Marshal(data)
	if err != nil {
		return &shared.StorageWriteError{Collection: c.String(), Err: fmt.Errorf("failed to encode payload: %w", err)}
	}

	if err := r.kv.Set(ctx, c.String(), string(blob)); err != nil {
		return &shared.StorageWriteError{Collection: c.String(), Err: err}
	}

	return nil
}

// Replace stores records as the collection's blob.
func (r *PreferenceRepository) Replace(ctx context.Context, c models.Collection, records []models.Record) error {
	return r.Save(ctx, c, models.Many(records))
}

// Load decodes the collection's blob. The key is ignored.
func (r *PreferenceRepository) Load(ctx context.Context, c models.Collection, _ string) (models.Payload, error) {
	if err := checkCollection(c); err != nil {
		return models.Payload{}, err
	}

	blob, ok, err := r.kv.Get(ctx, c.String())
	if err != nil {
		return models.Payload{}, fmt.Errorf("failed to read %s: %w", c, err)
	}
	if !ok {
		return models.Payload{}, fmt.Errorf("%w: %s", shared.ErrNotFound, c)
	}

	var p models.Payload
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return models.Payload{}, fmt.Errorf("%w: %s: %v", shared.ErrInvalidPayload, c, err)
	}

	return p, nil
}

// Close is a no-op; every Set is already durable.
func (r *PreferenceRepository) Close() error { return nil }

// FileKeyValue is a [KeyValueStore] persisted as one JSON object in a file.
//
// Writes go to a temporary file that is renamed over the original, so readers never see a partial file.
type FileKeyValue struct {
	path string
	mu   sync.Mutex
}

// NewFileKeyValue creates a store at path. The file is created on first write.
func NewFileKeyValue(path string) *FileKeyValue {
	return &FileKeyValue{path: path}
}

// Path returns the backing file.
func (f *FileKeyValue) Path() string { return f.path }

func (f *FileKeyValue) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", false, err
	}

	v, ok := values[key]
	return v, ok, nil
}

func (f *FileKeyValue) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value

	return f.write(values)
}

func (f *FileKeyValue) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: preferences file %s: %v", shared.ErrInvalidPayload, f.path, err)
	}

	return values, nil
}

func (f *FileKeyValue) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}

	return nil
}
