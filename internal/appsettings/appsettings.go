// package appsettings reads device-level application settings from a TOML file
package appsettings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Keys read by the settings sync.
const (
	ThemeKey    = "theme"
	FontSizeKey = "songFontSize"
)

// Defaults applied when a key is absent.
const (
	DefaultTheme    = "dark"
	DefaultFontSize = "14"
)

// Reader is a read-only string key/value view of application settings.
type Reader interface {
	Get(key string) (string, bool)
}

// GetOr returns the value of key, or def when it is absent.
func GetOr(r Reader, key, def string) string {
	if v, ok := r.Get(key); ok {
		return v
	}
	return def
}

// FileStore is a [Reader] over a TOML file of top-level keys.
//
// Values of any TOML scalar type are exposed as strings. A missing file means every key is absent.
type FileStore struct {
	path   string
	logger *log.Logger

	mu     sync.RWMutex
	values map[string]string
}

// NewFileStore creates a store for path. Call [FileStore.Load] to read it.
func NewFileStore(path string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &FileStore{path: path, logger: logger, values: map[string]string{}}
}

// Path returns the settings file.
func (s *FileStore) Path() string { return s.path }

// Get returns the value of key.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Values returns a copy of every loaded setting.
func (s *FileStore) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Load (re)reads the file. On a parse error the previous values are kept.
func (s *FileStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.replace(map[string]string{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any, []map[string]any:
			continue
		}
		values[k] = fmt.Sprint(v)
	}

	s.replace(values)
	return nil
}

// Set stores key in memory and rewrites the file.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.values)
	next[key] = value

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(next); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	s.values = next
	return nil
}

func (s *FileStore) replace(values map[string]string) {
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
}

// Watch reloads the file whenever it changes until ctx is done, calling onReload after each successful reload.
//
// The parent directory is watched so that editors which replace the file by rename are still observed.
func (s *FileStore) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.path)
	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op == fsnotify.Chmod {
				continue
			}

			if err := s.Load(); err != nil {
				s.logger.Warn("settings reload failed", "path", s.path, "error", err)
				continue
			}

			s.logger.Debug("settings reloaded", "path", s.path, "op", event.Op.String())
			if onReload != nil {
				onReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", "error", err)
		}
	}
}
