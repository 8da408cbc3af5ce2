package repositories

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/shared"
	tu "github.com/desertthunder/songbook/internal/testing"
)

type backendCase struct {
	name string
	open func(t *testing.T) Repository
}

func backends() []backendCase {
	return []backendCase{
		{"SQLite", func(t *testing.T) Repository { return setupSQLite(t) }},
		{"Preferences", func(t *testing.T) Repository {
			repo, _ := setupPreferences(t)
			return repo
		}},
	}
}

func newStore(t *testing.T, repo Repository, online bool, remote *tu.FakeDocumentStore) *OfflineStore {
	t.Helper()
	store, err := NewOfflineStore(OfflineStoreOpts{
		Repository:   repo,
		Connectivity: tu.NewFakeConnectivity(online),
		Remote:       remote,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func songIDs(records []models.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		id, _ := r.Key(models.Songs)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type failingRepo struct {
	Repository
	err error
}

func (f failingRepo) Replace(context.Context, models.Collection, []models.Record) error {
	return f.err
}

func TestOfflineStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Requires Repository", func(t *testing.T) {
		if _, err := NewOfflineStore(OfflineStoreOpts{}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("No Connectivity Is Offline", func(t *testing.T) {
		store, err := NewOfflineStore(OfflineStoreOpts{Repository: setupSQLite(t)})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		if store.IsOnline(ctx) {
			t.Error("expected offline without a connectivity monitor")
		}
	})

	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			t.Run("Offline Skips Without Side Effects", func(t *testing.T) {
				repo := bc.open(t)
				remote := tu.NewFakeDocumentStore()
				remote.SetCollection("songs", tu.Docs("x"))
				store := newStore(t, repo, false, remote)

				if err := store.SaveSongs(ctx, []models.Record{song("1", "cached")}); err != nil {
					t.Fatalf("seed failed: %v", err)
				}
				before, _ := store.LoadSongs(ctx)
				stamp, _ := store.LastSongsSync(ctx)

				if store.SyncWithRemote(ctx) {
					t.Error("expected SyncWithRemote to report false offline")
				}

				result := store.SyncSongs(ctx)
				if result.Outcome != OutcomeSkipped || !errors.Is(result.Err, shared.ErrOffline) {
					t.Errorf("expected skipped with ErrOffline, got %+v", result)
				}
				if result.Kind() != "offline" {
					t.Errorf("expected offline kind, got %s", result.Kind())
				}

				if n := len(remote.Calls()); n != 0 {
					t.Errorf("expected remote untouched, got %d calls", n)
				}

				after, _ := store.LoadSongs(ctx)
				if len(after) != len(before) || after[0]["title"] != "cached" {
					t.Errorf("expected cached songs unchanged, got %+v", after)
				}
				if again, _ := store.LastSongsSync(ctx); !again.Equal(stamp) {
					t.Errorf("expected lastSongsSync unchanged, got %v want %v", again, stamp)
				}
			})

			t.Run("Online Writes Remote Snapshot", func(t *testing.T) {
				repo := bc.open(t)
				remote := tu.NewFakeDocumentStore()
				remote.SetCollection("songs", tu.Docs("a", "b", "c"))
				store := newStore(t, repo, true, remote)

				start := time.Now().UTC()
				result := store.SyncSongs(ctx)
				if !result.OK() || result.Count != 3 {
					t.Fatalf("expected 3 songs synced, got %+v", result)
				}

				songs, err := store.LoadSongs(ctx)
				if err != nil {
					t.Fatalf("load failed: %v", err)
				}
				if got := songIDs(songs); len(got) != 3 || got[0] != "a" || got[2] != "c" {
					t.Errorf("expected ids a b c, got %v", got)
				}
				for _, s := range songs {
					if s["title"] == nil {
						t.Errorf("expected document data to be kept, got %+v", s)
					}
				}

				at, ok := store.LastSongsSync(ctx)
				if !ok {
					t.Fatal("expected lastSongsSync to be recorded")
				}
				if at.Before(start) {
					t.Errorf("expected lastSongsSync %v >= %v", at, start)
				}
			})

			t.Run("Back To Back Snapshots", func(t *testing.T) {
				repo := bc.open(t)
				remote := tu.NewFakeDocumentStore()
				store := newStore(t, repo, true, remote)

				remote.SetCollection("songs", tu.Docs("1", "2", "3"))
				if !store.SyncWithRemote(ctx) {
					t.Fatal("first sync failed")
				}

				remote.SetCollection("songs", tu.Docs("2", "4"))
				if !store.SyncWithRemote(ctx) {
					t.Fatal("second sync failed")
				}

				songs, err := store.LoadSongs(ctx)
				if err != nil {
					t.Fatalf("load failed: %v", err)
				}
				if got := songIDs(songs); len(got) != 2 || got[0] != "2" || got[1] != "4" {
					t.Errorf("expected exactly the second snapshot, got %v", got)
				}
			})

			t.Run("Fetch Failure Keeps Cache", func(t *testing.T) {
				repo := bc.open(t)
				remote := tu.NewFakeDocumentStore()
				store := newStore(t, repo, true, remote)

				if err := store.SaveSongs(ctx, []models.Record{song("1", "cached")}); err != nil {
					t.Fatalf("seed failed: %v", err)
				}

				remote.Fail("songs", errors.New("permission denied"))
				result := store.SyncSongs(ctx)
				if result.Outcome != OutcomeFailed || result.Kind() != "fetch" {
					t.Errorf("expected fetch failure, got %+v", result)
				}
				if store.SyncWithRemote(ctx) {
					t.Error("expected SyncWithRemote false on fetch failure")
				}

				songs, _ := store.LoadSongs(ctx)
				if len(songs) != 1 || songs[0]["title"] != "cached" {
					t.Errorf("expected cache unchanged, got %+v", songs)
				}
			})
		})
	}

	t.Run("Write Failure", func(t *testing.T) {
		writeErr := &shared.StorageWriteError{Collection: "songs", Err: errors.New("disk full")}
		remote := tu.NewFakeDocumentStore()
		remote.SetCollection("songs", tu.Docs("a"))
		store := newStore(t, failingRepo{Repository: setupSQLite(t), err: writeErr}, true, remote)

		result := store.SyncSongs(ctx)
		if result.Outcome != OutcomeFailed || result.Kind() != "write" {
			t.Errorf("expected write failure, got %+v", result)
		}
		if _, ok := store.LastSongsSync(ctx); ok {
			t.Error("expected no lastSongsSync after failed write")
		}
	})

	t.Run("No Remote Configured", func(t *testing.T) {
		store, err := NewOfflineStore(OfflineStoreOpts{
			Repository:   setupSQLite(t),
			Connectivity: tu.NewFakeConnectivity(true),
		})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		result := store.SyncSongs(ctx)
		if result.Outcome != OutcomeFailed || !errors.Is(result.Err, shared.ErrServiceUnavailable) {
			t.Errorf("expected service unavailable failure, got %+v", result)
		}
	})

	t.Run("Preferences Settings Blob Holds Latest Entry", func(t *testing.T) {
		repo, _ := setupPreferences(t)
		store := newStore(t, repo, true, tu.NewFakeDocumentStore())

		if err := store.SaveSongs(ctx, nil); err != nil {
			t.Fatalf("save songs failed: %v", err)
		}
		if _, ok := store.LastSongsSync(ctx); !ok {
			t.Fatal("expected lastSongsSync after SaveSongs")
		}

		settings := models.UserSettings{Theme: "dark", FontSize: "14"}
		if err := store.Save(ctx, models.Settings, models.One(settings.Record())); err != nil {
			t.Fatalf("save settings failed: %v", err)
		}
		if _, ok := store.LastSongsSync(ctx); ok {
			t.Error("expected the userSettings write to replace the lastSongsSync blob")
		}
	})

	t.Run("LastWrite", func(t *testing.T) {
		t.Run("Tracked By SQLite", func(t *testing.T) {
			store := newStore(t, setupSQLite(t), true, tu.NewFakeDocumentStore())

			if err := store.SaveSongs(ctx, []models.Record{song("1", "A")}); err != nil {
				t.Fatalf("save songs failed: %v", err)
			}
			if _, ok, err := store.LastWrite(ctx, models.Songs); err != nil || !ok {
				t.Errorf("expected songs last write, got ok=%v err=%v", ok, err)
			}
		})

		t.Run("Untracked By Preferences", func(t *testing.T) {
			repo, _ := setupPreferences(t)
			store := newStore(t, repo, true, tu.NewFakeDocumentStore())

			if err := store.SaveSongs(ctx, []models.Record{song("1", "A")}); err != nil {
				t.Fatalf("save songs failed: %v", err)
			}
			if _, ok, err := store.LastWrite(ctx, models.Songs); err != nil || ok {
				t.Errorf("expected no last write from the blob backend, got ok=%v err=%v", ok, err)
			}
		})
	})

	t.Run("Fixed Clock", func(t *testing.T) {
		fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		store, err := NewOfflineStore(OfflineStoreOpts{
			Repository: NewPreferenceRepository(NewFileKeyValue(filepath.Join(t.TempDir(), "p.json"))),
			Clock:      func() time.Time { return fixed },
		})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		if err := store.SaveSongs(ctx, []models.Record{song("1", "A")}); err != nil {
			t.Fatalf("save songs failed: %v", err)
		}
		if at, ok := store.LastSongsSync(ctx); !ok || !at.Equal(fixed) {
			t.Errorf("expected %v, got %v (%v)", fixed, at, ok)
		}
	})
}
