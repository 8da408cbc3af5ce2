package tasks

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/services"
	"github.com/desertthunder/songbook/internal/shared"
	tu "github.com/desertthunder/songbook/internal/testing"
)

type fixture struct {
	store  *repositories.OfflineStore
	remote *tu.FakeDocumentStore
	conn   *tu.FakeConnectivity
	passes chan PassResult
	coord  *Coordinator
}

func setup(t *testing.T, online bool, user string, configure func(*CoordinatorOpts)) *fixture {
	t.Helper()

	repo := repositories.NewSQLiteRepository(shared.MemoryDatabase, 0, 0)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("failed to init repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	f := &fixture{
		remote: tu.NewFakeDocumentStore(),
		conn:   tu.NewFakeConnectivity(online),
		passes: make(chan PassResult, 32),
	}

	store, err := repositories.NewOfflineStore(repositories.OfflineStoreOpts{
		Repository:   repo,
		Connectivity: f.conn,
		Remote:       f.remote,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	f.store = store

	opts := CoordinatorOpts{
		Store:        store,
		Remote:       f.remote,
		Users:        services.StaticUser(user),
		Connectivity: f.conn,
		Interval:     time.Hour,
		Reporter:     NewChannelReporter(f.passes),
	}
	if configure != nil {
		configure(&opts)
	}

	coord, err := NewCoordinator(opts)
	if err != nil {
		t.Fatalf("failed to create coordinator: %v", err)
	}
	t.Cleanup(coord.Stop)
	f.coord = coord

	return f
}

func (f *fixture) songIDs(t *testing.T) []string {
	t.Helper()
	songs, err := f.store.LoadSongs(context.Background())
	if err != nil {
		t.Fatalf("failed to load songs: %v", err)
	}
	ids := make([]string, 0, len(songs))
	for _, s := range songs {
		id, _ := s.Key(models.Songs)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fixture) settingsRecord(t *testing.T, key string) (models.Record, bool) {
	t.Helper()
	p, err := f.store.Load(context.Background(), models.Settings, key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		t.Fatalf("failed to load setting %s: %v", key, err)
	}
	return p.Record(), true
}

func waitPass(t *testing.T, ch <-chan PassResult) PassResult {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pass")
		return PassResult{}
	}
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for coordinator to go idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewCoordinator(t *testing.T) {
	if _, err := NewCoordinator(CoordinatorOpts{}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
}

func TestPerformSync(t *testing.T) {
	ctx := context.Background()

	t.Run("Offline Skips", func(t *testing.T) {
		f := setup(t, false, "u1", nil)
		f.remote.SetCollection("songs", tu.Docs("1"))

		result := f.coord.PerformSync(ctx)
		if !result.Skipped || result.OK() {
			t.Errorf("expected skipped pass, got %+v", result)
		}
		if len(result.Steps) != 0 {
			t.Errorf("expected no steps, got %d", len(result.Steps))
		}
		if n := len(f.remote.Calls()); n != 0 {
			t.Errorf("expected no remote calls, got %d", n)
		}
		if !f.coord.LastSync().IsZero() {
			t.Error("expected LastSync unset")
		}
		if _, ok := f.settingsRecord(t, models.UserSettingsKey); ok {
			t.Error("expected no settings written offline")
		}
	})

	t.Run("Full Pass", func(t *testing.T) {
		f := setup(t, true, "u1", func(o *CoordinatorOpts) {
			o.Settings = tu.MapSettings{"theme": "light", "songFontSize": "18"}
		})
		f.remote.SetCollection("songs", tu.Docs("a", "b"))
		f.remote.SetUserCollection("u1", "repertoire", tu.Docs("a"))

		before := time.Now()
		result := f.coord.PerformSync(ctx)
		if !result.OK() {
			t.Fatalf("expected successful pass, got %+v", result)
		}
		if result.RunID == "" || result.Reason != ReasonManual {
			t.Errorf("unexpected run metadata %+v", result)
		}

		order := []models.Collection{models.Songs, models.Repertoire, models.Settings}
		if len(result.Steps) != len(order) {
			t.Fatalf("expected %d steps, got %d", len(order), len(result.Steps))
		}
		for i, c := range order {
			if result.Steps[i].Collection != c || result.Steps[i].Outcome != repositories.OutcomeSynced {
				t.Errorf("step %d: expected %s synced, got %+v", i, c, result.Steps[i])
			}
		}

		if got := f.songIDs(t); len(got) != 2 {
			t.Errorf("expected 2 songs, got %v", got)
		}

		p, err := f.store.Load(ctx, models.Repertoire, "a")
		if err != nil {
			t.Fatalf("expected repertoire entry keyed by songId: %v", err)
		}
		if p.Record()["songId"] != "a" {
			t.Errorf("expected songId injected, got %+v", p.Record())
		}

		rec, ok := f.settingsRecord(t, models.UserSettingsKey)
		if !ok {
			t.Fatal("expected userSettings record")
		}
		value, _ := rec["value"].(map[string]any)
		if value["theme"] != "light" || value["fontSize"] != "18" {
			t.Errorf("unexpected userSettings value %v", rec["value"])
		}

		if f.coord.LastSync().Before(before) {
			t.Errorf("expected LastSync after %v, got %v", before, f.coord.LastSync())
		}

		step, ok := result.Step(models.Repertoire)
		if !ok || step.Count != 1 {
			t.Errorf("expected repertoire count 1, got %+v", step)
		}
	})

	t.Run("Settings Defaults", func(t *testing.T) {
		f := setup(t, true, "", nil)

		if result := f.coord.PerformSync(ctx); !result.OK() {
			t.Fatalf("expected successful pass, got %+v", result)
		}

		rec, ok := f.settingsRecord(t, models.UserSettingsKey)
		if !ok {
			t.Fatal("expected userSettings record")
		}
		value, _ := rec["value"].(map[string]any)
		if value["theme"] != "dark" || value["fontSize"] != "14" {
			t.Errorf("expected defaults, got %v", rec["value"])
		}
	})

	t.Run("No User Skips Repertoire", func(t *testing.T) {
		f := setup(t, true, "", nil)

		result := f.coord.PerformSync(ctx)
		if !result.OK() {
			t.Fatalf("expected successful pass, got %+v", result)
		}

		step, _ := result.Step(models.Repertoire)
		if step.Outcome != repositories.OutcomeSkipped {
			t.Errorf("expected repertoire skipped, got %+v", step)
		}
		for _, call := range f.remote.Calls() {
			if strings.HasSuffix(call, "/repertoire") {
				t.Errorf("expected no repertoire fetch, got %s", call)
			}
		}
	})

	t.Run("Repertoire Failure Aborts Pass", func(t *testing.T) {
		f := setup(t, true, "u1", nil)
		f.remote.SetCollection("songs", tu.Docs("a", "b", "c"))
		f.remote.Fail("u1/repertoire", errors.New("permission denied"))

		result := f.coord.PerformSync(ctx)
		if result.OK() || result.Err == nil {
			t.Fatalf("expected aborted pass, got %+v", result)
		}
		if shared.ErrorKind(result.Err) != "fetch" {
			t.Errorf("expected fetch error, got %s", shared.ErrorKind(result.Err))
		}

		if got := f.songIDs(t); len(got) != 3 {
			t.Errorf("expected songs committed before the failure, got %v", got)
		}
		if _, ok := result.Step(models.Settings); ok {
			t.Error("expected settings step not attempted")
		}
		if _, ok := f.settingsRecord(t, models.UserSettingsKey); ok {
			t.Error("expected no userSettings record")
		}
		if !f.coord.LastSync().IsZero() {
			t.Error("expected LastSync unchanged after aborted pass")
		}
	})

	t.Run("Songs Failure Does Not Abort", func(t *testing.T) {
		f := setup(t, true, "u1", nil)
		f.remote.Fail("songs", errors.New("unavailable"))
		f.remote.SetUserCollection("u1", "repertoire", tu.Docs("x"))

		result := f.coord.PerformSync(ctx)
		if !result.OK() {
			t.Fatalf("expected pass to continue past songs failure, got %+v", result)
		}

		step, _ := result.Step(models.Songs)
		if step.Outcome != repositories.OutcomeFailed {
			t.Errorf("expected songs step failed, got %+v", step)
		}
		if _, ok := f.settingsRecord(t, models.UserSettingsKey); !ok {
			t.Error("expected settings written")
		}
		if f.coord.LastSync().IsZero() {
			t.Error("expected LastSync recorded")
		}
	})

	t.Run("Back To Back Snapshots", func(t *testing.T) {
		f := setup(t, true, "", nil)

		f.remote.SetCollection("songs", tu.Docs("1", "2", "3"))
		f.coord.PerformSync(ctx)

		f.remote.SetCollection("songs", tu.Docs("3", "9"))
		f.coord.PerformSync(ctx)

		if got := f.songIDs(t); len(got) != 2 || got[0] != "3" || got[1] != "9" {
			t.Errorf("expected exactly the second snapshot, got %v", got)
		}
	})

	t.Run("After Stop", func(t *testing.T) {
		f := setup(t, true, "", nil)
		f.coord.Stop()

		result := f.coord.PerformSync(ctx)
		if !errors.Is(result.Err, shared.ErrCoordinatorStopped) {
			t.Errorf("expected ErrCoordinatorStopped, got %v", result.Err)
		}
	})
}

func TestCoordinatorLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Start Runs Immediate Pass", func(t *testing.T) {
		f := setup(t, true, "", nil)
		f.remote.SetCollection("songs", tu.Docs("a"))

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		p := waitPass(t, f.passes)
		if p.Reason != ReasonStartup || !p.OK() {
			t.Errorf("expected successful startup pass, got %+v", p)
		}
		if err := f.coord.Start(ctx); err == nil {
			t.Error("expected error starting twice")
		}
	})

	t.Run("Start Offline Still Passes", func(t *testing.T) {
		f := setup(t, false, "", nil)

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if p := waitPass(t, f.passes); !p.Skipped {
			t.Errorf("expected skipped startup pass, got %+v", p)
		}
	})

	t.Run("Timer Triggers Passes", func(t *testing.T) {
		f := setup(t, true, "", func(o *CoordinatorOpts) { o.Interval = 20 * time.Millisecond })

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		deadline := time.After(5 * time.Second)
		for {
			select {
			case p := <-f.passes:
				if p.Reason == ReasonTimer {
					return
				}
			case <-deadline:
				t.Fatal("timed out waiting for timer pass")
			}
		}
	})

	t.Run("Connectivity Regained Triggers Pass", func(t *testing.T) {
		f := setup(t, false, "", nil)
		f.remote.SetCollection("songs", tu.Docs("a"))

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		waitPass(t, f.passes)
		waitIdle(t, f.coord)

		f.conn.Set(true)

		p := waitPass(t, f.passes)
		if p.Reason != ReasonConnectivity || !p.OK() {
			t.Errorf("expected successful connectivity pass, got %+v", p)
		}
		if got := f.songIDs(t); len(got) != 1 {
			t.Errorf("expected songs synced on reconnect, got %v", got)
		}
	})

	t.Run("Losing Connectivity Does Not Trigger", func(t *testing.T) {
		f := setup(t, true, "", nil)

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		waitPass(t, f.passes)
		waitIdle(t, f.coord)

		f.conn.Set(false)

		select {
		case p := <-f.passes:
			t.Errorf("expected no pass on disconnect, got %+v", p)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Single Flight Coalesces Triggers", func(t *testing.T) {
		f := setup(t, true, "", nil)
		f.remote.Gate = make(chan struct{})
		f.remote.Entered = make(chan string, 16)
		f.remote.SetCollection("songs", tu.Docs("a"))

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		select {
		case <-f.remote.Entered:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for startup pass to fetch")
		}

		for range 5 {
			if !f.coord.Trigger(ctx, ReasonManual) {
				t.Error("expected trigger to be queued")
			}
		}
		if !f.coord.Status().Pending {
			t.Error("expected a pending pass")
		}

		close(f.remote.Gate)

		first := waitPass(t, f.passes)
		second := waitPass(t, f.passes)
		waitIdle(t, f.coord)

		if first.Reason != ReasonStartup || second.Reason != ReasonManual {
			t.Errorf("expected startup then manual, got %s then %s", first.Reason, second.Reason)
		}
		if n := f.remote.CallCount("songs"); n != 2 {
			t.Errorf("expected 2 songs fetches, got %d", n)
		}

		select {
		case p := <-f.passes:
			t.Errorf("expected no third pass, got %+v", p)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Connectivity Triggers Are Throttled", func(t *testing.T) {
		f := setup(t, true, "", func(o *CoordinatorOpts) {
			o.TriggerRate = 0.001
			o.TriggerBurst = 1
		})

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		waitPass(t, f.passes)
		waitIdle(t, f.coord)

		if !f.coord.Trigger(ctx, ReasonConnectivity) {
			t.Error("expected first connectivity trigger to run")
		}
		waitPass(t, f.passes)
		waitIdle(t, f.coord)

		if f.coord.Trigger(ctx, ReasonConnectivity) {
			t.Error("expected second connectivity trigger to be throttled")
		}
		if !f.coord.Trigger(ctx, ReasonManual) {
			t.Error("expected manual trigger to bypass the throttle")
		}
	})

	t.Run("Stop Releases Subscription", func(t *testing.T) {
		f := setup(t, true, "", nil)

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if f.conn.Subscribers() != 1 {
			t.Fatalf("expected one subscription, got %d", f.conn.Subscribers())
		}

		f.coord.Stop()

		if f.conn.Subscribers() != 0 {
			t.Errorf("expected subscription released, got %d", f.conn.Subscribers())
		}
		if f.coord.Trigger(ctx, ReasonManual) {
			t.Error("expected trigger after stop to be ignored")
		}
		if err := f.coord.Start(ctx); !errors.Is(err, shared.ErrCoordinatorStopped) {
			t.Errorf("expected ErrCoordinatorStopped, got %v", err)
		}
		if f.coord.Status().Active {
			t.Error("expected inactive coordinator")
		}

		f.coord.Stop()
	})

	t.Run("Stop Lets In-Flight Pass Finish", func(t *testing.T) {
		f := setup(t, true, "", nil)
		f.remote.SetCollection("songs", tu.Docs("a", "b"))
		f.remote.Gate = make(chan struct{})
		f.remote.Entered = make(chan string, 16)

		if err := f.coord.Start(ctx); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		<-f.remote.Entered

		if !f.coord.Trigger(ctx, ReasonManual) {
			t.Fatal("expected trigger during a pass to be queued")
		}

		stopped := make(chan struct{})
		go func() {
			f.coord.Stop()
			close(stopped)
		}()

		deadline := time.Now().Add(5 * time.Second)
		for f.coord.Status().Active {
			if time.Now().After(deadline) {
				t.Fatal("coordinator never left the active state")
			}
			time.Sleep(5 * time.Millisecond)
		}

		select {
		case <-stopped:
			t.Fatal("Stop returned before the running pass finished")
		case <-time.After(50 * time.Millisecond):
		}

		close(f.remote.Gate)

		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Fatal("Stop did not return after the pass finished")
		}

		p := waitPass(t, f.passes)
		if step, _ := p.Step(models.Songs); step.Outcome != repositories.OutcomeSynced || step.Count != 2 {
			t.Errorf("expected running pass to complete, got %+v", step)
		}
		if got := f.songIDs(t); len(got) != 2 {
			t.Errorf("expected songs committed, got %v", got)
		}

		select {
		case extra := <-f.passes:
			t.Errorf("expected queued follow-up to be dropped, got %+v", extra)
		case <-time.After(50 * time.Millisecond):
		}
		if n := f.remote.CallCount("songs"); n != 1 {
			t.Errorf("expected one songs fetch, got %d", n)
		}
	})

	t.Run("Stop Before Start", func(t *testing.T) {
		f := setup(t, true, "", nil)
		f.coord.Stop()
		if err := f.coord.Start(ctx); !errors.Is(err, shared.ErrCoordinatorStopped) {
			t.Errorf("expected ErrCoordinatorStopped, got %v", err)
		}
	})

	t.Run("Trigger Before Start", func(t *testing.T) {
		f := setup(t, true, "", nil)
		if f.coord.Trigger(ctx, ReasonManual) {
			t.Error("expected trigger before start to be ignored")
		}
	})
}

func TestReporters(t *testing.T) {
	t.Run("LogReporter", func(t *testing.T) {
		tests := []struct {
			name   string
			result PassResult
			want   string
		}{
			{"Complete", PassResult{RunID: "r1", Steps: []StepResult{{Collection: models.Songs}}}, "sync complete"},
			{"Skipped", PassResult{RunID: "r2", Skipped: true}, "sync skipped"},
			{"Aborted", PassResult{RunID: "r3", Err: &shared.RemoteFetchError{Collection: "repertoire", Err: errors.New("boom")}}, "sync aborted"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var buf bytes.Buffer
				LogReporter{Logger: shared.NewLogger(&buf)}.Report(tt.result)

				out := buf.String()
				if !strings.Contains(out, tt.want) || !strings.Contains(out, tt.result.RunID) {
					t.Errorf("expected %q with run id in output, got %s", tt.want, out)
				}
			})
		}
	})

	t.Run("ChannelReporter Does Not Block", func(t *testing.T) {
		ch := make(chan PassResult, 1)
		r := NewChannelReporter(ch)

		done := make(chan struct{})
		go func() {
			r.Report(PassResult{RunID: "1"})
			r.Report(PassResult{RunID: "2"})
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("report blocked on a full channel")
		}

		if p := <-ch; p.RunID != "1" {
			t.Errorf("expected first result kept, got %s", p.RunID)
		}
	})

	t.Run("MultiReporter", func(t *testing.T) {
		a, b := make(chan PassResult, 1), make(chan PassResult, 1)
		MultiReporter{NewChannelReporter(a), nil, NewChannelReporter(b)}.Report(PassResult{RunID: "x"})

		if len(a) != 1 || len(b) != 1 {
			t.Errorf("expected both reporters to receive the result")
		}
	})

	t.Run("View", func(t *testing.T) {
		p := PassResult{
			RunID:  "r",
			Reason: ReasonTimer,
			Steps: []StepResult{
				{Collection: models.Songs, Outcome: repositories.OutcomeFailed, Err: &shared.RemoteFetchError{Collection: "songs", Err: errors.New("x")}},
				{Collection: models.Settings, Outcome: repositories.OutcomeSynced, Count: 1},
			},
		}

		v := p.View()
		if v.Reason != "timer" || !v.OK || len(v.Steps) != 2 {
			t.Errorf("unexpected view %+v", v)
		}
		if v.Steps[0].ErrorKind != "fetch" || v.Steps[0].Outcome != "failed" {
			t.Errorf("unexpected first step %+v", v.Steps[0])
		}
		if v.Steps[1].Error != "" {
			t.Errorf("expected no error on synced step, got %s", v.Steps[1].Error)
		}
	})
}
