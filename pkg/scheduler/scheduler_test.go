package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	ok    bool
	msg   string
	panic bool
}

func (f *fakeExecutor) ExecuteSchedule(ctx context.Context, schedule *types.Schedule) (bool, string) {
	f.mu.Lock()
	f.calls = append(f.calls, schedule.ID)
	f.mu.Unlock()
	if f.panic {
		panic("executor exploded")
	}
	return f.ok, f.msg
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler(t *testing.T, exec *fakeExecutor) (*Scheduler, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, exec), store
}

func seedSchedule(t *testing.T, store storage.Store, schedule *types.Schedule) {
	t.Helper()
	if schedule.CronExpression == "" {
		schedule.CronExpression = "*/5 * * * *"
	}
	if err := store.CreateSchedule(schedule); err != nil {
		t.Fatalf("CreateSchedule() error = %v", err)
	}
}

func TestRunPendingFiresDueSchedule(t *testing.T) {
	exec := &fakeExecutor{ok: true, msg: "Successfully synced 2 node(s)"}
	s, store := newTestScheduler(t, exec)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedSchedule(t, store, &types.Schedule{
		ID:      "s1",
		Name:    "nightly",
		Enabled: true,
		NextRun: now.Add(-time.Minute),
	})

	s.runPending(now)

	if exec.callCount() != 1 {
		t.Fatalf("executor calls = %d, want 1", exec.callCount())
	}

	updated, err := store.GetSchedule("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !updated.LastRun.Equal(now) {
		t.Errorf("last_run = %v, want %v", updated.LastRun, now)
	}
	if !updated.NextRun.After(updated.LastRun) {
		t.Errorf("next_run %v must be strictly after last_run %v", updated.NextRun, updated.LastRun)
	}
	if updated.LastRunStatus != types.RunSucceeded {
		t.Errorf("last_run_status = %s", updated.LastRunStatus)
	}
	if updated.LastRunMessage != "Successfully synced 2 node(s)" {
		t.Errorf("last_run_message = %q", updated.LastRunMessage)
	}
}

func TestRunPendingFiresAtExactMinute(t *testing.T) {
	exec := &fakeExecutor{ok: true}
	s, store := newTestScheduler(t, exec)

	now := time.Date(2026, 4, 1, 12, 5, 0, 0, time.UTC)
	seedSchedule(t, store, &types.Schedule{
		ID:      "s1",
		Name:    "on-the-minute",
		Enabled: true,
		NextRun: now, // equal, not strictly before
	})

	s.runPending(now)
	if exec.callCount() != 1 {
		t.Errorf("a schedule due at exactly now must fire")
	}
}

func TestRunPendingSkipsDisabledAndFuture(t *testing.T) {
	exec := &fakeExecutor{ok: true}
	s, store := newTestScheduler(t, exec)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedSchedule(t, store, &types.Schedule{
		ID: "disabled", Name: "disabled", Enabled: false, NextRun: now.Add(-time.Hour),
	})
	seedSchedule(t, store, &types.Schedule{
		ID: "future", Name: "future", Enabled: true, NextRun: now.Add(time.Hour),
	})

	s.runPending(now)
	if exec.callCount() != 0 {
		t.Errorf("executor calls = %d, want 0", exec.callCount())
	}
}

func TestRunPendingCatchUpFiresOnce(t *testing.T) {
	exec := &fakeExecutor{ok: true}
	s, store := newTestScheduler(t, exec)

	// next_run is many windows in the past; a single catch-up run fires and
	// next_run lands in the future.
	now := time.Date(2026, 4, 1, 12, 2, 30, 0, time.UTC)
	seedSchedule(t, store, &types.Schedule{
		ID:      "s1",
		Name:    "every-5",
		Enabled: true,
		NextRun: now.Add(-3 * time.Hour),
	})

	s.runPending(now)
	if exec.callCount() != 1 {
		t.Fatalf("catch-up fired %d times, want exactly once", exec.callCount())
	}

	updated, _ := store.GetSchedule("s1")
	if !updated.NextRun.After(now) {
		t.Errorf("next_run = %v, want future occurrence after %v", updated.NextRun, now)
	}

	// A second pass at the same instant must not fire again.
	s.runPending(now)
	if exec.callCount() != 1 {
		t.Errorf("second pass re-fired the schedule")
	}
}

func TestRunPendingPrimesNewSchedule(t *testing.T) {
	exec := &fakeExecutor{ok: true}
	s, store := newTestScheduler(t, exec)

	now := time.Date(2026, 4, 1, 12, 0, 30, 0, time.UTC)
	seedSchedule(t, store, &types.Schedule{
		ID: "s1", Name: "fresh", Enabled: true,
	})

	s.runPending(now)
	if exec.callCount() != 0 {
		t.Error("a never-evaluated schedule should be primed, not fired")
	}

	updated, _ := store.GetSchedule("s1")
	if updated.NextRun.IsZero() || !updated.NextRun.After(now) {
		t.Errorf("next_run = %v, want primed future time", updated.NextRun)
	}
}

func TestRunPendingDisablesScheduleWithNoFutureRun(t *testing.T) {
	exec := &fakeExecutor{ok: true}
	s, store := newTestScheduler(t, exec)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	// February 30th never occurs, so the expression has no next firing.
	seedSchedule(t, store, &types.Schedule{
		ID:             "s1",
		Name:           "never",
		Enabled:        true,
		CronExpression: "0 0 30 2 *",
	})

	s.runPending(now)

	if exec.callCount() != 0 {
		t.Errorf("executor calls = %d, want 0", exec.callCount())
	}
	updated, err := store.GetSchedule("s1")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Enabled {
		t.Error("schedule with no future run should be disabled, not re-primed each tick")
	}

	// A due schedule whose expression yields no next firing runs once, then
	// is disabled the same way.
	seedSchedule(t, store, &types.Schedule{
		ID:             "s2",
		Name:           "last-gasp",
		Enabled:        true,
		CronExpression: "0 0 30 2 *",
		NextRun:        now.Add(-time.Minute),
	})
	s.runPending(now)

	if exec.callCount() != 1 {
		t.Errorf("executor calls = %d, want 1", exec.callCount())
	}
	updated, err = store.GetSchedule("s2")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Enabled {
		t.Error("fired schedule with no future run should be disabled")
	}
}

func TestRunPendingRecordsFailure(t *testing.T) {
	exec := &fakeExecutor{ok: false, msg: "All 3 node sync(s) failed"}
	s, store := newTestScheduler(t, exec)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedSchedule(t, store, &types.Schedule{
		ID: "s1", Name: "doomed", Enabled: true, NextRun: now.Add(-time.Minute),
	})

	s.runPending(now)

	updated, _ := store.GetSchedule("s1")
	if updated.LastRunStatus != types.RunFailed {
		t.Errorf("last_run_status = %s, want failed", updated.LastRunStatus)
	}
	if updated.LastRunMessage != "All 3 node sync(s) failed" {
		t.Errorf("last_run_message = %q", updated.LastRunMessage)
	}
}

func TestRunPendingSurvivesExecutorPanic(t *testing.T) {
	exec := &fakeExecutor{panic: true}
	s, store := newTestScheduler(t, exec)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedSchedule(t, store, &types.Schedule{
		ID: "s1", Name: "panicky", Enabled: true, NextRun: now.Add(-time.Minute),
	})
	seedSchedule(t, store, &types.Schedule{
		ID: "s2", Name: "after", Enabled: true, NextRun: now.Add(-time.Minute),
	})

	s.runPending(now)

	if exec.callCount() != 2 {
		t.Errorf("executor calls = %d, a panic must not stop the pass", exec.callCount())
	}
	updated, _ := store.GetSchedule("s1")
	if updated.LastRunStatus != types.RunFailed {
		t.Errorf("panicked run should be recorded as failed, got %s", updated.LastRunStatus)
	}
}

func TestStartStop(t *testing.T) {
	exec := &fakeExecutor{ok: true}
	s, store := newTestScheduler(t, exec)
	s.interval = 10 * time.Millisecond

	seedSchedule(t, store, &types.Schedule{
		ID: "s1", Name: "busy", Enabled: true, NextRun: time.Now().Add(-time.Minute),
	})

	s.Start()
	s.Start() // idempotent

	deadline := time.After(2 * time.Second)
	for exec.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	s.Stop() // idempotent

	after := exec.callCount()
	time.Sleep(50 * time.Millisecond)
	if exec.callCount() != after {
		t.Error("scheduler kept firing after Stop")
	}
}
