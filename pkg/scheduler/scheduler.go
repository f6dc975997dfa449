package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/autobot/fleet/pkg/cron"
	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/metrics"
	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
	"github.com/rs/zerolog"
)

// tickInterval is how often enabled schedules are evaluated.
const tickInterval = 60 * time.Second

// executor runs a schedule's fan-out. Satisfied by orchestrator.Orchestrator.
type executor interface {
	ExecuteSchedule(ctx context.Context, schedule *types.Schedule) (bool, string)
}

// Scheduler is the background loop that fires schedules whose next run has
// come due. Stop halts further dispatches; an in-flight execution runs to
// completion.
type Scheduler struct {
	store    storage.Store
	executor executor
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	logger zerolog.Logger
}

// New creates a scheduler over the given store and executor.
func New(store storage.Store, exec executor) *Scheduler {
	return &Scheduler{
		store:    store,
		executor: exec,
		interval: tickInterval,
		now:      time.Now,
		logger:   log.WithComponent("scheduler"),
	}
}

// Start launches the evaluation loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopCh, s.done)
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
}

// Stop halts the loop and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Evaluate once at startup so schedules missed while the control plane
	// was down fire without waiting for the first tick.
	s.runPending(s.now())

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.runPending(s.now())
		}
	}
}

// runPending evaluates all schedules once. A schedule is due when it is
// enabled and its next run is at or before now. Downtime across several
// firing windows produces a single catch-up run.
func (s *Scheduler) runPending(now time.Time) {
	schedules, err := s.store.ListSchedules()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list schedules")
		return
	}

	for _, schedule := range schedules {
		if !schedule.Enabled {
			continue
		}
		if schedule.NextRun.IsZero() {
			s.prime(schedule, now)
			continue
		}
		if schedule.NextRun.After(now) {
			continue
		}
		s.fire(schedule, now)
	}
}

// prime computes the first next_run for a schedule that has never been
// evaluated, without firing it. A schedule whose expression is invalid or has
// no future occurrence is disabled so it is not re-primed every tick.
func (s *Scheduler) prime(schedule *types.Schedule, now time.Time) {
	next, err := cron.Next(schedule.CronExpression, now)
	if err != nil || next.IsZero() {
		s.logger.Warn().Str("schedule", schedule.Name).Err(err).Msg("cron expression has no future run, disabling schedule")
		schedule.Enabled = false
	} else {
		schedule.NextRun = next
	}
	schedule.UpdatedAt = now
	if err := s.store.UpdateSchedule(schedule); err != nil {
		s.logger.Error().Err(err).Str("schedule", schedule.Name).Msg("failed to prime schedule")
	}
}

// fire runs one schedule and advances its bookkeeping. Panics in the
// executor are caught so one bad schedule cannot stop the loop.
func (s *Scheduler) fire(schedule *types.Schedule, now time.Time) {
	logger := s.logger.With().Str("schedule_id", schedule.ID).Str("schedule", schedule.Name).Logger()
	logger.Info().Msg("schedule due")

	schedule.LastRun = now

	ok, message := s.executeSafe(schedule)

	next, err := cron.Next(schedule.CronExpression, now)
	if err != nil || next.IsZero() {
		logger.Warn().Err(err).Msg("cron expression has no future run, disabling schedule")
		schedule.Enabled = false
	} else {
		schedule.NextRun = next
	}

	if ok {
		schedule.LastRunStatus = types.RunSucceeded
		metrics.ScheduleRunsTotal.WithLabelValues("succeeded").Inc()
	} else {
		schedule.LastRunStatus = types.RunFailed
		metrics.ScheduleRunsTotal.WithLabelValues("failed").Inc()
	}
	schedule.LastRunMessage = truncate(message, 200)
	schedule.UpdatedAt = time.Now()

	if err := s.store.UpdateSchedule(schedule); err != nil {
		logger.Error().Err(err).Msg("failed to record schedule run")
		return
	}
	logger.Info().Bool("success", ok).Str("result", schedule.LastRunMessage).Msg("schedule run complete")
}

func (s *Scheduler) executeSafe(schedule *types.Schedule) (ok bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("schedule", schedule.Name).Msg("schedule execution panicked")
			ok = false
			message = "schedule execution panicked"
		}
	}()
	return s.executor.ExecuteSchedule(context.Background(), schedule)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
