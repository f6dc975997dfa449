package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/autobot/fleet/pkg/cron"
	"github.com/autobot/fleet/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if schedules == nil {
		schedules = []*types.Schedule{}
	}
	s.writeJSON(w, http.StatusOK, schedules)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var schedule types.Schedule
	if !s.decode(w, r, &schedule) {
		return
	}

	if err := validateSchedule(&schedule); err != nil {
		s.writeError(w, err)
		return
	}

	now := time.Now()
	schedule.ID = uuid.New().String()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	next, err := cron.Next(schedule.CronExpression, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	schedule.NextRun = next

	if err := s.store.CreateSchedule(&schedule); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &schedule)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.store.GetSchedule(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetSchedule(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	var update types.Schedule
	if !s.decode(w, r, &update) {
		return
	}
	update.ID = existing.ID
	update.CreatedAt = existing.CreatedAt
	update.LastRun = existing.LastRun
	update.LastRunStatus = existing.LastRunStatus
	update.LastRunMessage = existing.LastRunMessage

	if err := validateSchedule(&update); err != nil {
		s.writeError(w, err)
		return
	}

	// Recompute next_run when the cron expression changed.
	if update.CronExpression != existing.CronExpression || update.NextRun.IsZero() {
		next, err := cron.Next(update.CronExpression, time.Now())
		if err != nil {
			s.writeError(w, err)
			return
		}
		update.NextRun = next
	}
	update.UpdatedAt = time.Now()

	if err := s.store.UpdateSchedule(&update); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &update)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetSchedule(id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.DeleteSchedule(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateCronResponse struct {
	Valid       bool        `json:"valid"`
	Description string      `json:"description"`
	Next5Runs   []time.Time `json:"next_5_runs,omitempty"`
}

func (s *Server) handleValidateCron(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cron string `json:"cron"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	resp := validateCronResponse{
		Valid:       cron.Validate(req.Cron),
		Description: cron.Describe(req.Cron),
	}
	if resp.Valid {
		runs, err := cron.NextN(req.Cron, time.Now(), 5)
		if err == nil {
			resp.Next5Runs = runs
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func validateSchedule(schedule *types.Schedule) error {
	if schedule.Name == "" {
		return fmt.Errorf("schedule name is required: %w", types.ErrValidation)
	}
	if !cron.Validate(schedule.CronExpression) {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.CronExpression, types.ErrValidation)
	}
	if schedule.TargetType == "" {
		schedule.TargetType = types.TargetAll
	}
	switch schedule.TargetType {
	case types.TargetAll, types.TargetFilter:
	case types.TargetSpecific:
		if len(schedule.TargetNodes) == 0 {
			return fmt.Errorf("target_nodes is required for specific targeting: %w", types.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown target type %q: %w", schedule.TargetType, types.ErrValidation)
	}
	if schedule.RestartStrategy == "" {
		schedule.RestartStrategy = types.RestartSequential
	}
	switch schedule.RestartStrategy {
	case types.RestartSequential, types.RestartRolling, types.RestartParallel:
	default:
		return fmt.Errorf("unknown restart strategy %q: %w", schedule.RestartStrategy, types.ErrValidation)
	}
	return nil
}
