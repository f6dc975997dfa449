package api

import (
	"fmt"
	"net/http"

	"github.com/autobot/fleet/pkg/types"
)

type syncRunRequest struct {
	ScheduleID string   `json:"schedule_id,omitempty"`
	NodeIDs    []string `json:"node_ids,omitempty"`
	Role       string   `json:"role,omitempty"`
	Commit     string   `json:"commit,omitempty"`
	Restart    bool     `json:"restart"`
}

type syncRunResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Results []*types.SyncResult `json:"results,omitempty"`
}

// handleSyncRun drives a manual fan-out: either re-running a stored schedule
// or syncing an explicit set of nodes.
func (s *Server) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	var req syncRunRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.ScheduleID != "" {
		schedule, err := s.store.GetSchedule(req.ScheduleID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ok, message := s.sync.ExecuteSchedule(r.Context(), schedule)
		s.writeJSON(w, http.StatusOK, syncRunResponse{Success: ok, Message: message})
		return
	}

	if len(req.NodeIDs) == 0 {
		s.writeError(w, fmt.Errorf("schedule_id or node_ids is required: %w", types.ErrValidation))
		return
	}

	commit := req.Commit
	if commit == "" {
		commit = "latest"
	}

	var results []*types.SyncResult
	succeeded := 0
	for _, nodeID := range req.NodeIDs {
		if req.Role != "" {
			res, err := s.sync.SyncNodeRole(r.Context(), nodeID, req.Role, commit, req.Restart)
			if err != nil {
				s.writeError(w, err)
				return
			}
			results = append(results, res)
			if res.Success {
				succeeded++
			}
			continue
		}

		ok, message := s.sync.SyncNode(r.Context(), nodeID, commit, req.Restart)
		results = append(results, &types.SyncResult{NodeID: nodeID, Success: ok, Message: message})
		if ok {
			succeeded++
		}
	}

	total := len(req.NodeIDs)
	failed := total - succeeded
	resp := syncRunResponse{Results: results}
	switch {
	case failed == 0:
		resp.Success = true
		resp.Message = fmt.Sprintf("Successfully synced %d node(s)", total)
	case succeeded == 0:
		resp.Success = false
		resp.Message = fmt.Sprintf("All %d node sync(s) failed", total)
	default:
		resp.Success = true
		resp.Message = fmt.Sprintf("Synced %d/%d nodes (%d failed)", succeeded, total, failed)
	}
	s.writeJSON(w, http.StatusOK, resp)
}
