package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/autobot/fleet/pkg/broadcast"
	"github.com/autobot/fleet/pkg/playbook"
	"github.com/autobot/fleet/pkg/types"
	"github.com/gorilla/mux"
)

type runPlaybookRequest struct {
	Limit     string            `json:"limit,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	ExtraVars map[string]string `json:"extra_vars,omitempty"`
	CheckMode bool              `json:"check_mode"`
}

// handleRunPlaybook launches a playbook and returns 202 with the run ID.
// Progress events flow through the broadcaster keyed by run ID.
func (s *Server) handleRunPlaybook(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req runPlaybookRequest
	if r.ContentLength > 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}

	run, err := s.playbooks.Start(playbook.Request{
		Playbook:  name,
		Limit:     req.Limit,
		Tags:      req.Tags,
		ExtraVars: req.ExtraVars,
		CheckMode: req.CheckMode,
	}, func(runID string, ev types.ProgressEvent) {
		s.broadcaster.Broadcast(runID, ev)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func (s *Server) handleGetPlaybookRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.playbooks.GetRun(mux.Vars(r)["run_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListPlaybookRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.playbooks.ListRuns()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*types.PlaybookRun{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// sseSink writes broadcast events to an event-stream response. The first
// failed write marks the sink dead so the handler can return.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	dead    chan struct{}
	once    sync.Once
}

func (s *sseSink) Send(ev *broadcast.Event) error {
	payload, err := json.Marshal(ev.Progress)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.once.Do(func() { close(s.dead) })
		return err
	}
	s.flusher.Flush()
	return nil
}

// handlePlaybookEvents streams a run's progress as server-sent events until
// the client disconnects. There is no replay: subscribers see events
// broadcast after they attach; earlier ones are in the persisted run record.
func (s *Server) handlePlaybookEvents(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	if _, err := s.playbooks.GetRun(runID); err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher, dead: make(chan struct{})}
	s.broadcaster.Attach(runID, sink)
	defer s.broadcaster.Detach(runID, sink)

	select {
	case <-r.Context().Done():
	case <-sink.dead:
	}
}

func (s *Server) handleCancelPlaybookRun(w http.ResponseWriter, r *http.Request) {
	if err := s.playbooks.Cancel(mux.Vars(r)["run_id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}
