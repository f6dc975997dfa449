package api

import (
	"net/http"
	"time"
)

// HealthResponse is the liveness check body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the readiness check body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// handleHealth is a plain liveness check: 200 if the process is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleReady verifies the store is reachable before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if _, err := s.store.ListNodes(); err != nil {
		checks["store"] = "unavailable: " + err.Error()
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if _, err := s.registry.ActiveCodeSource(); err != nil {
		checks["code_source"] = "none active"
	} else {
		checks["code_source"] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	s.writeJSON(w, status, ReadyResponse{
		Status:    state,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
