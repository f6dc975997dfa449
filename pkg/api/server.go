package api

import (
	"context"
	"net/http"
	"time"

	"github.com/autobot/fleet/pkg/broadcast"
	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/metrics"
	"github.com/autobot/fleet/pkg/playbook"
	"github.com/autobot/fleet/pkg/registry"
	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
	"github.com/autobot/fleet/pkg/vault"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// syncService is the slice of the orchestrator the API drives.
type syncService interface {
	SyncNodeRole(ctx context.Context, nodeID, roleName, commit string, restart bool) (*types.SyncResult, error)
	SyncNode(ctx context.Context, nodeID, commit string, restart bool) (bool, string)
	ExecuteSchedule(ctx context.Context, schedule *types.Schedule) (bool, string)
}

// playbookService is the slice of the playbook runner the API drives.
type playbookService interface {
	Start(req playbook.Request, progress playbook.StartProgressFunc) (*types.PlaybookRun, error)
	Cancel(runID string) error
	GetRun(id string) (*types.PlaybookRun, error)
	ListRuns() ([]*types.PlaybookRun, error)
}

// Server is the control-plane REST surface.
type Server struct {
	registry    *registry.Registry
	vault       *vault.Vault
	store       storage.Store
	sync        syncService
	playbooks   playbookService
	broadcaster *broadcast.Broadcaster
	router      *mux.Router
	httpServer  *http.Server
	logger      zerolog.Logger
}

// NewServer wires the REST surface over the control-plane services.
func NewServer(reg *registry.Registry, v *vault.Vault, store storage.Store, sync syncService, playbooks playbookService, bc *broadcast.Broadcaster) *Server {
	s := &Server{
		registry:    reg,
		vault:       v,
		store:       store,
		sync:        sync,
		playbooks:   playbooks,
		broadcaster: bc,
		router:      mux.NewRouter(),
		logger:      log.WithComponent("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.instrument)

	// Liveness and metrics
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Nodes and role assignments
	r.HandleFunc("/nodes", s.handleListNodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes", s.handleRegisterNode).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{id}", s.handleGetNode).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{id}", s.handleDeregisterNode).Methods(http.MethodDelete)
	r.HandleFunc("/nodes/{id}/role/{name}", s.handleAssignRole).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{id}/role/{name}", s.handleUnassignRole).Methods(http.MethodDelete)
	r.HandleFunc("/nodes/{id}/credentials", s.handleListNodeCredentials).Methods(http.MethodGet)

	// Role catalog
	r.HandleFunc("/roles", s.handleListRoles).Methods(http.MethodGet)
	r.HandleFunc("/roles", s.handleCreateRole).Methods(http.MethodPost)
	r.HandleFunc("/roles/{name}", s.handleGetRole).Methods(http.MethodGet)
	r.HandleFunc("/roles/{name}", s.handleUpdateRole).Methods(http.MethodPut)
	r.HandleFunc("/roles/{name}", s.handleDeleteRole).Methods(http.MethodDelete)

	// Code sources
	r.HandleFunc("/code-sources", s.handleListCodeSources).Methods(http.MethodGet)
	r.HandleFunc("/code-sources", s.handleCreateCodeSource).Methods(http.MethodPost)
	r.HandleFunc("/code-sources/{id}/activate", s.handleActivateCodeSource).Methods(http.MethodPost)

	// Sync
	r.HandleFunc("/sync/run", s.handleSyncRun).Methods(http.MethodPost)

	// Schedules
	r.HandleFunc("/schedules", s.handleListSchedules).Methods(http.MethodGet)
	r.HandleFunc("/schedules", s.handleCreateSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules/validate", s.handleValidateCron).Methods(http.MethodPost)
	r.HandleFunc("/schedules/{id}", s.handleGetSchedule).Methods(http.MethodGet)
	r.HandleFunc("/schedules/{id}", s.handleUpdateSchedule).Methods(http.MethodPut)
	r.HandleFunc("/schedules/{id}", s.handleDeleteSchedule).Methods(http.MethodDelete)

	// Playbooks
	r.HandleFunc("/playbooks/runs", s.handleListPlaybookRuns).Methods(http.MethodGet)
	r.HandleFunc("/playbooks/runs/{run_id}", s.handleGetPlaybookRun).Methods(http.MethodGet)
	r.HandleFunc("/playbooks/runs/{run_id}/cancel", s.handleCancelPlaybookRun).Methods(http.MethodPost)
	r.HandleFunc("/playbooks/runs/{run_id}/events", s.handlePlaybookEvents).Methods(http.MethodGet)
	r.HandleFunc("/playbooks/{name}/run", s.handleRunPlaybook).Methods(http.MethodPost)

	// Credentials
	r.HandleFunc("/credentials/exchange", s.handleExchangeToken).Methods(http.MethodPost)
	r.HandleFunc("/credentials/tls/expiring", s.handleExpiringTLS).Methods(http.MethodGet)
	r.HandleFunc("/credentials/{type}", s.handleCreateCredential).Methods(http.MethodPost)
	r.HandleFunc("/credentials/{type}/endpoints", s.handleListEndpoints).Methods(http.MethodGet)
	r.HandleFunc("/credentials/{id}/connection", s.handleConnectionInfo).Methods(http.MethodGet)
	r.HandleFunc("/credentials/{id}", s.handleUpdateCredential).Methods(http.MethodPut)
	r.HandleFunc("/credentials/{id}", s.handleDeleteCredential).Methods(http.MethodDelete)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("api server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
