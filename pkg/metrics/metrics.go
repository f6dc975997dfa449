package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_nodes_total",
			Help: "Total number of registered nodes by code status",
		},
		[]string{"code_status"},
	)

	// Sync metrics
	SyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_syncs_total",
			Help: "Total number of (node, role) syncs by result",
		},
		[]string{"result"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_sync_duration_seconds",
			Help:    "Duration of a single (node, role) sync in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	ScheduleRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_schedule_runs_total",
			Help: "Total number of schedule executions by status",
		},
		[]string{"status"},
	)

	// Vault metrics
	CredentialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_credentials_created_total",
			Help: "Total number of credentials created by type",
		},
		[]string{"type"},
	)

	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_access_tokens_issued_total",
			Help: "Total number of single-use access tokens issued",
		},
	)

	TokenExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_access_token_exchanges_total",
			Help: "Total number of token exchange attempts by result",
		},
		[]string{"result"},
	)

	// SSH metrics
	SSHSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_ssh_sessions_active",
			Help: "Number of outbound SSH sessions currently open",
		},
	)

	// Playbook metrics
	PlaybookRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_playbook_runs_total",
			Help: "Total number of playbook runs by final state",
		},
		[]string{"state"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		SyncsTotal,
		SyncDuration,
		ScheduleRunsTotal,
		CredentialsTotal,
		TokensIssuedTotal,
		TokenExchangesTotal,
		SSHSessionsActive,
		PlaybookRunsTotal,
		APIRequestsTotal,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
