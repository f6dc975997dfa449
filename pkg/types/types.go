package types

import (
	"time"
)

// Node represents a member of the managed fleet, reachable over SSH.
type Node struct {
	ID                 string            `json:"node_id"`
	Hostname           string            `json:"hostname"`
	IPAddress          string            `json:"ip_address"`
	SSHUser            string            `json:"ssh_user"`
	SSHPort            int               `json:"ssh_port"` // default 22
	Roles              []string          `json:"roles"`
	CodeStatus         CodeStatus        `json:"code_status"`
	CurrentCodeVersion string            `json:"current_code_version,omitempty"`
	ExtraData          map[string]any    `json:"extra_data,omitempty"`
	Labels             map[string]string `json:"labels,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// CodeStatus represents how a node's deployed code compares to the source head.
type CodeStatus string

const (
	CodeStatusUpToDate CodeStatus = "up_to_date"
	CodeStatusOutdated CodeStatus = "outdated"
	CodeStatusSyncing  CodeStatus = "syncing"
	CodeStatusFailed   CodeStatus = "failed"
	CodeStatusUnknown  CodeStatus = "unknown"
)

// Role is a unit of code responsibility a node can carry (backend, frontend,
// npu-worker, ...). SourcePaths are relative to the cache root; a trailing
// "/" means "contents of" rather than the directory itself.
type Role struct {
	Name           string    `json:"name"`
	SourcePaths    []string  `json:"source_paths"`
	TargetPath     string    `json:"target_path"`
	PostSyncCmd    string    `json:"post_sync_cmd,omitempty"`
	AutoRestart    bool      `json:"auto_restart"`
	SystemdService string    `json:"systemd_service,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RoleNPUWorker is the role whose assignment seeds NPU detection state in
// Node.ExtraData.
const RoleNPUWorker = "npu-worker"

// AssignmentType records whether a role was assigned automatically or by an
// operator.
type AssignmentType string

const (
	AssignmentAuto   AssignmentType = "auto"
	AssignmentManual AssignmentType = "manual"
)

// NodeRoleStatus tracks the sync lifecycle of a (node, role) assignment.
type NodeRoleStatus string

const (
	NodeRolePending  NodeRoleStatus = "pending"
	NodeRoleSyncing  NodeRoleStatus = "syncing"
	NodeRoleActive   NodeRoleStatus = "active"
	NodeRoleFailed   NodeRoleStatus = "failed"
	NodeRoleDisabled NodeRoleStatus = "disabled"
)

// NodeRole is an assignment row binding a node to a role.
type NodeRole struct {
	NodeID         string         `json:"node_id"`
	RoleName       string         `json:"role_name"`
	AssignmentType AssignmentType `json:"assignment_type"`
	Status         NodeRoleStatus `json:"status"`
	CurrentVersion string         `json:"current_version,omitempty"`
	LastSyncedAt   time.Time      `json:"last_synced_at,omitempty"`
}

// CodeSource identifies the node and repository path the control plane pulls
// code from. At most one CodeSource is active at a time.
type CodeSource struct {
	ID              string    `json:"id"`
	NodeID          string    `json:"node_id"`
	RepoPath        string    `json:"repo_path"`
	IsActive        bool      `json:"is_active"`
	LastKnownCommit string    `json:"last_known_commit,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CredentialType distinguishes the secret kinds the vault stores.
type CredentialType string

const (
	CredentialSSH CredentialType = "ssh"
	CredentialTLS CredentialType = "tls"
	CredentialVNC CredentialType = "vnc"
)

// Credential is an encrypted secret bound to a node. Data is AES-256-GCM
// ciphertext and is the only at-rest form of the plaintext.
type Credential struct {
	ID       string         `json:"credential_id"`
	NodeID   string         `json:"node_id"`
	Type     CredentialType `json:"type"`
	Name     string         `json:"name"`
	Data     []byte         `json:"data"`
	IsActive bool           `json:"is_active"`
	LastUsed time.Time      `json:"last_used,omitempty"`

	// TLS metadata, parsed from the certificate on create/update.
	TLS *TLSInfo `json:"tls,omitempty"`

	// VNC connection fields (non-secret).
	VNC *VNCInfo `json:"vnc,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TLSInfo holds queryable, non-secret certificate metadata.
type TLSInfo struct {
	CommonName  string    `json:"common_name"`
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	Serial      string    `json:"serial"`
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
	DNSNames    []string  `json:"dns_names,omitempty"`
	IPAddresses []string  `json:"ip_addresses,omitempty"`
	Fingerprint string    `json:"fingerprint"` // SHA-256 of the DER certificate
}

// VNCInfo holds non-secret VNC connection fields. VNCPort defaults to
// 5900 + DisplayNumber when not explicitly set.
type VNCInfo struct {
	Port          int `json:"port,omitempty"`
	DisplayNumber int `json:"display_number"`
	VNCPort       int `json:"vnc_port"`
}

// TargetType selects which nodes a schedule fans out to.
type TargetType string

const (
	TargetAll      TargetType = "all"
	TargetSpecific TargetType = "specific"
	TargetFilter   TargetType = "filter"
)

// RestartStrategy controls pacing of service restarts during a fan-out.
type RestartStrategy string

const (
	RestartSequential RestartStrategy = "sequential"
	RestartRolling    RestartStrategy = "rolling"
	RestartParallel   RestartStrategy = "parallel"
)

// RunStatus is the outcome of the most recent schedule execution.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Schedule is a cron-expressed recurring sync intent over a set of nodes.
type Schedule struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	CronExpression   string          `json:"cron_expression"`
	Enabled          bool            `json:"enabled"`
	TargetType       TargetType      `json:"target_type"`
	TargetNodes      []string        `json:"target_nodes,omitempty"`
	TargetFilter     string          `json:"target_filter,omitempty"`
	RestartAfterSync bool            `json:"restart_after_sync"`
	RestartStrategy  RestartStrategy `json:"restart_strategy"`
	LastRun          time.Time       `json:"last_run,omitempty"`
	NextRun          time.Time       `json:"next_run,omitempty"`
	LastRunStatus    RunStatus       `json:"last_run_status,omitempty"`
	LastRunMessage   string          `json:"last_run_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PlaybookState tracks the lifecycle of an Ansible playbook run.
type PlaybookState string

const (
	PlaybookQueued    PlaybookState = "queued"
	PlaybookRunning   PlaybookState = "running"
	PlaybookSucceeded PlaybookState = "succeeded"
	PlaybookFailed    PlaybookState = "failed"
	PlaybookCancelled PlaybookState = "cancelled"
)

// PlaybookRun records one supervised playbook execution.
type PlaybookRun struct {
	ID           string            `json:"run_id"`
	PlaybookName string            `json:"playbook_name"`
	Targets      string            `json:"targets,omitempty"` // ansible --limit expression
	Tags         []string          `json:"tags,omitempty"`
	ExtraVars    map[string]string `json:"extra_vars,omitempty"`
	CheckMode    bool              `json:"check_mode"`
	State        PlaybookState     `json:"state"`
	ReturnCode   int               `json:"return_code"`
	Output       string            `json:"output,omitempty"`
	Events       []ProgressEvent   `json:"events,omitempty"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	FinishedAt   time.Time         `json:"finished_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ProgressEvent is a structured progress record emitted while supervising a
// playbook or a sync fan-out.
type ProgressEvent struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionInfo is the public (non-secret) view of a credential returned by
// the vault, optionally carrying a single-use access token.
type ConnectionInfo struct {
	CredentialID string         `json:"credential_id"`
	NodeID       string         `json:"node_id"`
	Type         CredentialType `json:"type"`
	Name         string         `json:"name"`
	Host         string         `json:"host,omitempty"`
	Port         int            `json:"port,omitempty"`
	Username     string         `json:"username,omitempty"`
	WebsocketURL string         `json:"websocket_url,omitempty"`
	TLS          *TLSInfo       `json:"tls,omitempty"`
	Token        string         `json:"token,omitempty"`
	TokenExpires time.Time      `json:"token_expires,omitempty"`
}

// SyncResult is the outcome of a single (node, role) sync.
type SyncResult struct {
	NodeID   string    `json:"node_id"`
	RoleName string    `json:"role_name"`
	Commit   string    `json:"commit"`
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Duration float64   `json:"duration_seconds"`
	At       time.Time `json:"at"`
}
