package storage

import "github.com/autobot/fleet/pkg/types"

// Store defines the persistence interface for orchestration state.
type Store interface {
	// Node operations
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// Role operations
	CreateRole(role *types.Role) error
	GetRole(name string) (*types.Role, error)
	ListRoles() ([]*types.Role, error)
	UpdateRole(role *types.Role) error
	DeleteRole(name string) error

	// NodeRole operations
	PutNodeRole(nr *types.NodeRole) error
	GetNodeRole(nodeID, roleName string) (*types.NodeRole, error)
	ListNodeRoles() ([]*types.NodeRole, error)
	ListNodeRolesByNode(nodeID string) ([]*types.NodeRole, error)
	DeleteNodeRole(nodeID, roleName string) error

	// CodeSource operations
	PutCodeSource(src *types.CodeSource) error
	GetCodeSource(id string) (*types.CodeSource, error)
	GetActiveCodeSource() (*types.CodeSource, error)
	ListCodeSources() ([]*types.CodeSource, error)
	ActivateCodeSource(id string) error
	DeleteCodeSource(id string) error

	// Credential operations
	CreateCredential(cred *types.Credential) error
	GetCredential(id string) (*types.Credential, error)
	ListCredentials() ([]*types.Credential, error)
	ListCredentialsByNode(nodeID string) ([]*types.Credential, error)
	UpdateCredential(cred *types.Credential) error
	DeleteCredential(id string) error

	// Schedule operations
	CreateSchedule(schedule *types.Schedule) error
	GetSchedule(id string) (*types.Schedule, error)
	ListSchedules() ([]*types.Schedule, error)
	UpdateSchedule(schedule *types.Schedule) error
	DeleteSchedule(id string) error

	// PlaybookRun operations
	PutPlaybookRun(run *types.PlaybookRun) error
	GetPlaybookRun(id string) (*types.PlaybookRun, error)
	ListPlaybookRuns() ([]*types.PlaybookRun, error)

	Close() error
}
