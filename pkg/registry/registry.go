package registry

import (
	"fmt"
	"time"

	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/metrics"
	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry is the authoritative record of nodes, roles, and role
// assignments.
type Registry struct {
	store  storage.Store
	locks  *NodeLocks
	logger zerolog.Logger
}

// New creates a registry over the given store.
func New(store storage.Store) *Registry {
	return &Registry{
		store:  store,
		locks:  NewNodeLocks(),
		logger: log.WithComponent("registry"),
	}
}

// Locks exposes the per-node advisory locks used to serialize syncs
// targeting the same node.
func (r *Registry) Locks() *NodeLocks {
	return r.locks
}

// RegisterNode creates a node record. SSH port defaults to 22 and code
// status to unknown.
func (r *Registry) RegisterNode(node *types.Node) (*types.Node, error) {
	if node.ID == "" {
		return nil, fmt.Errorf("node_id is required: %w", types.ErrValidation)
	}
	if node.IPAddress == "" {
		return nil, fmt.Errorf("ip_address is required: %w", types.ErrValidation)
	}

	if _, err := r.store.GetNode(node.ID); err == nil {
		return nil, fmt.Errorf("node %s already registered: %w", node.ID, types.ErrConflict)
	}

	if node.SSHPort == 0 {
		node.SSHPort = 22
	}
	if node.CodeStatus == "" {
		node.CodeStatus = types.CodeStatusUnknown
	}
	now := time.Now()
	node.CreatedAt = now
	node.UpdatedAt = now

	if err := r.store.CreateNode(node); err != nil {
		return nil, err
	}

	r.logger.Info().Str("node_id", node.ID).Str("ip", node.IPAddress).Msg("node registered")
	return node, nil
}

// GetNode returns a node by ID.
func (r *Registry) GetNode(id string) (*types.Node, error) {
	return r.store.GetNode(id)
}

// ListNodes returns all registered nodes.
func (r *Registry) ListNodes() ([]*types.Node, error) {
	return r.store.ListNodes()
}

// UpdateNode persists a mutated node record.
func (r *Registry) UpdateNode(node *types.Node) error {
	node.UpdatedAt = time.Now()
	return r.store.UpdateNode(node)
}

// DeregisterNode removes a node and all of its role assignments.
func (r *Registry) DeregisterNode(id string) error {
	if _, err := r.store.GetNode(id); err != nil {
		return err
	}

	assignments, err := r.store.ListNodeRolesByNode(id)
	if err != nil {
		return err
	}
	for _, nr := range assignments {
		if err := r.store.DeleteNodeRole(nr.NodeID, nr.RoleName); err != nil {
			return err
		}
	}

	return r.store.DeleteNode(id)
}

// CreateRole adds a role definition to the catalog.
func (r *Registry) CreateRole(role *types.Role) (*types.Role, error) {
	if role.Name == "" {
		return nil, fmt.Errorf("role name is required: %w", types.ErrValidation)
	}
	if role.TargetPath == "" {
		return nil, fmt.Errorf("role target_path is required: %w", types.ErrValidation)
	}

	if _, err := r.store.GetRole(role.Name); err == nil {
		return nil, fmt.Errorf("role %s already exists: %w", role.Name, types.ErrConflict)
	}

	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	if err := r.store.CreateRole(role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole returns a role by name.
func (r *Registry) GetRole(name string) (*types.Role, error) {
	return r.store.GetRole(name)
}

// ListRoles returns the whole catalog.
func (r *Registry) ListRoles() ([]*types.Role, error) {
	return r.store.ListRoles()
}

// UpdateRole persists a mutated role definition.
func (r *Registry) UpdateRole(role *types.Role) error {
	if _, err := r.store.GetRole(role.Name); err != nil {
		return err
	}
	role.UpdatedAt = time.Now()
	return r.store.UpdateRole(role)
}

// DeleteRole removes a role from the catalog.
func (r *Registry) DeleteRole(name string) error {
	if _, err := r.store.GetRole(name); err != nil {
		return err
	}
	return r.store.DeleteRole(name)
}

// AssignRole binds a role to a node. Assigning the NPU worker role seeds the
// detection state in the node's extra data.
func (r *Registry) AssignRole(nodeID, roleName string, assignment types.AssignmentType) (*types.NodeRole, error) {
	node, err := r.store.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.GetRole(roleName); err != nil {
		return nil, err
	}

	if _, err := r.store.GetNodeRole(nodeID, roleName); err == nil {
		return nil, fmt.Errorf("role %s already assigned to node %s: %w", roleName, nodeID, types.ErrConflict)
	}

	nr := &types.NodeRole{
		NodeID:         nodeID,
		RoleName:       roleName,
		AssignmentType: assignment,
		Status:         types.NodeRolePending,
	}
	if err := r.store.PutNodeRole(nr); err != nil {
		return nil, err
	}

	node.Roles = append(node.Roles, roleName)
	if roleName == types.RoleNPUWorker {
		if node.ExtraData == nil {
			node.ExtraData = make(map[string]any)
		}
		node.ExtraData["npu"] = map[string]any{
			"detection_status": "pending",
			"capabilities":     nil,
			"loaded_models":    []any{},
			"queue_depth":      0,
		}
	}
	if err := r.UpdateNode(node); err != nil {
		return nil, err
	}

	r.logger.Info().Str("node_id", nodeID).Str("role", roleName).Msg("role assigned")
	return nr, nil
}

// UnassignRole removes a role from a node, dropping NPU detection state when
// the NPU worker role goes away.
func (r *Registry) UnassignRole(nodeID, roleName string) error {
	node, err := r.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if _, err := r.store.GetNodeRole(nodeID, roleName); err != nil {
		return err
	}

	if err := r.store.DeleteNodeRole(nodeID, roleName); err != nil {
		return err
	}

	roles := node.Roles[:0]
	for _, name := range node.Roles {
		if name != roleName {
			roles = append(roles, name)
		}
	}
	node.Roles = roles
	if roleName == types.RoleNPUWorker && node.ExtraData != nil {
		delete(node.ExtraData, "npu")
	}
	return r.UpdateNode(node)
}

// PutNodeRole persists an assignment row directly. The sync path uses this
// to record lifecycle transitions without re-running assignment checks.
func (r *Registry) PutNodeRole(nr *types.NodeRole) error {
	return r.store.PutNodeRole(nr)
}

// GetNodeRole returns one assignment row.
func (r *Registry) GetNodeRole(nodeID, roleName string) (*types.NodeRole, error) {
	return r.store.GetNodeRole(nodeID, roleName)
}

// ListNodeRoles returns the assignments for one node.
func (r *Registry) ListNodeRoles(nodeID string) ([]*types.NodeRole, error) {
	return r.store.ListNodeRolesByNode(nodeID)
}

// SetCodeSource registers a code source record. The caller activates it
// separately.
func (r *Registry) SetCodeSource(nodeID, repoPath string) (*types.CodeSource, error) {
	if _, err := r.store.GetNode(nodeID); err != nil {
		return nil, err
	}
	if repoPath == "" {
		return nil, fmt.Errorf("repo_path is required: %w", types.ErrValidation)
	}

	now := time.Now()
	src := &types.CodeSource{
		ID:        uuid.New().String(),
		NodeID:    nodeID,
		RepoPath:  repoPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.PutCodeSource(src); err != nil {
		return nil, err
	}
	return src, nil
}

// ActivateCodeSource flips the active source atomically; the previously
// active record is deactivated in the same transaction.
func (r *Registry) ActivateCodeSource(id string) error {
	return r.store.ActivateCodeSource(id)
}

// ActiveCodeSource returns the single active source.
func (r *Registry) ActiveCodeSource() (*types.CodeSource, error) {
	return r.store.GetActiveCodeSource()
}

// MarkOutdated flags nodes whose deployed code no longer matches the source
// head. The schedule executor only ever syncs nodes in this state.
func (r *Registry) MarkOutdated(headCommit string) (int, error) {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, node := range nodes {
		if node.CurrentCodeVersion == headCommit {
			continue
		}
		if node.CodeStatus == types.CodeStatusOutdated || node.CodeStatus == types.CodeStatusSyncing {
			continue
		}
		node.CodeStatus = types.CodeStatusOutdated
		if err := r.UpdateNode(node); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// CandidateNodes resolves a schedule's target selector to the outdated nodes
// it should fan out to, in registry order.
func (r *Registry) CandidateNodes(schedule *types.Schedule) ([]*types.Node, error) {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return nil, err
	}

	var candidates []*types.Node
	for _, node := range nodes {
		if node.CodeStatus != types.CodeStatusOutdated {
			continue
		}
		switch schedule.TargetType {
		case types.TargetAll:
			candidates = append(candidates, node)
		case types.TargetSpecific:
			for _, id := range schedule.TargetNodes {
				if node.ID == id {
					candidates = append(candidates, node)
					break
				}
			}
		case types.TargetFilter:
			if nodeHasRole(node, schedule.TargetFilter) {
				candidates = append(candidates, node)
			}
		default:
			return nil, fmt.Errorf("unknown target type %q: %w", schedule.TargetType, types.ErrValidation)
		}
	}
	return candidates, nil
}

// RefreshMetrics republishes node gauges. Called after registration and sync
// outcomes.
func (r *Registry) RefreshMetrics() {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return
	}
	counts := make(map[types.CodeStatus]int)
	for _, node := range nodes {
		counts[node.CodeStatus]++
	}
	for _, status := range []types.CodeStatus{
		types.CodeStatusUpToDate,
		types.CodeStatusOutdated,
		types.CodeStatusSyncing,
		types.CodeStatusFailed,
		types.CodeStatusUnknown,
	} {
		metrics.NodesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func nodeHasRole(node *types.Node, role string) bool {
	for _, name := range node.Roles {
		if name == role {
			return true
		}
	}
	return false
}
