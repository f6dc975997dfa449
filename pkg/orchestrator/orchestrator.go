package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/metrics"
	"github.com/autobot/fleet/pkg/registry"
	"github.com/autobot/fleet/pkg/sshexec"
	"github.com/autobot/fleet/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// transferTimeout bounds a single source-path transfer.
	transferTimeout = 120 * time.Second

	// postSyncTimeout bounds the role's post-sync command.
	postSyncTimeout = 5 * time.Minute

	// restartTimeout bounds a service restart.
	restartTimeout = 60 * time.Second

	// rollingPause spaces node syncs under the rolling strategy so services
	// are not restarted simultaneously.
	rollingPause = 2 * time.Second
)

// codeCache provides populated snapshots by commit.
type codeCache interface {
	Ensure(ctx context.Context, commit string) (path string, resolved string, err error)
}

// remoteRunner executes a command on a node over SSH.
type remoteRunner interface {
	Run(ctx context.Context, node *types.Node, command string, timeout time.Duration) (string, error)
}

type transferFunc func(ctx context.Context, spec sshexec.TransferSpec) (string, error)

// Orchestrator drives role-scoped code distribution to fleet nodes: one
// transfer per source path, then the optional post-sync command and service
// restart, recording the outcome on the node and its assignment row.
type Orchestrator struct {
	registry *registry.Registry
	cache    codeCache
	runner   remoteRunner
	transfer transferFunc
	keyPath  string
	sleep    func(time.Duration)
	logger   zerolog.Logger
}

// New creates an orchestrator. keyPath is the SSH identity used for
// transfers.
func New(reg *registry.Registry, cache codeCache, runner remoteRunner, keyPath string) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		cache:    cache,
		runner:   runner,
		transfer: sshexec.Rsync,
		keyPath:  keyPath,
		sleep:    time.Sleep,
		logger:   log.WithComponent("orchestrator"),
	}
}

// SyncNodeRole distributes one role's source paths to one node. Transfer
// failure is fatal to the sync; post-sync and restart failures are logged as
// warnings but leave the sync successful. A non-nil error means the sync
// could not start (unknown node or role, no snapshot).
func (o *Orchestrator) SyncNodeRole(ctx context.Context, nodeID, roleName, commit string, restart bool) (*types.SyncResult, error) {
	node, err := o.registry.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	role, err := o.registry.GetRole(roleName)
	if err != nil {
		return nil, err
	}
	if len(role.SourcePaths) == 0 {
		return nil, fmt.Errorf("role %s has no source paths: %w", roleName, types.ErrValidation)
	}

	cachePath, resolved, err := o.cache.Ensure(ctx, commit)
	if err != nil {
		return nil, err
	}

	locks := o.registry.Locks()
	locks.Lock(nodeID)
	defer locks.Unlock(nodeID)

	started := time.Now()
	logger := o.logger.With().Str("node_id", nodeID).Str("role", roleName).Str("commit", resolved).Logger()

	o.setSyncing(node, nodeID, roleName)

	for _, sourcePath := range role.SourcePaths {
		contentsOf := strings.HasSuffix(sourcePath, "/")
		local := filepath.Join(cachePath, strings.TrimSuffix(sourcePath, "/"))

		if _, statErr := os.Stat(local); statErr != nil {
			// Source paths can lag role definitions across commits; skip
			// rather than fail the whole sync.
			logger.Warn().Str("source_path", sourcePath).Msg("source path missing from snapshot, skipping")
			continue
		}
		if contentsOf {
			local += "/"
		}

		output, transferErr := o.transfer(ctx, sshexec.TransferSpec{
			Source:     local,
			Dest:       fmt.Sprintf("%s@%s:%s/", node.SSHUser, node.IPAddress, strings.TrimRight(role.TargetPath, "/")),
			SSHPort:    node.SSHPort,
			SSHKeyPath: o.keyPath,
			Timeout:    transferTimeout,
		})
		if transferErr != nil {
			detail := strings.TrimSpace(output)
			if detail == "" {
				detail = transferErr.Error()
			}
			message := fmt.Sprintf("Sync failed for %s: %s", sourcePath, truncate(detail, 200))
			logger.Error().Str("source_path", sourcePath).Msg(message)

			o.recordFailure(node, nodeID, roleName)
			metrics.SyncsTotal.WithLabelValues("failure").Inc()
			return o.result(nodeID, roleName, resolved, false, message, started), nil
		}
	}

	if role.PostSyncCmd != "" {
		if output, cmdErr := o.runner.Run(ctx, node, role.PostSyncCmd, postSyncTimeout); cmdErr != nil {
			logger.Warn().Err(cmdErr).Str("output", truncate(output, 200)).Msg("post-sync command failed")
		}
	}

	if restart && role.AutoRestart && role.SystemdService != "" {
		command := fmt.Sprintf("sudo systemctl restart %s", role.SystemdService)
		if output, restartErr := o.runner.Run(ctx, node, command, restartTimeout); restartErr != nil {
			logger.Warn().Err(restartErr).Str("output", truncate(output, 200)).Msg("service restart failed")
		}
	}

	now := time.Now()
	nr := o.upsertAssignment(nodeID, roleName)
	nr.Status = types.NodeRoleActive
	nr.CurrentVersion = resolved
	nr.LastSyncedAt = now
	if err := o.putNodeRole(nr); err != nil {
		logger.Error().Err(err).Msg("failed to record assignment state")
	}

	node.CurrentCodeVersion = resolved
	node.CodeStatus = types.CodeStatusUpToDate
	if err := o.registry.UpdateNode(node); err != nil {
		logger.Error().Err(err).Msg("failed to record node state")
	}
	o.registry.RefreshMetrics()

	metrics.SyncsTotal.WithLabelValues("success").Inc()
	metrics.SyncDuration.Observe(time.Since(started).Seconds())
	logger.Info().Dur("duration", time.Since(started)).Msg("sync complete")

	return o.result(nodeID, roleName, resolved, true, fmt.Sprintf("Synced %s to %s", roleName, nodeID), started), nil
}

// SyncNode syncs every role the node carries. The node succeeds only when
// all of its role syncs succeed; the message reports the first failure.
func (o *Orchestrator) SyncNode(ctx context.Context, nodeID, commit string, restart bool) (bool, string) {
	node, err := o.registry.GetNode(nodeID)
	if err != nil {
		return false, err.Error()
	}
	if len(node.Roles) == 0 {
		return false, fmt.Sprintf("node %s has no roles assigned", nodeID)
	}

	synced := 0
	for _, roleName := range node.Roles {
		res, err := o.SyncNodeRole(ctx, nodeID, roleName, commit, restart)
		if err != nil {
			return false, err.Error()
		}
		if !res.Success {
			return false, res.Message
		}
		synced++
	}
	return true, fmt.Sprintf("Synced %d role(s) on %s", synced, nodeID)
}

// ExecuteSchedule fans a schedule out across its outdated candidate nodes.
// Partial success is overall success; only a full wipeout fails the run.
func (o *Orchestrator) ExecuteSchedule(ctx context.Context, schedule *types.Schedule) (bool, string) {
	candidates, err := o.registry.CandidateNodes(schedule)
	if err != nil {
		return false, err.Error()
	}
	if len(candidates) == 0 {
		return true, "No outdated nodes"
	}

	o.logger.Info().
		Str("schedule", schedule.Name).
		Int("candidates", len(candidates)).
		Str("strategy", string(schedule.RestartStrategy)).
		Msg("executing schedule")

	results := make([]bool, len(candidates))

	if schedule.RestartStrategy == types.RestartParallel {
		var wg sync.WaitGroup
		for i, node := range candidates {
			wg.Add(1)
			go func(i int, nodeID string) {
				defer wg.Done()
				results[i] = o.syncNodeSafe(ctx, nodeID, schedule.RestartAfterSync)
			}(i, node.ID)
		}
		wg.Wait()
	} else {
		for i, node := range candidates {
			results[i] = o.syncNodeSafe(ctx, node.ID, schedule.RestartAfterSync)
			if schedule.RestartStrategy == types.RestartRolling && i < len(candidates)-1 {
				o.sleep(rollingPause)
			}
		}
	}

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	total := len(candidates)
	failed := total - succeeded

	switch {
	case failed == 0:
		return true, fmt.Sprintf("Successfully synced %d node(s)", total)
	case succeeded == 0:
		return false, fmt.Sprintf("All %d node sync(s) failed", total)
	default:
		return true, fmt.Sprintf("Synced %d/%d nodes (%d failed)", succeeded, total, failed)
	}
}

// syncNodeSafe runs a node sync with panic recovery so one bad node cannot
// take down a fan-out.
func (o *Orchestrator) syncNodeSafe(ctx context.Context, nodeID string, restart bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("node_id", nodeID).Interface("panic", r).Msg("sync panicked")
			ok = false
		}
	}()

	ok, message := o.SyncNode(ctx, nodeID, "latest", restart)
	if !ok {
		o.logger.Warn().Str("node_id", nodeID).Msg(message)
	}
	return ok
}

func (o *Orchestrator) setSyncing(node *types.Node, nodeID, roleName string) {
	node.CodeStatus = types.CodeStatusSyncing
	if err := o.registry.UpdateNode(node); err != nil {
		o.logger.Warn().Err(err).Str("node_id", nodeID).Msg("failed to mark node syncing")
	}
	nr := o.upsertAssignment(nodeID, roleName)
	nr.Status = types.NodeRoleSyncing
	if err := o.putNodeRole(nr); err != nil {
		o.logger.Warn().Err(err).Str("node_id", nodeID).Msg("failed to mark assignment syncing")
	}
}

func (o *Orchestrator) recordFailure(node *types.Node, nodeID, roleName string) {
	node.CodeStatus = types.CodeStatusFailed
	if err := o.registry.UpdateNode(node); err != nil {
		o.logger.Warn().Err(err).Str("node_id", nodeID).Msg("failed to mark node failed")
	}
	nr := o.upsertAssignment(nodeID, roleName)
	nr.Status = types.NodeRoleFailed
	if err := o.putNodeRole(nr); err != nil {
		o.logger.Warn().Err(err).Str("node_id", nodeID).Msg("failed to mark assignment failed")
	}
}

// upsertAssignment fetches the assignment row, creating an automatic one
// when the role was never formally assigned.
func (o *Orchestrator) upsertAssignment(nodeID, roleName string) *types.NodeRole {
	nr, err := o.registry.GetNodeRole(nodeID, roleName)
	if err != nil {
		return &types.NodeRole{
			NodeID:         nodeID,
			RoleName:       roleName,
			AssignmentType: types.AssignmentAuto,
		}
	}
	return nr
}

func (o *Orchestrator) putNodeRole(nr *types.NodeRole) error {
	return o.registry.PutNodeRole(nr)
}

func (o *Orchestrator) result(nodeID, roleName, commit string, success bool, message string, started time.Time) *types.SyncResult {
	return &types.SyncResult{
		NodeID:   nodeID,
		RoleName: roleName,
		Commit:   commit,
		Success:  success,
		Message:  message,
		Duration: time.Since(started).Seconds(),
		At:       time.Now(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
