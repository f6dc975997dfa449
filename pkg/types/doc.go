/*
Package types defines the core data structures used throughout the fleet
control plane.

This package contains the fundamental types that represent the fleet's domain
model: nodes, roles, role assignments, the active code source, credentials,
sync schedules, and playbook runs. These types are used by all other packages
for state management, API payloads, and orchestration logic.

# Core Types

Fleet topology:
  - Node: a managed host reachable over SSH, with assigned roles and a
    code status relative to the source head
  - Role: a deployable subtree of the code cache with target path,
    post-sync command, and restart policy
  - NodeRole: the assignment row binding a node to a role
  - CodeSource: the node and repository path snapshots are pulled from

Security:
  - Credential: AES-256-GCM encrypted secret (SSH, TLS, VNC) bound to a node
  - TLSInfo: parsed, queryable certificate metadata
  - ConnectionInfo: the public view of a credential, optionally carrying a
    single-use access token

Orchestration:
  - Schedule: cron-expressed recurring sync intent with a restart strategy
  - PlaybookRun: one supervised Ansible execution with progress events
  - SyncResult: outcome of a single (node, role) sync

# Design Patterns

All enums use typed string constants:

	type CodeStatus string
	const (
	    CodeStatusUpToDate CodeStatus = "up_to_date"
	    CodeStatusOutdated CodeStatus = "outdated"
	)

Errors form a small taxonomy of sentinels (ErrNotFound, ErrValidation,
ErrConflict, ErrTokenInvalid, ErrTokenExpired, ErrDecrypt) that components
wrap with %w and the REST layer translates to status codes.

# Thread Safety

Types are plain data: safe for concurrent reads, callers synchronize writes.
The storage layer serializes persisted mutations; in-memory caches carry
their own locks.

# See Also

  - pkg/storage for the persistence layer
  - pkg/vault for credential encryption and token issuance
  - pkg/orchestrator for the sync state machine
*/
package types
