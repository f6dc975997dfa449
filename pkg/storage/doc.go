/*
Package storage provides the persistence layer for orchestration state.

State is kept in a single BoltDB file with one bucket per entity: nodes,
roles, node_roles, code_sources, credentials, schedules, playbook_runs.
Values are JSON-encoded; updates are upserts. Lookups that miss return an
error wrapping types.ErrNotFound.

NodeRole rows use the composite key "{node_id}/{role_name}", which makes the
per-node listing a cursor prefix scan.

ActivateCodeSource flips the active flag inside one write transaction so the
single-active-source invariant holds even if the process dies mid-switch.

Credential values stored here are ciphertext only; encryption happens in
pkg/vault before the row reaches this package.
*/
package storage
