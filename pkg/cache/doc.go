// Package cache maintains local per-commit snapshots of the code source.
//
// Snapshots live under <root>/<commit> and are pulled once from the active
// code source over rsync, then served read-only to node syncs. "latest"
// resolves to the source's HEAD via git rev-parse on the source node.
package cache
