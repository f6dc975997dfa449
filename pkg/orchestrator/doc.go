// Package orchestrator turns "this role should be at this commit on these
// nodes" into remote operations with well-defined outcomes.
//
// A single (node, role) sync transfers the role's source paths from a cache
// snapshot to the node, runs the optional post-sync command, and restarts
// the role's service when asked to. Transfer failure is fatal to the sync;
// post-sync and restart failures are warnings only, so a restart hiccup
// after a successful file update does not roll the node back to outdated.
//
// Schedule fan-outs process candidate nodes sequentially, with rolling
// pacing, or fully in parallel. Partial success counts as overall success.
package orchestrator
