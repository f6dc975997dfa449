// Package playbook spawns and supervises ansible-playbook processes.
//
// Output is consumed line by line and fed through a lexical progress parser
// that recognizes the two plays of the fleet deployment playbook: the SLM
// backend play and the infrastructure play. Matching lines produce
// structured progress events; everything else is just accumulated output.
// Run records are persisted so run state survives a control-plane restart.
//
// Cancellation is cooperative: the child gets SIGTERM, then SIGKILL after a
// short grace period.
package playbook
