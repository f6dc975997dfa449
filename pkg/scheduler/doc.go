// Package scheduler evaluates cron schedules once per minute and dispatches
// due ones to the sync orchestrator. If the control plane was down across
// several firing windows, the schedule fires once for the most recent miss
// and then advances to its next future occurrence.
package scheduler
