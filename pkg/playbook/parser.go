package playbook

import (
	"strings"
	"time"

	"github.com/autobot/fleet/pkg/types"
)

// trigger maps a task-name substring to a progress stage. Matching is purely
// lexical; order matters because some substrings shadow others.
type trigger struct {
	substr  string
	stage   string
	message string
}

var taskTriggers = []trigger{
	// Play 1: SLM backend deployment.
	{"Sync autobot-slm-backend", "slm_syncing", "Syncing SLM backend code..."},
	{"Install SLM dependencies", "slm_starting", "Preparing SLM backend..."},
	{"Restart autobot-slm", "slm_restarting", "Restarting SLM backend service..."},
	{"Wait for SLM", "slm_waiting", "Waiting for SLM backend to come up..."},
	{"SLM deployment complete", "slm_complete", "SLM backend deployed"},

	// Play 2: fleet infrastructure.
	{"Gather node facts", "nodes_starting", "Preparing fleet nodes..."},
	{"Sync backend", "node_backend", "Syncing backend nodes..."},
	{"Sync frontend", "node_frontend", "Syncing frontend nodes..."},
	{"Sync NPU", "node_npu", "Syncing NPU workers..."},
	{"Sync browser", "node_browser", "Syncing browser nodes..."},
	{"Node deployment complete", "node_complete", "Fleet nodes deployed"},
}

// parser extracts progress events from ansible-playbook output lines. It
// tracks how many PLAY headers it has seen to emit the per-play start
// events.
type parser struct {
	playsSeen int
}

// Parse inspects one output line and returns a progress event when the line
// matches a known trigger. Most lines produce nothing.
func (p *parser) Parse(line string) (*types.ProgressEvent, bool) {
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "PLAY RECAP"):
		return event("complete", "Deployment complete"), true

	case strings.HasPrefix(trimmed, "PLAY ["):
		p.playsSeen++
		switch p.playsSeen {
		case 1:
			return event("play1_start", "Starting SLM backend deployment"), true
		case 2:
			return event("play2_start", "Starting fleet node deployment"), true
		}
		return nil, false

	case strings.HasPrefix(trimmed, "TASK ["):
		name := taskName(trimmed)
		for _, tr := range taskTriggers {
			if strings.Contains(name, tr.substr) {
				return event(tr.stage, tr.message), true
			}
		}
	}
	return nil, false
}

// taskName extracts the task name from a "TASK [name]" header line.
func taskName(line string) string {
	rest := strings.TrimPrefix(line, "TASK [")
	if end := strings.Index(rest, "]"); end >= 0 {
		return rest[:end]
	}
	return rest
}

func event(stage, message string) *types.ProgressEvent {
	return &types.ProgressEvent{
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now(),
	}
}
