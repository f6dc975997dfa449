package playbook

import (
	"testing"
)

func TestParseTaskTriggers(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantStage   string
		wantMessage string
	}{
		{
			name:        "slm sync task",
			line:        "TASK [Sync autobot-slm-backend | rsync] [PLAY 1]",
			wantStage:   "slm_syncing",
			wantMessage: "Syncing SLM backend code...",
		},
		{
			name:      "slm restart",
			line:      "TASK [Restart autobot-slm-backend service]",
			wantStage: "slm_restarting",
		},
		{
			name:      "slm wait",
			line:      "TASK [Wait for SLM health endpoint]",
			wantStage: "slm_waiting",
		},
		{
			name:      "node backend",
			line:      "TASK [Sync backend code to nodes]",
			wantStage: "node_backend",
		},
		{
			name:      "node npu",
			line:      "TASK [Sync NPU worker runtime]",
			wantStage: "node_npu",
		},
		{
			name:      "indented task line",
			line:      "  TASK [Sync frontend assets]  ",
			wantStage: "node_frontend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &parser{}
			ev, ok := p.Parse(tt.line)
			if !ok {
				t.Fatalf("Parse(%q) produced no event", tt.line)
			}
			if ev.Stage != tt.wantStage {
				t.Errorf("stage = %q, want %q", ev.Stage, tt.wantStage)
			}
			if tt.wantMessage != "" && ev.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", ev.Message, tt.wantMessage)
			}
		})
	}
}

func TestParsePlayHeaders(t *testing.T) {
	p := &parser{}

	ev, ok := p.Parse("PLAY [Deploy SLM backend] *****")
	if !ok || ev.Stage != "play1_start" {
		t.Errorf("first PLAY header: got (%v, %v)", ev, ok)
	}

	ev, ok = p.Parse("PLAY [Deploy fleet infrastructure] *****")
	if !ok || ev.Stage != "play2_start" {
		t.Errorf("second PLAY header: got (%v, %v)", ev, ok)
	}

	// A third play is not part of the recognized protocol.
	if _, ok := p.Parse("PLAY [Extra] *****"); ok {
		t.Error("third PLAY header should not produce an event")
	}

	ev, ok = p.Parse("PLAY RECAP *********")
	if !ok || ev.Stage != "complete" {
		t.Errorf("PLAY RECAP: got (%v, %v)", ev, ok)
	}
}

func TestParseIgnoresOrdinaryLines(t *testing.T) {
	p := &parser{}
	lines := []string{
		"",
		"ok: [node-1]",
		"changed: [node-2]",
		"TASK [Some unrelated housekeeping]",
		"fatal: [node-3]: UNREACHABLE!",
	}
	for _, line := range lines {
		if ev, ok := p.Parse(line); ok {
			t.Errorf("Parse(%q) = %+v, want no event", line, ev)
		}
	}
}
