package sshexec

import (
	"strings"
	"testing"
)

func TestSSHTransport(t *testing.T) {
	tests := []struct {
		name        string
		port        int
		keyPath     string
		wantHas     []string
		wantMissing []string
	}{
		{
			name:        "defaults",
			port:        22,
			wantHas:     []string{"StrictHostKeyChecking=no", "ConnectTimeout=30"},
			wantMissing: []string{"-p", "-i"},
		},
		{
			name:    "custom port and key",
			port:    2222,
			keyPath: "/etc/fleet/id_ed25519",
			wantHas: []string{"-p 2222", "-i /etc/fleet/id_ed25519"},
		},
		{
			name:        "zero port treated as default",
			port:        0,
			wantMissing: []string{"-p"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sshTransport(tt.port, tt.keyPath)
			for _, want := range tt.wantHas {
				if !strings.Contains(got, want) {
					t.Errorf("sshTransport() = %q, missing %q", got, want)
				}
			}
			for _, notWant := range tt.wantMissing {
				if strings.Contains(got, notWant) {
					t.Errorf("sshTransport() = %q, should not contain %q", got, notWant)
				}
			}
		})
	}
}

func TestDefaultExcludesCoverArtifacts(t *testing.T) {
	for _, pattern := range []string{".git", "__pycache__", "node_modules"} {
		found := false
		for _, exclude := range DefaultExcludes {
			if exclude == pattern {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("DefaultExcludes missing %q", pattern)
		}
	}
}
