package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Default exclude patterns for code transfers: version-control metadata,
// bytecode caches, and dependency directories never belong on a target.
var DefaultExcludes = []string{
	".git",
	"__pycache__",
	"*.pyc",
	"node_modules",
	".venv",
	"venv",
}

// TransferSpec describes one rsync invocation.
type TransferSpec struct {
	// Source in rsync syntax, either local (cache path) or remote
	// (user@host:path).
	Source string

	// Dest in rsync syntax.
	Dest string

	// Excludes extends DefaultExcludes.
	Excludes []string

	// SSHPort for the remote end.
	SSHPort int

	// SSHKeyPath is the identity file; empty means agent/default.
	SSHKeyPath string

	// Delete removes files on the destination that no longer exist in the
	// source tree.
	Delete bool

	// Timeout bounds the whole transfer.
	Timeout time.Duration
}

// Rsync runs a streaming differential transfer and returns combined output.
// A timeout or non-zero exit fails the transfer; the caller decides whether
// partial remote state needs cleanup.
func Rsync(ctx context.Context, spec TransferSpec) (string, error) {
	args := []string{"-az", "--timeout=30"}

	if spec.Delete {
		args = append(args, "--delete")
	}

	for _, pattern := range DefaultExcludes {
		args = append(args, "--exclude", pattern)
	}
	for _, pattern := range spec.Excludes {
		args = append(args, "--exclude", pattern)
	}

	args = append(args, "-e", sshTransport(spec.SSHPort, spec.SSHKeyPath))
	args = append(args, spec.Source, spec.Dest)

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "rsync", args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return output.String(), fmt.Errorf("transfer timed out after %s", spec.Timeout)
	}
	if err != nil {
		return output.String(), fmt.Errorf("transfer failed: %w", err)
	}
	return output.String(), nil
}

// sshTransport builds the rsync -e argument: strict host key checking off
// (closed network, rotating keys), a 30 second connect timeout, and the
// configured identity when present.
func sshTransport(port int, keyPath string) string {
	parts := []string{
		"ssh",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=30",
	}
	if port != 0 && port != 22 {
		parts = append(parts, "-p", fmt.Sprintf("%d", port))
	}
	if keyPath != "" {
		parts = append(parts, "-i", keyPath)
	}
	return strings.Join(parts, " ")
}
