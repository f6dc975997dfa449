package sshexec

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/metrics"
	"github.com/autobot/fleet/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/semaphore"
)

// dialTimeout bounds SSH connection establishment.
const dialTimeout = 30 * time.Second

// PasswordFunc resolves an SSH password for a node when key auth is not
// available. Returning false means no password is known.
type PasswordFunc func(nodeID string) (string, bool)

// Runner executes commands on fleet nodes over SSH. Concurrent sessions are
// capped by a weighted semaphore; when the ceiling is hit callers wait
// rather than fail.
type Runner struct {
	keyPath  string
	password PasswordFunc
	sem      *semaphore.Weighted
	logger   zerolog.Logger
}

// NewRunner creates a runner using the private key at keyPath (optional) and
// at most maxSessions concurrent sessions.
func NewRunner(keyPath string, maxSessions int64, password PasswordFunc) *Runner {
	if maxSessions <= 0 {
		maxSessions = 16
	}
	return &Runner{
		keyPath:  keyPath,
		password: password,
		sem:      semaphore.NewWeighted(maxSessions),
		logger:   log.WithComponent("ssh"),
	}
}

// Run executes a command on the node and returns combined output. The
// timeout covers the whole session including dial time.
func (r *Runner) Run(ctx context.Context, node *types.Node, command string, timeout time.Duration) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for ssh slot: %w", err)
	}
	defer r.sem.Release(1)

	metrics.SSHSessionsActive.Inc()
	defer metrics.SSHSessionsActive.Dec()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := r.dial(runCtx, node)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session on %s: %w", node.ID, err)
	}
	defer session.Close()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		done <- result{output, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return string(res.output), fmt.Errorf("command failed on %s: %w", node.ID, res.err)
		}
		return string(res.output), nil
	case <-runCtx.Done():
		// Closing the client tears down the hung session.
		client.Close()
		return "", fmt.Errorf("command timed out on %s after %s", node.ID, timeout)
	}
}

// dial opens an authenticated SSH connection to the node.
func (r *Runner) dial(ctx context.Context, node *types.Node) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User: node.SSHUser,
		// The fleet runs on a closed network and host keys rotate with
		// reimaging, so host key verification is disabled.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	auth, err := r.authMethods(node)
	if err != nil {
		return nil, err
	}
	cfg.Auth = auth

	addr := net.JoinHostPort(node.IPAddress, fmt.Sprintf("%d", node.SSHPort))

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (r *Runner) authMethods(node *types.Node) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if r.keyPath != "" {
		key, err := os.ReadFile(r.keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if r.password != nil {
		if password, ok := r.password(node.ID); ok {
			methods = append(methods, ssh.Password(password))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no ssh auth available for node %s", node.ID)
	}
	return methods, nil
}
