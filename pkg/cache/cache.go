package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/sshexec"
	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// pullTimeout bounds a full cache pull from the code source.
	pullTimeout = 5 * time.Minute

	// resolveTimeout bounds the rev-parse on the source node.
	resolveTimeout = 30 * time.Second
)

var commitPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// remoteRunner executes a command on a fleet node.
type remoteRunner interface {
	Run(ctx context.Context, node *types.Node, command string, timeout time.Duration) (string, error)
}

// transferFunc pulls a tree from the source node into the cache.
type transferFunc func(ctx context.Context, spec sshexec.TransferSpec) (string, error)

// Cache maintains per-commit snapshots of the code source under a local
// root directory. Snapshots are immutable once populated; node syncs read
// from them without touching the source again.
type Cache struct {
	root     string
	keyPath  string
	store    storage.Store
	runner   remoteRunner
	transfer transferFunc
	onDrift  func(headCommit string)
	logger   zerolog.Logger

	mu      sync.Mutex
	pulling map[string]*sync.Mutex
}

// New creates a cache rooted at root, pulling from the active code source
// with the given SSH identity.
func New(root, keyPath string, store storage.Store, runner remoteRunner) *Cache {
	return &Cache{
		root:     root,
		keyPath:  keyPath,
		store:    store,
		runner:   runner,
		transfer: sshexec.Rsync,
		pulling:  make(map[string]*sync.Mutex),
		logger:   log.WithComponent("cache"),
	}
}

// OnDrift registers a callback invoked when a resolved head commit differs
// from the last one recorded on the code source.
func (c *Cache) OnDrift(fn func(headCommit string)) {
	c.onDrift = fn
}

// Ensure guarantees a populated snapshot for the given commit and returns
// its path plus the resolved commit. An empty commit or "latest" resolves to
// the source's current HEAD.
func (c *Cache) Ensure(ctx context.Context, commit string) (string, string, error) {
	src, err := c.store.GetActiveCodeSource()
	if err != nil {
		return "", "", fmt.Errorf("no active code source: %w", err)
	}
	node, err := c.store.GetNode(src.NodeID)
	if err != nil {
		return "", "", fmt.Errorf("code source node: %w", err)
	}

	if commit == "" || commit == "latest" {
		commit, err = c.resolveHead(ctx, src, node)
		if err != nil {
			return "", "", err
		}
	}
	if !commitPattern.MatchString(commit) {
		return "", "", fmt.Errorf("invalid commit %q: %w", commit, types.ErrValidation)
	}

	path := filepath.Join(c.root, commit)
	if populated(path) {
		return path, commit, nil
	}

	// One pull per commit at a time. Concurrent callers for the same commit
	// block here and reuse the winner's snapshot.
	lock := c.pullLock(commit)
	lock.Lock()
	defer lock.Unlock()
	if populated(path) {
		return path, commit, nil
	}

	c.logger.Info().Str("commit", commit).Str("source", src.NodeID).Msg("pulling code snapshot")

	// Pull into a staging directory so the snapshot path never exists in a
	// half-transferred state, even across a process crash.
	staging := path + ".partial"
	os.RemoveAll(staging)

	started := time.Now()
	output, err := c.transfer(ctx, sshexec.TransferSpec{
		Source:     fmt.Sprintf("%s@%s:%s/", node.SSHUser, node.IPAddress, strings.TrimRight(src.RepoPath, "/")),
		Dest:       staging,
		SSHPort:    node.SSHPort,
		SSHKeyPath: c.keyPath,
		Delete:     true,
		Timeout:    pullTimeout,
	})
	if err != nil {
		os.RemoveAll(staging)
		c.logger.Error().Err(err).Str("commit", commit).Msg("cache pull failed")
		return "", "", fmt.Errorf("cache pull for %s: %w", commit, err)
	}
	_ = output

	if err := os.Rename(staging, path); err != nil {
		os.RemoveAll(staging)
		return "", "", fmt.Errorf("publishing snapshot for %s: %w", commit, err)
	}

	c.logger.Info().
		Str("commit", commit).
		Dur("duration", time.Since(started)).
		Msg("snapshot cached")
	return path, commit, nil
}

// pullLock returns the mutex serializing pulls of one commit.
func (c *Cache) pullLock(commit string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.pulling[commit]
	if !ok {
		l = &sync.Mutex{}
		c.pulling[commit] = l
	}
	return l
}

// Head returns the current HEAD commit of the active code source.
func (c *Cache) Head(ctx context.Context) (string, error) {
	src, err := c.store.GetActiveCodeSource()
	if err != nil {
		return "", fmt.Errorf("no active code source: %w", err)
	}
	node, err := c.store.GetNode(src.NodeID)
	if err != nil {
		return "", fmt.Errorf("code source node: %w", err)
	}
	return c.resolveHead(ctx, src, node)
}

// resolveHead asks the source node for its HEAD commit and records drift
// against the last known commit.
func (c *Cache) resolveHead(ctx context.Context, src *types.CodeSource, node *types.Node) (string, error) {
	command := fmt.Sprintf("git -C %s rev-parse HEAD", src.RepoPath)
	output, err := c.runner.Run(ctx, node, command, resolveTimeout)
	if err != nil {
		return "", fmt.Errorf("resolving HEAD on %s: %w", src.NodeID, err)
	}

	head := strings.TrimSpace(output)
	if !commitPattern.MatchString(head) {
		return "", fmt.Errorf("unexpected rev-parse output %q", head)
	}

	if head != src.LastKnownCommit {
		src.LastKnownCommit = head
		src.UpdatedAt = time.Now()
		if err := c.store.PutCodeSource(src); err != nil {
			c.logger.Warn().Err(err).Msg("failed to record head commit")
		}
		if c.onDrift != nil {
			c.onDrift(head)
		}
	}
	return head, nil
}

// populated reports whether a snapshot directory exists. Pulls land in a
// staging directory and are renamed into place, so presence implies a
// complete snapshot.
func populated(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
