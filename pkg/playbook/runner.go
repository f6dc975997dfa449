package playbook

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/metrics"
	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// killGrace is how long a cancelled playbook gets to exit after SIGTERM
// before it is force-killed.
const killGrace = 5 * time.Second

// fallbackPaths are checked when ansible-playbook is not on PATH.
var fallbackPaths = []string{
	"/usr/local/bin/ansible-playbook",
	"/usr/bin/ansible-playbook",
	"/opt/ansible/bin/ansible-playbook",
}

// ProgressFunc receives progress events while a playbook runs. Panics in
// the callback are swallowed; a misbehaving listener must not take down the
// run.
type ProgressFunc func(types.ProgressEvent)

// Request describes one playbook invocation.
type Request struct {
	Playbook  string
	Limit     string
	Tags      []string
	ExtraVars map[string]string
	CheckMode bool
}

// Runner spawns and supervises ansible-playbook processes, streaming their
// combined output through the progress parser and persisting run records.
type Runner struct {
	ansibleDir    string
	inventoryPath string
	store         storage.Store
	lookPath      func(file string) (string, error)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	logger zerolog.Logger
}

// NewRunner creates a playbook runner rooted at ansibleDir.
func NewRunner(ansibleDir, inventoryPath string, store storage.Store) *Runner {
	return &Runner{
		ansibleDir:    ansibleDir,
		inventoryPath: inventoryPath,
		store:         store,
		lookPath:      exec.LookPath,
		cancels:       make(map[string]context.CancelFunc),
		logger:        log.WithComponent("playbook"),
	}
}

// StartProgressFunc receives progress events from a background run along
// with the run ID they belong to.
type StartProgressFunc func(runID string, ev types.ProgressEvent)

// Start creates a run record and launches the playbook in the background.
// The returned record is in the queued state; callers poll GetRun for
// progress.
func (r *Runner) Start(req Request, progress StartProgressFunc) (*types.PlaybookRun, error) {
	if err := validateName(req.Playbook); err != nil {
		return nil, err
	}

	run := &types.PlaybookRun{
		ID:           uuid.New().String(),
		PlaybookName: req.Playbook,
		Targets:      req.Limit,
		Tags:         req.Tags,
		ExtraVars:    req.ExtraVars,
		CheckMode:    req.CheckMode,
		State:        types.PlaybookQueued,
		ReturnCode:   -1,
		CreatedAt:    time.Now(),
	}
	if err := r.store.PutPlaybookRun(run); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[run.ID] = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.cancels, run.ID)
			r.mu.Unlock()
		}()
		r.supervise(ctx, run, req, progress)
	}()

	return run, nil
}

// Cancel requests cooperative termination of a running playbook.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running playbook %s: %w", runID, types.ErrNotFound)
	}
	cancel()
	return nil
}

// GetRun returns a run record by ID.
func (r *Runner) GetRun(id string) (*types.PlaybookRun, error) {
	return r.store.GetPlaybookRun(id)
}

// ListRuns returns all recorded runs.
func (r *Runner) ListRuns() ([]*types.PlaybookRun, error) {
	return r.store.ListPlaybookRuns()
}

// supervise drives one run from queued to its final state.
func (r *Runner) supervise(ctx context.Context, run *types.PlaybookRun, req Request, progress StartProgressFunc) {
	logger := r.logger.With().Str("run_id", run.ID).Str("playbook", run.PlaybookName).Logger()

	run.State = types.PlaybookRunning
	run.StartedAt = time.Now()
	if err := r.store.PutPlaybookRun(run); err != nil {
		logger.Error().Err(err).Msg("failed to record run start")
	}

	emit := func(ev types.ProgressEvent) {
		run.Events = append(run.Events, ev)
		if progress != nil {
			safeProgress(func(e types.ProgressEvent) { progress(run.ID, e) }, ev)
		}
	}

	success, output, rc := r.Execute(ctx, req, emit)

	run.Output = output
	run.ReturnCode = rc
	run.FinishedAt = time.Now()
	switch {
	case ctx.Err() == context.Canceled && !success:
		run.State = types.PlaybookCancelled
	case success:
		run.State = types.PlaybookSucceeded
	default:
		run.State = types.PlaybookFailed
	}

	if err := r.store.PutPlaybookRun(run); err != nil {
		logger.Error().Err(err).Msg("failed to record run result")
	}
	metrics.PlaybookRunsTotal.WithLabelValues(string(run.State)).Inc()
	logger.Info().Str("state", string(run.State)).Int("rc", rc).Msg("playbook run finished")
}

// Execute runs a playbook to completion, streaming combined output line by
// line through the progress parser. On launch failure it returns
// (false, "Error: ...", -1) without spawning anything.
func (r *Runner) Execute(ctx context.Context, req Request, progress ProgressFunc) (bool, string, int) {
	exe, err := r.locate()
	if err != nil {
		return false, fmt.Sprintf("Error: %v", err), -1
	}

	args := r.buildArgs(req)
	cmd := exec.Command(exe, args...)
	cmd.Dir = r.ansibleDir
	cmd.Env = append(os.Environ(),
		"ANSIBLE_FORCE_COLOR=false",
		"ANSIBLE_HOST_KEY_CHECKING=False",
		"ANSIBLE_LOCAL_TEMP=/tmp/.ansible-local",
	)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return false, fmt.Sprintf("Error: %v", err), -1
	}

	// Cooperative cancellation: SIGTERM first, SIGKILL after the grace
	// period.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-watchDone:
			case <-time.After(killGrace):
				cmd.Process.Kill()
			}
		case <-watchDone:
		}
	}()

	var output strings.Builder
	p := &parser{}
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if ev, ok := p.Parse(line); ok && progress != nil {
				safeProgress(progress, *ev)
			}
			output.WriteString(line)
			output.WriteByte('\n')
		}
		if err := scanner.Err(); err != nil {
			// The scanner gave up mid-stream (e.g. a line over the buffer
			// limit). Close the read side so the child's writes fail instead
			// of blocking Wait forever.
			pr.CloseWithError(err)
			output.WriteString(fmt.Sprintf("output truncated: %v\n", err))
		}
	}()

	waitErr := cmd.Wait()
	close(watchDone)
	pw.Close()
	<-scanDone

	rc := 0
	if waitErr != nil {
		rc = -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			rc = exitErr.ExitCode()
		}
	}
	return rc == 0, output.String(), rc
}

// buildArgs constructs the ansible-playbook argv for a request. Extra vars
// are emitted in sorted key order so invocations are reproducible.
func (r *Runner) buildArgs(req Request) []string {
	playbook := req.Playbook
	if filepath.Ext(playbook) == "" {
		playbook += ".yml"
	}

	args := []string{"-i", r.inventoryPath, filepath.Join(r.ansibleDir, playbook)}
	if req.Limit != "" {
		args = append(args, "--limit", req.Limit)
	}
	if len(req.Tags) > 0 {
		args = append(args, "--tags", strings.Join(req.Tags, ","))
	}
	if req.CheckMode {
		args = append(args, "--check")
	}

	keys := make([]string, 0, len(req.ExtraVars))
	for k := range req.ExtraVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, req.ExtraVars[k]))
	}
	return args
}

// locate finds the ansible-playbook executable on PATH or at well-known
// locations.
func (r *Runner) locate() (string, error) {
	if path, err := r.lookPath("ansible-playbook"); err == nil {
		return path, nil
	}
	for _, path := range fallbackPaths {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("ansible-playbook not found in PATH or fallback locations")
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("playbook name is required: %w", types.ErrValidation)
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return fmt.Errorf("invalid playbook name %q: %w", name, types.ErrValidation)
	}
	return nil
}

func safeProgress(fn ProgressFunc, ev types.ProgressEvent) {
	defer func() {
		recover()
	}()
	fn(ev)
}
