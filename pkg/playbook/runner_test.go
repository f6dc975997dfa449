package playbook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/autobot/fleet/pkg/storage"
	"github.com/autobot/fleet/pkg/types"
)

func newTestRunner(t *testing.T) (*Runner, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRunner(t.TempDir(), "/etc/fleet/inventory.ini", store), store
}

// fakePlaybook writes an executable shell script standing in for
// ansible-playbook and points the runner's lookup at it.
func fakePlaybook(t *testing.T, r *Runner, script string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ansible-playbook")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	r.lookPath = func(string) (string, error) { return path, nil }
}

func TestBuildArgs(t *testing.T) {
	r, _ := newTestRunner(t)
	r.ansibleDir = "/opt/ansible"
	r.inventoryPath = "/opt/ansible/inventory.ini"

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "bare playbook",
			req:  Request{Playbook: "deploy"},
			want: []string{"-i", "/opt/ansible/inventory.ini", "/opt/ansible/deploy.yml"},
		},
		{
			name: "explicit extension kept",
			req:  Request{Playbook: "deploy.yaml"},
			want: []string{"-i", "/opt/ansible/inventory.ini", "/opt/ansible/deploy.yaml"},
		},
		{
			name: "all options",
			req: Request{
				Playbook:  "deploy",
				Limit:     "backend_nodes",
				Tags:      []string{"sync", "restart"},
				CheckMode: true,
				ExtraVars: map[string]string{"commit": "abc123", "batch": "2"},
			},
			want: []string{
				"-i", "/opt/ansible/inventory.ini", "/opt/ansible/deploy.yml",
				"--limit", "backend_nodes",
				"--tags", "sync,restart",
				"--check",
				"-e", "batch=2",
				"-e", "commit=abc123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.buildArgs(tt.req); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecuteLaunchFailure(t *testing.T) {
	r, _ := newTestRunner(t)
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	ok, output, rc := r.Execute(context.Background(), Request{Playbook: "deploy"}, nil)
	if ok {
		t.Error("launch failure must not report success")
	}
	if !strings.HasPrefix(output, "Error: ") {
		t.Errorf("output = %q, want Error: prefix", output)
	}
	if rc != -1 {
		t.Errorf("rc = %d, want -1", rc)
	}
}

func TestExecuteStreamsProgress(t *testing.T) {
	r, _ := newTestRunner(t)
	fakePlaybook(t, r, `
echo 'PLAY [Deploy SLM backend] *****'
echo 'TASK [Sync autobot-slm-backend | rsync] [PLAY 1]'
echo 'ok: [slm-host]'
echo 'PLAY RECAP *****'
`)

	var stages []string
	ok, output, rc := r.Execute(context.Background(), Request{Playbook: "deploy"}, func(ev types.ProgressEvent) {
		stages = append(stages, ev.Stage)
	})
	if !ok || rc != 0 {
		t.Fatalf("Execute() = (%v, rc=%d), output:\n%s", ok, rc, output)
	}

	want := []string{"play1_start", "slm_syncing", "complete"}
	if !reflect.DeepEqual(stages, want) {
		t.Errorf("stages = %v, want %v", stages, want)
	}
	if !strings.Contains(output, "TASK [Sync autobot-slm-backend | rsync] [PLAY 1]") {
		t.Error("raw line missing from accumulated output")
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	r, _ := newTestRunner(t)
	fakePlaybook(t, r, `
echo 'fatal: [node-1]: FAILED!'
exit 2
`)

	ok, output, rc := r.Execute(context.Background(), Request{Playbook: "deploy"}, nil)
	if ok {
		t.Error("non-zero exit must not report success")
	}
	if rc != 2 {
		t.Errorf("rc = %d, want 2", rc)
	}
	if !strings.Contains(output, "fatal: [node-1]") {
		t.Error("output should carry the failure line")
	}
}

func TestExecuteSurvivesOversizedOutputLine(t *testing.T) {
	r, _ := newTestRunner(t)
	// One line well past the scanner's buffer limit, then more output.
	fakePlaybook(t, r, `
head -c 2097152 /dev/zero | tr '\0' 'a'
echo
echo 'PLAY RECAP *****'
`)

	done := make(chan struct{})
	var ok bool
	go func() {
		defer close(done)
		ok, _, _ = r.Execute(context.Background(), Request{Playbook: "deploy"}, nil)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Execute() hung after the output scanner stopped early")
	}
	if ok {
		t.Error("a run whose output could not be fully read must not report success")
	}
}

func TestExecuteSwallowsProgressPanic(t *testing.T) {
	r, _ := newTestRunner(t)
	fakePlaybook(t, r, `echo 'PLAY [x] *****'`)

	ok, _, rc := r.Execute(context.Background(), Request{Playbook: "deploy"}, func(types.ProgressEvent) {
		panic("listener bug")
	})
	if !ok || rc != 0 {
		t.Errorf("a panicking progress callback must not fail the run: ok=%v rc=%d", ok, rc)
	}
}

func TestStartPersistsRunLifecycle(t *testing.T) {
	r, store := newTestRunner(t)
	fakePlaybook(t, r, `
echo 'PLAY [Deploy SLM backend] *****'
echo 'PLAY RECAP *****'
`)

	run, err := r.Start(Request{Playbook: "deploy", Tags: []string{"sync"}}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if run.State != types.PlaybookQueued {
		t.Errorf("initial state = %s, want queued", run.State)
	}

	final := waitForState(t, store, run.ID, types.PlaybookSucceeded)
	if final.ReturnCode != 0 {
		t.Errorf("rc = %d, want 0", final.ReturnCode)
	}
	if len(final.Events) == 0 {
		t.Error("run record should carry progress events")
	}
	if final.StartedAt.IsZero() || final.FinishedAt.IsZero() {
		t.Error("run timestamps should be set")
	}
}

func TestStartRejectsBadNames(t *testing.T) {
	r, _ := newTestRunner(t)
	for _, name := range []string{"", "../../etc/passwd", "/abs/path"} {
		if _, err := r.Start(Request{Playbook: name}, nil); !errors.Is(err, types.ErrValidation) {
			t.Errorf("Start(%q) error = %v, want ErrValidation", name, err)
		}
	}
}

func TestCancelTerminatesRun(t *testing.T) {
	r, store := newTestRunner(t)
	fakePlaybook(t, r, `
echo 'PLAY [long] *****'
exec sleep 30
`)

	run, err := r.Start(Request{Playbook: "deploy"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	waitForState(t, store, run.ID, types.PlaybookRunning)
	if err := r.Cancel(run.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	final := waitForState(t, store, run.ID, types.PlaybookCancelled)
	if final.ReturnCode == 0 {
		t.Error("cancelled run should not report rc 0")
	}
}

func TestCancelUnknownRun(t *testing.T) {
	r, _ := newTestRunner(t)
	if err := r.Cancel("ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Cancel() error = %v, want ErrNotFound", err)
	}
}

func waitForState(t *testing.T, store storage.Store, runID string, want types.PlaybookState) *types.PlaybookRun {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := store.GetPlaybookRun(runID)
		if err == nil && run.State == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached state %s", runID, want)
	return nil
}
