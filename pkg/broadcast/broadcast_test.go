package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/autobot/fleet/pkg/types"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (s *recordingSink) Send(ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := New()
	a, c := &recordingSink{}, &recordingSink{}
	b.Attach("op-1", a)
	b.Attach("op-1", c)

	b.Broadcast("op-1", types.ProgressEvent{Stage: "slm_syncing", Message: "Syncing SLM backend code..."})

	if a.count() != 1 || c.count() != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)", a.count(), c.count())
	}
	if got := a.events[0].Progress.Stage; got != "slm_syncing" {
		t.Errorf("stage = %q", got)
	}
}

func TestBroadcastIsScopedToOperation(t *testing.T) {
	b := New()
	a, c := &recordingSink{}, &recordingSink{}
	b.Attach("op-1", a)
	b.Attach("op-2", c)

	b.Broadcast("op-1", types.ProgressEvent{Stage: "complete"})

	if a.count() != 1 {
		t.Errorf("op-1 sink count = %d, want 1", a.count())
	}
	if c.count() != 0 {
		t.Errorf("op-2 sink count = %d, want 0", c.count())
	}
}

func TestBroadcastEvictsFailedSink(t *testing.T) {
	b := New()
	good := &recordingSink{}
	bad := &recordingSink{err: errors.New("connection closed")}
	b.Attach("op-1", good)
	b.Attach("op-1", bad)

	b.Broadcast("op-1", types.ProgressEvent{Stage: "play1_start"})
	if b.SubscriberCount("op-1") != 1 {
		t.Errorf("subscribers = %d, want failed sink evicted", b.SubscriberCount("op-1"))
	}

	b.Broadcast("op-1", types.ProgressEvent{Stage: "complete"})
	if good.count() != 2 {
		t.Errorf("good sink count = %d, want 2", good.count())
	}
}

func TestDetach(t *testing.T) {
	b := New()
	sink := &recordingSink{}
	b.Attach("op-1", sink)
	b.Detach("op-1", sink)
	b.Detach("op-1", sink) // idempotent
	b.Detach("ghost", sink)

	b.Broadcast("op-1", types.ProgressEvent{Stage: "complete"})
	if sink.count() != 0 {
		t.Errorf("detached sink received %d events", sink.count())
	}
	if b.SubscriberCount("op-1") != 0 {
		t.Error("empty subscriber set should be dropped")
	}
}

func TestBroadcastNoSubscribers(t *testing.T) {
	b := New()
	// Fire-and-forget: broadcasting into the void must not panic.
	b.Broadcast("op-1", types.ProgressEvent{Stage: "complete"})
}

func TestConcurrentAttachBroadcast(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Attach("op-1", &recordingSink{})
		}()
		go func() {
			defer wg.Done()
			b.Broadcast("op-1", types.ProgressEvent{Stage: "tick"})
		}()
	}
	wg.Wait()
}
