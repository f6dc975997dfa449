package broadcast

import (
	"sync"

	"github.com/autobot/fleet/pkg/log"
	"github.com/autobot/fleet/pkg/types"
	"github.com/rs/zerolog"
)

// Event is one progress record fanned out to subscribers of an operation.
type Event struct {
	OperationID string              `json:"operation_id"`
	Progress    types.ProgressEvent `json:"progress"`
}

// Sink receives broadcast events. A failing sink is evicted from its
// subscriber set.
type Sink interface {
	Send(ev *Event) error
}

// Broadcaster fans progress events out to per-operation subscriber sets.
// There is no buffering: a sink attached mid-operation sees only events
// broadcast after attachment.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[Sink]struct{}
	logger      zerolog.Logger
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[Sink]struct{}),
		logger:      log.WithComponent("broadcast"),
	}
}

// Attach subscribes a sink to an operation's events.
func (b *Broadcaster) Attach(opID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[opID]
	if !ok {
		set = make(map[Sink]struct{})
		b.subscribers[opID] = set
	}
	set[sink] = struct{}{}
}

// Detach removes a sink. Detaching an unknown sink is a no-op.
func (b *Broadcaster) Detach(opID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(opID, sink)
}

// Broadcast sends an event to every subscriber of the operation. Sinks that
// fail to accept the event are evicted.
func (b *Broadcaster) Broadcast(opID string, progress types.ProgressEvent) {
	ev := &Event{OperationID: opID, Progress: progress}

	// Copy the set under the lock; sends happen outside it.
	b.mu.Lock()
	set := b.subscribers[opID]
	sinks := make([]Sink, 0, len(set))
	for sink := range set {
		sinks = append(sinks, sink)
	}
	b.mu.Unlock()

	var failed []Sink
	for _, sink := range sinks {
		if err := sink.Send(ev); err != nil {
			failed = append(failed, sink)
		}
	}

	if len(failed) > 0 {
		b.mu.Lock()
		for _, sink := range failed {
			b.remove(opID, sink)
		}
		b.mu.Unlock()
		b.logger.Debug().Str("op_id", opID).Int("evicted", len(failed)).Msg("evicted failed sinks")
	}
}

// SubscriberCount reports how many sinks are attached to an operation.
func (b *Broadcaster) SubscriberCount(opID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[opID])
}

// remove deletes a sink, dropping the operation's set when it empties. The
// caller holds the lock.
func (b *Broadcaster) remove(opID string, sink Sink) {
	set, ok := b.subscribers[opID]
	if !ok {
		return
	}
	delete(set, sink)
	if len(set) == 0 {
		delete(b.subscribers, opID)
	}
}
