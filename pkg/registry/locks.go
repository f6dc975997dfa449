package registry

import "sync"

// NodeLocks provides advisory per-node mutexes so concurrent schedules
// targeting the same node serialize their writes instead of racing.
type NodeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewNodeLocks creates an empty lock table.
func NewNodeLocks() *NodeLocks {
	return &NodeLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the advisory lock for a node, creating it on first use.
func (nl *NodeLocks) Lock(nodeID string) {
	nl.get(nodeID).Lock()
}

// Unlock releases the advisory lock for a node.
func (nl *NodeLocks) Unlock(nodeID string) {
	nl.get(nodeID).Unlock()
}

func (nl *NodeLocks) get(nodeID string) *sync.Mutex {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	lock, ok := nl.locks[nodeID]
	if !ok {
		lock = &sync.Mutex{}
		nl.locks[nodeID] = lock
	}
	return lock
}
