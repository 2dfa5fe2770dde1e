package coordinator

import (
	"sync"
)

// agentLocks serializes task execution per agent identity within this
// process. The store's guarded transitions already protect cross-process
// races; this keeps a single process from even attempting two concurrent
// runs for the same agent.
type agentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the named agent's mutex, creating it on first use.
// Callers must call the returned release function.
func (a *agentLocks) acquire(agentID string) (release func()) {
	a.mu.Lock()
	lock, ok := a.locks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[agentID] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
