package agent

import "sync"

// userLocks guards against interleaved agent turns: at most one in-flight
// turn per user. The lock is advisory and process-local. A crash mid-turn
// leaves nothing locked; the next turn re-derives all state from storage.
type userLocks struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newUserLocks() *userLocks {
	return &userLocks{busy: make(map[string]struct{})}
}

// TryAcquire claims the lock for the given user id. Returns false when a turn
// is already in flight; the caller must reject immediately, not wait.
func (l *userLocks) TryAcquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, inFlight := l.busy[id]; inFlight {
		return false
	}
	l.busy[id] = struct{}{}
	return true
}

// Release frees the lock. Safe to call for an unheld id.
func (l *userLocks) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.busy, id)
}
