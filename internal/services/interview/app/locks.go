package app

import "sync"

// sessionLocks serializes state-mutating operations per session id.
//
// Locks are acquired with TryLock so a caller losing the race gets a
// retriable error instead of queueing behind the winner. Entries are kept
// for the lifetime of the process.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *sessionLocks) lockFor(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	return lock
}

// tryAcquire attempts to take the session lock without blocking. The
// returned release function is nil when the lock was not acquired.
func (l *sessionLocks) tryAcquire(sessionID string) func() {
	lock := l.lockFor(sessionID)
	if !lock.TryLock() {
		return nil
	}
	return lock.Unlock
}
