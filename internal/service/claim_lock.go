package service

import (
	"sync"

	"github.com/google/uuid"
)

// claimLocks serializes decisions on the same claim within this process so that
// concurrent voters queue instead of burning retries on version conflicts.
// Cross-process ordering still relies on the row lock and the version check.
type claimLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*claimLock
}

type claimLock struct {
	mu   sync.Mutex
	refs int
}

func newClaimLocks() *claimLocks {
	return &claimLocks{locks: make(map[uuid.UUID]*claimLock)}
}

// Lock blocks until the caller holds the lock for id and returns its release func.
func (l *claimLocks) Lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &claimLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *claimLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
