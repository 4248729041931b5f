// internal/session/locks.go
package session

import (
	"sync"

	"github.com/google/uuid"
)

// matchLocks serializes every trigger touching one match. Entries are reference counted
// and dropped once nobody holds or waits on them.
type matchLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*matchLock
}

type matchLock struct {
	sync.Mutex
	refs int
}

func newMatchLocks() *matchLocks {
	return &matchLocks{locks: make(map[uuid.UUID]*matchLock)}
}

// Lock blocks until the caller owns matchID and returns the matching unlock.
func (l *matchLocks) Lock(matchID uuid.UUID) func() {
	l.mu.Lock()
	ml, ok := l.locks[matchID]
	if !ok {
		ml = &matchLock{}
		l.locks[matchID] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.Lock()
	return func() {
		ml.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, matchID)
		}
		l.mu.Unlock()
	}
}

func (l *matchLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
