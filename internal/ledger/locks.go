package ledger

import "sync"

// userLocks serializes mutating ledger operations per user. Different users
// get independent mutexes, so cross-user trades never contend. Lock entries
// are small and never reclaimed; the table grows with the active user set.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for userID, creating it on first use, and returns
// it so callers can `defer l.acquire(uid).Unlock()`.
func (l *userLocks) acquire(userID string) *sync.Mutex {
	l.mu.Lock()
	mu, ok := l.m[userID]
	if !ok {
		mu = &sync.Mutex{}
		l.m[userID] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu
}
