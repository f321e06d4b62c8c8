package account

import "sync"

// Locks hands out one mutex per user. Records are persisted whole, so every
// component that reads, mutates and writes back a record must hold the
// user's lock for the entire cycle or overlapping writers clobber each
// other's changes.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

func (l *Locks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	mu, ok := l.m[userID]
	if !ok {
		mu = &sync.Mutex{}
		l.m[userID] = mu
	}
	return mu
}

// Lock acquires the record lock for userID.
func (l *Locks) Lock(userID string) { l.get(userID).Lock() }

// Unlock releases the record lock for userID.
func (l *Locks) Unlock(userID string) { l.get(userID).Unlock() }
