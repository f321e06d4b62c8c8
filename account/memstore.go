package account

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
)

// MemStore keeps serialized records in memory. Records round-trip through
// JSON on every access so it behaves byte-for-byte like the SQL store.
type MemStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string][]byte)}
}

func (s *MemStore) Get(_ context.Context, userID string) (Account, error) {
	s.mu.RLock()
	raw, ok := s.records[userID]
	s.mu.RUnlock()
	if !ok {
		return Account{}, ErrNotFound
	}

	var a Account
	if err := json.Unmarshal(raw, &a); err != nil {
		// Corrupted record: treat as absent so the caller re-initializes.
		return Account{}, ErrNotFound
	}
	a.ID = userID
	return a, nil
}

func (s *MemStore) Put(_ context.Context, a Account) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[a.ID] = raw
	s.mu.Unlock()
	return nil
}
