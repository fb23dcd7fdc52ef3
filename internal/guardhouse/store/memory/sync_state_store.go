package memory

import (
	"context"
	"sync"
)

type SyncStateStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{values: make(map[string]string)}
}

func (s *SyncStateStore) Cursor(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *SyncStateStore) SetCursor(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
